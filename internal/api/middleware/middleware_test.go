package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"plan-nat/backend/config"
	"plan-nat/backend/pkg/jwt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestJWT() *jwt.Manager {
	return jwt.NewManager(&config.AuthConfig{
		JWTSecret:               "middleware-test-secret-2026",
		AccessTokenTTL:          15 * time.Minute,
		RefreshTokenTTLDefault:  24 * time.Hour,
		RefreshTokenTTLRemember: 7 * 24 * time.Hour,
	})
}

type fakeChecker struct {
	revoked map[string]bool
	err     error
}

func (f *fakeChecker) IsBlacklisted(_ context.Context, jti string) (bool, error) {
	return f.revoked[jti], f.err
}

type fakeLimiter struct {
	calls int
	limit int
	err   error
}

func (f *fakeLimiter) CheckRateLimit(_ context.Context, _ string, _ int, _ time.Duration) (bool, error) {
	f.calls++
	return f.calls <= f.limit, f.err
}

func authedEngine(mgr *jwt.Manager, checker TokenChecker) *gin.Engine {
	r := gin.New()
	r.GET("/me", JWTAuth(mgr, checker, zap.NewNop()), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("user_id")+"|"+c.GetString("role"))
	})
	r.GET("/admin", JWTAuth(mgr, checker, zap.NewNop()), RoleAuth("admin"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func get(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	r.ServeHTTP(w, req)
	return w
}

// ── JWTAuth ──

func TestJWTAuth_Valid(t *testing.T) {
	mgr := newTestJWT()
	token, _ := mgr.GenerateAccessToken("u-1", "member", "N2")

	w := get(authedEngine(mgr, nil), "/me", token)
	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际 %d", w.Code)
	}
	if w.Body.String() != "u-1|member" {
		t.Errorf("上下文注入不正确: %s", w.Body.String())
	}
}

func TestJWTAuth_Rejects(t *testing.T) {
	mgr := newTestJWT()
	refresh, _ := mgr.GenerateRefreshToken("u-1", "member", "N2", false)

	cases := []struct {
		name   string
		header string
	}{
		{"缺少认证头", ""},
		{"格式错误", "Token abc"},
		{"签名无效", "Bearer not.a.jwt"},
		{"Refresh Token 不能访问接口", "Bearer " + refresh},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := authedEngine(mgr, nil)
			w := httptest.NewRecorder()
			req := httptest.NewRequest("GET", "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			r.ServeHTTP(w, req)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("期望 401，实际 %d", w.Code)
			}
		})
	}
}

func TestJWTAuth_Blacklisted(t *testing.T) {
	mgr := newTestJWT()
	token, _ := mgr.GenerateAccessToken("u-1", "member", "")
	claims, _ := mgr.ParseToken(token)

	checker := &fakeChecker{revoked: map[string]bool{claims.ID: true}}
	if w := get(authedEngine(mgr, checker), "/me", token); w.Code != http.StatusUnauthorized {
		t.Errorf("已作废 Token 期望 401，实际 %d", w.Code)
	}
}

func TestJWTAuth_BlacklistErrorFailsOpen(t *testing.T) {
	mgr := newTestJWT()
	token, _ := mgr.GenerateAccessToken("u-1", "member", "")

	checker := &fakeChecker{err: errors.New("redis down")}
	if w := get(authedEngine(mgr, checker), "/me", token); w.Code != http.StatusOK {
		t.Errorf("黑名单不可用时应降级放行，实际 %d", w.Code)
	}
}

// ── RoleAuth ──

func TestRoleAuth(t *testing.T) {
	mgr := newTestJWT()
	member, _ := mgr.GenerateAccessToken("u-1", "member", "")
	admin, _ := mgr.GenerateAccessToken("u-2", "admin", "")
	r := authedEngine(mgr, nil)

	if w := get(r, "/admin", member); w.Code != http.StatusForbidden {
		t.Errorf("普通会员期望 403，实际 %d", w.Code)
	}
	if w := get(r, "/admin", admin); w.Code != http.StatusOK {
		t.Errorf("管理员期望 200，实际 %d", w.Code)
	}
}

// ── RateLimit ──

func TestRateLimit(t *testing.T) {
	limiter := &fakeLimiter{limit: 2}
	r := gin.New()
	r.POST("/login", RateLimit(limiter, 2, time.Minute), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("POST", "/login", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("第 %d 次请求期望 200，实际 %d", i+1, w.Code)
		}
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/login", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("超限期望 429，实际 %d", w.Code)
	}
}

func TestRateLimit_NilAndErrorPass(t *testing.T) {
	for name, limiter := range map[string]Limiter{
		"未配置": nil,
		"出错":  &fakeLimiter{limit: 0, err: errors.New("redis down")},
	} {
		t.Run(name, func(t *testing.T) {
			r := gin.New()
			r.POST("/login", RateLimit(limiter, 1, time.Minute), func(c *gin.Context) { c.Status(http.StatusOK) })
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest("POST", "/login", nil))
			if w.Code != http.StatusOK {
				t.Errorf("期望降级放行，实际 %d", w.Code)
			}
		})
	}
}

// ── BodyLimit / RequestID / CORS ──

func TestBodyLimit(t *testing.T) {
	r := gin.New()
	r.POST("/echo", BodyLimit(8), func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			_ = c.Error(err)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/echo", strings.NewReader("short")))
	if w.Code != http.StatusOK {
		t.Errorf("小请求体期望 200，实际 %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/echo", bytes.NewReader(make([]byte, 64))))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("超限请求体期望 413，实际 %d", w.Code)
	}
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.GET("/", RequestID(), func(c *gin.Context) { c.String(http.StatusOK, c.GetString(requestIDKey)) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(requestIDHeader, "trace-123")
	r.ServeHTTP(w, req)
	if w.Header().Get(requestIDHeader) != "trace-123" || w.Body.String() != "trace-123" {
		t.Errorf("应沿用外部 Request-ID，实际 %q", w.Header().Get(requestIDHeader))
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set(requestIDHeader, strings.Repeat("x", requestIDMaxLen+1))
	r.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); len(got) != 36 {
		t.Errorf("超长 Request-ID 应重新生成 UUID，实际 %q", got)
	}
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://club.example/"}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest("OPTIONS", "/", nil)
	req.Header.Set("Origin", "https://club.example")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("预检请求期望 204，实际 %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "https://club.example" {
		t.Error("白名单来源应返回 Allow-Origin")
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	r.ServeHTTP(w, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("非白名单来源不应返回 Allow-Origin")
	}
}

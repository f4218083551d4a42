package jwt

import (
	"errors"
	"testing"
	"time"

	"plan-nat/backend/config"
)

func newTestManager() *Manager {
	return NewManager(&config.AuthConfig{
		JWTSecret:               "test-secret-key-for-unit-testing-2026",
		AccessTokenTTL:          15 * time.Minute,
		RefreshTokenTTLDefault:  24 * time.Hour,
		RefreshTokenTTLRemember: 7 * 24 * time.Hour,
	})
}

func TestGenerateAndParseAccessToken(t *testing.T) {
	m := newTestManager()

	token, err := m.GenerateAccessToken("user-1", "member", "N2")
	if err != nil {
		t.Fatalf("GenerateAccessToken 失败: %v", err)
	}

	claims, err := m.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken 失败: %v", err)
	}

	if claims.UserID != "user-1" {
		t.Errorf("期望 UserID=user-1，实际=%s", claims.UserID)
	}
	if claims.Category != "N2" {
		t.Errorf("期望 Category=N2，实际=%s", claims.Category)
	}
	if claims.TokenType != TokenTypeAccess {
		t.Errorf("期望 TokenType=access，实际=%s", claims.TokenType)
	}
	if claims.Issuer != "plan-nat" {
		t.Errorf("期望 Issuer=plan-nat，实际=%s", claims.Issuer)
	}
	if claims.ID == "" {
		t.Error("JTI 不应为空")
	}
	if ttl := claims.RemainingTTL(); ttl <= 0 || ttl > 15*time.Minute {
		t.Errorf("RemainingTTL 异常: %v", ttl)
	}
}

func TestGenerateRefreshToken_TTL(t *testing.T) {
	m := newTestManager()

	cases := []struct {
		remember bool
		min, max time.Duration
	}{
		{false, 23 * time.Hour, 25 * time.Hour},
		{true, 6 * 24 * time.Hour, 8 * 24 * time.Hour},
	}
	for _, tc := range cases {
		token, err := m.GenerateRefreshToken("user-1", "member", "N1", tc.remember)
		if err != nil {
			t.Fatalf("GenerateRefreshToken 失败: %v", err)
		}
		claims, err := m.ParseToken(token)
		if err != nil {
			t.Fatalf("ParseToken 失败: %v", err)
		}
		if claims.TokenType != TokenTypeRefresh {
			t.Errorf("期望 TokenType=refresh，实际=%s", claims.TokenType)
		}
		if claims.RememberMe != tc.remember {
			t.Errorf("期望 RememberMe=%v", tc.remember)
		}
		ttl := time.Until(claims.ExpiresAt.Time)
		if ttl < tc.min || ttl > tc.max {
			t.Errorf("RefreshToken TTL 超出预期区间，实际=%v", ttl)
		}
	}
}

func TestParseToken_InvalidToken(t *testing.T) {
	m := newTestManager()

	if _, err := m.ParseToken("invalid.token.string"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("期望 ErrTokenInvalid，实际: %v", err)
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	m1 := newTestManager()
	m2 := NewManager(&config.AuthConfig{
		JWTSecret:      "different-secret-key",
		AccessTokenTTL: 15 * time.Minute,
	})

	token, _ := m1.GenerateAccessToken("user-1", "admin", "")
	if _, err := m2.ParseToken(token); err == nil {
		t.Error("不同密钥签名的 token 不应通过验证")
	}
}

func TestParseToken_ExpiredToken(t *testing.T) {
	m := NewManager(&config.AuthConfig{
		JWTSecret:      "test-secret",
		AccessTokenTTL: 1 * time.Millisecond,
	})

	token, _ := m.GenerateAccessToken("user-1", "admin", "")
	time.Sleep(10 * time.Millisecond)

	_, err := m.ParseToken(token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("期望 ErrTokenExpired，实际: %v", err)
	}
}

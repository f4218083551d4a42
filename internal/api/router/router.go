package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"plan-nat/backend/config"
	"plan-nat/backend/internal/api/handler"
	"plan-nat/backend/internal/api/middleware"
	"plan-nat/backend/internal/model"
	"plan-nat/backend/pkg/jwt"
)

const defaultBodyLimit = 1 << 20

// 登录与刷新接口每个 IP 每分钟允许的请求数
const authRateLimit = 10

// Setup 初始化并返回 Gin 路由引擎
// blacklist、limiter 为 nil 时分别跳过 Token 黑名单与限流（未配置 Redis）
func Setup(
	cfg *config.Config,
	h *handler.Handler,
	jwtMgr *jwt.Manager,
	blacklist middleware.TokenChecker,
	limiter middleware.Limiter,
	logger *zap.Logger,
) *gin.Engine {
	r := gin.New()

	bodyLimit := cfg.Server.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = defaultBodyLimit
	}

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.BodyLimit(bodyLimit))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authLimit := func(c *gin.Context) { c.Next() }
	if cfg.Feature.RateLimitEnabled {
		authLimit = middleware.RateLimit(limiter, authRateLimit, time.Minute)
	}
	adminOnly := middleware.RoleAuth(model.RoleAdmin)

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	{
		// 认证模块（无需认证）
		auth := v1.Group("/auth")
		{
			auth.POST("/login", authLimit, h.Auth.Login)
			auth.POST("/refresh", authLimit, h.Auth.RefreshToken)
		}

		// 需要认证的路由
		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(jwtMgr, blacklist, logger))
		{
			authorized.POST("/auth/logout", h.Auth.Logout)
			authorized.GET("/auth/me", h.Auth.Me)

			// 时段模块
			slots := authorized.Group("/slots")
			{
				slots.GET("", h.Slot.ListSlots)
				slots.GET("/:id", h.Slot.GetSlot)
				slots.POST("", adminOnly, h.Slot.CreateSlot)
				slots.PUT("/:id", adminOnly, h.Slot.UpdateSlot)
				slots.PUT("/:id/capacity", adminOnly, h.Slot.ResizeCapacity)
				slots.DELETE("/:id", adminOnly, h.Slot.DeleteSlot)

				// 报名与退出
				slots.POST("/:id/enrollments", h.Enrollment.Enroll)
				slots.DELETE("/:id/enrollments/me", h.Enrollment.Withdraw)
				slots.GET("/:id/enrollments", adminOnly, h.Enrollment.Roster)
				slots.DELETE("/:id/enrollments/:user_id", adminOnly, h.Enrollment.WithdrawMember)
			}

			authorized.GET("/enrollments/me", h.Enrollment.ListMine)

			// 站内通知
			notifications := authorized.Group("/notifications")
			{
				notifications.GET("", h.Notification.List)
				notifications.GET("/unread-count", h.Notification.UnreadCount)
				notifications.PUT("/read-all", h.Notification.MarkAllRead)
				notifications.PUT("/:id/read", h.Notification.MarkRead)
			}

			// 导出模块
			export := authorized.Group("/export")
			{
				export.GET("/calendar", h.Export.ExportCalendar)
				export.GET("/slots/:id/roster", adminOnly, h.Export.ExportRoster)
			}
		}
	}

	return r
}

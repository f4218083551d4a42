package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"plan-nat/backend/pkg/jwt"
	"plan-nat/backend/pkg/response"
)

// 与 middleware.JWTAuth 写入的键保持一致
const (
	ctxUserID = "user_id"
	ctxRole   = "role"
	ctxClaims = "claims"
)

// MustGetUserID 从 Gin 上下文中安全提取 user_id。
// 如果 JWT 中间件未正确注入 user_id，返回 false 并写入 401 响应。
// 调用方应在 ok=false 时直接 return。
func MustGetUserID(c *gin.Context) (string, bool) {
	s := c.GetString(ctxUserID)
	if s == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return s, true
}

// MustGetClaims 提取完整的 Access Token 声明（登出时需要 jti 与过期时间）
func MustGetClaims(c *gin.Context) (*jwt.Claims, bool) {
	v, exists := c.Get(ctxClaims)
	if !exists {
		response.Unauthorized(c, 10002, "未认证")
		return nil, false
	}
	claims, ok := v.(*jwt.Claims)
	if !ok || claims == nil {
		response.Unauthorized(c, 10002, "未认证")
		return nil, false
	}
	return claims, true
}

// uuidParam 读取路径中的 UUID 参数，格式非法时返回 notFound，由各模块的错误映射输出 404
func uuidParam(c *gin.Context, name string, notFound error) (string, error) {
	id := c.Param(name)
	if len(id) != 36 {
		return "", notFound
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", notFound
	}
	return id, nil
}

// Package middleware 诊断服务的gin中间件
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/arcade-shim/internal/errors"
)

// TokenAuth 静态令牌认证，token 为空时放行全部请求
type TokenAuth struct {
	token string
}

// NewTokenAuth 创建令牌认证中间件
func NewTokenAuth(token string) *TokenAuth {
	return &TokenAuth{token: token}
}

// Enabled 是否需要认证
func (m *TokenAuth) Enabled() bool {
	return m.token != ""
}

// RequireAuth 需要认证的中间件
func (m *TokenAuth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.Enabled() {
			c.Next()
			return
		}

		token := extractToken(c)
		if token == "" {
			abort(c, http.StatusUnauthorized, "缺少认证令牌")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(m.token)) != 1 {
			abort(c, http.StatusUnauthorized, "无效的令牌")
			return
		}
		c.Next()
	}
}

// extractToken 从 Authorization 头或查询参数取令牌（浏览器的WebSocket无法设置请求头）
func extractToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return c.Query("token")
}

func abort(c *gin.Context, status int, details string) {
	err := apperrors.New(apperrors.ErrInvalidParam, details)
	c.AbortWithStatusJSON(status, apperrors.NewErrorResponse(err, GetRequestID(c)))
}

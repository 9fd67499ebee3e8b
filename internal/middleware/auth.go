package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"sudooom.im.chatroom/internal/service"
	appErrors "sudooom.im.chatroom/pkg/errors"
	"sudooom.im.chatroom/pkg/response"
)

const (
	contextKeyUserID  = "user_id"
	contextKeySession = "session"
)

// Authenticator 校验 Access Token，AuthService 实现该接口
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*service.Session, error)
}

// TokenAuth Token 认证中间件
// 校验 JWT 签名并确认 Redis 中的会话未被注销
// allowQuery 为 true 时允许 ?token= 传参，浏览器 WebSocket 无法设置 Authorization 头
func TokenAuth(auth Authenticator, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c.GetHeader("Authorization"))
		if token == "" && allowQuery {
			token = c.Query("token")
		}
		if token == "" {
			response.Unauthorized(c, appErrors.ErrTokenInvalid)
			return
		}

		session, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			var appErr *appErrors.AppError
			if errors.As(err, &appErr) && appErr.Kind == appErrors.KindForbidden {
				response.Unauthorized(c, appErr)
				return
			}
			response.ErrorFromAppError(c, err)
			c.Abort()
			return
		}

		c.Set(contextKeyUserID, session.UserID)
		c.Set(contextKeySession, session)
		c.Next()
	}
}

// extractToken 从 Authorization header 提取 token
func extractToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

// GetUserID 从 context 获取 user_id
func GetUserID(c *gin.Context) string {
	return c.GetString(contextKeyUserID)
}

// GetSession 从 context 获取会话
func GetSession(c *gin.Context) *service.Session {
	v, exists := c.Get(contextKeySession)
	if !exists {
		return nil
	}
	session, _ := v.(*service.Session)
	return session
}

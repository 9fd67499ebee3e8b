package handler

import (
	"github.com/gin-gonic/gin"

	"sudooom.im.chatroom/internal/middleware"
	"sudooom.im.chatroom/internal/service"
	"sudooom.im.chatroom/pkg/response"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	authService AuthAPI
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(authService AuthAPI) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Register 用户注册
// POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, resp)
}

// Login 用户登录
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, resp)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// Refresh 刷新 Token
// POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.authService.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, resp)
}

// Logout 用户登出，当前 Token 失效
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.authService.Logout(c.Request.Context(), middleware.GetSession(c)); err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, nil)
}

// Session 当前会话信息
// GET /api/v1/auth/session
func (h *AuthHandler) Session(c *gin.Context) {
	session := middleware.GetSession(c)
	response.Success(c, gin.H{
		"userId":    session.UserID,
		"sessionId": session.SessionID,
		"platform":  session.Platform,
		"startedAt": session.StartedAt,
	})
}

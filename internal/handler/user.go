package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"sudooom.im.chatroom/internal/middleware"
	"sudooom.im.chatroom/internal/service"
	"sudooom.im.chatroom/pkg/response"
)

// UserHandler 用户目录处理器
type UserHandler struct {
	directory DirectoryAPI
	maxUpload int64
}

// NewUserHandler 创建用户处理器
func NewUserHandler(directory DirectoryAPI, maxUpload int64) *UserHandler {
	return &UserHandler{directory: directory, maxUpload: maxUpload}
}

// GetProfile 获取当前用户完整资料
// GET /api/v1/user/profile
func (h *UserHandler) GetProfile(c *gin.Context) {
	user, err := h.directory.GetUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, user)
}

// UpdateProfile 修改用户名和头像
// PUT /api/v1/user/profile，multipart 表单：username、avatar
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	avatar, err := formFile(c, "avatar", h.maxUpload)
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	req := &service.UpdateProfileRequest{
		Username: strings.TrimSpace(c.PostForm("username")),
		Avatar:   avatar,
	}
	if req.Username == "" && req.Avatar == nil {
		response.InvalidParams(c, "username or avatar is required")
		return
	}

	user, err := h.directory.UpdateProfile(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, user)
}

// UpdateBackground 上传聊天背景
// PUT /api/v1/user/background，multipart 表单：file
func (h *UserHandler) UpdateBackground(c *gin.Context) {
	file, ok := requireFile(c, "file", h.maxUpload)
	if !ok {
		return
	}

	user, err := h.directory.UpdateBackground(c.Request.Context(), middleware.GetUserID(c), *file)
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, gin.H{"backgroundUrl": user.BackgroundURL})
}

// Search 按用户名精确查找
// GET /api/v1/user/search?username=xxx
func (h *UserHandler) Search(c *gin.Context) {
	username := strings.TrimSpace(c.Query("username"))
	if username == "" {
		response.InvalidParams(c, "username is required")
		return
	}

	profile, err := h.directory.FindByUsername(c.Request.Context(), username)
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, profile)
}

// GetUserByID 获取用户公开资料
// GET /api/v1/user/:id
func (h *UserHandler) GetUserByID(c *gin.Context) {
	user, err := h.directory.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, user.Profile())
}

type profilesRequest struct {
	IDs []string `json:"ids" binding:"required,max=200"`
}

// GetProfiles 批量获取公开资料
// POST /api/v1/user/profiles
func (h *UserHandler) GetProfiles(c *gin.Context) {
	var req profilesRequest
	if !bindJSON(c, &req) {
		return
	}

	profiles, err := h.directory.ListProfiles(c.Request.Context(), req.IDs)
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, gin.H{"list": profiles})
}

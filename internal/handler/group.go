package handler

import (
	"github.com/gin-gonic/gin"

	"sudooom.im.chatroom/internal/middleware"
	"sudooom.im.chatroom/internal/model"
	"sudooom.im.chatroom/internal/service"
	"sudooom.im.chatroom/pkg/response"
)

// GroupHandler 群组处理器
type GroupHandler struct {
	groupService GroupAPI
	maxUpload    int64
}

// NewGroupHandler 创建群组处理器
func NewGroupHandler(groupService GroupAPI, maxUpload int64) *GroupHandler {
	return &GroupHandler{groupService: groupService, maxUpload: maxUpload}
}

// CreateGroup 创建群组
// POST /api/v1/groups
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	var req service.CreateGroupRequest
	if !bindJSON(c, &req) {
		return
	}

	group, err := h.groupService.CreateGroup(c.Request.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, group)
}

// ListGroups 当前用户加入的群组
// GET /api/v1/groups
func (h *GroupHandler) ListGroups(c *gin.Context) {
	groups, err := h.groupService.ListGroups(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, gin.H{"list": groups})
}

// GetGroup 获取群组详情
// GET /api/v1/groups/:id
func (h *GroupHandler) GetGroup(c *gin.Context) {
	group, err := h.groupService.GetGroup(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, group)
}

type createRoleRequest struct {
	Name        string            `json:"name"`
	Permissions model.Permissions `json:"permissions"`
}

// CreateRole 创建或覆盖角色
// POST /api/v1/groups/:id/roles
func (h *GroupHandler) CreateRole(c *gin.Context) {
	var req createRoleRequest
	if !bindJSON(c, &req) {
		return
	}

	group, err := h.groupService.CreateRole(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), req.Name, req.Permissions)
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, group)
}

// DeleteRole 删除角色，同时清除该角色的所有分配
// DELETE /api/v1/groups/:id/roles?name=xxx
func (h *GroupHandler) DeleteRole(c *gin.Context) {
	group, err := h.groupService.DeleteRole(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), c.Query("name"))
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, group)
}

type assignRoleRequest struct {
	Role string `json:"role"`
}

// AssignRole 为成员分配角色
// PUT /api/v1/groups/:id/members/:userId/role
func (h *GroupHandler) AssignRole(c *gin.Context) {
	var req assignRoleRequest
	if !bindJSON(c, &req) {
		return
	}

	group, err := h.groupService.AssignRole(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), c.Param("userId"), req.Role)
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, group)
}

// UnassignRole 取消成员角色
// DELETE /api/v1/groups/:id/members/:userId/role
func (h *GroupHandler) UnassignRole(c *gin.Context) {
	group, err := h.groupService.UnassignRole(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), c.Param("userId"))
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, group)
}

type addMemberRequest struct {
	UserID string `json:"userId" binding:"required"`
}

// AddMember 添加成员
// POST /api/v1/groups/:id/members
func (h *GroupHandler) AddMember(c *gin.Context) {
	var req addMemberRequest
	if !bindJSON(c, &req) {
		return
	}

	group, err := h.groupService.AddMember(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), req.UserID)
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, group)
}

// RemoveMember 移除成员，移除自己即退出群组
// DELETE /api/v1/groups/:id/members/:userId
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	result, err := h.groupService.RemoveMember(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), c.Param("userId"))
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, result)
}

// ChangePhoto 修改群头像
// PUT /api/v1/groups/:id/photo，multipart 表单：file
func (h *GroupHandler) ChangePhoto(c *gin.Context) {
	file, ok := requireFile(c, "file", h.maxUpload)
	if !ok {
		return
	}

	group, err := h.groupService.ChangePhoto(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), *file)
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, group)
}

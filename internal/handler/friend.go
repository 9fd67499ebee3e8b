package handler

import (
	"github.com/gin-gonic/gin"

	"sudooom.im.chatroom/internal/middleware"
	"sudooom.im.chatroom/pkg/response"
)

// FriendHandler 好友处理器
type FriendHandler struct {
	friendService FriendAPI
	directory     DirectoryAPI
}

// NewFriendHandler 创建好友处理器
func NewFriendHandler(friendService FriendAPI, directory DirectoryAPI) *FriendHandler {
	return &FriendHandler{friendService: friendService, directory: directory}
}

// GetFriendList 获取好友列表
// GET /api/v1/friends
func (h *FriendHandler) GetFriendList(c *gin.Context) {
	friends, err := h.directory.ListFriends(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, gin.H{"list": friends})
}

type sendRequestRequest struct {
	Username string `json:"username" binding:"required"`
}

// SendRequest 按用户名发送好友请求
// POST /api/v1/friends/request
func (h *FriendHandler) SendRequest(c *gin.Context) {
	var req sendRequestRequest
	if !bindJSON(c, &req) {
		return
	}

	request, err := h.friendService.SendRequest(c.Request.Context(), middleware.GetUserID(c), req.Username)
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, request)
}

// GetPendingRequests 获取收到的待处理请求
// GET /api/v1/friends/requests
func (h *FriendHandler) GetPendingRequests(c *gin.Context) {
	requests, err := h.friendService.ListPending(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, gin.H{"list": requests})
}

// AcceptRequest 接受好友请求
// POST /api/v1/friends/accept/:id
func (h *FriendHandler) AcceptRequest(c *gin.Context) {
	if err := h.friendService.AcceptRequest(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, nil)
}

// RejectRequest 拒绝好友请求
// POST /api/v1/friends/reject/:id
func (h *FriendHandler) RejectRequest(c *gin.Context) {
	if err := h.friendService.RejectRequest(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, nil)
}

// DeleteFriend 删除好友
// DELETE /api/v1/friends/:id
func (h *FriendHandler) DeleteFriend(c *gin.Context) {
	if err := h.friendService.RemoveFriend(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, nil)
}

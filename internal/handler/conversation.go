package handler

import (
	"github.com/gin-gonic/gin"

	"sudooom.im.chatroom/internal/middleware"
	"sudooom.im.chatroom/pkg/response"
)

// ConversationHandler 会话列表处理器
type ConversationHandler struct {
	conversations ConversationAPI
}

// NewConversationHandler 创建会话列表处理器
func NewConversationHandler(conversations ConversationAPI) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

// List 按最后消息时间倒序
// GET /api/v1/conversations?offset=0&limit=50
func (h *ConversationHandler) List(c *gin.Context) {
	list, err := h.conversations.ListConversations(c.Request.Context(), middleware.GetUserID(c), offset(c), int64(pageSize(c)))
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, gin.H{"list": list})
}

// MarkRead 清空与对方会话的未读数
// POST /api/v1/conversations/:peerId/read
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	if err := h.conversations.MarkRead(c.Request.Context(), middleware.GetUserID(c), c.Param("peerId")); err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, nil)
}

// Unread 未读总数
// GET /api/v1/conversations/unread
func (h *ConversationHandler) Unread(c *gin.Context) {
	total, err := h.conversations.TotalUnread(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, gin.H{"total": total})
}

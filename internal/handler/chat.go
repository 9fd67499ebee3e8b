package handler

import (
	"github.com/gin-gonic/gin"

	"sudooom.im.chatroom/internal/middleware"
	"sudooom.im.chatroom/internal/model"
	"sudooom.im.chatroom/internal/service"
	"sudooom.im.chatroom/pkg/response"
)

// ChatHandler 单聊与群聊消息处理器
type ChatHandler struct {
	messages  MessageAPI
	maxUpload int64
}

// NewChatHandler 创建消息处理器
func NewChatHandler(messages MessageAPI, maxUpload int64) *ChatHandler {
	return &ChatHandler{messages: messages, maxUpload: maxUpload}
}

// SendDirect 发送单聊消息，imageUrl / audioUrl 需先通过 /media 上传
// POST /api/v1/chats/messages
func (h *ChatHandler) SendDirect(c *gin.Context) {
	var req service.SendDirectRequest
	if !bindJSON(c, &req) {
		return
	}

	msg, err := h.messages.SendDirect(c.Request.Context(), middleware.GetUserID(c), req.PeerID, req.Payload())
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, msg)
}

// SendDirectMedia 上传并发送图片或语音
// POST /api/v1/chats/:peerId/media，multipart 表单：kind（image|audio）、file
func (h *ChatHandler) SendDirectMedia(c *gin.Context) {
	kind := model.PayloadKind(c.PostForm("kind"))
	if kind != model.PayloadImage && kind != model.PayloadAudio {
		response.InvalidParams(c, "kind must be image or audio")
		return
	}
	file, ok := requireFile(c, "file", h.maxUpload)
	if !ok {
		return
	}

	msg, err := h.messages.SendDirectMedia(c.Request.Context(), middleware.GetUserID(c), c.Param("peerId"), kind, *file)
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, msg)
}

// ListDirect 获取与对方的历史消息，按时间正序
// GET /api/v1/chats/:peerId/messages?limit=50
func (h *ChatHandler) ListDirect(c *gin.Context) {
	msgs, err := h.messages.ListConversation(c.Request.Context(), middleware.GetUserID(c), c.Param("peerId"), pageSize(c))
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, gin.H{"list": msgs})
}

type sendGroupRequest struct {
	Text string `json:"text"`
}

// SendGroup 发送群消息
// POST /api/v1/groups/:id/messages
func (h *ChatHandler) SendGroup(c *gin.Context) {
	var req sendGroupRequest
	if !bindJSON(c, &req) {
		return
	}

	msg, err := h.messages.SendGroup(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), req.Text)
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, msg)
}

// ListGroup 获取群历史消息
// GET /api/v1/groups/:id/messages?limit=50
func (h *ChatHandler) ListGroup(c *gin.Context) {
	msgs, err := h.messages.ListGroupMessages(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), pageSize(c))
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, gin.H{"list": msgs})
}

// DeleteGroupMessage 删除群消息，需要 canDeleteMessages 权限
// DELETE /api/v1/groups/:id/messages/:messageId
func (h *ChatHandler) DeleteGroupMessage(c *gin.Context) {
	if err := h.messages.DeleteGroupMessage(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), c.Param("messageId")); err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, nil)
}

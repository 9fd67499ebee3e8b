package handler

import (
	"github.com/gin-gonic/gin"

	"sudooom.im.chatroom/pkg/response"
)

// MediaHandler 通用上传处理器
type MediaHandler struct {
	media     MediaAPI
	maxUpload int64
}

// NewMediaHandler 创建上传处理器
func NewMediaHandler(media MediaAPI, maxUpload int64) *MediaHandler {
	return &MediaHandler{media: media, maxUpload: maxUpload}
}

// Upload 上传图片或音频，返回 {ref, url}
// POST /api/v1/media，multipart 表单：file
func (h *MediaHandler) Upload(c *gin.Context) {
	file, ok := requireFile(c, "file", h.maxUpload)
	if !ok {
		return
	}

	ref, err := h.media.Upload(c.Request.Context(), *file)
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	response.Success(c, ref)
}

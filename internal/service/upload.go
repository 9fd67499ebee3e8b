package service

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"sudooom.im.chatroom/internal/model"
	"sudooom.im.chatroom/internal/storage"
	appErrors "sudooom.im.chatroom/pkg/errors"
)

// Upload 待上传的文件
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// detectContentType 优先使用声明的类型，缺失时按内容嗅探
func (u Upload) detectContentType() string {
	ct := strings.TrimSpace(u.ContentType)
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(u.Data)
	}
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return strings.ToLower(ct)
}

// uploader 先上传再返回可访问 URL，消息与资料只保存 URL
type uploader struct {
	blobs   storage.BlobStore
	maxSize int64
}

func (u uploader) upload(ctx context.Context, key string, file Upload, accept ...string) (string, error) {
	if len(file.Data) == 0 {
		return "", appErrors.ErrInvalidMedia
	}
	if u.maxSize > 0 && int64(len(file.Data)) > u.maxSize {
		return "", appErrors.ErrInvalidMedia
	}

	contentType := file.detectContentType()
	if len(accept) > 0 && !acceptsType(contentType, accept) {
		return "", appErrors.ErrInvalidMedia
	}

	ref, err := u.blobs.Upload(ctx, key, file.Data, contentType)
	if err != nil {
		if errors.Is(err, storage.ErrCircuitOpen) {
			return "", appErrors.ErrUnavailable.Wrap(err)
		}
		return "", appErrors.ErrUploadFailed.Wrap(err)
	}
	return u.blobs.URL(ref), nil
}

// acceptsType 支持 "image/" 这样的前缀匹配
func acceptsType(contentType string, accept []string) bool {
	for _, a := range accept {
		if strings.HasSuffix(a, "/") && strings.HasPrefix(contentType, a) {
			return true
		}
		if contentType == a {
			return true
		}
	}
	return false
}

// mediaPrefix 消息媒体类型对应的 MIME 前缀
func mediaPrefix(kind model.PayloadKind) (string, bool) {
	switch kind {
	case model.PayloadImage:
		return "image/", true
	case model.PayloadAudio:
		return "audio/", true
	default:
		return "", false
	}
}

// MediaRef 上传结果
type MediaRef struct {
	Ref string `json:"ref"`
	URL string `json:"url"`
}

// MediaService 通用上传，客户端先上传再把 URL 写入消息
type MediaService struct {
	blobs   storage.BlobStore
	maxSize int64
	opts    Options
}

// NewMediaService 创建上传服务
func NewMediaService(blobs storage.BlobStore, maxUpload int64, opts Options) *MediaService {
	return &MediaService{blobs: blobs, maxSize: maxUpload, opts: opts}
}

// Upload 上传图片或音频，返回存储引用与访问地址
func (s *MediaService) Upload(ctx context.Context, file Upload) (*MediaRef, error) {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	if len(file.Data) == 0 || (s.maxSize > 0 && int64(len(file.Data)) > s.maxSize) {
		return nil, appErrors.ErrInvalidMedia
	}
	contentType := file.detectContentType()
	if !acceptsType(contentType, []string{"image/", "audio/"}) {
		return nil, appErrors.ErrInvalidMedia
	}

	ref, err := s.blobs.Upload(ctx, storage.UploadKey(file.Filename), file.Data, contentType)
	if err != nil {
		if errors.Is(err, storage.ErrCircuitOpen) {
			return nil, appErrors.ErrUnavailable.Wrap(err)
		}
		return nil, appErrors.ErrUploadFailed.Wrap(err)
	}
	return &MediaRef{Ref: ref, URL: s.blobs.URL(ref)}, nil
}

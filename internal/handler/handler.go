package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"sudooom.im.chatroom/internal/model"
	"sudooom.im.chatroom/internal/service"
	appErrors "sudooom.im.chatroom/pkg/errors"
	"sudooom.im.chatroom/pkg/response"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// AuthAPI 认证相关操作
type AuthAPI interface {
	Register(ctx context.Context, req *service.RegisterRequest) (*service.RegisterResponse, error)
	Login(ctx context.Context, req *service.LoginRequest) (*service.LoginResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*service.LoginResponse, error)
	Logout(ctx context.Context, session *service.Session) error
}

// DirectoryAPI 用户目录操作
type DirectoryAPI interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.Profile, error)
	ListFriends(ctx context.Context, userID string) ([]model.Profile, error)
	ListProfiles(ctx context.Context, ids []string) ([]model.Profile, error)
	UpdateProfile(ctx context.Context, userID string, req *service.UpdateProfileRequest) (*model.User, error)
	UpdateBackground(ctx context.Context, userID string, file service.Upload) (*model.User, error)
}

// FriendAPI 好友关系操作
type FriendAPI interface {
	SendRequest(ctx context.Context, fromUserID, toUsername string) (*model.FriendRequest, error)
	AcceptRequest(ctx context.Context, userID, requestID string) error
	RejectRequest(ctx context.Context, userID, requestID string) error
	RemoveFriend(ctx context.Context, userID, friendID string) error
	ListPending(ctx context.Context, userID string) ([]*model.FriendRequest, error)
}

// GroupAPI 群组操作
type GroupAPI interface {
	CreateGroup(ctx context.Context, creatorID string, req *service.CreateGroupRequest) (*model.Group, error)
	GetGroup(ctx context.Context, viewerID, groupID string) (*model.Group, error)
	ListGroups(ctx context.Context, userID string) ([]*model.Group, error)
	CreateRole(ctx context.Context, actorID, groupID, roleName string, perms model.Permissions) (*model.Group, error)
	DeleteRole(ctx context.Context, actorID, groupID, roleName string) (*model.Group, error)
	AssignRole(ctx context.Context, actorID, groupID, userID, roleName string) (*model.Group, error)
	UnassignRole(ctx context.Context, actorID, groupID, userID string) (*model.Group, error)
	AddMember(ctx context.Context, actorID, groupID, userID string) (*model.Group, error)
	RemoveMember(ctx context.Context, actorID, groupID, userID string) (*service.RemoveMemberResult, error)
	ChangePhoto(ctx context.Context, actorID, groupID string, file service.Upload) (*model.Group, error)
}

// MessageAPI 消息操作
type MessageAPI interface {
	SendDirect(ctx context.Context, senderID, peerID string, payload model.Payload) (*model.DirectMessage, error)
	SendDirectMedia(ctx context.Context, senderID, peerID string, kind model.PayloadKind, file service.Upload) (*model.DirectMessage, error)
	ListConversation(ctx context.Context, viewerID, peerID string, limit int) ([]*model.DirectMessage, error)
	SendGroup(ctx context.Context, senderID, groupID, text string) (*model.GroupMessage, error)
	ListGroupMessages(ctx context.Context, viewerID, groupID string, limit int) ([]*model.GroupMessage, error)
	DeleteGroupMessage(ctx context.Context, actorID, groupID, messageID string) error
}

// ConversationAPI 会话列表操作
type ConversationAPI interface {
	ListConversations(ctx context.Context, userID string, offset, limit int64) ([]model.Conversation, error)
	MarkRead(ctx context.Context, userID, peerID string) error
	TotalUnread(ctx context.Context, userID string) (int64, error)
}

// MediaAPI 通用上传
type MediaAPI interface {
	Upload(ctx context.Context, file service.Upload) (*service.MediaRef, error)
}

// bindJSON 解析请求体，失败时直接写出参数错误
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.InvalidParams(c, err.Error())
		return false
	}
	return true
}

// pageSize 解析 limit 参数，缺省或非法时使用默认值
func pageSize(c *gin.Context) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		return defaultPageSize
	}
	return min(limit, maxPageSize)
}

// offset 解析 offset 参数
func offset(c *gin.Context) int64 {
	v, err := strconv.ParseInt(c.Query("offset"), 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// formFile 读取 multipart 文件字段
// 字段缺失或请求不是 multipart 时返回 (nil, nil)，由调用方决定是否必填
func formFile(c *gin.Context, field string, maxSize int64) (*service.Upload, error) {
	header, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, appErrors.ErrInvalidParams.Wrap(err)
	}
	if maxSize > 0 && header.Size > maxSize {
		return nil, appErrors.ErrInvalidMedia
	}

	f, err := header.Open()
	if err != nil {
		return nil, appErrors.ErrInvalidParams.Wrap(err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, appErrors.ErrInvalidParams.Wrap(fmt.Errorf("read %s: %w", field, err))
	}
	return &service.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// requireFile 必填的 multipart 文件字段
func requireFile(c *gin.Context, field string, maxSize int64) (*service.Upload, bool) {
	file, err := formFile(c, field, maxSize)
	if err != nil {
		response.ErrorFromAppError(c, err)
		return nil, false
	}
	if file == nil {
		response.InvalidParams(c, field+" is required")
		return nil, false
	}
	return file, true
}

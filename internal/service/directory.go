package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"sudooom.im.chatroom/internal/model"
	"sudooom.im.chatroom/internal/nats"
	"sudooom.im.chatroom/internal/storage"
	appErrors "sudooom.im.chatroom/pkg/errors"
)

// UpdateProfileRequest 资料修改，零值字段不修改
type UpdateProfileRequest struct {
	Username string
	Avatar   *Upload
}

// DirectoryService 用户目录服务
type DirectoryService struct {
	users    UserStore
	feed     nats.Feed
	notifier changeNotifier
	uploader uploader
	opts     Options
	logger   *slog.Logger
}

// NewDirectoryService 创建用户目录服务
func NewDirectoryService(users UserStore, blobs storage.BlobStore, publisher nats.Publisher, feed nats.Feed, maxUpload int64, opts Options) *DirectoryService {
	logger := slog.Default().With("service", "directory")
	return &DirectoryService{
		users:    users,
		feed:     feed,
		notifier: newChangeNotifier(publisher, logger),
		uploader: uploader{blobs: blobs, maxSize: maxUpload},
		opts:     opts,
		logger:   logger,
	}
}

// GetUser 获取用户
func (s *DirectoryService) GetUser(ctx context.Context, userID string) (*model.User, error) {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return user, nil
}

// FindByUsername 按用户名查找
func (s *DirectoryService) FindByUsername(ctx context.Context, username string) (*model.Profile, error) {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	username = strings.TrimSpace(username)
	if username == "" {
		return nil, appErrors.ErrInvalidParams
	}
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, mapStoreError(err)
	}
	profile := user.Profile()
	return &profile, nil
}

// ListFriends 获取好友资料列表
func (s *DirectoryService) ListFriends(ctx context.Context, userID string) ([]model.Profile, error) {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	friends, err := s.users.GetByIDs(ctx, user.Friends)
	if err != nil {
		return nil, mapStoreError(err)
	}

	profiles := make([]model.Profile, 0, len(friends))
	for _, f := range friends {
		profiles = append(profiles, f.Profile())
	}
	return profiles, nil
}

// ListProfiles 批量获取资料
func (s *DirectoryService) ListProfiles(ctx context.Context, ids []string) ([]model.Profile, error) {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	users, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, mapStoreError(err)
	}
	profiles := make([]model.Profile, 0, len(users))
	for _, u := range users {
		profiles = append(profiles, u.Profile())
	}
	return profiles, nil
}

// UpdateProfile 修改用户名与头像
// 头像先上传到 profilePics/{userId}，成功后再写入 URL；返回刷新后的用户
func (s *DirectoryService) UpdateProfile(ctx context.Context, userID string, req *UpdateProfileRequest) (*model.User, error) {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	username := strings.TrimSpace(req.Username)
	if username != "" {
		existing, err := s.users.GetByUsername(ctx, username)
		if err == nil && existing.ID != userID {
			return nil, appErrors.ErrUsernameExists
		}
		if err != nil && appErrors.KindOf(mapStoreError(err)) != appErrors.KindNotFound {
			return nil, mapStoreError(err)
		}
	}

	var avatarURL string
	if req.Avatar != nil {
		url, err := s.uploader.upload(ctx, storage.ProfilePicKey(userID), *req.Avatar, "image/")
		if err != nil {
			return nil, err
		}
		avatarURL = url
	}

	user, err := s.users.UpdateProfile(ctx, userID, username, avatarURL)
	if err != nil {
		return nil, mapStoreError(err)
	}

	s.logger.Info("Profile updated", "userId", userID, "usernameChanged", username != "", "avatarChanged", avatarURL != "")
	s.notifier.emit(ctx, model.ChangeModified, user.ID, user, nats.SubjectUser(user.ID))
	return user, nil
}

// UpdateBackground 上传聊天背景并保存
func (s *DirectoryService) UpdateBackground(ctx context.Context, userID string, file Upload) (*model.User, error) {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, mapStoreError(err)
	}

	url, err := s.uploader.upload(ctx, storage.BackgroundKey(time.Now(), file.Filename), file, "image/")
	if err != nil {
		return nil, err
	}

	user, err := s.users.UpdateBackground(ctx, userID, url)
	if err != nil {
		return nil, mapStoreError(err)
	}

	s.notifier.emit(ctx, model.ChangeModified, user.ID, user, nats.SubjectUser(user.ID))
	return user, nil
}

// SubscribeProfile 订阅用户资料
func (s *DirectoryService) SubscribeProfile(ctx context.Context, userID string) (*Stream[model.User], error) {
	return openStream(ctx, s.feed, s.opts, s.logger, streamSource[model.User]{
		kind:    "profile",
		subject: nats.SubjectUser(userID),
		snapshot: func(ctx context.Context) ([]*model.User, error) {
			user, err := s.users.GetByID(ctx, userID)
			if err != nil {
				return nil, err
			}
			return []*model.User{user}, nil
		},
		idOf: func(u *model.User) string { return u.ID },
	})
}

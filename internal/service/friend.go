package service

import (
	"context"
	"log/slog"
	"strings"

	"sudooom.im.chatroom/internal/model"
	"sudooom.im.chatroom/internal/nats"
	appErrors "sudooom.im.chatroom/pkg/errors"
)

// FriendService 好友关系服务
type FriendService struct {
	users    UserStore
	friends  FriendStore
	tx       Transactor
	ids      IDGenerator
	feed     nats.Feed
	notifier changeNotifier
	opts     Options
	logger   *slog.Logger
}

// NewFriendService 创建好友服务
func NewFriendService(users UserStore, friends FriendStore, tx Transactor, ids IDGenerator, publisher nats.Publisher, feed nats.Feed, opts Options) *FriendService {
	logger := slog.Default().With("service", "friend")
	return &FriendService{
		users:    users,
		friends:  friends,
		tx:       tx,
		ids:      ids,
		feed:     feed,
		notifier: newChangeNotifier(publisher, logger),
		opts:     opts,
		logger:   logger,
	}
}

// SendRequest 按用户名发送好友请求
// 请求中保存发送者当前用户名的快照
func (s *FriendService) SendRequest(ctx context.Context, fromUserID, toUsername string) (*model.FriendRequest, error) {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	toUsername = strings.TrimSpace(toUsername)
	if toUsername == "" {
		return nil, appErrors.ErrInvalidParams
	}

	from, err := s.users.GetByID(ctx, fromUserID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	to, err := s.users.GetByUsername(ctx, toUsername)
	if err != nil {
		return nil, mapStoreError(err)
	}

	if from.ID == to.ID {
		return nil, appErrors.ErrCannotAddSelf
	}
	if from.IsFriend(to.ID) {
		return nil, appErrors.ErrAlreadyFriends
	}
	pending, err := s.friends.HasPendingBetween(ctx, from.ID, to.ID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if pending {
		return nil, appErrors.ErrRequestPending
	}

	request := &model.FriendRequest{
		ID:           s.ids.NextID(),
		FromUserID:   from.ID,
		FromUsername: from.Name(),
		ToUserID:     to.ID,
		Status:       model.FriendRequestPending,
	}
	if err := s.friends.CreateRequest(ctx, request); err != nil {
		return nil, mapStoreError(err)
	}

	s.logger.Info("Friend request sent", "requestId", request.ID, "from", from.ID, "to", to.ID)
	s.notifier.emit(ctx, model.ChangeAdded, request.ID, request, nats.SubjectUserRequests(to.ID))
	return request, nil
}

// AcceptRequest 接受好友请求
// 双方好友列表更新与请求删除在同一事务内完成
func (s *FriendService) AcceptRequest(ctx context.Context, userID, requestID string) error {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	var request *model.FriendRequest
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		request, err = s.friends.LockRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if request.ToUserID != userID {
			return appErrors.ErrNotRequestRecipient
		}
		if _, err := s.users.LockByIDs(ctx, []string{request.FromUserID, request.ToUserID}); err != nil {
			return err
		}
		if err := s.users.AddFriend(ctx, request.ToUserID, request.FromUserID); err != nil {
			return err
		}
		if err := s.users.AddFriend(ctx, request.FromUserID, request.ToUserID); err != nil {
			return err
		}
		return s.friends.DeleteRequest(ctx, request.ID)
	})
	if err != nil {
		return mapStoreError(err)
	}

	s.logger.Info("Friend request accepted", "requestId", request.ID, "from", request.FromUserID, "to", request.ToUserID)
	s.notifier.emitUsers(ctx, s.users, s.opts, request.FromUserID, request.ToUserID)
	s.notifier.emit(ctx, model.ChangeRemoved, request.ID, nil, nats.SubjectUserRequests(request.ToUserID))
	return nil
}

// RejectRequest 拒绝好友请求，只删除请求
func (s *FriendService) RejectRequest(ctx context.Context, userID, requestID string) error {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	var request *model.FriendRequest
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		request, err = s.friends.LockRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if request.ToUserID != userID {
			return appErrors.ErrNotRequestRecipient
		}
		return s.friends.DeleteRequest(ctx, request.ID)
	})
	if err != nil {
		return mapStoreError(err)
	}

	s.logger.Info("Friend request rejected", "requestId", request.ID, "from", request.FromUserID, "to", request.ToUserID)
	s.notifier.emit(ctx, model.ChangeRemoved, request.ID, nil, nats.SubjectUserRequests(request.ToUserID))
	return nil
}

// RemoveFriend 双向删除好友
func (s *FriendService) RemoveFriend(ctx context.Context, userID, friendID string) error {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	if userID == friendID {
		return appErrors.ErrInvalidParams
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.users.LockByIDs(ctx, []string{userID, friendID}); err != nil {
			return err
		}
		if err := s.users.RemoveFriend(ctx, userID, friendID); err != nil {
			return err
		}
		return s.users.RemoveFriend(ctx, friendID, userID)
	})
	if err != nil {
		return mapStoreError(err)
	}

	s.logger.Info("Friend removed", "userId", userID, "friendId", friendID)
	s.notifier.emitUsers(ctx, s.users, s.opts, userID, friendID)
	return nil
}

// ListPending 获取收到的待处理请求
func (s *FriendService) ListPending(ctx context.Context, userID string) ([]*model.FriendRequest, error) {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	requests, err := s.friends.ListIncoming(ctx, userID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return requests, nil
}

// SubscribeRequests 订阅收到的好友请求
func (s *FriendService) SubscribeRequests(ctx context.Context, userID string) (*Stream[model.FriendRequest], error) {
	return openStream(ctx, s.feed, s.opts, s.logger, streamSource[model.FriendRequest]{
		kind:    "requests",
		subject: nats.SubjectUserRequests(userID),
		snapshot: func(ctx context.Context) ([]*model.FriendRequest, error) {
			return s.friends.ListIncoming(ctx, userID)
		},
		idOf: func(r *model.FriendRequest) string { return r.ID },
	})
}

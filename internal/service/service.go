package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"sudooom.im.chatroom/internal/model"
	"sudooom.im.chatroom/internal/nats"
	"sudooom.im.chatroom/internal/repository"
	appErrors "sudooom.im.chatroom/pkg/errors"
)

// defaultOperationTimeout 未配置时的操作超时
const defaultOperationTimeout = 10 * time.Second

// IDGenerator ID 生成器，snowflake.Node 实现该接口
type IDGenerator interface {
	NextID() string
}

// Transactor 事务执行器
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// UserStore 用户存储
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]*model.User, error)
	LockByIDs(ctx context.Context, ids []string) (string, error)
	UpdateProfile(ctx context.Context, id, username, avatarURL string) (*model.User, error)
	UpdateBackground(ctx context.Context, id, backgroundURL string) (*model.User, error)
	AddFriend(ctx context.Context, userID, friendID string) error
	RemoveFriend(ctx context.Context, userID, friendID string) error
	AddGroup(ctx context.Context, userID, groupID string) error
	RemoveGroup(ctx context.Context, userID, groupID string) error
}

// FriendStore 好友请求存储
type FriendStore interface {
	CreateRequest(ctx context.Context, request *model.FriendRequest) error
	GetRequestByID(ctx context.Context, id string) (*model.FriendRequest, error)
	LockRequest(ctx context.Context, id string) (*model.FriendRequest, error)
	HasPendingBetween(ctx context.Context, userA, userB string) (bool, error)
	DeleteRequest(ctx context.Context, id string) error
	ListIncoming(ctx context.Context, toUserID string) ([]*model.FriendRequest, error)
}

// GroupStore 群组存储
type GroupStore interface {
	Create(ctx context.Context, group *model.Group) error
	GetByID(ctx context.Context, id string) (*model.Group, error)
	LockByID(ctx context.Context, id string) (*model.Group, error)
	ListByMember(ctx context.Context, userID string) ([]*model.Group, error)
	Save(ctx context.Context, group *model.Group) error
}

// MessageStore 消息存储
type MessageStore interface {
	InsertDirect(ctx context.Context, msg *model.DirectMessage) error
	ListDirect(ctx context.Context, conversationID string, after time.Time, limit int) ([]*model.DirectMessage, error)
	InsertGroup(ctx context.Context, msg *model.GroupMessage) error
	GetGroupMessage(ctx context.Context, groupID, id string) (*model.GroupMessage, error)
	ListGroup(ctx context.Context, groupID string, after time.Time, limit int) ([]*model.GroupMessage, error)
	DeleteGroupMessage(ctx context.Context, groupID, id string) error
}

// Options 服务公共配置
type Options struct {
	OperationTimeout time.Duration
	StreamBuffer     int
}

// withTimeout 为单个操作加上超时
func (o Options) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := o.OperationTimeout
	if timeout <= 0 {
		timeout = defaultOperationTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func (o Options) streamBuffer() int {
	if o.StreamBuffer <= 0 {
		return 64
	}
	return o.StreamBuffer
}

// mapStoreError 将仓库错误转换为 AppError
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		return appErrors.ErrUserNotFound
	case errors.Is(err, repository.ErrUsernameExists):
		return appErrors.ErrUsernameExists
	case errors.Is(err, repository.ErrEmailExists):
		return appErrors.ErrEmailExists
	case errors.Is(err, repository.ErrFriendRequestNotFound):
		return appErrors.ErrFriendRequestNotFound
	case errors.Is(err, repository.ErrRequestPending):
		return appErrors.ErrRequestPending
	case errors.Is(err, repository.ErrGroupNotFound):
		return appErrors.ErrGroupNotFound
	case errors.Is(err, repository.ErrMessageNotFound):
		return appErrors.ErrMessageNotFound
	case errors.Is(err, model.ErrRoleMissing):
		return appErrors.ErrRoleNotFound
	case errors.Is(err, model.ErrNotMember):
		return appErrors.ErrNotGroupMember
	case errors.Is(err, model.ErrEmptyPayload):
		return appErrors.ErrEmptyMessage
	case errors.Is(err, model.ErrMultiplePayload):
		return appErrors.ErrInvalidPayload
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return appErrors.ErrUnavailable.Wrap(err)
	}
	return appErrors.ErrDBError.Wrap(err)
}

// changeNotifier 提交后发布变更事件
// 发布失败只记录日志，数据已提交，订阅者可通过重新订阅获得最新快照
type changeNotifier struct {
	publisher nats.Publisher
	logger    *slog.Logger
}

func newChangeNotifier(publisher nats.Publisher, logger *slog.Logger) changeNotifier {
	return changeNotifier{publisher: publisher, logger: logger}
}

// emit 发布到一个或多个 subject
func (n changeNotifier) emit(ctx context.Context, changeType model.ChangeType, id string, doc any, subjects ...string) {
	if n.publisher == nil {
		return
	}
	ev, err := model.NewChangeEvent(changeType, id, doc)
	if err != nil {
		n.logger.Error("Failed to encode change event", "id", id, "error", err)
		return
	}
	// 操作 context 可能已接近超时，发布不应因此被取消
	ctx = context.WithoutCancel(ctx)
	for _, subject := range subjects {
		if err := n.publisher.Publish(ctx, subject, ev); err != nil {
			n.logger.Warn("Change event not published", "subject", subject, "id", id, "error", err)
		}
	}
}

// emitUsers 提交后重新读取用户并发布 modified
func (n changeNotifier) emitUsers(ctx context.Context, users UserStore, opts Options, ids ...string) {
	if n.publisher == nil || len(ids) == 0 {
		return
	}
	ctx, cancel := opts.withTimeout(context.WithoutCancel(ctx))
	defer cancel()

	list, err := users.GetByIDs(ctx, ids)
	if err != nil {
		n.logger.Warn("Failed to reload users for change event", "userIds", ids, "error", err)
		return
	}
	for _, u := range list {
		n.emit(ctx, model.ChangeModified, u.ID, u, nats.SubjectUser(u.ID))
	}
}

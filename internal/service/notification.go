package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sudooom.im.chatroom/internal/model"
)

// UsernameResolver 查询发送者展示名
type UsernameResolver interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// NotificationRelay 单个会话的本地通知
// 只针对基线之后、他人发送的消息；同一消息只通知一次；不持久化
type NotificationRelay struct {
	viewerID string
	baseline time.Time
	users    UsernameResolver
	opts     Options
	logger   *slog.Logger

	mu       sync.Mutex
	names    map[string]string
	notified map[string]struct{}
	active   []model.Notification
}

// NewNotificationRelay 创建通知中继，baseline 通常为会话开始时间
func NewNotificationRelay(viewerID string, baseline time.Time, users UsernameResolver, opts Options) *NotificationRelay {
	return &NotificationRelay{
		viewerID: viewerID,
		baseline: baseline,
		users:    users,
		opts:     opts,
		logger:   slog.Default().With("component", "notification_relay", "userId", viewerID),
		names:    make(map[string]string),
		notified: make(map[string]struct{}),
	}
}

// Observe 处理一条单聊消息，需要通知时返回通知
func (r *NotificationRelay) Observe(ctx context.Context, msg *model.DirectMessage) (*model.Notification, bool) {
	if msg == nil || msg.SenderID == r.viewerID || !msg.CreateAt.After(r.baseline) {
		return nil, false
	}

	r.mu.Lock()
	if _, ok := r.notified[msg.ID]; ok {
		r.mu.Unlock()
		return nil, false
	}
	r.notified[msg.ID] = struct{}{}
	r.mu.Unlock()

	n := model.Notification{
		SourceMessageID: msg.ID,
		RenderedText:    r.senderName(ctx, msg.SenderID) + ": " + model.Preview(msg.Payload()),
		SenderID:        msg.SenderID,
		CreateAt:        msg.CreateAt,
	}

	r.mu.Lock()
	r.active = append(r.active, n)
	r.mu.Unlock()
	return &n, true
}

// Dismiss 从本地集合移除通知，消息本身不受影响
func (r *NotificationRelay) Dismiss(sourceMessageID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, n := range r.active {
		if n.SourceMessageID == sourceMessageID {
			r.active = append(r.active[:i], r.active[i+1:]...)
			return true
		}
	}
	return false
}

// Active 当前未关闭的通知
func (r *NotificationRelay) Active() []model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.Notification, len(r.active))
	copy(out, r.active)
	return out
}

// senderName 查询失败时回退到用户 ID
func (r *NotificationRelay) senderName(ctx context.Context, senderID string) string {
	r.mu.Lock()
	name, ok := r.names[senderID]
	r.mu.Unlock()
	if ok {
		return name
	}

	ctx, cancel := r.opts.withTimeout(ctx)
	defer cancel()
	user, err := r.users.GetByID(ctx, senderID)
	if err != nil {
		r.logger.Warn("Failed to resolve sender name", "senderId", senderID, "error", err)
		return senderID
	}

	name = user.Name()
	r.mu.Lock()
	r.names[senderID] = name
	r.mu.Unlock()
	return name
}

// InboxSubscriber 打开用户收件箱订阅，MessageService 实现该接口
type InboxSubscriber interface {
	SubscribeInbox(ctx context.Context, userID string) (*Stream[model.DirectMessage], error)
}

// NotificationService 为每个实时会话创建通知中继
type NotificationService struct {
	inbox  InboxSubscriber
	users  UsernameResolver
	opts   Options
	logger *slog.Logger
}

// NewNotificationService 创建通知服务
func NewNotificationService(inbox InboxSubscriber, users UsernameResolver, opts Options) *NotificationService {
	return &NotificationService{
		inbox:  inbox,
		users:  users,
		opts:   opts,
		logger: slog.Default().With("service", "notification"),
	}
}

// NotificationSession 一个实时会话的通知流
type NotificationSession struct {
	relay  *NotificationRelay
	stream *Stream[model.DirectMessage]
	out    chan model.Notification
}

// Open 以当前时间为基线开启通知会话
func (s *NotificationService) Open(ctx context.Context, userID string) (*NotificationSession, error) {
	baseline := time.Now()
	stream, err := s.inbox.SubscribeInbox(ctx, userID)
	if err != nil {
		return nil, err
	}

	session := &NotificationSession{
		relay:  NewNotificationRelay(userID, baseline, s.users, s.opts),
		stream: stream,
		out:    make(chan model.Notification, s.opts.streamBuffer()),
	}
	go session.run(context.WithoutCancel(ctx))
	return session, nil
}

func (s *NotificationSession) run(ctx context.Context) {
	defer close(s.out)
	for change := range s.stream.C() {
		if change.Type != model.ChangeAdded || change.Data == nil {
			continue
		}
		n, ok := s.relay.Observe(ctx, change.Data)
		if !ok {
			continue
		}
		select {
		case s.out <- *n:
		case <-s.stream.Done():
			return
		}
	}
}

// C 新通知
func (s *NotificationSession) C() <-chan model.Notification {
	return s.out
}

// Dismiss 关闭一条通知
func (s *NotificationSession) Dismiss(sourceMessageID string) bool {
	return s.relay.Dismiss(sourceMessageID)
}

// Active 当前通知列表
func (s *NotificationSession) Active() []model.Notification {
	return s.relay.Active()
}

// Close 结束会话
func (s *NotificationSession) Close() error {
	return s.stream.Close()
}

package service

import (
	"context"
	"log/slog"

	"sudooom.im.chatroom/internal/metrics"
	"sudooom.im.chatroom/internal/model"
	appErrors "sudooom.im.chatroom/pkg/errors"
)

// ConversationStore 会话索引存储
type ConversationStore interface {
	Touch(ctx context.Context, userID string, conv *model.Conversation, unread bool) (bool, error)
	List(ctx context.Context, userID string, offset, limit int64) ([]model.Conversation, error)
	MarkRead(ctx context.Context, userID, conversationID string) error
	TotalUnread(ctx context.Context, userID string) (int64, error)
}

// ConversationService 会话列表服务
// 由 NATS 队列订阅驱动，每条单聊消息更新双方的会话索引
type ConversationService struct {
	store  ConversationStore
	opts   Options
	logger *slog.Logger
}

// NewConversationService 创建会话服务
func NewConversationService(store ConversationStore, opts Options) *ConversationService {
	return &ConversationService{
		store:  store,
		opts:   opts,
		logger: slog.Default().With("service", "conversation"),
	}
}

// HandleDirectMessage 更新发送者与接收者的会话，接收者未读数加一
func (s *ConversationService) HandleDirectMessage(ctx context.Context, msg *model.DirectMessage) error {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	preview := model.Preview(msg.Payload())
	for _, userID := range uniqueParticipants(msg) {
		conv := &model.Conversation{
			ConversationID: msg.ConversationID,
			PeerID:         msg.Peer(userID),
			LastMessageID:  msg.ID,
			LastSenderID:   msg.SenderID,
			Preview:        preview,
			LastMessageAt:  msg.CreateAt,
		}
		updated, err := s.store.Touch(ctx, userID, conv, userID != msg.SenderID)
		if err != nil {
			metrics.ConversationIndexUpdates.WithLabelValues("error").Inc()
			s.logger.Error("Failed to update conversation index", "userId", userID, "conversationId", msg.ConversationID, "error", err)
			return err
		}
		if updated {
			metrics.ConversationIndexUpdates.WithLabelValues("updated").Inc()
		} else {
			metrics.ConversationIndexUpdates.WithLabelValues("stale").Inc()
		}
	}
	return nil
}

// ListConversations 按最后消息时间倒序获取会话列表
func (s *ConversationService) ListConversations(ctx context.Context, userID string, offset, limit int64) ([]model.Conversation, error) {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	conversations, err := s.store.List(ctx, userID, offset, limit)
	if err != nil {
		return nil, appErrors.ErrUnavailable.Wrap(err)
	}
	return conversations, nil
}

// MarkRead 将与 peer 的会话标记为已读
func (s *ConversationService) MarkRead(ctx context.Context, userID, peerID string) error {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	if err := s.store.MarkRead(ctx, userID, model.ConversationID(userID, peerID)); err != nil {
		return appErrors.ErrUnavailable.Wrap(err)
	}
	return nil
}

// TotalUnread 获取总未读数
func (s *ConversationService) TotalUnread(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	total, err := s.store.TotalUnread(ctx, userID)
	if err != nil {
		return 0, appErrors.ErrUnavailable.Wrap(err)
	}
	return total, nil
}

func uniqueParticipants(msg *model.DirectMessage) []string {
	if len(msg.Participants) == 2 && msg.Participants[0] == msg.Participants[1] {
		return msg.Participants[:1]
	}
	return msg.Participants
}

package nats

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"sudooom.im.chatroom/internal/model"
	"sudooom.im.chatroom/pkg/workerpool"
)

// DirectMessageHandler 单聊消息处理器接口
type DirectMessageHandler interface {
	HandleDirectMessage(ctx context.Context, msg *model.DirectMessage) error
}

// SubscriberConfig Worker Pool 配置
type SubscriberConfig struct {
	WorkerCount int // Worker 数量
	BufferSize  int // 每个 Worker 的队列大小
}

// ConversationSubscriber 以队列组订阅所有单聊会话的新增消息
// 同一会话的消息落在同一个 worker 上，处理顺序与发布顺序一致
type ConversationSubscriber struct {
	nc           *nats.Conn
	handler      DirectMessageHandler
	logger       *slog.Logger
	subscription *nats.Subscription
	config       SubscriberConfig
	pool         *workerpool.Pool
	ctx          context.Context
	cancelFunc   context.CancelFunc
}

// NewConversationSubscriber 创建会话订阅器
func NewConversationSubscriber(nc *nats.Conn, handler DirectMessageHandler, config SubscriberConfig) *ConversationSubscriber {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 8
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 256
	}

	return &ConversationSubscriber{
		nc:      nc,
		handler: handler,
		logger:  slog.Default().With("component", "conversation_subscriber"),
		config:  config,
	}
}

// Start 启动订阅
func (s *ConversationSubscriber) Start(ctx context.Context) error {
	s.ctx, s.cancelFunc = context.WithCancel(ctx)
	s.pool = workerpool.New(s.config.WorkerCount, s.config.BufferSize, s.logger)

	sub, err := s.nc.QueueSubscribe(SubjectAllConversations, QueueGroupIndexer, s.dispatch)
	if err != nil {
		s.cancelFunc()
		s.pool.Shutdown()
		return err
	}
	s.subscription = sub

	s.logger.Info("NATS subscriber started",
		"subject", SubjectAllConversations,
		"queue", QueueGroupIndexer,
		"workerCount", s.config.WorkerCount,
		"bufferSize", s.config.BufferSize,
	)
	return nil
}

// dispatch 解码后按会话 ID 投递到 worker
func (s *ConversationSubscriber) dispatch(msg *nats.Msg) {
	var ev model.ChangeEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		s.logger.Error("Failed to unmarshal change event", "subject", msg.Subject, "error", err)
		return
	}
	if ev.Type != model.ChangeAdded {
		return
	}

	var dm model.DirectMessage
	if err := ev.Decode(&dm); err != nil {
		s.logger.Error("Failed to decode direct message", "subject", msg.Subject, "id", ev.ID, "error", err)
		return
	}

	ok := s.pool.TrySubmit(dm.ConversationID, func() {
		if err := s.handler.HandleDirectMessage(s.ctx, &dm); err != nil {
			s.logger.Error("Failed to handle direct message",
				"conversationId", dm.ConversationID,
				"messageId", dm.ID,
				"error", err)
		}
	})
	if !ok {
		s.logger.Warn("Worker queue full, dropping message",
			"conversationId", dm.ConversationID,
			"messageId", dm.ID,
			"pending", s.pool.Pending())
	}
}

// Stop 停止订阅，等待已排队的任务完成
func (s *ConversationSubscriber) Stop() error {
	if s.subscription != nil {
		if err := s.subscription.Unsubscribe(); err != nil {
			s.logger.Error("Failed to unsubscribe", "error", err)
		}
	}
	if s.pool != nil {
		s.pool.Shutdown()
	}
	if s.cancelFunc != nil {
		s.cancelFunc()
	}

	s.logger.Info("NATS subscriber stopped")
	return nil
}

// Pending 排队中的任务数（用于监控）
func (s *ConversationSubscriber) Pending() int {
	if s.pool == nil {
		return 0
	}
	return s.pool.Pending()
}

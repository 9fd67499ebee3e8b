package nats

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"sudooom.im.chatroom/internal/metrics"
	"sudooom.im.chatroom/internal/model"
)

// Publisher 变更事件发布接口
type Publisher interface {
	Publish(ctx context.Context, subject string, event model.ChangeEvent) error
}

// ChangePublisher 基于 NATS 的变更发布器
type ChangePublisher struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// NewChangePublisher 创建变更发布器
func NewChangePublisher(nc *nats.Conn) *ChangePublisher {
	return &ChangePublisher{
		nc:     nc,
		logger: slog.Default().With("component", "change_publisher"),
	}
}

// Publish 发布变更事件
func (p *ChangePublisher) Publish(ctx context.Context, subject string, event model.ChangeEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal change event", "subject", subject, "error", err)
		return err
	}

	if err := p.nc.Publish(subject, data); err != nil {
		metrics.ChangePublishErrors.WithLabelValues(SubjectKind(subject)).Inc()
		p.logger.Error("Failed to publish change event", "subject", subject, "id", event.ID, "error", err)
		return err
	}

	p.logger.Debug("Published change event", "subject", subject, "type", event.Type, "id", event.ID)
	return nil
}

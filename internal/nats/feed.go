package nats

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"sudooom.im.chatroom/internal/model"
)

// Feed 实时变更订阅接口
type Feed interface {
	Subscribe(ctx context.Context, subject string, buffer int) (FeedSubscription, error)
}

// FeedSubscription 单个订阅
// Events 不会被关闭，消费方应同时监听 Done
type FeedSubscription interface {
	Events() <-chan model.ChangeEvent
	Done() <-chan struct{}
	Close() error
}

const flushTimeout = 5 * time.Second

// ChangeFeed 基于 NATS 的实时订阅
type ChangeFeed struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// NewChangeFeed 创建实时订阅
func NewChangeFeed(nc *nats.Conn) *ChangeFeed {
	return &ChangeFeed{
		nc:     nc,
		logger: slog.Default().With("component", "change_feed"),
	}
}

// Subscribe 订阅 subject
// 返回前会 Flush，保证服务端已登记订阅，此后发布的事件不会丢失
func (f *ChangeFeed) Subscribe(ctx context.Context, subject string, buffer int) (FeedSubscription, error) {
	if buffer <= 0 {
		buffer = 64
	}
	s := &subscription{
		events: make(chan model.ChangeEvent, buffer),
		done:   make(chan struct{}),
	}

	// NATS 对同一订阅的回调串行执行，事件顺序与发布顺序一致
	sub, err := f.nc.Subscribe(subject, func(msg *nats.Msg) {
		var ev model.ChangeEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			f.logger.Warn("Dropping malformed change event", "subject", msg.Subject, "error", err)
			return
		}
		select {
		case s.events <- ev:
		case <-s.done:
		}
	})
	if err != nil {
		return nil, err
	}
	s.sub = sub

	if err := f.flush(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// flush FlushWithContext 要求 context 带截止时间
func (f *ChangeFeed) flush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); ok {
		return f.nc.FlushWithContext(ctx)
	}
	return f.nc.FlushTimeout(flushTimeout)
}

type subscription struct {
	sub    *nats.Subscription
	events chan model.ChangeEvent
	done   chan struct{}
	once   sync.Once
	err    error
}

func (s *subscription) Events() <-chan model.ChangeEvent {
	return s.events
}

func (s *subscription) Done() <-chan struct{} {
	return s.done
}

// Close 取消订阅，可重复调用
func (s *subscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		if s.sub != nil {
			s.err = s.sub.Unsubscribe()
			if errors.Is(s.err, nats.ErrConnectionClosed) || errors.Is(s.err, nats.ErrBadSubscription) {
				s.err = nil
			}
		}
	})
	return s.err
}

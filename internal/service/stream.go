package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sudooom.im.chatroom/internal/metrics"
	"sudooom.im.chatroom/internal/model"
	"sudooom.im.chatroom/internal/nats"
	appErrors "sudooom.im.chatroom/pkg/errors"
)

const (
	catchUpAttempts = 3
	catchUpBackoff  = 100 * time.Millisecond
)

// errAccessRevoked 订阅者已失去访问权限
var errAccessRevoked = errors.New("stream access revoked")

// Change 推送给订阅者的单个变更
type Change[T any] struct {
	Type model.ChangeType `json:"type"`
	ID   string           `json:"id"`
	Data *T               `json:"data,omitempty"`
	At   time.Time        `json:"at"`
}

// streamSource 描述一个实时订阅
type streamSource[T any] struct {
	kind    string
	subject string
	// snapshot 订阅建立后加载的初始结果集，按顺序以 added 推送
	snapshot func(ctx context.Context) ([]*T, error)
	idOf     func(doc *T) string
	// since 追加日志使用：收到 added 事件后拉取 cursor 之后的记录
	// 日志在同一会话内按提交顺序严格递增，拉取结果即为正确顺序
	since func(ctx context.Context, cursor *T) ([]*T, error)
	// visible 文档流使用：返回 false 时推送 evicted 并结束订阅
	visible func(doc *T) bool
	// evictedBy 收到 evicted 事件时判断是否针对本订阅者，为 nil 时忽略该类事件
	evictedBy func(id string) bool
	// authorize 追加日志使用：每次拉取新记录前复核访问权限
	authorize func(ctx context.Context) error
	// scope 订阅所属文档的 ID，作为 evicted 事件的 ID
	scope string
}

// Stream 实时订阅
// 先订阅 subject，再加载快照，之后转发实时事件，快照与实时之间的重复按 ID 丢弃
// 事件由单个 goroutine 依次写入 C()，同一订阅的事件不会并发到达
type Stream[T any] struct {
	src    streamSource[T]
	sub    nats.FeedSubscription
	out    chan Change[T]
	done   chan struct{}
	once   sync.Once
	ctx    context.Context
	cancel context.CancelFunc
	opts   Options
	logger *slog.Logger

	seen   map[string]struct{}
	cursor *T
	err    error
}

// openStream 建立订阅并启动转发
func openStream[T any](ctx context.Context, feed nats.Feed, opts Options, logger *slog.Logger, src streamSource[T]) (*Stream[T], error) {
	sub, err := feed.Subscribe(ctx, src.subject, opts.streamBuffer())
	if err != nil {
		return nil, appErrors.ErrUnavailable.Wrap(err)
	}

	var docs []*T
	if src.snapshot != nil {
		snapCtx, cancel := opts.withTimeout(ctx)
		docs, err = src.snapshot(snapCtx)
		cancel()
		if err != nil {
			_ = sub.Close()
			return nil, mapStoreError(err)
		}
	}

	// 订阅的生命周期独立于建立订阅的请求
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &Stream[T]{
		src:    src,
		sub:    sub,
		out:    make(chan Change[T], opts.streamBuffer()),
		done:   make(chan struct{}),
		ctx:    streamCtx,
		cancel: cancel,
		opts:   opts,
		logger: logger.With("stream", src.kind, "subject", src.subject),
		seen:   make(map[string]struct{}, len(docs)),
	}
	metrics.StreamsActive.WithLabelValues(src.kind).Inc()

	go s.run(docs)
	return s, nil
}

// C 变更通道，订阅结束后关闭
func (s *Stream[T]) C() <-chan Change[T] {
	return s.out
}

// Done 订阅结束后关闭
func (s *Stream[T]) Done() <-chan struct{} {
	return s.done
}

// Err 订阅异常结束的原因，在 C() 关闭后读取
// 正常关闭与 evicted 结束时为 nil
func (s *Stream[T]) Err() error {
	return s.err
}

// Close 释放订阅，可重复调用
func (s *Stream[T]) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.cancel()
		err = s.sub.Close()
		metrics.StreamsActive.WithLabelValues(s.src.kind).Dec()
	})
	return err
}

func (s *Stream[T]) run(snapshot []*T) {
	defer close(s.out)
	defer s.Close()

	for _, doc := range snapshot {
		id := s.src.idOf(doc)
		s.seen[id] = struct{}{}
		if !s.deliver(Change[T]{Type: model.ChangeAdded, ID: id, Data: doc, At: time.Now()}) {
			return
		}
	}

	for {
		select {
		case <-s.done:
			return
		case <-s.sub.Done():
			return
		case ev := <-s.sub.Events():
			if !s.handle(ev) {
				return
			}
		}
	}
}

// handle 处理一个实时事件，返回 false 表示订阅结束
func (s *Stream[T]) handle(ev model.ChangeEvent) bool {
	if ev.Type == model.ChangeEvicted {
		if s.src.evictedBy == nil || !s.src.evictedBy(ev.ID) {
			return true
		}
		s.deliver(Change[T]{Type: model.ChangeEvicted, ID: s.src.scope, At: ev.At})
		return false
	}
	if ev.Type == model.ChangeAdded && s.src.since != nil {
		return s.catchUp()
	}

	change := Change[T]{Type: ev.Type, ID: ev.ID, At: ev.At}
	if len(ev.Data) > 0 {
		var doc T
		if err := ev.Decode(&doc); err != nil {
			s.logger.Warn("Dropping undecodable change", "id", ev.ID, "error", err)
			return true
		}
		change.Data = &doc
	}

	if change.Type == model.ChangeAdded {
		if _, dup := s.seen[change.ID]; dup {
			delete(s.seen, change.ID)
			metrics.StreamEventsDropped.WithLabelValues(s.src.kind).Inc()
			return true
		}
	}

	if s.src.visible != nil && change.Data != nil && !s.src.visible(change.Data) {
		s.deliver(Change[T]{Type: model.ChangeEvicted, ID: change.ID, At: change.At})
		return false
	}
	return s.deliver(change)
}

// catchUp 拉取游标之后的新记录
// 权限被收回时推送 evicted，重试用尽时以 Err() 结束订阅，由客户端重新订阅
func (s *Stream[T]) catchUp() bool {
	docs, err := s.fetch()
	switch {
	case s.ctx.Err() != nil:
		return false
	case errors.Is(err, errAccessRevoked):
		s.logger.Info("Subscriber lost access", "error", err)
		s.deliver(Change[T]{Type: model.ChangeEvicted, ID: s.src.scope, At: time.Now()})
		return false
	case err != nil:
		s.logger.Error("Giving up loading new records", "attempts", catchUpAttempts, "error", err)
		s.err = appErrors.ErrUnavailable.Wrap(err)
		return false
	}

	for _, doc := range docs {
		id := s.src.idOf(doc)
		if _, dup := s.seen[id]; dup {
			delete(s.seen, id)
			metrics.StreamEventsDropped.WithLabelValues(s.src.kind).Inc()
			continue
		}
		if !s.deliver(Change[T]{Type: model.ChangeAdded, ID: id, Data: doc, At: time.Now()}) {
			return false
		}
	}
	return true
}

// fetch 复核权限后拉取新记录，失败时按指数退避重试
func (s *Stream[T]) fetch() ([]*T, error) {
	var err error
	for attempt := range catchUpAttempts {
		if attempt > 0 {
			s.logger.Warn("Retrying new records", "attempt", attempt+1, "error", err)
			select {
			case <-time.After(catchUpBackoff << (attempt - 1)):
			case <-s.ctx.Done():
				return nil, s.ctx.Err()
			}
		}

		var docs []*T
		docs, err = s.load()
		if err == nil || errors.Is(err, errAccessRevoked) || s.ctx.Err() != nil {
			return docs, err
		}
	}
	return nil, err
}

func (s *Stream[T]) load() ([]*T, error) {
	ctx, cancel := s.opts.withTimeout(s.ctx)
	defer cancel()

	if s.src.authorize != nil {
		if err := s.src.authorize(ctx); err != nil {
			if appErrors.KindOf(err) == appErrors.KindTransient {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", errAccessRevoked, err)
		}
	}
	return s.src.since(ctx, s.cursor)
}

// deliver 写入输出通道，订阅关闭时返回 false
func (s *Stream[T]) deliver(change Change[T]) bool {
	select {
	case s.out <- change:
		if change.Type == model.ChangeAdded && change.Data != nil && s.src.since != nil {
			s.cursor = change.Data
		}
		metrics.StreamEventsDelivered.WithLabelValues(s.src.kind, string(change.Type)).Inc()
		return true
	case <-s.done:
		metrics.StreamEventsDropped.WithLabelValues(s.src.kind).Inc()
		return false
	}
}

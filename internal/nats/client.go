package nats

import (
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"sudooom.im.chatroom/internal/config"
	"sudooom.im.chatroom/internal/metrics"
)

// Client 变更总线连接，断线期间发布的事件由客户端缓冲后补发
type Client struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewClient 连接 NATS，连接状态变化计入 chatroom_nats_connection_events_total
func NewClient(cfg config.NATSConfig) (*Client, error) {
	logger := slog.Default().With("component", "nats")
	event := func(name string) { metrics.NATSConnectionEvents.WithLabelValues(name).Inc() }

	conn, err := nats.Connect(cfg.URL,
		nats.Name("chatroom"),
		nats.Timeout(10*time.Second),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			event("disconnected")
			logger.Warn("Change bus disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			event("reconnected")
			logger.Info("Change bus reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			event("closed")
			logger.Info("Change bus connection closed")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			event("async_error")
			var subject string
			if sub != nil {
				subject = sub.Subject
			}
			logger.Error("Change bus async error", "subject", subject, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}
	event("connected")
	return &Client{conn: conn, logger: logger}, nil
}

// Conn 底层连接，供发布者与订阅者共享
func (c *Client) Conn() *nats.Conn {
	return c.conn
}

// Close 排空订阅与待发消息后关闭
func (c *Client) Close() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("Drain failed, closing", "error", err)
		c.conn.Close()
	}
}

// IsConnected 连接是否可用
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"sudooom.im.chatroom/internal/middleware"
	"sudooom.im.chatroom/internal/model"
	"sudooom.im.chatroom/internal/service"
	appErrors "sudooom.im.chatroom/pkg/errors"
)

// StreamOptions 实时推送参数
type StreamOptions struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
	// OriginPatterns 允许跨域握手的 host 模式，同源请求总是允许
	OriginPatterns []string
}

// OriginHosts 把 CORS 配置中的 origin 转为握手校验使用的 host 模式
func OriginHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" || !strings.Contains(o, "://") {
			hosts = append(hosts, o)
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
		}
	}
	return hosts
}

// ProfileStreams 资料订阅
type ProfileStreams interface {
	SubscribeProfile(ctx context.Context, userID string) (*service.Stream[model.User], error)
}

// RequestStreams 好友请求订阅
type RequestStreams interface {
	SubscribeRequests(ctx context.Context, userID string) (*service.Stream[model.FriendRequest], error)
}

// GroupStreams 群组订阅
type GroupStreams interface {
	SubscribeGroup(ctx context.Context, viewerID, groupID string) (*service.Stream[model.Group], error)
	SubscribeGroups(ctx context.Context, userID string) (*service.Stream[model.Group], error)
}

// MessageStreams 消息订阅
type MessageStreams interface {
	SubscribeConversation(ctx context.Context, viewerID, peerID string) (*service.Stream[model.DirectMessage], error)
	SubscribeInbox(ctx context.Context, userID string) (*service.Stream[model.DirectMessage], error)
	SubscribeGroupMessages(ctx context.Context, viewerID, groupID string) (*service.Stream[model.GroupMessage], error)
}

// NotificationOpener 开启通知会话
type NotificationOpener interface {
	Open(ctx context.Context, userID string) (*service.NotificationSession, error)
}

// StreamHandler WebSocket 实时订阅处理器
// 每个连接对应一个订阅，服务端只推送；通知连接额外接收 dismiss 指令
type StreamHandler struct {
	profiles      ProfileStreams
	requests      RequestStreams
	groups        GroupStreams
	messages      MessageStreams
	notifications NotificationOpener
	opts          StreamOptions
	logger        *slog.Logger
}

// NewStreamHandler 创建实时订阅处理器
func NewStreamHandler(profiles ProfileStreams, requests RequestStreams, groups GroupStreams, messages MessageStreams, notifications NotificationOpener, opts StreamOptions) *StreamHandler {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	return &StreamHandler{
		profiles:      profiles,
		requests:      requests,
		groups:        groups,
		messages:      messages,
		notifications: notifications,
		opts:          opts,
		logger:        slog.Default().With("handler", "stream"),
	}
}

// Profile 当前用户资料
// GET /api/v1/stream/profile
func (h *StreamHandler) Profile(c *gin.Context) {
	userID := middleware.GetUserID(c)
	serveChanges(h, c, func(ctx context.Context) (*service.Stream[model.User], error) {
		return h.profiles.SubscribeProfile(ctx, userID)
	})
}

// Requests 收到的好友请求
// GET /api/v1/stream/requests
func (h *StreamHandler) Requests(c *gin.Context) {
	userID := middleware.GetUserID(c)
	serveChanges(h, c, func(ctx context.Context) (*service.Stream[model.FriendRequest], error) {
		return h.requests.SubscribeRequests(ctx, userID)
	})
}

// Groups 当前用户的群组列表
// GET /api/v1/stream/groups
func (h *StreamHandler) Groups(c *gin.Context) {
	userID := middleware.GetUserID(c)
	serveChanges(h, c, func(ctx context.Context) (*service.Stream[model.Group], error) {
		return h.groups.SubscribeGroups(ctx, userID)
	})
}

// Group 单个群组，被移出后推送 evicted 并关闭
// GET /api/v1/stream/groups/:id
func (h *StreamHandler) Group(c *gin.Context) {
	userID, groupID := middleware.GetUserID(c), c.Param("id")
	serveChanges(h, c, func(ctx context.Context) (*service.Stream[model.Group], error) {
		return h.groups.SubscribeGroup(ctx, userID, groupID)
	})
}

// GroupMessages 群消息
// GET /api/v1/stream/groups/:id/messages
func (h *StreamHandler) GroupMessages(c *gin.Context) {
	userID, groupID := middleware.GetUserID(c), c.Param("id")
	serveChanges(h, c, func(ctx context.Context) (*service.Stream[model.GroupMessage], error) {
		return h.messages.SubscribeGroupMessages(ctx, userID, groupID)
	})
}

// Conversation 与对方的单聊消息
// GET /api/v1/stream/chats/:peerId
func (h *StreamHandler) Conversation(c *gin.Context) {
	userID, peerID := middleware.GetUserID(c), c.Param("peerId")
	serveChanges(h, c, func(ctx context.Context) (*service.Stream[model.DirectMessage], error) {
		return h.messages.SubscribeConversation(ctx, userID, peerID)
	})
}

// Inbox 所有新到达的单聊消息
// GET /api/v1/stream/inbox
func (h *StreamHandler) Inbox(c *gin.Context) {
	userID := middleware.GetUserID(c)
	serveChanges(h, c, func(ctx context.Context) (*service.Stream[model.DirectMessage], error) {
		return h.messages.SubscribeInbox(ctx, userID)
	})
}

// errStreamEnded 事件通道已关闭
var errStreamEnded = errors.New("stream ended")

const (
	frameNotification = "notification"
	frameActive       = "active"
	actionDismiss     = "dismiss"
	actionList        = "list"
)

// notificationFrame 通知连接下行帧
type notificationFrame struct {
	Type         string               `json:"type"`
	Notification *model.Notification  `json:"notification,omitempty"`
	Active       []model.Notification `json:"active,omitempty"`
}

// notificationCommand 通知连接上行指令
type notificationCommand struct {
	Action string `json:"action"`
	ID     string `json:"id"`
}

// Notifications 新消息通知，以连接建立时间为基线
// GET /api/v1/stream/notifications
// 上行 {"action":"dismiss","id":...} 关闭一条通知，{"action":"list"} 获取当前列表，均以 active 帧应答
func (h *StreamHandler) Notifications(c *gin.Context) {
	conn, ok := h.accept(c)
	if !ok {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	userID := middleware.GetUserID(c)
	session, err := h.notifications.Open(c.Request.Context(), userID)
	if err != nil {
		h.reject(conn, err)
		return
	}
	defer session.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	replies := make(chan any, 8)
	go func() {
		defer cancel()
		for {
			var cmd notificationCommand
			if err := wsjson.Read(ctx, conn, &cmd); err != nil {
				return
			}
			switch cmd.Action {
			case actionDismiss:
				session.Dismiss(cmd.ID)
			case actionList:
			default:
				h.logger.Debug("Ignoring unknown command", "userId", userID, "action", cmd.Action)
				continue
			}
			select {
			case replies <- notificationFrame{Type: frameActive, Active: session.Active()}:
			case <-ctx.Done():
				return
			}
		}
	}()

	wrap := func(n model.Notification) any {
		return notificationFrame{Type: frameNotification, Notification: &n}
	}
	err = pump(ctx, conn, h.opts, session.C(), wrap, replies)
	if errors.Is(err, errStreamEnded) {
		err = h.closeEnded(conn, nil)
	}
	h.finish(userID, c.FullPath(), err)
}

// serveChanges 握手后建立订阅并持续推送变更
// 订阅失败时以关闭码携带错误码，客户端据此区分无权限与暂时不可用
func serveChanges[T any](h *StreamHandler, c *gin.Context, open func(ctx context.Context) (*service.Stream[T], error)) {
	conn, ok := h.accept(c)
	if !ok {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	stream, err := open(c.Request.Context())
	if err != nil {
		h.reject(conn, err)
		return
	}
	defer stream.Close()

	// 只推送不接收，CloseRead 负责处理 ping/pong 与关闭帧
	ctx := conn.CloseRead(c.Request.Context())
	err = pump(ctx, conn, h.opts, stream.C(), nil, nil)
	if errors.Is(err, errStreamEnded) {
		err = h.closeEnded(conn, stream.Err())
	}
	h.finish(middleware.GetUserID(c), c.FullPath(), err)
}

func (h *StreamHandler) accept(c *gin.Context) (*websocket.Conn, bool) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: h.opts.OriginPatterns,
	})
	if err != nil {
		// Accept 已写出错误响应
		h.logger.Warn("Websocket handshake failed", "path", c.FullPath(), "error", err)
		return nil, false
	}
	return conn, true
}

// reject 订阅建立失败时关闭连接，reason 为错误码
func (h *StreamHandler) reject(conn *websocket.Conn, err error) {
	status := websocket.StatusPolicyViolation
	switch appErrors.KindOf(err) {
	case appErrors.KindTransient:
		status = websocket.StatusTryAgainLater
	case appErrors.KindInternal:
		status = websocket.StatusInternalError
		h.logger.Error("Stream failed", "error", err)
	}
	_ = conn.Close(status, strconv.Itoa(appErrors.GetCode(err)))
}

// closeEnded 事件通道关闭后结束连接
// 订阅异常结束时与建立失败使用相同的关闭码，客户端据此重新订阅
func (h *StreamHandler) closeEnded(conn *websocket.Conn, cause error) error {
	if cause != nil {
		h.reject(conn, cause)
		return nil
	}
	return conn.Close(websocket.StatusNormalClosure, "stream ended")
}

func (h *StreamHandler) finish(userID, path string, err error) {
	if err == nil || websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
		h.logger.Debug("Stream closed", "userId", userID, "path", path)
		return
	}
	h.logger.Info("Stream aborted", "userId", userID, "path", path, "error", err)
}

// pump 单 goroutine 顺序写出事件，定时 ping 保活
// events 关闭时返回 errStreamEnded，由调用方决定关闭码；wrap 为 nil 时原样写出
func pump[E any](ctx context.Context, conn *websocket.Conn, opts StreamOptions, events <-chan E, wrap func(E) any, control <-chan any) error {
	ticker := time.NewTicker(opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return errStreamEnded
			}
			var frame any = ev
			if wrap != nil {
				frame = wrap(ev)
			}
			if err := writeFrame(ctx, conn, opts.WriteTimeout, frame); err != nil {
				return err
			}
		case frame := <-control:
			if err := writeFrame(ctx, conn, opts.WriteTimeout, frame); err != nil {
				return err
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, opts.WriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, timeout time.Duration, v any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}

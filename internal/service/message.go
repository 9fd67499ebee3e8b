package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"sudooom.im.chatroom/internal/metrics"
	"sudooom.im.chatroom/internal/model"
	"sudooom.im.chatroom/internal/nats"
	"sudooom.im.chatroom/internal/storage"
	appErrors "sudooom.im.chatroom/pkg/errors"
)

// SendDirectRequest 发送单聊消息请求
type SendDirectRequest struct {
	PeerID   string `json:"peerId" binding:"required"`
	Text     string `json:"text"`
	ImageURL string `json:"imageUrl"`
	AudioURL string `json:"audioUrl"`
}

// Payload 返回消息内容
func (r *SendDirectRequest) Payload() model.Payload {
	return model.Payload{Text: r.Text, ImageURL: r.ImageURL, AudioURL: r.AudioURL}
}

// MessageService 消息服务
type MessageService struct {
	messages MessageStore
	users    UserStore
	groups   GroupStore
	ids      IDGenerator
	feed     nats.Feed
	notifier changeNotifier
	uploader uploader
	opts     Options
	logger   *slog.Logger
}

// NewMessageService 创建消息服务
func NewMessageService(messages MessageStore, users UserStore, groups GroupStore, ids IDGenerator, blobs storage.BlobStore, publisher nats.Publisher, feed nats.Feed, maxUpload int64, opts Options) *MessageService {
	logger := slog.Default().With("service", "message")
	return &MessageService{
		messages: messages,
		users:    users,
		groups:   groups,
		ids:      ids,
		feed:     feed,
		notifier: newChangeNotifier(publisher, logger),
		uploader: uploader{blobs: blobs, maxSize: maxUpload},
		opts:     opts,
		logger:   logger,
	}
}

// SendDirect 发送单聊消息
// 文本、图片、音频三选一；提交后发布到会话与双方的收件箱
func (s *MessageService) SendDirect(ctx context.Context, senderID, peerID string, payload model.Payload) (*model.DirectMessage, error) {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	if !nats.ValidToken(peerID) {
		return nil, appErrors.ErrInvalidParams
	}
	payload, err := payload.Normalize()
	if err != nil {
		return nil, mapStoreError(err)
	}
	if _, err := s.users.GetByID(ctx, peerID); err != nil {
		return nil, mapStoreError(err)
	}

	msg := model.NewDirectMessage(s.ids.NextID(), senderID, peerID, payload)
	if err := s.messages.InsertDirect(ctx, msg); err != nil {
		return nil, mapStoreError(err)
	}
	metrics.MessagesSent.WithLabelValues("direct", string(payload.Kind())).Inc()

	s.logger.Debug("Direct message sent", "messageId", msg.ID, "conversationId", msg.ConversationID, "kind", payload.Kind())
	subjects := []string{nats.SubjectConversation(msg.ConversationID)}
	for _, p := range msg.Participants {
		subjects = append(subjects, nats.SubjectUserInbox(p))
	}
	if msg.Participants[0] == msg.Participants[1] {
		subjects = subjects[:2]
	}
	s.notifier.emit(ctx, model.ChangeAdded, msg.ID, msg, subjects...)
	return msg, nil
}

// SendDirectMedia 上传图片或音频后以 URL 发送
// 原始字节只进入对象存储
func (s *MessageService) SendDirectMedia(ctx context.Context, senderID, peerID string, kind model.PayloadKind, file Upload) (*model.DirectMessage, error) {
	prefix, ok := mediaPrefix(kind)
	if !ok {
		return nil, appErrors.ErrInvalidMedia
	}
	if !nats.ValidToken(peerID) {
		return nil, appErrors.ErrInvalidParams
	}

	conversationID := model.ConversationID(senderID, peerID)
	uploadCtx, cancel := s.opts.withTimeout(ctx)
	url, err := s.uploader.upload(uploadCtx, storage.MediaKey(conversationID, file.Filename), file, prefix)
	cancel()
	if err != nil {
		return nil, err
	}

	var payload model.Payload
	if kind == model.PayloadImage {
		payload.ImageURL = url
	} else {
		payload.AudioURL = url
	}
	return s.SendDirect(ctx, senderID, peerID, payload)
}

// ListConversation 获取单聊历史，按时间升序
func (s *MessageService) ListConversation(ctx context.Context, viewerID, peerID string, limit int) ([]*model.DirectMessage, error) {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	messages, err := s.messages.ListDirect(ctx, model.ConversationID(viewerID, peerID), time.Time{}, limit)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return messages, nil
}

// SubscribeConversation 订阅单聊会话
// 快照之后的新消息按时间戳顺序拉取推送，同一消息不会推送两次
func (s *MessageService) SubscribeConversation(ctx context.Context, viewerID, peerID string) (*Stream[model.DirectMessage], error) {
	if !nats.ValidToken(viewerID) || !nats.ValidToken(peerID) {
		return nil, appErrors.ErrInvalidParams
	}
	conversationID := model.ConversationID(viewerID, peerID)
	return openStream(ctx, s.feed, s.opts, s.logger, streamSource[model.DirectMessage]{
		kind:    "conversation",
		subject: nats.SubjectConversation(conversationID),
		snapshot: func(ctx context.Context) ([]*model.DirectMessage, error) {
			if _, err := s.users.GetByID(ctx, peerID); err != nil {
				return nil, err
			}
			return s.messages.ListDirect(ctx, conversationID, time.Time{}, 0)
		},
		idOf: func(m *model.DirectMessage) string { return m.ID },
		since: func(ctx context.Context, cursor *model.DirectMessage) ([]*model.DirectMessage, error) {
			var after time.Time
			if cursor != nil {
				after = cursor.CreateAt
			}
			return s.messages.ListDirect(ctx, conversationID, after, 0)
		},
	})
}

// SubscribeInbox 订阅用户收到的所有单聊消息，只推送订阅之后的消息
func (s *MessageService) SubscribeInbox(ctx context.Context, userID string) (*Stream[model.DirectMessage], error) {
	return openStream(ctx, s.feed, s.opts, s.logger, streamSource[model.DirectMessage]{
		kind:    "inbox",
		subject: nats.SubjectUserInbox(userID),
		idOf:    func(m *model.DirectMessage) string { return m.ID },
	})
}

// SendGroup 发送群消息，发送者必须是成员
func (s *MessageService) SendGroup(ctx context.Context, senderID, groupID, text string) (*model.GroupMessage, error) {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, appErrors.ErrEmptyMessage
	}
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if !group.IsMember(senderID) {
		return nil, appErrors.ErrNotGroupMember
	}

	msg := &model.GroupMessage{
		ID:       s.ids.NextID(),
		GroupID:  groupID,
		SenderID: senderID,
		Text:     text,
	}
	if err := s.messages.InsertGroup(ctx, msg); err != nil {
		return nil, mapStoreError(err)
	}
	metrics.MessagesSent.WithLabelValues("group", string(model.PayloadText)).Inc()

	s.notifier.emit(ctx, model.ChangeAdded, msg.ID, msg, nats.SubjectGroupMessages(groupID))
	return msg, nil
}

// ListGroupMessages 获取群消息历史，只有成员可以查看
func (s *MessageService) ListGroupMessages(ctx context.Context, viewerID, groupID string, limit int) ([]*model.GroupMessage, error) {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	if err := s.requireMember(ctx, viewerID, groupID); err != nil {
		return nil, err
	}
	messages, err := s.messages.ListGroup(ctx, groupID, time.Time{}, limit)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return messages, nil
}

// SubscribeGroupMessages 订阅群消息
// 订阅者被移出群组后推送 evicted 并结束订阅
func (s *MessageService) SubscribeGroupMessages(ctx context.Context, viewerID, groupID string) (*Stream[model.GroupMessage], error) {
	if !nats.ValidToken(groupID) {
		return nil, appErrors.ErrInvalidParams
	}
	return openStream(ctx, s.feed, s.opts, s.logger, streamSource[model.GroupMessage]{
		kind:    "group_messages",
		subject: nats.SubjectGroupMessages(groupID),
		scope:   groupID,
		snapshot: func(ctx context.Context) ([]*model.GroupMessage, error) {
			if err := s.requireMember(ctx, viewerID, groupID); err != nil {
				return nil, err
			}
			return s.messages.ListGroup(ctx, groupID, time.Time{}, 0)
		},
		idOf:      func(m *model.GroupMessage) string { return m.ID },
		evictedBy: func(userID string) bool { return userID == viewerID },
		authorize: func(ctx context.Context) error {
			return s.requireMember(ctx, viewerID, groupID)
		},
		since: func(ctx context.Context, cursor *model.GroupMessage) ([]*model.GroupMessage, error) {
			var after time.Time
			if cursor != nil {
				after = cursor.CreateAt
			}
			return s.messages.ListGroup(ctx, groupID, after, 0)
		},
	})
}

// DeleteGroupMessage 删除群消息
// 群主无条件可删，其他成员取决于角色的 canDeleteMessages
func (s *MessageService) DeleteGroupMessage(ctx context.Context, actorID, groupID, messageID string) error {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return mapStoreError(err)
	}
	if !group.CanDeleteMessages(actorID) {
		return appErrors.ErrPermissionDenied
	}
	if err := s.messages.DeleteGroupMessage(ctx, groupID, messageID); err != nil {
		return mapStoreError(err)
	}

	s.logger.Info("Group message deleted", "groupId", groupID, "messageId", messageID, "actor", actorID)
	s.notifier.emit(ctx, model.ChangeRemoved, messageID, nil, nats.SubjectGroupMessages(groupID))
	return nil
}

func (s *MessageService) requireMember(ctx context.Context, userID, groupID string) error {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return mapStoreError(err)
	}
	if !group.IsMember(userID) {
		return appErrors.ErrPermissionDenied
	}
	return nil
}

package model

import (
	"errors"
	"strings"
	"time"
)

// PayloadKind 消息内容类型
type PayloadKind string

const (
	PayloadText  PayloadKind = "text"
	PayloadImage PayloadKind = "image"
	PayloadAudio PayloadKind = "audio"
)

var (
	ErrEmptyPayload    = errors.New("message payload is empty")
	ErrMultiplePayload = errors.New("message payload has more than one kind")
)

// ConversationID 生成会话 ID：按字节序较小者在前，以 "_" 连接
// 双方无论谁先打开会话都得到同一个值
func ConversationID(a, b string) string {
	if a <= b {
		return a + "_" + b
	}
	return b + "_" + a
}

// Payload 消息内容，text / image / audio 三选一
type Payload struct {
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
	AudioURL string `json:"audioUrl,omitempty"`
}

// Normalize 去掉文本首尾空白并校验只有一种内容
func (p Payload) Normalize() (Payload, error) {
	p.Text = strings.TrimSpace(p.Text)
	p.ImageURL = strings.TrimSpace(p.ImageURL)
	p.AudioURL = strings.TrimSpace(p.AudioURL)

	n := 0
	for _, v := range []string{p.Text, p.ImageURL, p.AudioURL} {
		if v != "" {
			n++
		}
	}
	switch n {
	case 0:
		return p, ErrEmptyPayload
	case 1:
		return p, nil
	default:
		return p, ErrMultiplePayload
	}
}

// Kind 返回内容类型，调用前应已 Normalize
func (p Payload) Kind() PayloadKind {
	switch {
	case p.ImageURL != "":
		return PayloadImage
	case p.AudioURL != "":
		return PayloadAudio
	default:
		return PayloadText
	}
}

// DirectMessage 单聊消息，创建后不可修改
type DirectMessage struct {
	ID             string    `json:"id" db:"id"`
	ConversationID string    `json:"conversationId" db:"conversation_id"`
	Participants   []string  `json:"participants" db:"participants"`
	SenderID       string    `json:"senderId" db:"sender_id"`
	Text           string    `json:"text,omitempty" db:"text"`
	ImageURL       string    `json:"imageUrl,omitempty" db:"image_url"`
	AudioURL       string    `json:"audioUrl,omitempty" db:"audio_url"`
	CreateAt       time.Time `json:"createAt" db:"create_at"`
}

// NewDirectMessage 构造单聊消息，participants 按会话 ID 顺序保存
func NewDirectMessage(id, sender, peer string, payload Payload) *DirectMessage {
	first, second := sender, peer
	if second < first {
		first, second = second, first
	}
	return &DirectMessage{
		ID:             id,
		ConversationID: ConversationID(sender, peer),
		Participants:   []string{first, second},
		SenderID:       sender,
		Text:           payload.Text,
		ImageURL:       payload.ImageURL,
		AudioURL:       payload.AudioURL,
	}
}

// Payload 返回消息内容
func (m *DirectMessage) Payload() Payload {
	return Payload{Text: m.Text, ImageURL: m.ImageURL, AudioURL: m.AudioURL}
}

// Peer 返回对端用户 ID
func (m *DirectMessage) Peer(viewer string) string {
	for _, p := range m.Participants {
		if p != viewer {
			return p
		}
	}
	return viewer
}

// GroupMessage 群消息
type GroupMessage struct {
	ID       string    `json:"id" db:"id"`
	GroupID  string    `json:"groupId" db:"group_id"`
	SenderID string    `json:"senderId" db:"sender_id"`
	Text     string    `json:"text" db:"text"`
	CreateAt time.Time `json:"createAt" db:"create_at"`
}

// Preview 会话列表展示的摘要
func Preview(p Payload) string {
	switch p.Kind() {
	case PayloadImage:
		return "[image]"
	case PayloadAudio:
		return "[audio]"
	default:
		return p.Text
	}
}

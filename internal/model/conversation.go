package model

import "time"

// Conversation 会话索引条目（用户维度）
type Conversation struct {
	ConversationID string    `json:"conversationId" redis:"conversation_id"`
	PeerID         string    `json:"peerId" redis:"peer_id"`
	LastMessageID  string    `json:"lastMessageId" redis:"last_message_id"`
	LastSenderID   string    `json:"lastSenderId" redis:"last_sender_id"`
	Preview        string    `json:"preview" redis:"preview"`
	UnreadCount    int       `json:"unreadCount" redis:"unread_count"`
	LastMessageAt  time.Time `json:"lastMessageAt" redis:"-"`
}

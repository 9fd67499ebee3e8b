package model

import "time"

// Notification 客户端本地的临时通知，不持久化
type Notification struct {
	SourceMessageID string    `json:"sourceMessageId"`
	RenderedText    string    `json:"renderedText"`
	SenderID        string    `json:"senderId"`
	CreateAt        time.Time `json:"createAt"`
}

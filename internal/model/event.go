package model

import (
	"encoding/json"
	"time"
)

// ChangeType 实时订阅的变更类型
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
	// ChangeEvicted 订阅者已失去访问权限，订阅随后关闭
	ChangeEvicted ChangeType = "evicted"
)

// ChangeEvent 实时推送单元
type ChangeEvent struct {
	Type ChangeType      `json:"type"`
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data,omitempty"`
	At   time.Time       `json:"at"`
}

// NewChangeEvent 将文档编码为变更事件
func NewChangeEvent(t ChangeType, id string, doc any) (ChangeEvent, error) {
	ev := ChangeEvent{Type: t, ID: id, At: time.Now()}
	if doc != nil {
		data, err := json.Marshal(doc)
		if err != nil {
			return ev, err
		}
		ev.Data = data
	}
	return ev, nil
}

// Decode 解码事件中的文档
func (e ChangeEvent) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

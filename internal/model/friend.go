package model

import "time"

// FriendRequestStatus 好友请求状态
// 接受或拒绝时请求被删除，持久化的状态只有 pending
type FriendRequestStatus string

const (
	FriendRequestPending FriendRequestStatus = "pending"
)

// FriendRequest 好友请求
// FromUsername 是发送时的用户名快照，发送者改名后不会刷新
type FriendRequest struct {
	ID           string              `json:"id" db:"id"`
	FromUserID   string              `json:"from" db:"from_user_id"`
	FromUsername string              `json:"fromUsername" db:"from_username"`
	ToUserID     string              `json:"to" db:"to_user_id"`
	Status       FriendRequestStatus `json:"status" db:"status"`
	CreateAt     time.Time           `json:"createAt" db:"create_at"`
}

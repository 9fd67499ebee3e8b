package model

import (
	"slices"
	"time"
)

// User 用户
// friends 与 groups 以集合语义保存，保持插入顺序
type User struct {
	ID            string    `json:"id" db:"id"`
	Username      string    `json:"username" db:"username"`
	DisplayName   string    `json:"displayName" db:"display_name"`
	Email         string    `json:"email" db:"email"`
	PasswordHash  string    `json:"-" db:"password_hash"`
	AvatarURL     string    `json:"avatarUrl" db:"avatar_url"`
	Friends       []string  `json:"friends" db:"friends"`
	Groups        []string  `json:"groups" db:"groups"`
	BackgroundURL string    `json:"backgroundUrl" db:"background_url"`
	CreateAt      time.Time `json:"createAt" db:"create_at"`
	UpdateAt      time.Time `json:"updateAt" db:"update_at"`
}

// Profile 对外展示的用户资料
type Profile struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

// Profile 返回公开资料
func (u *User) Profile() Profile {
	return Profile{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
	}
}

// Name 返回用于展示的名称，username 为空时回退到 displayName
func (u *User) Name() string {
	if u.Username != "" {
		return u.Username
	}
	return u.DisplayName
}

// IsFriend 判断是否为好友
func (u *User) IsFriend(userID string) bool {
	return slices.Contains(u.Friends, userID)
}

// AddFriend 添加好友，已存在时不重复添加
func (u *User) AddFriend(userID string) bool {
	var added bool
	u.Friends, added = appendUnique(u.Friends, userID)
	return added
}

// RemoveFriend 移除好友
func (u *User) RemoveFriend(userID string) bool {
	var removed bool
	u.Friends, removed = removeValue(u.Friends, userID)
	return removed
}

// JoinGroup 记录加入的群组
func (u *User) JoinGroup(groupID string) bool {
	var added bool
	u.Groups, added = appendUnique(u.Groups, groupID)
	return added
}

// LeaveGroup 移除群组记录
func (u *User) LeaveGroup(groupID string) bool {
	var removed bool
	u.Groups, removed = removeValue(u.Groups, groupID)
	return removed
}

// appendUnique 集合语义追加
func appendUnique(list []string, v string) ([]string, bool) {
	if slices.Contains(list, v) {
		return list, false
	}
	return append(list, v), true
}

// removeValue 移除所有等于 v 的元素，保持其余元素顺序
func removeValue(list []string, v string) ([]string, bool) {
	n := len(list)
	list = slices.DeleteFunc(list, func(s string) bool { return s == v })
	return list, len(list) != n
}

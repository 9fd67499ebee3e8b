package nats

import (
	"strings"
	"unicode"
)

// Subject 前缀
const (
	subjectPrefix = "chatroom"

	// SubjectAllConversations 所有单聊会话的变更，会话索引订阅使用
	SubjectAllConversations = subjectPrefix + ".conversation.*"

	// QueueGroupIndexer 会话索引的队列组，多实例之间负载均衡
	QueueGroupIndexer = "chatroom-indexer"
)

// SubjectConversation 单聊会话消息：chatroom.conversation.{conversationId}
func SubjectConversation(conversationID string) string {
	return subjectPrefix + ".conversation." + conversationID
}

// SubjectGroup 群组文档：chatroom.group.{groupId}
func SubjectGroup(groupID string) string {
	return subjectPrefix + ".group." + groupID
}

// SubjectGroupMessages 群消息：chatroom.group.{groupId}.messages
func SubjectGroupMessages(groupID string) string {
	return subjectPrefix + ".group." + groupID + ".messages"
}

// SubjectUser 用户资料：chatroom.user.{userId}
func SubjectUser(userID string) string {
	return subjectPrefix + ".user." + userID
}

// SubjectUserRequests 用户收到的好友请求：chatroom.user.{userId}.requests
func SubjectUserRequests(userID string) string {
	return subjectPrefix + ".user." + userID + ".requests"
}

// SubjectUserInbox 用户收到的所有单聊消息：chatroom.user.{userId}.inbox
func SubjectUserInbox(userID string) string {
	return subjectPrefix + ".user." + userID + ".inbox"
}

// SubjectUserGroups 用户所在群组列表的变更：chatroom.user.{userId}.groups
func SubjectUserGroups(userID string) string {
	return subjectPrefix + ".user." + userID + ".groups"
}

// SubjectKind 返回 subject 的类别，用于指标标签
func SubjectKind(subject string) string {
	const p = subjectPrefix + "."
	if len(subject) <= len(p) {
		return "unknown"
	}
	rest := subject[len(p):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '.' {
			return rest[:i]
		}
	}
	return rest
}

// ValidToken 判断 ID 能否作为 subject 的单个 token
// 分隔符、通配符与空白会改变订阅范围，一律拒绝
func ValidToken(id string) bool {
	if id == "" {
		return false
	}
	return !strings.ContainsFunc(id, func(r rune) bool {
		return r == '.' || r == '*' || r == '>' || unicode.IsSpace(r) || unicode.IsControl(r)
	})
}

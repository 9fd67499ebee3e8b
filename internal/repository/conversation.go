package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"sudooom.im.chatroom/internal/model"
)

const (
	// conversationIndexPrefix 用户会话索引: chatroom:conversation:index:{user_id} -> ZSET(conversationId, 最后消息时间)
	conversationIndexPrefix = "chatroom:conversation:index:"
	// conversationPrefix 会话详情: chatroom:conversation:{user_id}:{conversationId} -> HASH
	conversationPrefix = "chatroom:conversation:"
)

// touchConversation 只接受比已记录更新的消息，重复投递不会重复计数未读
var touchConversation = redis.NewScript(`
local last = tonumber(redis.call('HGET', KEYS[1], 'last_message_at') or '0')
local at = tonumber(ARGV[2])
if at <= last then
	return 0
end
redis.call('HSET', KEYS[1],
	'conversation_id', ARGV[1],
	'peer_id', ARGV[3],
	'last_message_id', ARGV[4],
	'last_sender_id', ARGV[5],
	'preview', ARGV[6],
	'last_message_at', ARGV[2])
if ARGV[7] == '1' then
	redis.call('HINCRBY', KEYS[1], 'unread_count', 1)
end
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
return 1
`)

// ConversationRepository 会话索引（基于 Redis）
type ConversationRepository struct {
	rdb *redis.Client
}

// NewConversationRepository 创建会话索引仓库
func NewConversationRepository(rdb *redis.Client) *ConversationRepository {
	return &ConversationRepository{rdb: rdb}
}

func buildConversationIndexKey(userID string) string {
	return conversationIndexPrefix + userID
}

func buildConversationKey(userID, conversationID string) string {
	return conversationPrefix + userID + ":" + conversationID
}

// Touch 记录一条新消息，unread 为 true 时未读数加一
// 消息时间不晚于已记录的最后消息时返回 false
func (r *ConversationRepository) Touch(ctx context.Context, userID string, conv *model.Conversation, unread bool) (bool, error) {
	flag := "0"
	if unread {
		flag = "1"
	}
	keys := []string{
		buildConversationKey(userID, conv.ConversationID),
		buildConversationIndexKey(userID),
	}
	res, err := touchConversation.Run(ctx, r.rdb, keys,
		conv.ConversationID,
		conv.LastMessageAt.UnixMicro(),
		conv.PeerID,
		conv.LastMessageID,
		conv.LastSenderID,
		conv.Preview,
		flag,
	).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// List 按最后消息时间倒序获取会话
func (r *ConversationRepository) List(ctx context.Context, userID string, offset, limit int64) ([]model.Conversation, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = offset + limit - 1
	}
	members, err := r.rdb.ZRevRange(ctx, buildConversationIndexKey(userID), offset, stop).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return []model.Conversation{}, nil
	}

	pipe := r.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(members))
	for i, m := range members {
		cmds[i] = pipe.HGetAll(ctx, buildConversationKey(userID, m))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	conversations := make([]model.Conversation, 0, len(members))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}
		var conv model.Conversation
		if err := cmd.Scan(&conv); err != nil {
			return nil, err
		}
		if micros, err := strconv.ParseInt(data["last_message_at"], 10, 64); err == nil {
			conv.LastMessageAt = time.UnixMicro(micros).UTC()
		}
		conversations = append(conversations, conv)
	}
	return conversations, nil
}

// MarkRead 清零未读数，会话不存在时不创建
func (r *ConversationRepository) MarkRead(ctx context.Context, userID, conversationID string) error {
	key := buildConversationKey(userID, conversationID)
	exists, err := r.rdb.Exists(ctx, key).Result()
	if err != nil || exists == 0 {
		return err
	}
	return r.rdb.HSet(ctx, key, "unread_count", 0).Err()
}

// TotalUnread 获取用户总未读数
func (r *ConversationRepository) TotalUnread(ctx context.Context, userID string) (int64, error) {
	members, err := r.rdb.ZRange(ctx, buildConversationIndexKey(userID), 0, -1).Result()
	if err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 0, nil
	}

	pipe := r.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, len(members))
	for i, m := range members {
		cmds[i] = pipe.HGet(ctx, buildConversationKey(userID, m), "unread_count")
	}
	_, _ = pipe.Exec(ctx)

	var total int64
	for _, cmd := range cmds {
		if count, err := cmd.Int64(); err == nil {
			total += count
		}
	}
	return total, nil
}

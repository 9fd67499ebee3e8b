package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// tokenUserPrefix 用户Token前缀: chatroom:user:token:{user_id}:{platform} -> accessToken
	tokenUserPrefix = "chatroom:user:token:"
	// tokenInfoPrefix Token信息前缀: chatroom:token:info:{accessToken} -> session JSON
	tokenInfoPrefix = "chatroom:token:info:"
)

// SessionInfo 存储在Redis中的会话信息
type SessionInfo struct {
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	Platform  string    `json:"platform"`
	StartedAt time.Time `json:"started_at"`
}

// TokenRepository Token 数据访问层
type TokenRepository struct {
	rdb *redis.Client
}

// NewTokenRepository 创建 Token Repository
func NewTokenRepository(rdb *redis.Client) *TokenRepository {
	return &TokenRepository{rdb: rdb}
}

func buildUserTokenKey(userID, platform string) string {
	return fmt.Sprintf("%s%s:%s", tokenUserPrefix, userID, platform)
}

func buildTokenInfoKey(accessToken string) string {
	return tokenInfoPrefix + accessToken
}

// SaveToken 保存会话，同一用户同一平台的旧 Token 被替换并失效
func (r *TokenRepository) SaveToken(ctx context.Context, info *SessionInfo, accessToken string, expiration time.Duration) error {
	userTokenKey := buildUserTokenKey(info.UserID, info.Platform)

	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal session info: %w", err)
	}

	oldToken, err := r.rdb.Get(ctx, userTokenKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	pipe := r.rdb.TxPipeline()
	if oldToken != "" && oldToken != accessToken {
		pipe.Del(ctx, buildTokenInfoKey(oldToken))
	}
	pipe.Set(ctx, userTokenKey, accessToken, expiration)
	pipe.Set(ctx, buildTokenInfoKey(accessToken), data, expiration)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// GetSession 根据Token获取会话，不存在返回 nil
func (r *TokenRepository) GetSession(ctx context.Context, accessToken string) (*SessionInfo, error) {
	data, err := r.rdb.Get(ctx, buildTokenInfoKey(accessToken)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var info SessionInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session info: %w", err)
	}
	return &info, nil
}

// DeleteToken 删除Token（登出时使用）
// 只有当用户平台索引仍指向该 Token 时才一并删除索引
func (r *TokenRepository) DeleteToken(ctx context.Context, userID, platform, accessToken string) error {
	userTokenKey := buildUserTokenKey(userID, platform)

	current, err := r.rdb.Get(ctx, userTokenKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, buildTokenInfoKey(accessToken))
	if current == accessToken {
		pipe.Del(ctx, userTokenKey)
	}
	_, err = pipe.Exec(ctx)
	return err
}

package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sudooom.im.chatroom/internal/model"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository 消息数据访问
// 同一会话（或群组）内的消息时间戳严格递增：
// 插入时持有以会话 ID 为键的事务级 advisory lock，并取 max(当前时间, 最后一条 + 1µs)
type MessageRepository struct {
	db *pgxpool.Pool
	tx *TxManager
}

// NewMessageRepository 创建消息仓库
func NewMessageRepository(db *pgxpool.Pool, tx *TxManager) *MessageRepository {
	return &MessageRepository{db: db, tx: tx}
}

// lockLog 锁定一条消息日志，直到事务结束
func lockLog(ctx context.Context, db DBTX, key string) error {
	_, err := db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key)
	return err
}

// InsertDirect 追加单聊消息，回填服务端时间戳
func (r *MessageRepository) InsertDirect(ctx context.Context, msg *model.DirectMessage) error {
	return r.tx.WithinTx(ctx, func(ctx context.Context) error {
		db := conn(ctx, r.db)
		if err := lockLog(ctx, db, "dm:"+msg.ConversationID); err != nil {
			return err
		}
		query := `
			INSERT INTO direct_messages (id, conversation_id, participants, sender_id, text, image_url, audio_url, create_at)
			SELECT $1, $2, $3, $4, $5, $6, $7,
			       GREATEST(clock_timestamp(), MAX(create_at) + INTERVAL '1 microsecond')
			FROM direct_messages WHERE conversation_id = $2
			RETURNING create_at
		`
		return db.QueryRow(ctx, query,
			msg.ID,
			msg.ConversationID,
			nonNil(msg.Participants),
			msg.SenderID,
			msg.Text,
			msg.ImageURL,
			msg.AudioURL,
		).Scan(&msg.CreateAt)
	})
}

// ListDirect 获取会话历史，按时间升序
// after 非零时只返回其后的消息
func (r *MessageRepository) ListDirect(ctx context.Context, conversationID string, after time.Time, limit int) ([]*model.DirectMessage, error) {
	query := `
		SELECT id, conversation_id, participants, sender_id, text, image_url, audio_url, create_at
		FROM direct_messages
		WHERE conversation_id = $1 AND create_at > $2
		ORDER BY create_at ASC
		LIMIT $3
	`
	rows, err := conn(ctx, r.db).Query(ctx, query, conversationID, after, limitOrAll(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]*model.DirectMessage, 0)
	for rows.Next() {
		msg := &model.DirectMessage{}
		if err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.Participants,
			&msg.SenderID,
			&msg.Text,
			&msg.ImageURL,
			&msg.AudioURL,
			&msg.CreateAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// InsertGroup 追加群消息，回填服务端时间戳
func (r *MessageRepository) InsertGroup(ctx context.Context, msg *model.GroupMessage) error {
	return r.tx.WithinTx(ctx, func(ctx context.Context) error {
		db := conn(ctx, r.db)
		if err := lockLog(ctx, db, "group:"+msg.GroupID); err != nil {
			return err
		}
		query := `
			INSERT INTO group_messages (id, group_id, sender_id, text, create_at)
			SELECT $1, $2, $3, $4,
			       GREATEST(clock_timestamp(), MAX(create_at) + INTERVAL '1 microsecond')
			FROM group_messages WHERE group_id = $2
			RETURNING create_at
		`
		return db.QueryRow(ctx, query, msg.ID, msg.GroupID, msg.SenderID, msg.Text).Scan(&msg.CreateAt)
	})
}

// GetGroupMessage 获取单条群消息
func (r *MessageRepository) GetGroupMessage(ctx context.Context, groupID, id string) (*model.GroupMessage, error) {
	query := `
		SELECT id, group_id, sender_id, text, create_at
		FROM group_messages WHERE group_id = $1 AND id = $2
	`
	msg := &model.GroupMessage{}
	err := conn(ctx, r.db).QueryRow(ctx, query, groupID, id).Scan(
		&msg.ID,
		&msg.GroupID,
		&msg.SenderID,
		&msg.Text,
		&msg.CreateAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return msg, nil
}

// ListGroup 获取群消息历史，按时间升序
func (r *MessageRepository) ListGroup(ctx context.Context, groupID string, after time.Time, limit int) ([]*model.GroupMessage, error) {
	query := `
		SELECT id, group_id, sender_id, text, create_at
		FROM group_messages
		WHERE group_id = $1 AND create_at > $2
		ORDER BY create_at ASC
		LIMIT $3
	`
	rows, err := conn(ctx, r.db).Query(ctx, query, groupID, after, limitOrAll(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]*model.GroupMessage, 0)
	for rows.Next() {
		msg := &model.GroupMessage{}
		if err := rows.Scan(&msg.ID, &msg.GroupID, &msg.SenderID, &msg.Text, &msg.CreateAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// DeleteGroupMessage 删除单条群消息
func (r *MessageRepository) DeleteGroupMessage(ctx context.Context, groupID, id string) error {
	result, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM group_messages WHERE group_id = $1 AND id = $2`, groupID, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// limitOrAll 非正数表示不限制
func limitOrAll(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}

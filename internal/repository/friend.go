package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sudooom.im.chatroom/internal/model"
)

var (
	ErrFriendRequestNotFound = errors.New("friend request not found")
	ErrRequestPending        = errors.New("friend request pending")
)

const friendRequestColumns = `id, from_user_id, from_username, to_user_id, status, create_at`

// FriendRepository 好友请求数据访问
type FriendRepository struct {
	db *pgxpool.Pool
}

// NewFriendRepository 创建好友仓库
func NewFriendRepository(db *pgxpool.Pool) *FriendRepository {
	return &FriendRepository{db: db}
}

func scanFriendRequest(row pgx.Row) (*model.FriendRequest, error) {
	req := &model.FriendRequest{}
	err := row.Scan(
		&req.ID,
		&req.FromUserID,
		&req.FromUsername,
		&req.ToUserID,
		&req.Status,
		&req.CreateAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFriendRequestNotFound
		}
		return nil, err
	}
	return req, nil
}

// CreateRequest 创建好友请求
// (from, to) 唯一索引冲突返回 ErrRequestPending
func (r *FriendRepository) CreateRequest(ctx context.Context, request *model.FriendRequest) error {
	query := `
		INSERT INTO friend_requests (id, from_user_id, from_username, to_user_id, status, create_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING create_at
	`
	err := conn(ctx, r.db).QueryRow(ctx, query,
		request.ID,
		request.FromUserID,
		request.FromUsername,
		request.ToUserID,
		request.Status,
	).Scan(&request.CreateAt)
	if isUniqueViolation(err, "uk_friend_requests_pair") {
		return ErrRequestPending
	}
	return err
}

// GetRequestByID 通过 ID 获取好友请求
func (r *FriendRepository) GetRequestByID(ctx context.Context, id string) (*model.FriendRequest, error) {
	query := `SELECT ` + friendRequestColumns + ` FROM friend_requests WHERE id = $1`
	return scanFriendRequest(conn(ctx, r.db).QueryRow(ctx, query, id))
}

// LockRequest 在事务中锁定好友请求，防止并发的接受与拒绝
func (r *FriendRepository) LockRequest(ctx context.Context, id string) (*model.FriendRequest, error) {
	query := `SELECT ` + friendRequestColumns + ` FROM friend_requests WHERE id = $1 FOR UPDATE`
	return scanFriendRequest(conn(ctx, r.db).QueryRow(ctx, query, id))
}

// HasPendingBetween 两人之间任一方向是否存在待处理请求
func (r *FriendRepository) HasPendingBetween(ctx context.Context, userA, userB string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM friend_requests
			WHERE (from_user_id = $1 AND to_user_id = $2)
			   OR (from_user_id = $2 AND to_user_id = $1)
		)
	`
	var exists bool
	err := conn(ctx, r.db).QueryRow(ctx, query, userA, userB).Scan(&exists)
	return exists, err
}

// DeleteRequest 删除好友请求
func (r *FriendRepository) DeleteRequest(ctx context.Context, id string) error {
	result, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM friend_requests WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrFriendRequestNotFound
	}
	return nil
}

// ListIncoming 获取用户收到的待处理请求，按时间升序
func (r *FriendRepository) ListIncoming(ctx context.Context, toUserID string) ([]*model.FriendRequest, error) {
	query := `
		SELECT ` + friendRequestColumns + `
		FROM friend_requests
		WHERE to_user_id = $1 AND status = $2
		ORDER BY create_at ASC, id ASC
	`
	rows, err := conn(ctx, r.db).Query(ctx, query, toUserID, model.FriendRequestPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := make([]*model.FriendRequest, 0)
	for rows.Next() {
		req, err := scanFriendRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

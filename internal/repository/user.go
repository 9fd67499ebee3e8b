package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sudooom.im.chatroom/internal/model"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrUsernameExists = errors.New("username already exists")
	ErrEmailExists    = errors.New("email already exists")
)

const userColumns = `id, username, display_name, email, password_hash, avatar_url, friends, groups, background_url, create_at, update_at`

// UserRepository 用户数据访问
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository 创建用户仓库
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row pgx.Row) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.DisplayName,
		&user.Email,
		&user.PasswordHash,
		&user.AvatarURL,
		&user.Friends,
		&user.Groups,
		&user.BackgroundURL,
		&user.CreateAt,
		&user.UpdateAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// Create 创建用户
// 用户名或邮箱的唯一索引冲突分别返回 ErrUsernameExists / ErrEmailExists
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (id, username, display_name, email, password_hash, avatar_url, friends, groups, background_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING create_at, update_at
	`
	err := conn(ctx, r.db).QueryRow(ctx, query,
		user.ID,
		user.Username,
		user.DisplayName,
		user.Email,
		user.PasswordHash,
		user.AvatarURL,
		nonNil(user.Friends),
		nonNil(user.Groups),
		user.BackgroundURL,
	).Scan(&user.CreateAt, &user.UpdateAt)
	switch {
	case isUniqueViolation(err, "uk_users_username"):
		return ErrUsernameExists
	case isUniqueViolation(err, "uk_users_email"):
		return ErrEmailExists
	}
	return err
}

// GetByID 通过 ID 获取用户
func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(conn(ctx, r.db).QueryRow(ctx, query, id))
}

// GetByUsername 通过用户名获取用户
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(conn(ctx, r.db).QueryRow(ctx, query, username))
}

// GetByEmail 通过邮箱获取用户，不区分大小写
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return scanUser(conn(ctx, r.db).QueryRow(ctx, query, email))
}

// GetByIDs 批量获取用户，按传入顺序返回，不存在的 ID 被跳过
func (r *UserRepository) GetByIDs(ctx context.Context, ids []string) ([]*model.User, error) {
	if len(ids) == 0 {
		return []*model.User{}, nil
	}
	query := `
		SELECT ` + userColumns + `
		FROM users WHERE id = ANY($1)
		ORDER BY array_position($1, id)
	`
	rows, err := conn(ctx, r.db).Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]*model.User, 0, len(ids))
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// LockByIDs 在事务中按 ID 顺序锁定用户行，返回未找到的第一个 ID
// 固定的加锁顺序避免两个事务交叉加锁造成死锁
func (r *UserRepository) LockByIDs(ctx context.Context, ids []string) (string, error) {
	query := `SELECT id FROM users WHERE id = ANY($1) ORDER BY id FOR UPDATE`
	rows, err := conn(ctx, r.db).Query(ctx, query, ids)
	if err != nil {
		return "", err
	}
	found := make(map[string]struct{}, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return "", err
		}
		found[id] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return "", err
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return id, ErrUserNotFound
		}
	}
	return "", nil
}

// UpdateProfile 更新用户名与头像，空值表示不修改
func (r *UserRepository) UpdateProfile(ctx context.Context, id, username, avatarURL string) (*model.User, error) {
	query := `
		UPDATE users
		SET username = COALESCE(NULLIF($2, ''), username),
		    avatar_url = COALESCE(NULLIF($3, ''), avatar_url),
		    update_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns
	user, err := scanUser(conn(ctx, r.db).QueryRow(ctx, query, id, username, avatarURL))
	if isUniqueViolation(err, "uk_users_username") {
		return nil, ErrUsernameExists
	}
	return user, err
}

// UpdateBackground 更新聊天背景
func (r *UserRepository) UpdateBackground(ctx context.Context, id, backgroundURL string) (*model.User, error) {
	query := `
		UPDATE users SET background_url = $2, update_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns
	return scanUser(conn(ctx, r.db).QueryRow(ctx, query, id, backgroundURL))
}

// AddFriend 追加好友（集合语义）
func (r *UserRepository) AddFriend(ctx context.Context, userID, friendID string) error {
	return r.appendToArray(ctx, "friends", userID, friendID)
}

// RemoveFriend 移除好友
func (r *UserRepository) RemoveFriend(ctx context.Context, userID, friendID string) error {
	return r.removeFromArray(ctx, "friends", userID, friendID)
}

// AddGroup 记录用户加入的群组（集合语义）
func (r *UserRepository) AddGroup(ctx context.Context, userID, groupID string) error {
	return r.appendToArray(ctx, "groups", userID, groupID)
}

// RemoveGroup 移除用户的群组记录
func (r *UserRepository) RemoveGroup(ctx context.Context, userID, groupID string) error {
	return r.removeFromArray(ctx, "groups", userID, groupID)
}

// appendToArray column 只接受内部常量
func (r *UserRepository) appendToArray(ctx context.Context, column, userID, value string) error {
	query := `
		UPDATE users
		SET ` + column + ` = CASE WHEN $2 = ANY(` + column + `) THEN ` + column + ` ELSE array_append(` + column + `, $2) END,
		    update_at = NOW()
		WHERE id = $1
	`
	result, err := conn(ctx, r.db).Exec(ctx, query, userID, value)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) removeFromArray(ctx context.Context, column, userID, value string) error {
	query := `UPDATE users SET ` + column + ` = array_remove(` + column + `, $2), update_at = NOW() WHERE id = $1`
	result, err := conn(ctx, r.db).Exec(ctx, query, userID, value)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

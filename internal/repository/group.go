package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sudooom.im.chatroom/internal/model"
)

var ErrGroupNotFound = errors.New("group not found")

const groupColumns = `id, name, created_by, members, photo_url, roles, member_roles, create_at, update_at`

// GroupRepository 群组数据访问
// roles 与 member_roles 以 jsonb 存储，成员列表以 text[] 存储
type GroupRepository struct {
	db *pgxpool.Pool
}

// NewGroupRepository 创建群组仓库
func NewGroupRepository(db *pgxpool.Pool) *GroupRepository {
	return &GroupRepository{db: db}
}

func scanGroup(row pgx.Row) (*model.Group, error) {
	group := &model.Group{}
	err := row.Scan(
		&group.ID,
		&group.Name,
		&group.CreatedBy,
		&group.Members,
		&group.PhotoURL,
		&group.Roles,
		&group.MemberRoles,
		&group.CreateAt,
		&group.UpdateAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}
	if group.Roles == nil {
		group.Roles = map[string]model.Role{}
	}
	if group.MemberRoles == nil {
		group.MemberRoles = map[string]string{}
	}
	return group, nil
}

// Create 创建群组
func (r *GroupRepository) Create(ctx context.Context, group *model.Group) error {
	query := `
		INSERT INTO groups (id, name, created_by, members, photo_url, roles, member_roles)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING create_at, update_at
	`
	return conn(ctx, r.db).QueryRow(ctx, query,
		group.ID,
		group.Name,
		group.CreatedBy,
		nonNil(group.Members),
		group.PhotoURL,
		rolesOrEmpty(group.Roles),
		memberRolesOrEmpty(group.MemberRoles),
	).Scan(&group.CreateAt, &group.UpdateAt)
}

// GetByID 通过 ID 获取群组
func (r *GroupRepository) GetByID(ctx context.Context, id string) (*model.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE id = $1`
	return scanGroup(conn(ctx, r.db).QueryRow(ctx, query, id))
}

// LockByID 在事务中锁定群组行，读改写期间其他修改需等待
func (r *GroupRepository) LockByID(ctx context.Context, id string) (*model.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE id = $1 FOR UPDATE`
	return scanGroup(conn(ctx, r.db).QueryRow(ctx, query, id))
}

// ListByMember 获取用户所在的群组（数组包含查询）
func (r *GroupRepository) ListByMember(ctx context.Context, userID string) ([]*model.Group, error) {
	query := `
		SELECT ` + groupColumns + `
		FROM groups WHERE members @> ARRAY[$1::text]
		ORDER BY create_at ASC, id ASC
	`
	rows, err := conn(ctx, r.db).Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := make([]*model.Group, 0)
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

// Save 写回群组的可变字段：名称、成员、头像、角色与角色分配
// 成员与角色分配在同一行内一次更新，级联清理不会出现中间状态
func (r *GroupRepository) Save(ctx context.Context, group *model.Group) error {
	query := `
		UPDATE groups
		SET name = $2, members = $3, photo_url = $4, roles = $5, member_roles = $6, update_at = NOW()
		WHERE id = $1
		RETURNING update_at
	`
	err := conn(ctx, r.db).QueryRow(ctx, query,
		group.ID,
		group.Name,
		nonNil(group.Members),
		group.PhotoURL,
		rolesOrEmpty(group.Roles),
		memberRolesOrEmpty(group.MemberRoles),
	).Scan(&group.UpdateAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrGroupNotFound
	}
	return err
}

func rolesOrEmpty(m map[string]model.Role) map[string]model.Role {
	if m == nil {
		return map[string]model.Role{}
	}
	return m
}

func memberRolesOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

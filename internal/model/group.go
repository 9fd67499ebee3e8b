package model

import (
	"slices"
	"time"
)

// AdminRoleName 拥有群管理权限的角色名
const AdminRoleName = "admin"

// Permissions 角色权限
type Permissions struct {
	CanDeleteMessages bool `json:"canDeleteMessages"`
	CanChangePhoto    bool `json:"canChangePhoto"`
}

// Role 群内角色
type Role struct {
	Permissions Permissions `json:"permissions"`
}

// Group 群组
// 不变式：
//   - 创建者始终是成员
//   - MemberRoles 的 key 都是成员
//   - MemberRoles 的 value 都存在于 Roles
type Group struct {
	ID          string            `json:"id" db:"id"`
	Name        string            `json:"name" db:"name"`
	CreatedBy   string            `json:"createdBy" db:"created_by"`
	Members     []string          `json:"members" db:"members"`
	PhotoURL    string            `json:"photoUrl" db:"photo_url"`
	Roles       map[string]Role   `json:"roles" db:"roles"`
	MemberRoles map[string]string `json:"memberRoles" db:"member_roles"`
	CreateAt    time.Time         `json:"createAt" db:"create_at"`
	UpdateAt    time.Time         `json:"updateAt" db:"update_at"`
}

// NewGroup 创建群组，成员为 [creator, ...memberIDs] 去重
func NewGroup(id, name, creator string, memberIDs []string) *Group {
	g := &Group{
		ID:          id,
		Name:        name,
		CreatedBy:   creator,
		Members:     []string{creator},
		Roles:       map[string]Role{},
		MemberRoles: map[string]string{},
	}
	for _, m := range memberIDs {
		g.AddMember(m)
	}
	return g
}

// IsMember 判断是否为成员
func (g *Group) IsMember(userID string) bool {
	return slices.Contains(g.Members, userID)
}

// IsCreator 判断是否为创建者
func (g *Group) IsCreator(userID string) bool {
	return g.CreatedBy == userID
}

// AddMember 添加成员
func (g *Group) AddMember(userID string) bool {
	var added bool
	g.Members, added = appendUnique(g.Members, userID)
	return added
}

// RemoveMember 移除成员并清除其角色分配
func (g *Group) RemoveMember(userID string) bool {
	var removed bool
	g.Members, removed = removeValue(g.Members, userID)
	delete(g.MemberRoles, userID)
	return removed
}

// SetRole 新增或覆盖角色，角色名不做校验
func (g *Group) SetRole(name string, perms Permissions) {
	if g.Roles == nil {
		g.Roles = map[string]Role{}
	}
	g.Roles[name] = Role{Permissions: perms}
}

// DeleteRole 删除角色，并级联清除所有指向该角色的成员分配
// 返回被清除分配的成员
func (g *Group) DeleteRole(name string) []string {
	delete(g.Roles, name)
	var purged []string
	for member, role := range g.MemberRoles {
		if role == name {
			delete(g.MemberRoles, member)
			purged = append(purged, member)
		}
	}
	slices.Sort(purged)
	return purged
}

// AssignRole 为成员分配角色
// 角色必须存在，用户必须是成员
func (g *Group) AssignRole(userID, roleName string) error {
	if _, ok := g.Roles[roleName]; !ok {
		return ErrRoleMissing
	}
	if !g.IsMember(userID) {
		return ErrNotMember
	}
	if g.MemberRoles == nil {
		g.MemberRoles = map[string]string{}
	}
	g.MemberRoles[userID] = roleName
	return nil
}

// UnassignRole 取消成员角色
func (g *Group) UnassignRole(userID string) bool {
	if _, ok := g.MemberRoles[userID]; !ok {
		return false
	}
	delete(g.MemberRoles, userID)
	return true
}

// RoleOf 返回成员的角色权限
func (g *Group) RoleOf(userID string) (string, Permissions, bool) {
	name, ok := g.MemberRoles[userID]
	if !ok {
		return "", Permissions{}, false
	}
	role, ok := g.Roles[name]
	if !ok {
		return name, Permissions{}, false
	}
	return name, role.Permissions, true
}

// CanDeleteMessages 创建者无条件拥有，其余成员取决于角色
func (g *Group) CanDeleteMessages(userID string) bool {
	if g.IsCreator(userID) {
		return true
	}
	_, perms, _ := g.RoleOf(userID)
	return perms.CanDeleteMessages
}

// CanChangePhoto 创建者无条件拥有，其余成员取决于角色
func (g *Group) CanChangePhoto(userID string) bool {
	if g.IsCreator(userID) {
		return true
	}
	_, perms, _ := g.RoleOf(userID)
	return perms.CanChangePhoto
}

// CanManage 角色与成员管理：创建者或持有 admin 角色的成员
func (g *Group) CanManage(userID string) bool {
	if g.IsCreator(userID) {
		return true
	}
	if !g.IsMember(userID) {
		return false
	}
	return g.MemberRoles[userID] == AdminRoleName
}

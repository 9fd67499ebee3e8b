package service

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"sudooom.im.chatroom/internal/model"
	"sudooom.im.chatroom/internal/nats"
	"sudooom.im.chatroom/internal/storage"
	appErrors "sudooom.im.chatroom/pkg/errors"
)

// CreateGroupRequest 创建群组请求
type CreateGroupRequest struct {
	Name      string   `json:"name" binding:"required"`
	MemberIDs []string `json:"memberIds" binding:"required,min=1"`
}

// RemoveMemberResult 移除成员结果
// LeftGroup 为 true 表示操作者移除了自己，客户端应离开该群页面
type RemoveMemberResult struct {
	Group     *model.Group `json:"group"`
	LeftGroup bool         `json:"leftGroup"`
}

// GroupService 群组服务
// 所有修改在事务中锁定群组行，校验权限后整体写回，提交后发布变更
type GroupService struct {
	groups   GroupStore
	users    UserStore
	tx       Transactor
	ids      IDGenerator
	feed     nats.Feed
	notifier changeNotifier
	uploader uploader
	opts     Options
	logger   *slog.Logger
}

// NewGroupService 创建群组服务
func NewGroupService(groups GroupStore, users UserStore, tx Transactor, ids IDGenerator, blobs storage.BlobStore, publisher nats.Publisher, feed nats.Feed, maxUpload int64, opts Options) *GroupService {
	logger := slog.Default().With("service", "group")
	return &GroupService{
		groups:   groups,
		users:    users,
		tx:       tx,
		ids:      ids,
		feed:     feed,
		notifier: newChangeNotifier(publisher, logger),
		uploader: uploader{blobs: blobs, maxSize: maxUpload},
		opts:     opts,
		logger:   logger,
	}
}

// CreateGroup 创建群组
// 群组写入与每个成员的 groups 追加在同一事务内，任一成员不存在则整体失败
func (s *GroupService) CreateGroup(ctx context.Context, creatorID string, req *CreateGroupRequest) (*model.Group, error) {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	name := strings.TrimSpace(req.Name)
	if name == "" || len(req.MemberIDs) == 0 {
		return nil, appErrors.ErrInvalidGroup
	}

	group := model.NewGroup(s.ids.NextID(), name, creatorID, req.MemberIDs)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if missing, err := s.users.LockByIDs(ctx, group.Members); err != nil {
			s.logger.Warn("Group member not found", "groupId", group.ID, "userId", missing)
			return err
		}
		if err := s.groups.Create(ctx, group); err != nil {
			return err
		}
		for _, member := range group.Members {
			if err := s.users.AddGroup(ctx, member, group.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err)
	}

	s.logger.Info("Group created", "groupId", group.ID, "creator", creatorID, "members", len(group.Members))
	for _, member := range group.Members {
		s.notifier.emit(ctx, model.ChangeAdded, group.ID, group, nats.SubjectUserGroups(member))
	}
	s.notifier.emitUsers(ctx, s.users, s.opts, group.Members...)
	return group, nil
}

// GetGroup 获取群组，只有成员可以查看
func (s *GroupService) GetGroup(ctx context.Context, viewerID, groupID string) (*model.Group, error) {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if !group.IsMember(viewerID) {
		return nil, appErrors.ErrPermissionDenied
	}
	return group, nil
}

// ListGroups 获取用户所在群组
func (s *GroupService) ListGroups(ctx context.Context, userID string) ([]*model.Group, error) {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	groups, err := s.groups.ListByMember(ctx, userID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return groups, nil
}

// CreateRole 新增或覆盖角色
func (s *GroupService) CreateRole(ctx context.Context, actorID, groupID, roleName string, perms model.Permissions) (*model.Group, error) {
	return s.mutate(ctx, groupID, func(ctx context.Context, g *model.Group) error {
		if !g.CanManage(actorID) {
			return appErrors.ErrPermissionDenied
		}
		g.SetRole(roleName, perms)
		return nil
	})
}

// DeleteRole 删除角色并级联清除分配
// 角色不存在时视为成功
func (s *GroupService) DeleteRole(ctx context.Context, actorID, groupID, roleName string) (*model.Group, error) {
	return s.mutate(ctx, groupID, func(ctx context.Context, g *model.Group) error {
		if !g.CanManage(actorID) {
			return appErrors.ErrPermissionDenied
		}
		purged := g.DeleteRole(roleName)
		if len(purged) > 0 {
			s.logger.Info("Role assignments purged", "groupId", g.ID, "role", roleName, "members", purged)
		}
		return nil
	})
}

// AssignRole 为成员分配已存在的角色
func (s *GroupService) AssignRole(ctx context.Context, actorID, groupID, userID, roleName string) (*model.Group, error) {
	return s.mutate(ctx, groupID, func(ctx context.Context, g *model.Group) error {
		if !g.CanManage(actorID) {
			return appErrors.ErrPermissionDenied
		}
		return g.AssignRole(userID, roleName)
	})
}

// UnassignRole 取消成员角色
func (s *GroupService) UnassignRole(ctx context.Context, actorID, groupID, userID string) (*model.Group, error) {
	return s.mutate(ctx, groupID, func(ctx context.Context, g *model.Group) error {
		if !g.CanManage(actorID) {
			return appErrors.ErrPermissionDenied
		}
		g.UnassignRole(userID)
		return nil
	})
}

// AddMember 添加成员，同一事务内更新用户的 groups
func (s *GroupService) AddMember(ctx context.Context, actorID, groupID, userID string) (*model.Group, error) {
	var added bool
	group, err := s.mutateQuiet(ctx, groupID, func(ctx context.Context, g *model.Group) error {
		if !g.CanManage(actorID) {
			return appErrors.ErrPermissionDenied
		}
		if _, err := s.users.LockByIDs(ctx, []string{userID}); err != nil {
			return err
		}
		added = g.AddMember(userID)
		return s.users.AddGroup(ctx, userID, g.ID)
	})
	if err != nil {
		return nil, err
	}

	var except []string
	if added {
		except = append(except, userID)
	}
	s.publishGroup(ctx, group, except...)
	if added {
		s.logger.Info("Group member added", "groupId", groupID, "userId", userID, "actor", actorID)
		s.notifier.emit(ctx, model.ChangeAdded, group.ID, group, nats.SubjectUserGroups(userID))
		s.notifier.emitUsers(ctx, s.users, s.opts, userID)
	}
	return group, nil
}

// RemoveMember 移除成员
// 成员本人可以退出，移除他人需要管理权限，群主不能被移除
func (s *GroupService) RemoveMember(ctx context.Context, actorID, groupID, userID string) (*RemoveMemberResult, error) {
	group, err := s.mutate(ctx, groupID, func(ctx context.Context, g *model.Group) error {
		if actorID != userID && !g.CanManage(actorID) {
			return appErrors.ErrPermissionDenied
		}
		if g.IsCreator(userID) {
			return appErrors.ErrCannotRemoveCreator
		}
		if !g.RemoveMember(userID) {
			return appErrors.ErrNotGroupMember
		}
		return s.users.RemoveGroup(ctx, userID, g.ID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Group member removed", "groupId", groupID, "userId", userID, "actor", actorID)
	s.notifier.emit(ctx, model.ChangeRemoved, group.ID, nil, nats.SubjectUserGroups(userID))
	// 群消息订阅以被移出的用户 ID 识别 evicted
	s.notifier.emit(ctx, model.ChangeEvicted, userID, nil, nats.SubjectGroupMessages(group.ID))
	s.notifier.emitUsers(ctx, s.users, s.opts, userID)
	return &RemoveMemberResult{Group: group, LeftGroup: actorID == userID}, nil
}

// ChangePhoto 修改群头像，先上传再保存 URL
func (s *GroupService) ChangePhoto(ctx context.Context, actorID, groupID string, file Upload) (*model.Group, error) {
	group, err := s.GetGroup(ctx, actorID, groupID)
	if err != nil {
		return nil, err
	}
	if !group.CanChangePhoto(actorID) {
		return nil, appErrors.ErrPermissionDenied
	}

	uploadCtx, cancel := s.opts.withTimeout(ctx)
	url, err := s.uploader.upload(uploadCtx, storage.GroupPhotoKey(groupID, file.Filename), file, "image/")
	cancel()
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, groupID, func(ctx context.Context, g *model.Group) error {
		// 上传期间权限可能已被收回
		if !g.CanChangePhoto(actorID) {
			return appErrors.ErrPermissionDenied
		}
		g.PhotoURL = url
		return nil
	})
}

// CanDeleteMessage 判断用户是否可以删除群消息
func (s *GroupService) CanDeleteMessage(ctx context.Context, userID, groupID string) (bool, error) {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return false, mapStoreError(err)
	}
	return group.CanDeleteMessages(userID), nil
}

// SubscribeGroup 订阅群组文档
// 订阅者不再是成员时推送 evicted 并结束订阅
func (s *GroupService) SubscribeGroup(ctx context.Context, viewerID, groupID string) (*Stream[model.Group], error) {
	if !nats.ValidToken(groupID) {
		return nil, appErrors.ErrInvalidParams
	}
	return openStream(ctx, s.feed, s.opts, s.logger, streamSource[model.Group]{
		kind:    "group",
		subject: nats.SubjectGroup(groupID),
		snapshot: func(ctx context.Context) ([]*model.Group, error) {
			group, err := s.groups.GetByID(ctx, groupID)
			if err != nil {
				return nil, err
			}
			if !group.IsMember(viewerID) {
				return nil, appErrors.ErrPermissionDenied
			}
			return []*model.Group{group}, nil
		},
		idOf:    func(g *model.Group) string { return g.ID },
		visible: func(g *model.Group) bool { return g.IsMember(viewerID) },
	})
}

// SubscribeGroups 订阅用户的群组列表
func (s *GroupService) SubscribeGroups(ctx context.Context, userID string) (*Stream[model.Group], error) {
	return openStream(ctx, s.feed, s.opts, s.logger, streamSource[model.Group]{
		kind:    "groups",
		subject: nats.SubjectUserGroups(userID),
		snapshot: func(ctx context.Context) ([]*model.Group, error) {
			return s.groups.ListByMember(ctx, userID)
		},
		idOf: func(g *model.Group) string { return g.ID },
	})
}

// mutate 在事务中锁定群组并执行修改，提交后向群组与成员发布 modified
func (s *GroupService) mutate(ctx context.Context, groupID string, fn func(ctx context.Context, g *model.Group) error) (*model.Group, error) {
	group, err := s.mutateQuiet(ctx, groupID, fn)
	if err != nil {
		return nil, err
	}
	s.publishGroup(ctx, group)
	return group, nil
}

// mutateQuiet 同 mutate，但由调用方决定如何发布
func (s *GroupService) mutateQuiet(ctx context.Context, groupID string, fn func(ctx context.Context, g *model.Group) error) (*model.Group, error) {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	var group *model.Group
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		g, err := s.groups.LockByID(ctx, groupID)
		if err != nil {
			return err
		}
		if err := fn(ctx, g); err != nil {
			return err
		}
		if err := s.groups.Save(ctx, g); err != nil {
			return err
		}
		group = g
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	return group, nil
}

// publishGroup 发布群组文档变更，except 中的成员不会收到列表事件
func (s *GroupService) publishGroup(ctx context.Context, group *model.Group, except ...string) {
	subjects := []string{nats.SubjectGroup(group.ID)}
	for _, member := range group.Members {
		if slices.Contains(except, member) {
			continue
		}
		subjects = append(subjects, nats.SubjectUserGroups(member))
	}
	s.notifier.emit(ctx, model.ChangeModified, group.ID, group, subjects...)
}

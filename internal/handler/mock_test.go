package handler

import (
	"context"

	"sudooom.im.chatroom/internal/model"
	"sudooom.im.chatroom/internal/service"
)

// MockAuthService 模拟 AuthService
type MockAuthService struct {
	RegisterFunc     func(ctx context.Context, req *service.RegisterRequest) (*service.RegisterResponse, error)
	LoginFunc        func(ctx context.Context, req *service.LoginRequest) (*service.LoginResponse, error)
	RefreshTokenFunc func(ctx context.Context, refreshToken string) (*service.LoginResponse, error)
	LogoutFunc       func(ctx context.Context, session *service.Session) error
}

func (m *MockAuthService) Register(ctx context.Context, req *service.RegisterRequest) (*service.RegisterResponse, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, req)
	}
	return nil, nil
}

func (m *MockAuthService) Login(ctx context.Context, req *service.LoginRequest) (*service.LoginResponse, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, req)
	}
	return nil, nil
}

func (m *MockAuthService) RefreshToken(ctx context.Context, refreshToken string) (*service.LoginResponse, error) {
	if m.RefreshTokenFunc != nil {
		return m.RefreshTokenFunc(ctx, refreshToken)
	}
	return nil, nil
}

func (m *MockAuthService) Logout(ctx context.Context, session *service.Session) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, session)
	}
	return nil
}

// MockDirectoryService 模拟 DirectoryService
type MockDirectoryService struct {
	GetUserFunc          func(ctx context.Context, userID string) (*model.User, error)
	FindByUsernameFunc   func(ctx context.Context, username string) (*model.Profile, error)
	ListFriendsFunc      func(ctx context.Context, userID string) ([]model.Profile, error)
	ListProfilesFunc     func(ctx context.Context, ids []string) ([]model.Profile, error)
	UpdateProfileFunc    func(ctx context.Context, userID string, req *service.UpdateProfileRequest) (*model.User, error)
	UpdateBackgroundFunc func(ctx context.Context, userID string, file service.Upload) (*model.User, error)
	SubscribeProfileFunc func(ctx context.Context, userID string) (*service.Stream[model.User], error)
}

func (m *MockDirectoryService) GetUser(ctx context.Context, userID string) (*model.User, error) {
	if m.GetUserFunc != nil {
		return m.GetUserFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockDirectoryService) FindByUsername(ctx context.Context, username string) (*model.Profile, error) {
	if m.FindByUsernameFunc != nil {
		return m.FindByUsernameFunc(ctx, username)
	}
	return nil, nil
}

func (m *MockDirectoryService) ListFriends(ctx context.Context, userID string) ([]model.Profile, error) {
	if m.ListFriendsFunc != nil {
		return m.ListFriendsFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockDirectoryService) ListProfiles(ctx context.Context, ids []string) ([]model.Profile, error) {
	if m.ListProfilesFunc != nil {
		return m.ListProfilesFunc(ctx, ids)
	}
	return nil, nil
}

func (m *MockDirectoryService) UpdateProfile(ctx context.Context, userID string, req *service.UpdateProfileRequest) (*model.User, error) {
	if m.UpdateProfileFunc != nil {
		return m.UpdateProfileFunc(ctx, userID, req)
	}
	return nil, nil
}

func (m *MockDirectoryService) UpdateBackground(ctx context.Context, userID string, file service.Upload) (*model.User, error) {
	if m.UpdateBackgroundFunc != nil {
		return m.UpdateBackgroundFunc(ctx, userID, file)
	}
	return nil, nil
}

func (m *MockDirectoryService) SubscribeProfile(ctx context.Context, userID string) (*service.Stream[model.User], error) {
	if m.SubscribeProfileFunc != nil {
		return m.SubscribeProfileFunc(ctx, userID)
	}
	return nil, nil
}

// MockFriendService 模拟 FriendService
type MockFriendService struct {
	SendRequestFunc   func(ctx context.Context, fromUserID, toUsername string) (*model.FriendRequest, error)
	AcceptRequestFunc func(ctx context.Context, userID, requestID string) error
	RejectRequestFunc func(ctx context.Context, userID, requestID string) error
	RemoveFriendFunc  func(ctx context.Context, userID, friendID string) error
	ListPendingFunc   func(ctx context.Context, userID string) ([]*model.FriendRequest, error)
}

func (m *MockFriendService) SendRequest(ctx context.Context, fromUserID, toUsername string) (*model.FriendRequest, error) {
	if m.SendRequestFunc != nil {
		return m.SendRequestFunc(ctx, fromUserID, toUsername)
	}
	return nil, nil
}

func (m *MockFriendService) AcceptRequest(ctx context.Context, userID, requestID string) error {
	if m.AcceptRequestFunc != nil {
		return m.AcceptRequestFunc(ctx, userID, requestID)
	}
	return nil
}

func (m *MockFriendService) RejectRequest(ctx context.Context, userID, requestID string) error {
	if m.RejectRequestFunc != nil {
		return m.RejectRequestFunc(ctx, userID, requestID)
	}
	return nil
}

func (m *MockFriendService) RemoveFriend(ctx context.Context, userID, friendID string) error {
	if m.RemoveFriendFunc != nil {
		return m.RemoveFriendFunc(ctx, userID, friendID)
	}
	return nil
}

func (m *MockFriendService) ListPending(ctx context.Context, userID string) ([]*model.FriendRequest, error) {
	if m.ListPendingFunc != nil {
		return m.ListPendingFunc(ctx, userID)
	}
	return nil, nil
}

// MockGroupService 模拟 GroupService
type MockGroupService struct {
	CreateGroupFunc  func(ctx context.Context, creatorID string, req *service.CreateGroupRequest) (*model.Group, error)
	GetGroupFunc     func(ctx context.Context, viewerID, groupID string) (*model.Group, error)
	CreateRoleFunc   func(ctx context.Context, actorID, groupID, roleName string, perms model.Permissions) (*model.Group, error)
	DeleteRoleFunc   func(ctx context.Context, actorID, groupID, roleName string) (*model.Group, error)
	AssignRoleFunc   func(ctx context.Context, actorID, groupID, userID, roleName string) (*model.Group, error)
	RemoveMemberFunc func(ctx context.Context, actorID, groupID, userID string) (*service.RemoveMemberResult, error)
	ChangePhotoFunc  func(ctx context.Context, actorID, groupID string, file service.Upload) (*model.Group, error)
}

func (m *MockGroupService) CreateGroup(ctx context.Context, creatorID string, req *service.CreateGroupRequest) (*model.Group, error) {
	if m.CreateGroupFunc != nil {
		return m.CreateGroupFunc(ctx, creatorID, req)
	}
	return nil, nil
}

func (m *MockGroupService) GetGroup(ctx context.Context, viewerID, groupID string) (*model.Group, error) {
	if m.GetGroupFunc != nil {
		return m.GetGroupFunc(ctx, viewerID, groupID)
	}
	return nil, nil
}

func (m *MockGroupService) ListGroups(context.Context, string) ([]*model.Group, error) {
	return nil, nil
}

func (m *MockGroupService) CreateRole(ctx context.Context, actorID, groupID, roleName string, perms model.Permissions) (*model.Group, error) {
	if m.CreateRoleFunc != nil {
		return m.CreateRoleFunc(ctx, actorID, groupID, roleName, perms)
	}
	return nil, nil
}

func (m *MockGroupService) DeleteRole(ctx context.Context, actorID, groupID, roleName string) (*model.Group, error) {
	if m.DeleteRoleFunc != nil {
		return m.DeleteRoleFunc(ctx, actorID, groupID, roleName)
	}
	return nil, nil
}

func (m *MockGroupService) AssignRole(ctx context.Context, actorID, groupID, userID, roleName string) (*model.Group, error) {
	if m.AssignRoleFunc != nil {
		return m.AssignRoleFunc(ctx, actorID, groupID, userID, roleName)
	}
	return nil, nil
}

func (m *MockGroupService) UnassignRole(context.Context, string, string, string) (*model.Group, error) {
	return nil, nil
}

func (m *MockGroupService) AddMember(context.Context, string, string, string) (*model.Group, error) {
	return nil, nil
}

func (m *MockGroupService) RemoveMember(ctx context.Context, actorID, groupID, userID string) (*service.RemoveMemberResult, error) {
	if m.RemoveMemberFunc != nil {
		return m.RemoveMemberFunc(ctx, actorID, groupID, userID)
	}
	return nil, nil
}

func (m *MockGroupService) ChangePhoto(ctx context.Context, actorID, groupID string, file service.Upload) (*model.Group, error) {
	if m.ChangePhotoFunc != nil {
		return m.ChangePhotoFunc(ctx, actorID, groupID, file)
	}
	return nil, nil
}

// MockMessageService 模拟 MessageService
type MockMessageService struct {
	SendDirectFunc         func(ctx context.Context, senderID, peerID string, payload model.Payload) (*model.DirectMessage, error)
	SendDirectMediaFunc    func(ctx context.Context, senderID, peerID string, kind model.PayloadKind, file service.Upload) (*model.DirectMessage, error)
	ListConversationFunc   func(ctx context.Context, viewerID, peerID string, limit int) ([]*model.DirectMessage, error)
	SendGroupFunc          func(ctx context.Context, senderID, groupID, text string) (*model.GroupMessage, error)
	DeleteGroupMessageFunc func(ctx context.Context, actorID, groupID, messageID string) error
}

func (m *MockMessageService) SendDirect(ctx context.Context, senderID, peerID string, payload model.Payload) (*model.DirectMessage, error) {
	if m.SendDirectFunc != nil {
		return m.SendDirectFunc(ctx, senderID, peerID, payload)
	}
	return nil, nil
}

func (m *MockMessageService) SendDirectMedia(ctx context.Context, senderID, peerID string, kind model.PayloadKind, file service.Upload) (*model.DirectMessage, error) {
	if m.SendDirectMediaFunc != nil {
		return m.SendDirectMediaFunc(ctx, senderID, peerID, kind, file)
	}
	return nil, nil
}

func (m *MockMessageService) ListConversation(ctx context.Context, viewerID, peerID string, limit int) ([]*model.DirectMessage, error) {
	if m.ListConversationFunc != nil {
		return m.ListConversationFunc(ctx, viewerID, peerID, limit)
	}
	return nil, nil
}

func (m *MockMessageService) SendGroup(ctx context.Context, senderID, groupID, text string) (*model.GroupMessage, error) {
	if m.SendGroupFunc != nil {
		return m.SendGroupFunc(ctx, senderID, groupID, text)
	}
	return nil, nil
}

func (m *MockMessageService) ListGroupMessages(context.Context, string, string, int) ([]*model.GroupMessage, error) {
	return nil, nil
}

func (m *MockMessageService) DeleteGroupMessage(ctx context.Context, actorID, groupID, messageID string) error {
	if m.DeleteGroupMessageFunc != nil {
		return m.DeleteGroupMessageFunc(ctx, actorID, groupID, messageID)
	}
	return nil
}

// MockConversationService 模拟 ConversationService
type MockConversationService struct {
	ListConversationsFunc func(ctx context.Context, userID string, offset, limit int64) ([]model.Conversation, error)
	MarkReadFunc          func(ctx context.Context, userID, peerID string) error
	TotalUnreadFunc       func(ctx context.Context, userID string) (int64, error)
}

func (m *MockConversationService) ListConversations(ctx context.Context, userID string, offset, limit int64) ([]model.Conversation, error) {
	if m.ListConversationsFunc != nil {
		return m.ListConversationsFunc(ctx, userID, offset, limit)
	}
	return nil, nil
}

func (m *MockConversationService) MarkRead(ctx context.Context, userID, peerID string) error {
	if m.MarkReadFunc != nil {
		return m.MarkReadFunc(ctx, userID, peerID)
	}
	return nil
}

func (m *MockConversationService) TotalUnread(ctx context.Context, userID string) (int64, error) {
	if m.TotalUnreadFunc != nil {
		return m.TotalUnreadFunc(ctx, userID)
	}
	return 0, nil
}

// MockMediaService 模拟 MediaService
type MockMediaService struct {
	UploadFunc func(ctx context.Context, file service.Upload) (*service.MediaRef, error)
}

func (m *MockMediaService) Upload(ctx context.Context, file service.Upload) (*service.MediaRef, error) {
	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, file)
	}
	return nil, nil
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sudooom.im.chatroom/internal/model"
	appErrors "sudooom.im.chatroom/pkg/errors"
	"sudooom.im.chatroom/pkg/jwt"
)

const testMaxUpload = 1 << 20

type fixture struct {
	db     *memDB
	bus    *memBus
	blobs  *memBlobs
	tokens *memTokens
	ids    *seqIDs

	users    memUsers
	friends  memFriends
	groups   memGroups
	messages memMessages

	auth          *AuthService
	directory     *DirectoryService
	friend        *FriendService
	group         *GroupService
	message       *MessageService
	notifications *NotificationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := newMemDB()
	f := &fixture{
		db:       db,
		bus:      newMemBus(),
		blobs:    newMemBlobs(),
		tokens:   newMemTokens(),
		ids:      &seqIDs{},
		users:    memUsers{db: db},
		friends:  memFriends{db: db},
		groups:   memGroups{db: db},
		messages: memMessages{db: db},
	}
	opts := Options{OperationTimeout: 2 * time.Second, StreamBuffer: 16}
	jwtService := jwt.NewService("test-secret", "chatroom-test", time.Hour, 24*time.Hour)

	f.auth = NewAuthService(f.users, f.tokens, jwtService, f.ids, opts)
	f.directory = NewDirectoryService(f.users, f.blobs, f.bus, f.bus, testMaxUpload, opts)
	f.friend = NewFriendService(f.users, f.friends, db, f.ids, f.bus, f.bus, opts)
	f.group = NewGroupService(f.groups, f.users, db, f.ids, f.blobs, f.bus, f.bus, testMaxUpload, opts)
	f.message = NewMessageService(f.messages, f.users, f.groups, f.ids, f.blobs, f.bus, f.bus, testMaxUpload, opts)
	f.notifications = NewNotificationService(f.message, f.users, opts)
	return f
}

// user 直接写入用户，跳过密码哈希
func (f *fixture) user(t *testing.T, username string) *model.User {
	t.Helper()
	u := &model.User{
		ID:          f.ids.NextID(),
		Username:    username,
		DisplayName: username,
		Email:       username + "@example.com",
		Friends:     []string{},
		Groups:      []string{},
	}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u
}

func (f *fixture) reload(t *testing.T, id string) *model.User {
	t.Helper()
	u, err := f.users.GetByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

// next 读取下一条变更
func next[T any](t *testing.T, s *Stream[T]) Change[T] {
	t.Helper()
	select {
	case c, ok := <-s.C():
		require.True(t, ok, "stream closed")
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change")
		return Change[T]{}
	}
}

// quiet 断言短时间内没有新变更
func quiet[T any](t *testing.T, s *Stream[T]) {
	t.Helper()
	select {
	case c, ok := <-s.C():
		if ok {
			t.Fatalf("unexpected change %s %s", c.Type, c.ID)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

// closed 断言订阅已结束
func closed[T any](t *testing.T, s *Stream[T]) {
	t.Helper()
	select {
	case _, ok := <-s.C():
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close")
	}
}

func requireKind(t *testing.T, err error, kind appErrors.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, appErrors.KindOf(err), "error: %v", err)
}

func requireCode(t *testing.T, err error, target *appErrors.AppError) {
	t.Helper()
	require.Error(t, err)
	require.True(t, appErrors.Is(err, target), "expected %v, got %v", target, err)
}

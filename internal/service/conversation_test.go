package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.im.chatroom/internal/model"
	appErrors "sudooom.im.chatroom/pkg/errors"
)

// memConversations 与 Redis 索引相同的语义：旧消息不覆盖新消息
type memConversations struct {
	mu    sync.Mutex
	convs map[string]map[string]*model.Conversation
	err   error
}

func newMemConversations() *memConversations {
	return &memConversations{convs: map[string]map[string]*model.Conversation{}}
}

func (m *memConversations) Touch(_ context.Context, userID string, conv *model.Conversation, unread bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	byID := m.convs[userID]
	if byID == nil {
		byID = map[string]*model.Conversation{}
		m.convs[userID] = byID
	}
	existing := byID[conv.ConversationID]
	if existing != nil && !conv.LastMessageAt.After(existing.LastMessageAt) {
		return false, nil
	}
	c := *conv
	if existing != nil {
		c.UnreadCount = existing.UnreadCount
	}
	if unread {
		c.UnreadCount++
	}
	byID[conv.ConversationID] = &c
	return true, nil
}

func (m *memConversations) List(_ context.Context, userID string, _, _ int64) ([]model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Conversation, 0)
	for _, c := range m.convs[userID] {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	return out, nil
}

func (m *memConversations) MarkRead(_ context.Context, userID, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.convs[userID][conversationID]; c != nil {
		c.UnreadCount = 0
	}
	return nil
}

func (m *memConversations) TotalUnread(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, c := range m.convs[userID] {
		total += int64(c.UnreadCount)
	}
	return total, nil
}

func TestConversationService_HandleDirectMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")

	store := newMemConversations()
	svc := NewConversationService(store, Options{})

	first, err := f.message.SendDirect(ctx, alice.ID, bob.ID, model.Payload{Text: "hi"})
	require.NoError(t, err)
	second, err := f.message.SendDirect(ctx, alice.ID, bob.ID, model.Payload{ImageURL: "https://x/cat.png"})
	require.NoError(t, err)
	other, err := f.message.SendDirect(ctx, carol.ID, bob.ID, model.Payload{Text: "yo"})
	require.NoError(t, err)

	for _, m := range []*model.DirectMessage{first, second, other} {
		require.NoError(t, svc.HandleDirectMessage(ctx, m))
	}
	// 重复投递不重复计数
	require.NoError(t, svc.HandleDirectMessage(ctx, first))

	convs, err := svc.ListConversations(ctx, bob.ID, 0, 20)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, carol.ID, convs[0].PeerID)
	assert.Equal(t, alice.ID, convs[1].PeerID)
	assert.Equal(t, second.ID, convs[1].LastMessageID)
	assert.Equal(t, "[image]", convs[1].Preview)
	assert.Equal(t, 2, convs[1].UnreadCount)

	senderView, err := svc.ListConversations(ctx, alice.ID, 0, 20)
	require.NoError(t, err)
	require.Len(t, senderView, 1)
	assert.Zero(t, senderView[0].UnreadCount)

	total, err := svc.TotalUnread(ctx, bob.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)

	require.NoError(t, svc.MarkRead(ctx, bob.ID, alice.ID))
	total, err = svc.TotalUnread(ctx, bob.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestConversationService_StoreFailure(t *testing.T) {
	store := newMemConversations()
	store.err = errors.New("redis down")
	svc := NewConversationService(store, Options{})

	msg := model.NewDirectMessage("m1", "a", "b", model.Payload{Text: "hi"})
	err := svc.HandleDirectMessage(context.Background(), msg)
	require.Error(t, err)
	assert.False(t, appErrors.Is(err, appErrors.ErrUnavailable))
}

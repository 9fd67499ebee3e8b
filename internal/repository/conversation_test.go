package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.im.chatroom/internal/model"
)

func TestConversationRepository_TouchAndList(t *testing.T) {
	client := getTestRedisClient(t)
	defer client.Close()

	repo := NewConversationRepository(client)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	first := &model.Conversation{
		ConversationID: "1001_2001",
		PeerID:         "2001",
		LastMessageID:  "m1",
		LastSenderID:   "2001",
		Preview:        "hi",
		LastMessageAt:  base,
	}
	ok, err := repo.Touch(ctx, "1001", first, true)
	require.NoError(t, err)
	assert.True(t, ok)

	second := *first
	second.LastMessageID = "m2"
	second.Preview = "[image]"
	second.LastMessageAt = base.Add(time.Second)
	ok, err = repo.Touch(ctx, "1001", &second, true)
	require.NoError(t, err)
	assert.True(t, ok)

	// 旧消息重复投递
	ok, err = repo.Touch(ctx, "1001", first, true)
	require.NoError(t, err)
	assert.False(t, ok)

	other := &model.Conversation{
		ConversationID: "1001_3001",
		PeerID:         "3001",
		LastMessageID:  "m3",
		LastSenderID:   "1001",
		Preview:        "yo",
		LastMessageAt:  base.Add(2 * time.Second),
	}
	_, err = repo.Touch(ctx, "1001", other, false)
	require.NoError(t, err)

	convs, err := repo.List(ctx, "1001", 0, 10)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, "1001_3001", convs[0].ConversationID)
	assert.Zero(t, convs[0].UnreadCount)
	assert.Equal(t, "m2", convs[1].LastMessageID)
	assert.Equal(t, "[image]", convs[1].Preview)
	assert.Equal(t, 2, convs[1].UnreadCount)
	assert.True(t, second.LastMessageAt.Equal(convs[1].LastMessageAt))

	page, err := repo.List(ctx, "1001", 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "1001_2001", page[0].ConversationID)

	total, err := repo.TotalUnread(ctx, "1001")
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	require.NoError(t, repo.MarkRead(ctx, "1001", "1001_2001"))
	require.NoError(t, repo.MarkRead(ctx, "1001", "1001_9999"))
	total, err = repo.TotalUnread(ctx, "1001")
	require.NoError(t, err)
	assert.Zero(t, total)

	exists, err := client.Exists(ctx, buildConversationKey("1001", "1001_9999")).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

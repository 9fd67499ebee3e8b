package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.im.chatroom/internal/config"
)

type fakePutter struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	err     error
	calls   int
}

func (f *fakePutter) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	data, _ := io.ReadAll(params.Body)
	if f.objects == nil {
		f.objects = map[string][]byte{}
		f.types = map[string]string{}
	}
	f.objects[aws.ToString(params.Key)] = data
	f.types[aws.ToString(params.Key)] = aws.ToString(params.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func testStorageConfig() config.StorageConfig {
	return config.StorageConfig{
		Region:          "us-east-1",
		Bucket:          "media",
		PublicURL:       "https://cdn.example.com/media/",
		BreakerFailures: 2,
		BreakerTimeout:  time.Minute,
	}
}

func TestS3Store_UploadAndURL(t *testing.T) {
	putter := &fakePutter{}
	store := newS3Store(putter, testStorageConfig())

	ref, err := store.Upload(context.Background(), "profilePics/u1", []byte("png"), "image/png")
	require.NoError(t, err)

	assert.Equal(t, "profilePics/u1", ref)
	assert.Equal(t, []byte("png"), putter.objects[ref])
	assert.Equal(t, "image/png", putter.types[ref])
	assert.Equal(t, "https://cdn.example.com/media/profilePics/u1", store.URL(ref))
}

func TestS3Store_DefaultPublicURL(t *testing.T) {
	cfg := testStorageConfig()
	cfg.PublicURL = ""
	store := newS3Store(&fakePutter{}, cfg)

	assert.Equal(t, "https://media.s3.us-east-1.amazonaws.com/a/b", store.URL("a/b"))
}

func TestS3Store_CircuitOpensAfterFailures(t *testing.T) {
	putter := &fakePutter{err: errors.New("connection refused")}
	store := newS3Store(putter, testStorageConfig())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := store.Upload(ctx, "uploads/x", []byte("x"), "")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}

	_, err := store.Upload(ctx, "uploads/x", []byte("x"), "")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, putter.calls)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "profilePics/u1", ProfilePicKey("u1"))

	now := time.UnixMilli(1700000000123)
	assert.Equal(t, "chat-backgrounds/1700000000123_my_photo.png", BackgroundKey(now, "../../my photo.png"))

	media := MediaKey("u1_u2", "clip.WEBM")
	assert.True(t, strings.HasPrefix(media, "chat-media/u1_u2/"))
	assert.True(t, strings.HasSuffix(media, ".webm"))
	assert.NotEqual(t, media, MediaKey("u1_u2", "clip.WEBM"))

	assert.True(t, strings.HasPrefix(GroupPhotoKey("g1", "a.jpg"), "group-photos/g1/"))
	assert.Equal(t, "chat-media", folderOf(media))
	assert.Equal(t, "file", sanitizeName(".."))
}

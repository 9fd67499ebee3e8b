package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.im.chatroom/internal/config"
	"sudooom.im.chatroom/internal/handler"
	"sudooom.im.chatroom/internal/middleware"
	"sudooom.im.chatroom/internal/service"
	appErrors "sudooom.im.chatroom/pkg/errors"
	"sudooom.im.chatroom/pkg/response"
)

type denyAll struct{}

func (denyAll) Authenticate(context.Context, string) (*service.Session, error) {
	return nil, appErrors.ErrTokenInvalid
}

func testRouter(limiter *middleware.IPRateLimiter) *gin.Engine {
	cfg := &config.Config{
		App: config.AppConfig{Mode: gin.TestMode},
		CORS: config.CORSConfig{
			AllowedOrigins: []string{"http://localhost:5173"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		},
	}
	h := Handlers{
		Auth:         handler.NewAuthHandler(nil),
		User:         handler.NewUserHandler(nil, 1<<20),
		Friend:       handler.NewFriendHandler(nil, nil),
		Group:        handler.NewGroupHandler(nil, 1<<20),
		Chat:         handler.NewChatHandler(nil, 1<<20),
		Conversation: handler.NewConversationHandler(nil),
		Media:        handler.NewMediaHandler(nil, 1<<20),
		Stream:       handler.NewStreamHandler(nil, nil, nil, nil, nil, handler.StreamOptions{}),
	}
	return SetupRouter(cfg, denyAll{}, limiter, h)
}

func TestSetupRouter_AuthBoundaries(t *testing.T) {
	r := testRouter(nil)

	protected := []struct{ method, path string }{
		{http.MethodGet, "/api/v1/user/profile"},
		{http.MethodGet, "/api/v1/user/1002"},
		{http.MethodGet, "/api/v1/friends"},
		{http.MethodPost, "/api/v1/groups"},
		{http.MethodDelete, "/api/v1/groups/g-1/members/1002/role"},
		{http.MethodPost, "/api/v1/chats/messages"},
		{http.MethodGet, "/api/v1/conversations/unread"},
		{http.MethodPost, "/api/v1/media"},
		{http.MethodGet, "/api/v1/stream/groups/g-1/messages?token=bad"},
	}
	for _, tt := range protected {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestSetupRouter_PublicAuthRoutes(t *testing.T) {
	r := testRouter(nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, appErrors.CodeInvalidParams, resp.Code)
}

func TestSetupRouter_Preflight(t *testing.T) {
	r := testRouter(nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/groups", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSetupRouter_RateLimit(t *testing.T) {
	limiter := middleware.NewIPRateLimiter(60, 1)
	defer limiter.Stop()
	r := testRouter(limiter)

	codes := make([]int, 0, 2)
	for range 2 {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/friends", nil)
		req.RemoteAddr = "10.1.1.1:5555"
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusUnauthorized, http.StatusTooManyRequests}, codes)
}

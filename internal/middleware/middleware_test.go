package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.im.chatroom/internal/service"
	appErrors "sudooom.im.chatroom/pkg/errors"
	"sudooom.im.chatroom/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAuth struct {
	sessions map[string]*service.Session
	err      error
}

func (f *fakeAuth) Authenticate(_ context.Context, token string) (*service.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.sessions[token]
	if !ok {
		return nil, appErrors.ErrTokenInvalid
	}
	return s, nil
}

func newAuthRouter(auth Authenticator, allowQuery bool) *gin.Engine {
	r := gin.New()
	r.Use(TokenAuth(auth, allowQuery))
	r.GET("/me", func(c *gin.Context) {
		response.Success(c, gin.H{"userId": GetUserID(c), "sessionId": GetSession(c).SessionID})
	})
	return r
}

func decode(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestTokenAuth(t *testing.T) {
	auth := &fakeAuth{sessions: map[string]*service.Session{
		"good": {UserID: "1001", SessionID: "s1"},
	}}

	tests := []struct {
		name       string
		allowQuery bool
		header     string
		query      string
		wantStatus int
		wantCode   int
	}{
		{"bearer header", false, "Bearer good", "", http.StatusOK, appErrors.CodeSuccess},
		{"missing token", false, "", "", http.StatusUnauthorized, appErrors.CodeTokenInvalid},
		{"wrong scheme", false, "Basic good", "", http.StatusUnauthorized, appErrors.CodeTokenInvalid},
		{"unknown token", false, "Bearer bad", "", http.StatusUnauthorized, appErrors.CodeTokenInvalid},
		{"query not allowed", false, "", "good", http.StatusUnauthorized, appErrors.CodeTokenInvalid},
		{"query allowed", true, "", "good", http.StatusOK, appErrors.CodeSuccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newAuthRouter(auth, tt.allowQuery)
			target := "/me"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, decode(t, w).Code)
		})
	}
}

func TestTokenAuth_BackendUnavailable(t *testing.T) {
	auth := &fakeAuth{err: appErrors.ErrUnavailable.Wrap(errors.New("redis down"))}
	r := newAuthRouter(auth, false)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, appErrors.CodeUnavailable, decode(t, w).Code)
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:5173"}, []string{"GET", "POST"}, true))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	limiter := NewIPRateLimiter(60, 2)
	defer limiter.Stop()

	r := gin.New()
	r.Use(RateLimit(limiter))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// 其他 IP 不受影响
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogger(t *testing.T) {
	r := gin.New()
	r.Use(Logger(slog.Default()))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chat-tools-backend/handlers"
	"chat-tools-backend/keyedlock"
	"chat-tools-backend/session"
	"chat-tools-backend/websocket"
	"chat-tools-backend/workspace"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	wm, err := workspace.NewManager(t.TempDir())
	require.NoError(t, err)
	store := session.NewStore(keyedlock.New(), wm)
	return NewRouter(&handlers.Handlers{Store: store}, websocket.NewHub())
}

func TestHealthAndMetrics(t *testing.T) {
	r := newRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestCORSPreflight(t *testing.T) {
	r := newRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/sessions/s1/workspace/a.txt", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "PUT")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSessionRoutesRegistered(t *testing.T) {
	r := newRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions/s1/workspace", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"items":[]}`, w.Body.String())
}

func TestRequestLogRedactsTokens(t *testing.T) {
	line := requestLogFormatter(gin.LogFormatterParams{
		Method:     http.MethodGet,
		StatusCode: http.StatusOK,
		Path:       "/api/sessions/s1/events?token=ghp_abcdef123",
		Keys:       map[string]any{"userID": "alice"},
	})
	assert.NotContains(t, line, "ghp_abcdef123")
	assert.Contains(t, line, "alice")
}

func TestForwardedIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(forwardedIdentityMiddleware())
	var got map[string]any
	r.GET("/", func(c *gin.Context) { got = c.Keys })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-User", "u1")
	req.Header.Set("X-Forwarded-Groups", "a,b")
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "u1", got["userID"])
	assert.Equal(t, "u1", got["userName"])
	assert.Equal(t, []string{"a", "b"}, got["userGroups"])
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, "0", http.NotFoundHandler()) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			assert.False(t, strings.Contains(err.Error(), "failed to shut down"), err.Error())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*SessionHub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/api/sessions/:sessionId/events", hub.HandleSessionWebSocket)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 10*time.Millisecond)
}

func TestPublishReachesSessionConnections(t *testing.T) {
	hub, base := startHub(t)
	conn := dial(t, base+"/api/sessions/s1/events")
	waitFor(t, func() bool { return hub.Connections("s1") == 1 })

	hub.Publish("s2", "push.started", map[string]any{"branch": "other"})
	hub.Publish("s1", "push.completed", map[string]any{"commit": "abc"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg SessionMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "s1", msg.SessionID)
	assert.Equal(t, "push.completed", msg.Type)
	assert.Equal(t, "abc", msg.Payload["commit"])
}

func TestBacklogReplayedOnConnect(t *testing.T) {
	hub, base := startHub(t)
	hub.Publish("s1", "tool.called", map[string]any{"tool": "list_branches"})
	waitFor(t, func() bool { return len(hub.Backlog("s1")) == 1 })

	conn := dial(t, base+"/api/sessions/s1/events")
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg SessionMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "tool.called", msg.Type)

	hub.Forget("s1")
	assert.Empty(t, hub.Backlog("s1"))
}

func TestBacklogBounded(t *testing.T) {
	hub, _ := startHub(t)
	for i := 0; i < backlogSize+10; i++ {
		hub.Publish("s1", "tick", map[string]any{"i": i})
	}
	waitFor(t, func() bool {
		b := hub.Backlog("s1")
		return len(b) == backlogSize && b[len(b)-1].Payload["i"] == backlogSize+9
	})
}

func TestClientPingGetsPong(t *testing.T) {
	hub, base := startHub(t)
	conn := dial(t, base+"/api/sessions/s1/events")
	waitFor(t, func() bool { return hub.Connections("s1") == 1 })

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]string
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "pong", msg["type"])

	conn.Close()
	waitFor(t, func() bool { return hub.Connections("s1") == 0 })
}

package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const pingInterval = 30 * time.Second

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checks are left to the CORS layer in front of the router.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSessionWebSocket upgrades the request and streams the session's events.
// Route: /api/sessions/:sessionId/events
func (h *SessionHub) HandleSessionWebSocket(c *gin.Context) {
	sessionID := c.Param("sessionId")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	sessionConn := &SessionConnection{SessionID: sessionID, Conn: conn}
	h.register <- sessionConn

	done := make(chan struct{})
	go h.handleWebSocketPing(sessionConn, done)
	h.handleWebSocketMessages(sessionConn)
	close(done)
}

// handleWebSocketMessages answers client pings until the connection closes. Clients
// only listen; anything other than a ping is ignored.
func (h *SessionHub) handleWebSocketMessages(conn *SessionConnection) {
	defer func() {
		h.unregister <- conn
	}()

	for {
		messageType, messageData, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.WithError(err).Warn("WebSocket error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(messageData, &msg); err != nil || msg.Type != "ping" {
			continue
		}
		pong, _ := json.Marshal(map[string]string{
			"type":      "pong",
			"timestamp": h.now().UTC().Format(time.RFC3339),
		})
		_ = conn.write(websocket.TextMessage, pong)
	}
}

// handleWebSocketPing sends periodic ping frames
func (h *SessionHub) handleWebSocketPing(conn *SessionConnection, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

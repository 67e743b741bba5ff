// Package websocket provides real-time WebSocket communication for session updates.
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"chat-tools-backend/logging"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// backlogSize is how many recent messages per session are replayed to a new connection.
const backlogSize = 50

// SessionHub manages WebSocket connections for sessions
type SessionHub struct {
	// Map of sessionID -> SessionConnection pointers
	sessions map[string]map[*SessionConnection]bool
	backlog  map[string][]*SessionMessage
	mu       sync.RWMutex

	register   chan *SessionConnection
	unregister chan *SessionConnection
	broadcast  chan *SessionMessage

	now func() time.Time
	log *logrus.Entry
}

// SessionConnection represents a WebSocket connection to a session
type SessionConnection struct {
	SessionID string
	Conn      *websocket.Conn
	writeMu   sync.Mutex // Protects concurrent writes to Conn
}

func (sc *SessionConnection) write(messageType int, data []byte) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	_ = sc.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return sc.Conn.WriteMessage(messageType, data)
}

// SessionMessage represents a message in a session
type SessionMessage struct {
	SessionID string         `json:"sessionId"`
	Type      string         `json:"type"`
	Timestamp string         `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

// NewHub returns a hub; call Run to start dispatching.
func NewHub() *SessionHub {
	return &SessionHub{
		sessions:   make(map[string]map[*SessionConnection]bool),
		backlog:    make(map[string][]*SessionMessage),
		register:   make(chan *SessionConnection),
		unregister: make(chan *SessionConnection),
		broadcast:  make(chan *SessionMessage, 256),
		now:        time.Now,
		log:        logging.NewLogger("websocket"),
	}
}

// Run dispatches registrations and broadcasts until ctx is done, then closes every
// connection.
func (h *SessionHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, conns := range h.sessions {
				for c := range conns {
					c.Conn.Close()
				}
			}
			h.sessions = make(map[string]map[*SessionConnection]bool)
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			if h.sessions[conn.SessionID] == nil {
				h.sessions[conn.SessionID] = make(map[*SessionConnection]bool)
			}
			h.sessions[conn.SessionID][conn] = true
			replay := append([]*SessionMessage(nil), h.backlog[conn.SessionID]...)
			h.mu.Unlock()
			h.log.WithField("session", conn.SessionID).Info("WebSocket connection registered")
			for _, m := range replay {
				data, _ := json.Marshal(m)
				if err := conn.write(websocket.TextMessage, data); err != nil {
					break
				}
			}

		case conn := <-h.unregister:
			h.mu.Lock()
			if connections, exists := h.sessions[conn.SessionID]; exists {
				if _, exists := connections[conn]; exists {
					delete(connections, conn)
					conn.Conn.Close()
					if len(connections) == 0 {
						delete(h.sessions, conn.SessionID)
					}
				}
			}
			h.mu.Unlock()
			h.log.WithField("session", conn.SessionID).Info("WebSocket connection unregistered")

		case message := <-h.broadcast:
			h.mu.Lock()
			b := append(h.backlog[message.SessionID], message)
			if len(b) > backlogSize {
				b = b[len(b)-backlogSize:]
			}
			h.backlog[message.SessionID] = b
			connections := make([]*SessionConnection, 0, len(h.sessions[message.SessionID]))
			for c := range h.sessions[message.SessionID] {
				connections = append(connections, c)
			}
			h.mu.Unlock()

			data, _ := json.Marshal(message)
			for _, sessionConn := range connections {
				if err := sessionConn.write(websocket.TextMessage, data); err != nil {
					// The select loop handles one case at a time; a blocking send would hang.
					go func(conn *SessionConnection) {
						h.unregister <- conn
					}(sessionConn)
				}
			}
		}
	}
}

// Publish queues a message for every connection of the session. It drops the message
// when the queue is full rather than blocking the caller.
func (h *SessionHub) Publish(sessionID, messageType string, payload map[string]any) {
	msg := &SessionMessage{
		SessionID: sessionID,
		Type:      messageType,
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}
	select {
	case h.broadcast <- msg:
	default:
		h.log.WithFields(logrus.Fields{"session": sessionID, "type": messageType}).Warn("Broadcast queue full, dropping message")
	}
}

// Forget drops the backlog of a cleared session.
func (h *SessionHub) Forget(sessionID string) {
	h.mu.Lock()
	delete(h.backlog, sessionID)
	h.mu.Unlock()
}

// Backlog returns the buffered messages of a session.
func (h *SessionHub) Backlog(sessionID string) []SessionMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]SessionMessage, 0, len(h.backlog[sessionID]))
	for _, m := range h.backlog[sessionID] {
		out = append(out, *m)
	}
	return out
}

// Connections returns how many connections a session has.
func (h *SessionHub) Connections(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

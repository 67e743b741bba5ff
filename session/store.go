// Package session keeps the in-memory state of chat sessions: conversation history,
// cached answers, registered tools and provider tokens. Nothing survives a restart.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"chat-tools-backend/keyedlock"
	"chat-tools-backend/logging"
	"chat-tools-backend/metrics"
	"chat-tools-backend/tool"
	"chat-tools-backend/workspace"

	"github.com/sirupsen/logrus"
)

// ErrInvalidID is returned for empty session ids.
var ErrInvalidID = errors.New("session id is required")

// Registrar builds the tool set of a new session.
type Registrar func(*Session) *tool.Set

// Store owns every live session. It is created once at startup and passed to whatever
// needs it.
type Store struct {
	locks      *keyedlock.Registry
	workspaces *workspace.Manager
	registrar  Registrar
	now        func() time.Time
	log        *logrus.Entry

	mu       sync.Mutex
	sessions map[string]*Session
}

// Option configures a Store.
type Option func(*Store)

// WithRegistrar sets the function that builds each session's tools.
func WithRegistrar(r Registrar) Option {
	return func(s *Store) { s.registrar = r }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore returns an empty store.
func NewStore(locks *keyedlock.Registry, workspaces *workspace.Manager, opts ...Option) *Store {
	s := &Store{
		locks:      locks,
		workspaces: workspaces,
		now:        time.Now,
		log:        logging.NewLogger("session"),
		sessions:   make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetRegistrar installs the tool registrar after construction. Tool bindings need the
// store themselves, so wiring happens in two steps at startup.
func (s *Store) SetRegistrar(r Registrar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registrar = r
}

// GetOrCreate returns the session for id, creating it on first reference.
func (s *Store) GetOrCreate(id string) (*Session, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess, nil
	}
	sess := newSession(id, s)
	s.sessions[id] = sess
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	s.log.WithField("session", id).Info("session created")
	return sess, nil
}

// Get returns an existing session.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Clear drops the session and deletes its workspace. Unknown ids are a no-op. Callers
// must not clear a session while one of its pushes is still running.
func (s *Store) Clear(id string) error {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	s.mu.Unlock()

	if err := s.workspaces.Cleanup(id); err != nil {
		return fmt.Errorf("failed to clean up session %s: %w", id, err)
	}
	if ok {
		s.log.WithField("session", id).Info("session cleared")
	}
	return nil
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// IDs lists live session ids.
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Locks returns the registry shared by everything that serializes per-session work.
func (s *Store) Locks() *keyedlock.Registry { return s.locks }

// Workspaces returns the workspace manager.
func (s *Store) Workspaces() *workspace.Manager { return s.workspaces }

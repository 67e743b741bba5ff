package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chat-tools-backend/auth"
	"chat-tools-backend/keyedlock"
	"chat-tools-backend/metrics"
	"chat-tools-backend/tool"

	"github.com/anthropics/anthropic-sdk-go"
)

// TokenRefreshMargin is how close to expiry a cached token may get before it is
// replaced.
const TokenRefreshMargin = 3 * time.Minute

// Session is the mutable state of one chat session. Fields are guarded by mu; the
// store's keyed locks serialize longer operations such as token refresh.
type Session struct {
	ID        string
	CreatedAt time.Time

	store *Store

	toolsOnce sync.Once
	tools     *tool.Set

	mu         sync.Mutex
	history    []anthropic.MessageParam
	cache      *replyCache
	tokens     map[string]auth.Token
	lastActive time.Time
}

func newSession(id string, store *Store) *Session {
	now := store.now()
	return &Session{
		ID:         id,
		CreatedAt:  now,
		store:      store,
		cache:      newReplyCache(MaxCachedReplies, CacheEvictBatch),
		tokens:     make(map[string]auth.Token),
		lastActive: now,
	}
}

// Workspace returns the session's scratch directory, creating it on first use.
func (s *Session) Workspace() (string, error) {
	return s.store.workspaces.GetOrCreateDir(s.ID)
}

// Tools returns the tool set registered for this session.
func (s *Session) Tools() *tool.Set {
	s.toolsOnce.Do(func() {
		s.store.mu.Lock()
		register := s.store.registrar
		s.store.mu.Unlock()
		if register != nil {
			s.tools = register(s)
		}
		if s.tools == nil {
			s.tools = tool.NewSet()
		}
	})
	return s.tools
}

// History returns a copy of the conversation so far.
func (s *Session) History() []anthropic.MessageParam {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]anthropic.MessageParam(nil), s.history...)
}

// AppendHistory adds messages to the conversation.
func (s *Session) AppendHistory(msgs ...anthropic.MessageParam) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msgs...)
	s.lastActive = s.store.now()
}

// CachedReply returns the cached answer for an utterance, if any.
func (s *Session) CachedReply(utterance string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.get(NormalizeQuery(utterance))
}

// CacheReply stores the final answer for an utterance.
func (s *Session) CacheReply(utterance, reply string) {
	key := NormalizeQuery(utterance)
	if key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.put(key, reply)
}

// CacheLen reports how many answers are cached.
func (s *Session) CacheLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.len()
}

// LastActive returns when the session last changed.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Token returns the cached token for purpose, refreshing it from src when absent or
// within TokenRefreshMargin of expiry. Concurrent callers for the same purpose share one
// refresh.
func (s *Session) Token(ctx context.Context, purpose string, src auth.Source) (auth.Token, error) {
	release := s.store.locks.Acquire(keyedlock.Key(s.ID, "token", purpose))
	defer release()

	s.mu.Lock()
	cached, ok := s.tokens[purpose]
	s.mu.Unlock()
	if ok && !cached.ExpiresWithin(s.store.now(), TokenRefreshMargin) {
		return cached, nil
	}

	fresh, err := src.Token(ctx)
	if err != nil {
		return auth.Token{}, fmt.Errorf("failed to obtain %s token: %w", purpose, err)
	}

	s.mu.Lock()
	s.tokens[purpose] = fresh
	s.mu.Unlock()
	metrics.TokenRefreshes.WithLabelValues(purpose).Inc()
	return fresh, nil
}

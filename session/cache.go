package session

import (
	"regexp"
	"strings"
)

const (
	// MaxCachedReplies bounds the per-session reply cache.
	MaxCachedReplies = 1000
	// CacheEvictBatch is how many of the oldest entries are dropped on overflow.
	CacheEvictBatch = 100
)

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// NormalizeQuery strips non-word characters and upper-cases, so "What's up?" and
// "whats up" share a cache entry.
func NormalizeQuery(q string) string {
	return strings.ToUpper(nonWord.ReplaceAllString(q, ""))
}

// replyCache is insertion ordered. Updating an existing key keeps its position.
type replyCache struct {
	max     int
	evict   int
	entries map[string]string
	order   []string
}

func newReplyCache(max, evict int) *replyCache {
	return &replyCache{
		max:     max,
		evict:   evict,
		entries: make(map[string]string),
	}
}

func (c *replyCache) get(key string) (string, bool) {
	v, ok := c.entries[key]
	return v, ok
}

func (c *replyCache) put(key, value string) {
	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = value

	if len(c.entries) > c.max {
		n := min(c.evict, len(c.order))
		for _, old := range c.order[:n] {
			delete(c.entries, old)
		}
		c.order = append(c.order[:0:0], c.order[n:]...)
	}
}

func (c *replyCache) len() int {
	return len(c.entries)
}

// Package keyedlock provides mutual exclusion scoped to arbitrary composite keys.
//
// Locks are created lazily on first use and are never removed, so the registry grows
// with the number of distinct keys seen during the process lifetime. Callers scope keys
// to sessions so that growth is bounded by session churn.
package keyedlock

import (
	"strings"
	"sync"
)

// Registry maps keys to exclusive locks. The zero value is ready to use.
type Registry struct {
	locks sync.Map // string -> *sync.Mutex
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{}
}

// Key joins parts into one composite key. Parts are separated by a NUL byte so that
// ("a/b", "c") and ("a", "b/c") never collide.
func Key(parts ...string) string {
	return strings.Join(parts, "\x00")
}

// lockFor returns the mutex for key, creating it atomically when absent.
func (r *Registry) lockFor(key string) *sync.Mutex {
	if existing, ok := r.locks.Load(key); ok {
		return existing.(*sync.Mutex)
	}
	actual, _ := r.locks.LoadOrStore(key, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// Acquire blocks until the lock for key is held and returns its release function.
// Calling release more than once panics, as with sync.Mutex.
func (r *Registry) Acquire(key string) (release func()) {
	mu := r.lockFor(key)
	mu.Lock()
	return mu.Unlock
}

// AcquireContended behaves like Acquire and also reports whether another holder had
// the lock when the caller arrived.
func (r *Registry) AcquireContended(key string) (release func(), waited bool) {
	mu := r.lockFor(key)
	if mu.TryLock() {
		return mu.Unlock, false
	}
	mu.Lock()
	return mu.Unlock, true
}

// With runs fn while holding the lock for key.
func (r *Registry) With(key string, fn func() error) error {
	release := r.Acquire(key)
	defer release()
	return fn()
}

// Len reports how many distinct keys have been locked so far.
func (r *Registry) Len() int {
	n := 0
	r.locks.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

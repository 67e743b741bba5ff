package keyedlock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireSerializesSameKey(t *testing.T) {
	r := New()
	key := Key("session-1", "octo/repo", "main")

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := r.Acquire(key)
			defer release()

			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside, "critical section must never be entered concurrently")
	assert.Equal(t, 1, r.Len())
}

func TestDistinctKeysDoNotBlock(t *testing.T) {
	r := New()
	release := r.Acquire(Key("s1", "a"))
	defer release()

	done := make(chan struct{})
	go func() {
		rel := r.Acquire(Key("s1", "b"))
		rel()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("acquiring a different key blocked")
	}
}

func TestKeyDoesNotCollide(t *testing.T) {
	assert.NotEqual(t, Key("a/b", "c"), Key("a", "b/c"))
	assert.Equal(t, Key("a", "b"), Key("a", "b"))
}

func TestAcquireContendedReportsWaiting(t *testing.T) {
	r := New()
	key := Key("s1", "https://example.com/file")

	release, waited := r.AcquireContended(key)
	require.False(t, waited)

	result := make(chan bool, 1)
	go func() {
		rel, w := r.AcquireContended(key)
		rel()
		result <- w
	}()

	time.Sleep(50 * time.Millisecond)
	release()

	select {
	case w := <-result:
		assert.True(t, w)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller never acquired the lock")
	}
}

func TestWithReturnsCallbackError(t *testing.T) {
	r := New()
	err := r.With("k", func() error { return assert.AnError })
	assert.ErrorIs(t, err, assert.AnError)

	// lock must be released afterwards
	release, waited := r.AcquireContended("k")
	defer release()
	assert.False(t, waited)
}

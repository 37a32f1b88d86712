package cache

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeMissThenHitAfterPut(t *testing.T) {
	c := New[uint64](true, 1<<20, time.Hour)

	assert.False(t, c.Probe(1).Hit)

	c.Put(1, Entry{Bytes: []byte("pdf bytes"), OriginalMillis: 42})

	res := c.Probe(1)
	require.True(t, res.Hit)
	assert.Equal(t, "pdf bytes", string(res.Entry.Bytes))
	assert.Equal(t, int64(42), res.Entry.OriginalMillis)
}

func TestDisabledCacheIsPassThrough(t *testing.T) {
	c := New[uint64](false, 1<<20, time.Hour)
	c.Put(1, Entry{Bytes: []byte("x")})

	assert.False(t, c.Probe(1).Hit)
	assert.Equal(t, 0, c.Len())
}

func TestResolveCoalescesConcurrentMisses(t *testing.T) {
	c := New[uint64](true, 1<<20, time.Hour)

	var builds int32
	var wg sync.WaitGroup
	results := make([]Entry, 10)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			entry, _, err := c.Resolve(7, "7", func() (Entry, error) {
				atomic.AddInt32(&builds, 1)
				time.Sleep(10 * time.Millisecond)
				return Entry{Bytes: []byte("built once")}, nil
			})
			require.NoError(t, err)
			results[idx] = entry
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), builds, "exactly one build for 10 concurrent resolves of the same key")
	for _, r := range results {
		assert.Equal(t, "built once", string(r.Bytes))
	}
}

func TestResolveReportsWaiterGaugeDuringCoalescing(t *testing.T) {
	c := New[uint64](true, 1<<20, time.Hour)

	var maxWaiters int64
	var mu sync.Mutex
	c.WithWaiterGauge(func(n int64) {
		mu.Lock()
		defer mu.Unlock()
		if n > maxWaiters {
			maxWaiters = n
		}
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.Resolve(3, "3", func() (Entry, error) {
				time.Sleep(10 * time.Millisecond)
				return Entry{Bytes: []byte("x")}, nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Greater(t, maxWaiters, int64(0), "at least one caller should have been coalesced behind the leader")
	assert.Equal(t, int64(0), c.inflight.Load(), "inflight count must return to zero once every caller returns")
}

func TestResolveSharesBuildErrorWithFollowers(t *testing.T) {
	c := New[uint64](true, 1<<20, time.Hour)
	wantErr := fmt.Errorf("engine exploded")

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, _, err := c.Resolve(9, "9", func() (Entry, error) {
				time.Sleep(5 * time.Millisecond)
				return Entry{}, wantErr
			})
			errs[idx] = err
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.Error(t, err)
		assert.Equal(t, wantErr.Error(), err.Error())
	}
	assert.False(t, c.Probe(9).Hit, "a failed build must not populate the cache")
}

func TestTTLExpiresEntries(t *testing.T) {
	c := New[uint64](true, 1<<20, 20*time.Millisecond)
	c.Put(1, Entry{Bytes: []byte("x")})

	require.True(t, c.Probe(1).Hit)
	time.Sleep(60 * time.Millisecond)
	assert.False(t, c.Probe(1).Hit)
}

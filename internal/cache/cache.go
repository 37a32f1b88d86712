// Package cache implements the generic LRU+TTL, single-flight-coalesced
// cache shared by the PDF Cache (C5) and Format Cache (C6): both are
// "bounded map, key -> immutable entry" structures differing only in their
// key type and entry payload, so one generic implementation backs both.
//
// The eviction shape (expirable LRU with an independent TTL) is grounded on
// hashicorp/golang-lru/v2/expirable; the coalescing shape follows
// golang.org/x/sync/singleflight, the same package pdfCachingManager.go's
// tracker-based cleanup achieves by hand with an age map.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Entry is a cached artifact: the bytes plus the original compile time that
// produced them, so a later HIT can still report X-Original-Compile-Time-Ms.
type Entry struct {
	Bytes          []byte
	OriginalMillis int64
	CreatedAt      time.Time
}

// Result is what Probe returns: either a hit with the cached Entry, or a
// miss carrying nothing (the caller becomes responsible for calling
// Resolve, which itself coalesces concurrent misses for the same key).
type Result struct {
	Hit   bool
	Entry Entry
}

// Cache is a bounded, TTL-evicted, single-flight-coalesced map from a
// comparable key K to Entry. Enabled can be toggled at construction to make
// every operation a pass-through, per spec's disable-switch requirement.
type Cache[K comparable] struct {
	enabled bool
	lru     *lru.LRU[K, Entry]
	group   singleflight.Group

	mu   sync.Mutex
	size int64
	cap  int64

	inflight  atomic.Int64
	onWaiters func(n int64)
}

// New builds a Cache holding up to capBytes of entry payload, evicting by
// LRU on overflow and by ttl measured from when the entry was put; a Probe
// hit does not extend an entry's ttl. If enabled is false, every
// operation becomes a pass-through (Probe always misses, Put is a no-op).
func New[K comparable](enabled bool, capBytes int64, ttl time.Duration) *Cache[K] {
	c := &Cache[K]{enabled: enabled, cap: capBytes}
	c.lru = lru.NewLRU[K, Entry](0, c.onEvict, ttl)
	return c
}

// WithWaiterGauge registers fn to be called, on every change, with the
// number of callers currently in Resolve's miss path minus one (so a lone
// leader reports zero). Callers are counted across all keys of this Cache,
// not per key. Returns c for chaining at construction time.
func (c *Cache[K]) WithWaiterGauge(fn func(n int64)) *Cache[K] {
	c.onWaiters = fn
	return c
}

func (c *Cache[K]) syncWaiterGauge() {
	if c.onWaiters == nil {
		return
	}
	n := c.inflight.Load() - 1
	if n < 0 {
		n = 0
	}
	c.onWaiters(n)
}

func (c *Cache[K]) onEvict(_ K, entry Entry) {
	c.mu.Lock()
	c.size -= int64(len(entry.Bytes))
	c.mu.Unlock()
}

// Probe looks up key. A Hit carries the cached Entry; a Miss means the
// caller should build the artifact and call Put, or better, call Resolve to
// get single-flight coalescing against concurrent builders of the same key.
func (c *Cache[K]) Probe(key K) Result {
	if !c.enabled {
		return Result{}
	}
	if entry, ok := c.lru.Get(key); ok {
		return Result{Hit: true, Entry: entry}
	}
	return Result{}
}

// Put inserts or replaces the entry for key, evicting older entries by LRU
// if the total size now exceeds the configured cap.
func (c *Cache[K]) Put(key K, entry Entry) {
	if !c.enabled {
		return
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	c.lru.Add(key, entry)

	c.mu.Lock()
	c.size += int64(len(entry.Bytes))
	over := c.cap > 0 && c.size > c.cap
	c.mu.Unlock()

	if over {
		c.evictOverflow()
	}
}

// evictOverflow removes the least-recently-used entries until size is back
// at or under cap. The expirable LRU has no explicit byte-size bound, so
// the overflow is enforced here by repeatedly evicting its oldest key.
func (c *Cache[K]) evictOverflow() {
	for {
		c.mu.Lock()
		over := c.cap > 0 && c.size > c.cap
		c.mu.Unlock()
		if !over {
			return
		}
		keys := c.lru.Keys()
		if len(keys) == 0 {
			return
		}
		c.lru.Remove(keys[0])
	}
}

// BuildFunc produces a fresh Entry for a cache miss. Returning an error
// aborts the build for the leader and every coalesced follower identically.
type BuildFunc func() (Entry, error)

// Resolve probes the cache; on a hit it returns immediately. On a miss, it
// coalesces concurrent Resolve calls that pass the same keyString (the
// caller supplies the string form of key) so only one caller actually
// invokes build; every caller — leader and followers — receives the same
// Entry or the same error.
func (c *Cache[K]) Resolve(key K, keyString string, build BuildFunc) (Entry, bool, error) {
	if res := c.Probe(key); res.Hit {
		return res.Entry, true, nil
	}
	if !c.enabled {
		entry, err := build()
		return entry, false, err
	}

	c.inflight.Add(1)
	c.syncWaiterGauge()
	defer func() {
		c.inflight.Add(-1)
		c.syncWaiterGauge()
	}()

	v, err, _ := c.group.Do(keyString, func() (any, error) {
		// Re-probe inside the single-flight section: another leader may
		// have completed and populated the cache between our initial
		// Probe and acquiring leadership here.
		if res := c.Probe(key); res.Hit {
			return res.Entry, nil
		}
		entry, buildErr := build()
		if buildErr != nil {
			return Entry{}, buildErr
		}
		c.Put(key, entry)
		return entry, nil
	})
	if err != nil {
		return Entry{}, false, err
	}
	return v.(Entry), false, nil
}

// Len reports the number of live entries, for metrics/tests.
func (c *Cache[K]) Len() int {
	if !c.enabled {
		return 0
	}
	return c.lru.Len()
}

// Enabled reports whether this cache is active.
func (c *Cache[K]) Enabled() bool { return c.enabled }

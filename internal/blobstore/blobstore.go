// Package blobstore implements the content-addressed byte store (C2):
// per-session and process-wide storage keyed by a 64-bit content hash, with
// LRU touch tracking and a size-cap eviction sweep. Locking is sharded
// across N buckets so concurrent gets never block each other.
package blobstore

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 16

// blob is the stored record: bytes plus bookkeeping for LRU eviction.
type blob struct {
	bytes     []byte
	size      int64
	lastTouch time.Time
}

type shard struct {
	mu      sync.RWMutex
	entries map[uint64]*blob
}

// Store is a thread-safe content-addressed byte store capped at capBytes.
// put takes a brief exclusive section on one shard; get never blocks other
// shards and only read-locks its own.
type Store struct {
	shards   [shardCount]*shard
	capBytes int64

	sizeMu sync.Mutex
	size   int64
}

// New returns an empty Store enforcing capBytes via LRU eviction.
func New(capBytes int64) *Store {
	s := &Store{capBytes: capBytes}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[uint64]*blob)}
	}
	return s
}

func (s *Store) shardFor(hash uint64) *shard {
	return s.shards[hash%uint64(shardCount)]
}

// Put computes the xxHash64 of bytes and inserts it if absent, or touches
// the existing entry if present (dedup on insert). Returns the hash.
func (s *Store) Put(data []byte) uint64 {
	hash := xxhash.Sum64(data)
	sh := s.shardFor(hash)

	sh.mu.Lock()
	if existing, ok := sh.entries[hash]; ok {
		existing.lastTouch = time.Now()
		sh.mu.Unlock()
		return hash
	}
	b := &blob{bytes: data, size: int64(len(data)), lastTouch: time.Now()}
	sh.entries[hash] = b
	sh.mu.Unlock()

	s.sizeMu.Lock()
	s.size += b.size
	s.sizeMu.Unlock()

	s.EvictIfOver(s.capBytes)
	return hash
}

// Get returns the bytes for hash, or (nil, false) if absent. Does not block
// concurrent gets on other shards.
func (s *Store) Get(hash uint64) ([]byte, bool) {
	sh := s.shardFor(hash)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	b, ok := sh.entries[hash]
	if !ok {
		return nil, false
	}
	return b.bytes, true
}

// Touch refreshes the LRU position of hash, a no-op if absent.
func (s *Store) Touch(hash uint64) {
	sh := s.shardFor(hash)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if b, ok := sh.entries[hash]; ok {
		b.lastTouch = time.Now()
	}
}

// Size returns the current total byte size across all shards.
func (s *Store) Size() int64 {
	s.sizeMu.Lock()
	defer s.sizeMu.Unlock()
	return s.size
}

// EvictIfOver evicts least-recently-touched blobs across all shards until
// the total size is at or under capBytes. A global size cap spanning
// per-shard LRU lists is acceptable here: eviction is not a hot-path
// operation and runs only after a Put that may have pushed size over cap.
func (s *Store) EvictIfOver(capBytes int64) {
	if capBytes <= 0 {
		return
	}
	for s.Size() > capBytes {
		if !s.evictOldest() {
			return
		}
	}
}

func (s *Store) evictOldest() bool {
	var (
		oldestHash  uint64
		oldestShard *shard
		oldestTime  time.Time
		found       bool
	)

	for _, sh := range s.shards {
		sh.mu.RLock()
		for hash, b := range sh.entries {
			if !found || b.lastTouch.Before(oldestTime) {
				oldestHash, oldestShard, oldestTime, found = hash, sh, b.lastTouch, true
			}
		}
		sh.mu.RUnlock()
	}

	if !found {
		return false
	}

	oldestShard.mu.Lock()
	b, ok := oldestShard.entries[oldestHash]
	if ok {
		delete(oldestShard.entries, oldestHash)
	}
	oldestShard.mu.Unlock()

	if ok {
		s.sizeMu.Lock()
		s.size -= b.size
		s.sizeMu.Unlock()
	}
	return ok
}

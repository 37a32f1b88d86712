package webhook

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Suppression tracks delivery targets that have exhausted their retry
// budget, so a persistently-broken subscriber is skipped for a cooldown
// window instead of retried forever. Adapted from
// internal/sessions/blacklist_redis.go's Redis set/exists/TTL pattern; an
// in-memory fallback keeps the same interface when Redis is absent.
type Suppression interface {
	IsSuppressed(ctx context.Context, url string) (bool, error)
	Suppress(ctx context.Context, url string, cooldown time.Duration) error
}

// MemorySuppression is the default Suppression: a mutex-guarded map with
// lazily-checked expiry.
type MemorySuppression struct {
	mu      sync.Mutex
	expires map[string]time.Time
}

// NewMemorySuppression returns an empty in-memory Suppression.
func NewMemorySuppression() *MemorySuppression {
	return &MemorySuppression{expires: make(map[string]time.Time)}
}

func (m *MemorySuppression) IsSuppressed(_ context.Context, url string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.expires[url]
	if !ok {
		return false, nil
	}
	if time.Now().After(exp) {
		delete(m.expires, url)
		return false, nil
	}
	return true, nil
}

func (m *MemorySuppression) Suppress(_ context.Context, url string, cooldown time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expires[url] = time.Now().Add(cooldown)
	return nil
}

// RedisSuppression backs the suppression list with Redis SET/EXISTS/TTL,
// the same primitives internal/sessions/blacklist_redis.go uses for the
// access-token blacklist, so the suppression state survives a restart and
// is shared across multiple service instances.
type RedisSuppression struct {
	client *redis.Client
}

// NewRedisSuppression wraps an existing Redis client.
func NewRedisSuppression(client *redis.Client) *RedisSuppression {
	return &RedisSuppression{client: client}
}

func (r *RedisSuppression) key(url string) string {
	return "webhook:suppressed:" + url
}

func (r *RedisSuppression) IsSuppressed(ctx context.Context, url string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(url)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisSuppression) Suppress(ctx context.Context, url string, cooldown time.Duration) error {
	return r.client.Set(ctx, r.key(url), "1", cooldown).Err()
}

var (
	_ Suppression = (*MemorySuppression)(nil)
	_ Suppression = (*RedisSuppression)(nil)
)

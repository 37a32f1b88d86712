// Package webhook implements the Event Fan-out component (C12): subscribers
// register a URL and an event set; on a matching event, the dispatcher
// delivers a JSON POST through a bounded worker pool with exponential
// backoff retry, and tracks persistently-failing URLs in a suppression list
// so a broken subscriber never retries forever. Failures never block the
// originating compile response.
//
// The subscription repository follows a Mongo-backed, in-memory-fallback
// shape; the suppression list follows the same set/exists/TTL pattern as a
// Redis-backed blacklist.
package webhook

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Subscription is a registered webhook: id, target URL, and the set of
// event types it wants delivered.
type Subscription struct {
	ID     string   `bson:"_id" json:"id"`
	URL    string   `bson:"url" json:"url"`
	Events []string `bson:"events" json:"events"`
}

// Wants reports whether this subscription should receive eventType.
func (s Subscription) Wants(eventType string) bool {
	for _, e := range s.Events {
		if e == eventType {
			return true
		}
	}
	return false
}

// Repository provides subscription persistence: create, delete, and list.
type Repository interface {
	Create(ctx context.Context, sub Subscription) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Subscription, error)
}

// MemoryRepository is the default, in-memory Repository: Tachyon-Tex keeps
// no persistent state as a correctness requirement, so this is sufficient
// on its own; MongoRepository below is purely additive durability for
// operators who want subscriptions to survive a restart.
type MemoryRepository struct {
	mu   sync.RWMutex
	subs map[string]Subscription
}

// NewMemoryRepository returns an empty in-memory Repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{subs: make(map[string]Subscription)}
}

func (r *MemoryRepository) Create(_ context.Context, sub Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[sub.ID] = sub
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, id)
	return nil
}

func (r *MemoryRepository) List(_ context.Context) ([]Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Subscription, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, s)
	}
	return out, nil
}

// MongoRepository persists subscriptions to a Mongo collection. Optional:
// the dispatcher works identically with MemoryRepository when Mongo is
// absent.
type MongoRepository struct {
	col *mongo.Collection
}

// NewMongoRepository wraps an existing Mongo collection handle.
func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Create(ctx context.Context, sub Subscription) error {
	_, err := r.col.InsertOne(ctx, sub)
	return err
}

func (r *MongoRepository) Delete(ctx context.Context, id string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (r *MongoRepository) List(ctx context.Context) ([]Subscription, error) {
	cur, err := r.col.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []Subscription
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// NewSubscription builds a Subscription with a fresh uuid id.
func NewSubscription(url string, events []string) Subscription {
	return Subscription{ID: uuid.New().String(), URL: url, Events: events}
}

// Package compile implements the optional, non-authoritative compile audit
// sink: a Mongo-backed record of each completed or failed compile, kept for
// observability only. Every cache and the orchestrator's decisions remain
// fully in-memory and correct with Mongo absent; this package never gates a
// compile response on Mongo reachability. Upserts by id, keyed on the
// compile-outcome fields this domain cares about.
package compile

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tachyontex/tachyon-tex/internal/database"
)

// AuditRecord is the Mongo representation of one compile outcome.
type AuditRecord struct {
	Fingerprint  string    `bson:"fingerprint" json:"fingerprint"`
	CacheStatus  string    `bson:"cacheStatus" json:"cacheStatus"`
	CompileMs    int64     `bson:"compileMs" json:"compileMs"`
	Success      bool      `bson:"success" json:"success"`
	ErrorMessage string    `bson:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
}

// Save upserts an audit record keyed by fingerprint. A no-op when mongoURI
// is empty, so callers can invoke it unconditionally.
func Save(ctx context.Context, mongoURI, databaseName string, rec *AuditRecord) error {
	if mongoURI == "" {
		return nil
	}
	client, err := database.ConnectMongo(ctx, mongoURI, 5*time.Second)
	if err != nil {
		return fmt.Errorf("compile: connect mongo: %w", err)
	}
	defer client.Disconnect(ctx)

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	col := client.Database(databaseName).Collection("compile_audit")
	filter := bson.M{"fingerprint": rec.Fingerprint}
	opts := options.Update().SetUpsert(true)
	if _, err := col.UpdateOne(ctx, filter, bson.M{"$set": rec}, opts); err != nil {
		return fmt.Errorf("compile: save audit record: %w", err)
	}
	return nil
}

// Load fetches the most recent audit record for fingerprint, or nil if
// Mongo is disabled or the fingerprint has never been recorded.
func Load(ctx context.Context, mongoURI, databaseName, fingerprint string) (*AuditRecord, error) {
	if mongoURI == "" {
		return nil, nil
	}
	client, err := database.ConnectMongo(ctx, mongoURI, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("compile: connect mongo: %w", err)
	}
	defer client.Disconnect(ctx)

	col := client.Database(databaseName).Collection("compile_audit")
	var rec AuditRecord
	if err := col.FindOne(ctx, bson.M{"fingerprint": fingerprint}).Decode(&rec); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

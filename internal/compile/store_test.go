package compile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveIsNoopWhenMongoURIEmpty(t *testing.T) {
	rec := &AuditRecord{Fingerprint: "abc123", CacheStatus: "MISS", CompileMs: 42, Success: true, CreatedAt: time.Now()}
	require.NoError(t, Save(context.Background(), "", "", rec))
}

func TestLoadReturnsNilWhenMongoURIEmpty(t *testing.T) {
	got, err := Load(context.Background(), "", "", "abc123")
	require.NoError(t, err)
	assert.Nil(t, got)
}

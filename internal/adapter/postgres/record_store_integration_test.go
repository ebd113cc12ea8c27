package postgres_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumeingest/internal/adapter/postgres"
	"resumeingest/internal/record"
	"resumeingest/internal/testutils"
)

func TestRecordStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	ctx := context.Background()
	store := postgres.NewRecordStore(s.DB)
	records := record.NewStore(store, record.PolicyStrict)

	_, err := records.Replace(ctx, "42", []string{"old"}, [][]float32{{1, 2}})
	require.NoError(t, err)

	res, err := records.Replace(ctx, "42", []string{"a", "b", "c"}, [][]float32{{0.1}, {}, {0.3}})
	require.NoError(t, err)
	assert.Equal(t, record.Result{Stored: 2, Dropped: 1}, res)

	got, err := store.Get(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, got.TextChunks)
	assert.Equal(t, [][]float32{{0.1}, {0.3}}, got.Embeddings)

	res, err = records.Replace(ctx, "42", []string{"x"}, [][]float32{{}})
	require.NoError(t, err)
	assert.True(t, res.Cleared)

	_, err = store.Get(ctx, "42")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRecordStore_Integration_InterleavedWriterLoses(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.SkipWeaviate = true
	s.SkipNSQ = true
	s.Setup()
	defer s.Teardown()

	ctx := context.Background()
	store := postgres.NewRecordStore(s.DB)

	// Both runs have already deleted; the first insert wins.
	require.NoError(t, store.DeleteAll(ctx, "42"))
	require.NoError(t, store.Insert(ctx, record.Record{UserID: "42", TextChunks: []string{"first"}, Embeddings: [][]float32{{1}}, IngestedAt: time.Now()}))
	err := store.Insert(ctx, record.Record{UserID: "42", TextChunks: []string{"second"}, Embeddings: [][]float32{{2}}, IngestedAt: time.Now()})

	var pqErr *pq.Error
	require.ErrorAs(t, err, &pqErr)
	assert.Equal(t, pq.ErrorCode("23505"), pqErr.Code, "unique_violation")

	got, err := store.Get(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, got.TextChunks)
}

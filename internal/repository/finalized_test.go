package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/lease-intake/internal/common"
	"github.com/joseph-ayodele/lease-intake/internal/index"
)

func openTestRepo(t *testing.T) *FinalizedRepository {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, Config{Driver: DriverSQLite, DSN: filepath.Join(t.TempDir(), "index.db")}, nil)
	require.NoError(t, err)
	repo, err := NewFinalizedRepository(ctx, db, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestFinalizedRepositoryUpsertGet(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	doc := index.Document{ID: "lease.pdf", Content: `{"rent":1000}`, Metadata: map[string]string{"finalized": "true"}}
	require.NoError(t, repo.Upsert(ctx, doc))
	doc.Content = `{"rent":1200}`
	require.NoError(t, repo.Upsert(ctx, doc))

	got, err := repo.Get(ctx, "lease.pdf")
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	_, err = repo.Get(ctx, "missing.pdf")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestFinalizedRepositoryQueryAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	for _, d := range []index.Document{
		{ID: "oak.pdf", Content: `{"city":"Austin","tenant":"ACME"}`, Metadata: map[string]string{"finalized": "true"}},
		{ID: "elm.pdf", Content: `{"city":"Austin"}`, Metadata: map[string]string{"finalized": "true"}},
		{ID: "pine.pdf", Content: `{"city":"Denver"}`, Metadata: map[string]string{"finalized": "true"}},
	} {
		require.NoError(t, repo.Upsert(ctx, d))
	}

	hits, err := repo.Query(ctx, index.Query{Text: "AUSTIN acme", Where: map[string]string{"finalized": "true"}})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "oak.pdf", hits[0].ID)
	assert.Equal(t, "elm.pdf", hits[1].ID)

	all, err := repo.Query(ctx, index.Query{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, repo.Delete(ctx, "pine.pdf"))
	assert.ErrorIs(t, repo.Delete(ctx, "pine.pdf"), common.ErrNotFound)
}

package index

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/lease-intake/internal/common"
)

func openTestIndex(t *testing.T, opts ...BadgerOption) *BadgerIndex {
	t.Helper()
	idx, err := OpenBadger("", true, nil, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestBadgerUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)

	require.NoError(t, idx.Upsert(ctx, Document{ID: "lease.pdf", Content: `{"rent":1000}`, Metadata: map[string]string{"finalized": "true"}}))
	require.NoError(t, idx.Upsert(ctx, Document{ID: "lease.pdf", Content: `{"rent":1200}`, Metadata: map[string]string{"finalized": "true"}}))

	got, err := idx.Get(ctx, "lease.pdf")
	require.NoError(t, err)
	assert.Equal(t, `{"rent":1200}`, got.Content)

	hits, err := idx.Query(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestBadgerGetDeleteMissing(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)

	_, err := idx.Get(ctx, "nope")
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.ErrorIs(t, idx.Delete(ctx, "nope"), common.ErrNotFound)

	require.NoError(t, idx.Upsert(ctx, Document{ID: "a", Content: "x"}))
	require.NoError(t, idx.Delete(ctx, "a"))
	_, err = idx.Get(ctx, "a")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestBadgerQueryTermsAndWhere(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t)

	docs := []Document{
		{ID: "oak.pdf", Content: `{"city":"Austin","tenant":"ACME"}`, Metadata: map[string]string{"finalized": "true"}},
		{ID: "elm.pdf", Content: `{"city":"Austin","tenant":"Globex"}`, Metadata: map[string]string{"finalized": "true"}},
		{ID: "pine.pdf", Content: `{"city":"Denver","tenant":"ACME"}`, Metadata: map[string]string{"finalized": "false"}},
	}
	for _, d := range docs {
		require.NoError(t, idx.Upsert(ctx, d))
	}

	hits, err := idx.Query(ctx, Query{Text: "austin acme", Where: map[string]string{"finalized": "true"}})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "oak.pdf", hits[0].ID)
	assert.Equal(t, float32(1), hits[0].Score)
	assert.Equal(t, "elm.pdf", hits[1].ID)

	hits, err = idx.Query(ctx, Query{Text: "denver"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "pine.pdf", hits[0].ID)

	hits, err = idx.Query(ctx, Query{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

// keywordEmbedder maps text onto two axes: "office" and "retail".
type keywordEmbedder struct{}

func (keywordEmbedder) vec(s string) []float32 {
	s = strings.ToLower(s)
	return []float32{float32(strings.Count(s, "office")), float32(strings.Count(s, "retail"))}
}

func (k keywordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = k.vec(t)
	}
	return out, nil
}

func (k keywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return k.vec(text), nil
}

func TestBadgerQueryWithEmbeddings(t *testing.T) {
	ctx := context.Background()
	idx := openTestIndex(t, WithEmbedder(keywordEmbedder{}))

	require.NoError(t, idx.Upsert(ctx, Document{ID: "a", Content: "office office"}))
	require.NoError(t, idx.Upsert(ctx, Document{ID: "b", Content: "retail strip"}))

	hits, err := idx.Query(ctx, Query{Text: "retail"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "b", hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.InDelta(t, 0.0, hits[1].Score, 1e-6)
}

func TestBadgerPersistsOnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx, err := OpenBadger(dir, false, nil)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, Document{ID: "a", Content: "x"}))
	require.NoError(t, idx.Close())

	idx, err = OpenBadger(dir, false, nil)
	require.NoError(t, err)
	defer idx.Close()
	got, err := idx.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "x", got.Content)
}

func TestTermsAndScore(t *testing.T) {
	assert.Equal(t, []string{"base", "rent", "1200"}, Terms("Base-Rent: $1200"))
	assert.Equal(t, float32(0.5), TermScore([]string{"acme", "zzz"}, Document{Content: "ACME corp"}))
}

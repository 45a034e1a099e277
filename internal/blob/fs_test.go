package blob

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/lease-intake/internal/common"
)

func TestFSStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "drafts")
	s, err := NewFSStore(dir, nil)
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "b.json", []byte(`{"v":1}`)))
	require.NoError(t, s.Put(ctx, "a.json", []byte(`{"v":2}`)))
	require.NoError(t, s.Put(ctx, "b.json", []byte(`{"v":3}`)))

	got, err := s.Get(ctx, "b.json")
	require.NoError(t, err)
	assert.Equal(t, `{"v":3}`, string(got))

	keys, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.json", "b.json"}, keys)

	keys, err = s.List(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"b.json"}, keys)

	require.NoError(t, s.Delete(ctx, "a.json"))
	_, err = s.Get(ctx, "a.json")
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "a.json"), common.ErrNotFound)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFSStoreRejectsTraversal(t *testing.T) {
	s, err := NewFSStore(t.TempDir(), nil)
	require.NoError(t, err)

	for _, key := range []string{"", "..", "../x.json", "a/b.json", `a\b.json`} {
		assert.ErrorIs(t, s.Put(context.Background(), key, nil), common.ErrInvalidInput, key)
	}
}

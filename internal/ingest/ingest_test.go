package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/lease-intake/internal/async"
)

type memQueue struct {
	mu   sync.Mutex
	jobs []async.Job
}

func (q *memQueue) Enqueue(_ context.Context, job async.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *memQueue) Shutdown(context.Context) {}

func (q *memQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDocTypeFor(t *testing.T) {
	root := filepath.FromSlash("/drop")
	dt, err := DocTypeFor(root, filepath.FromSlash("/drop/Multifamily OM/a.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "Multifamily OM", dt)

	dt, err = DocTypeFor(root, filepath.FromSlash("/drop/Commercial/2024/b.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "Commercial", dt)

	_, err = DocTypeFor(root, filepath.FromSlash("/drop/c.pdf"))
	assert.Error(t, err)
	_, err = DocTypeFor(root, filepath.FromSlash("/elsewhere/x/c.pdf"))
	assert.Error(t, err)
}

func TestEligible(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/drop/Residential/lease.PDF", true},
		{"/drop/Residential/scan.heic", true},
		{"/drop/Residential/.lease.pdf", false},
		{"/drop/Residential/~$lease.pdf", false},
		{"/drop/Residential/lease.pdf.crdownload", false},
		{"/drop/Residential/notes.docx", false},
		{"/drop/Residential/README", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Eligible(tt.path))
		})
	}
}

func TestIngestDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Residential", "a.pdf"), "one")
	writeFile(t, filepath.Join(root, "Residential", "copy.pdf"), "one")
	writeFile(t, filepath.Join(root, "Commercial", "b.png"), "two")
	writeFile(t, filepath.Join(root, "Commercial", "notes.docx"), "skip")
	writeFile(t, filepath.Join(root, "Residential", "~$a.pdf"), "lock")
	writeFile(t, filepath.Join(root, ".hidden", "c.pdf"), "three")
	writeFile(t, filepath.Join(root, "loose.pdf"), "four")

	q := &memQueue{}
	d, err := NewDropFolder(root, q, nil)
	require.NoError(t, err)

	_, stats, err := d.IngestDirectory(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), stats.Matched)
	assert.Equal(t, uint32(2), stats.Enqueued)
	assert.Equal(t, uint32(1), stats.Deduplicated)
	assert.Equal(t, uint32(1), stats.Failed)

	require.Len(t, q.jobs, 2)
	docTypes := []string{q.jobs[0].DocType, q.jobs[1].DocType}
	assert.ElementsMatch(t, []string{"Residential", "Commercial"}, docTypes)
}

func TestWatchPicksUpNewFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Residential", "existing.pdf"), "old")

	q := &memQueue{}
	d, err := NewDropFolder(root, q, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Watch(ctx, 20*time.Millisecond)
	}()

	require.Eventually(t, func() bool { return q.len() == 1 }, 2*time.Second, 10*time.Millisecond)

	writeFile(t, filepath.Join(root, "Residential", "new.pdf"), "new")
	require.Eventually(t, func() bool { return q.len() >= 2 }, 5*time.Second, 20*time.Millisecond)

	cancel()
	<-done
}

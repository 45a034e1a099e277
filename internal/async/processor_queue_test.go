package async

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/lease-intake/internal/pipeline"
)

type recordingProcessor struct {
	mu   sync.Mutex
	seen map[string]string
}

func (p *recordingProcessor) Process(_ context.Context, task pipeline.DocumentTask) pipeline.Outcome {
	rc, err := task.Blob()
	if err != nil {
		return pipeline.Outcome{Err: err}
	}
	defer rc.Close()
	b, _ := io.ReadAll(rc)

	p.mu.Lock()
	p.seen[task.Name+"|"+task.DocType] = string(b)
	p.mu.Unlock()
	return pipeline.Outcome{UniqueID: "id"}
}

func TestProcessorQueueDrainsOnShutdown(t *testing.T) {
	dir := t.TempDir()
	proc := &recordingProcessor{seen: map[string]string{}}
	q := NewProcessorQueue(proc, nil, WithWorkers(2), WithQueueSize(1))

	for _, name := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("content of "+name), 0o644))
		require.NoError(t, q.Enqueue(context.Background(), Job{Path: p, Name: name, DocType: "Residential"}))
	}
	q.Shutdown(context.Background())

	assert.Len(t, proc.seen, 3)
	assert.Equal(t, "content of b.pdf", proc.seen["b.pdf|Residential"])

	err := q.Enqueue(context.Background(), Job{Path: "x"})
	assert.ErrorIs(t, err, ErrQueueClosed)
}

package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/lease-intake/internal/common"
	"github.com/joseph-ayodele/lease-intake/internal/pipeline"
)

// DocumentProcessor runs one task to a terminal state.
type DocumentProcessor interface {
	Process(ctx context.Context, task pipeline.DocumentTask) pipeline.Outcome
}

type ProcessorQueue struct {
	proc    DocumentProcessor
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

// WithProcessTimeout bounds each job. 0 keeps the default.
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewProcessorQueue(proc DocumentProcessor, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		proc:    proc,
		logger:  logger,
		workers: 4,
		timeout: 10 * time.Minute,
		ch:      make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("queue.worker.started", "worker_id", workerID)
				for job := range q.ch {
					q.handle(workerID, job)
				}
				q.logger.Debug("queue.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) handle(workerID int, job Job) {
	ctx := context.Background()
	if job.TraceID != "" {
		ctx = common.WithRequestID(ctx, job.TraceID)
	}
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	out := q.proc.Process(ctx, pipeline.DocumentTask{
		Name:    job.Name,
		DocType: job.DocType,
		Blob:    pipeline.FileBlob(job.Path),
	})
	waited := time.Since(job.SubmittedAt).Milliseconds()
	if out.Err != nil {
		q.logger.Error("queue.job.failed",
			"worker_id", workerID,
			"path", job.Path,
			"doc_type", job.DocType,
			"status", common.StatusOf(out.Err),
			"error", common.MessageOf(out.Err),
		)
		return
	}
	q.logger.Info("queue.job.ok",
		"worker_id", workerID,
		"path", job.Path,
		"unique_id", out.UniqueID,
		"since_submit_ms", waited,
	)
}

// Enqueue blocks while the buffer is full.
func (q *ProcessorQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("queue.enqueue.closed", "path", job.Path)
		return ErrQueueClosed
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- job:
	default:
		q.logger.Warn("queue.full", "path", job.Path)
		select {
		case q.ch <- job:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	q.logger.Info("queue.job.queued", "path", job.Path, "doc_type", job.DocType)
	return nil
}

// Shutdown stops intake and waits for queued jobs to drain or ctx to end.
func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("queue.shutdown.interrupted")
	case <-done:
		q.logger.Info("queue.shutdown.ok")
	}
}

// Package batch fans a multi-document upload out over a bounded worker pool
// and gathers the outcomes in submission order.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/joseph-ayodele/lease-intake/internal/common"
	"github.com/joseph-ayodele/lease-intake/internal/llm"
	"github.com/joseph-ayodele/lease-intake/internal/pipeline"
)

const DefaultWorkers = 4

// DocumentProcessor runs one task to a terminal state.
type DocumentProcessor interface {
	Process(ctx context.Context, task pipeline.DocumentTask) pipeline.Outcome
}

// Request is one document of a batch.
type Request struct {
	Name    string
	DocType string
	Blob    pipeline.Opener
}

// Result is the per-document success record returned to the caller.
type Result struct {
	UniqueID  string      `json:"unique_id"`
	DraftJSON llm.Payload `json:"draft_json"`
}

// BatchError reports a failed batch. It surfaces the lowest-index failure.
type BatchError struct {
	failures []pipeline.Outcome
}

func (e *BatchError) Error() string {
	first := e.failures[0]
	return fmt.Sprintf("batch task %d (%s): %v", first.Index, first.Name, first.Err)
}

func (e *BatchError) Unwrap() error { return e.failures[0].Err }

// Failures returns every failed outcome in index order.
func (e *BatchError) Failures() []pipeline.Outcome { return e.failures }

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers caps how many documents of one batch run at once.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithLogger sets the logger; nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// Orchestrator runs upload batches on a bounded pool.
type Orchestrator struct {
	proc    DocumentProcessor
	workers int
	logger  *slog.Logger
}

// NewOrchestrator returns an orchestrator with DefaultWorkers unless overridden.
func NewOrchestrator(proc DocumentProcessor, opts ...Option) *Orchestrator {
	o := &Orchestrator{proc: proc, workers: DefaultWorkers, logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func validate(reqs []Request) error {
	if common.NotEmpty("files", reqs) != nil {
		return common.ValidationErr("No files provided")
	}
	var missing []string
	for i, r := range reqs {
		switch {
		case r.Blob == nil:
			missing = append(missing, fmt.Sprintf("file %d has no content", i))
		case strings.TrimSpace(r.Name) == "":
			missing = append(missing, fmt.Sprintf("file %d has no name", i))
		case strings.TrimSpace(r.DocType) == "":
			missing = append(missing, fmt.Sprintf("file %d has no doc type", i))
		}
	}
	if len(missing) > 0 {
		return common.ValidationErr(strings.Join(missing, "; "))
	}
	return nil
}

// RunBatch processes every request and returns results in submission order.
// Tasks are not cancelled when ctx is; every task runs to completion and its
// side effects remain even when the batch fails.
func (o *Orchestrator) RunBatch(ctx context.Context, reqs []Request) ([]Result, error) {
	if err := validate(reqs); err != nil {
		return nil, err
	}

	batchID := uuid.NewString()
	taskCtx := common.WithBatchID(context.WithoutCancel(ctx), batchID)
	log := common.LoggerWithContext(taskCtx, o.logger)
	start := time.Now()

	pool, err := ants.NewPool(min(o.workers, len(reqs)))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	log.Info("batch.run.start", "tasks", len(reqs), "workers", pool.Cap())

	outcomes := make([]pipeline.Outcome, len(reqs))
	var wg sync.WaitGroup
	for i, r := range reqs {
		task := pipeline.DocumentTask{Index: i, Name: r.Name, DocType: r.DocType, Blob: r.Blob}
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			outcomes[task.Index] = o.runTask(taskCtx, task)
		})
		if err != nil {
			wg.Done()
			outcomes[i] = pipeline.Outcome{Index: i, Name: r.Name, Err: fmt.Errorf("submit task: %w", err)}
		}
	}
	wg.Wait()

	var failures []pipeline.Outcome
	results := make([]Result, 0, len(outcomes))
	for _, out := range outcomes {
		if out.Err != nil {
			failures = append(failures, out)
			continue
		}
		results = append(results, Result{UniqueID: out.UniqueID, DraftJSON: out.Payload})
	}

	elapsed := time.Since(start).Milliseconds()
	if len(failures) > 0 {
		for _, f := range failures {
			log.Warn("batch.task.failed", "task_index", f.Index, "file", f.Name, "unique_id", f.UniqueID, "error", f.Err)
		}
		log.Error("batch.run.failed", "tasks", len(reqs), "failed", len(failures), "elapsed_ms", elapsed)
		return nil, &BatchError{failures: failures}
	}
	log.Info("batch.run.ok", "tasks", len(reqs), "elapsed_ms", elapsed)
	return results, nil
}

func (o *Orchestrator) runTask(ctx context.Context, task pipeline.DocumentTask) (out pipeline.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = pipeline.Outcome{
				Index: task.Index,
				Name:  task.Name,
				Err:   common.NewAppError("TASK_PANIC", task.Name, fmt.Errorf("%v", r)),
			}
		}
	}()
	return o.proc.Process(ctx, task)
}

package async

import (
	"context"
	"errors"
	"time"
)

var ErrQueueClosed = errors.New("queue is shutting down")

// Job is one document picked up outside an HTTP request.
type Job struct {
	Path        string
	Name        string
	DocType     string
	SubmittedAt time.Time
	TraceID     string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

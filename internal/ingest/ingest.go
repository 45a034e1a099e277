package ingest

import "context"

// IngestionResult is the per-file ingest outcome.
type IngestionResult struct {
	SourcePath   string
	DocType      string
	HashHex      string
	Deduplicated bool
	Err          string
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Enqueued     uint32
	Deduplicated uint32
	Failed       uint32
}

// Ingestor is the behavior the watch command depends on.
type Ingestor interface {
	// IngestPath enqueues a single file.
	IngestPath(ctx context.Context, path string) (IngestionResult, error)
	// IngestDirectory enqueues all matching files under the root.
	IngestDirectory(ctx context.Context, skipHidden bool) ([]IngestionResult, DirStats, error)
}

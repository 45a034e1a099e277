package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joseph-ayodele/lease-intake/internal/async"
)

// DropFolder turns files placed under <root>/<docType>/ into queued jobs.
// Identical content is enqueued once per process lifetime.
type DropFolder struct {
	root   string
	queue  async.Queue
	logger *slog.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

func NewDropFolder(root string, queue async.Queue, logger *slog.Logger) (*DropFolder, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("root_path is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DropFolder{root: abs, queue: queue, logger: logger, seen: map[string]struct{}{}}, nil
}

// DocTypeFor returns the first directory of path below root.
func DocTypeFor(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 || parts[0] == ".." || strings.TrimSpace(parts[0]) == "" {
		return "", fmt.Errorf("%s is not inside a doc type folder", path)
	}
	return parts[0], nil
}

func (d *DropFolder) IngestPath(ctx context.Context, path string) (IngestionResult, error) {
	out := IngestionResult{SourcePath: path}

	abs, err := filepath.Abs(path)
	if err != nil {
		return out, fmt.Errorf("abs path: %w", err)
	}
	out.SourcePath = abs

	if !Eligible(abs) {
		return out, fmt.Errorf("not an ingestible document: %q", filepath.Base(abs))
	}
	docType, err := DocTypeFor(d.root, abs)
	if err != nil {
		return out, err
	}
	out.DocType = docType

	sum, err := hashFile(abs)
	if err != nil {
		return out, err
	}
	out.HashHex = sum

	d.mu.Lock()
	_, dup := d.seen[sum]
	d.seen[sum] = struct{}{}
	d.mu.Unlock()
	if dup {
		out.Deduplicated = true
		d.logger.Info("ingest.duplicate", "path", abs, "sha256", sum)
		return out, nil
	}

	job := async.Job{
		Path:        abs,
		Name:        filepath.Base(abs),
		DocType:     docType,
		SubmittedAt: time.Now(),
		TraceID:     sum[:12],
	}
	if err := d.queue.Enqueue(ctx, job); err != nil {
		d.mu.Lock()
		delete(d.seen, sum)
		d.mu.Unlock()
		return out, fmt.Errorf("enqueue: %w", err)
	}
	return out, nil
}

// IngestDirectory walks the root, skips hidden entries if requested,
// and calls IngestPath for each allowed file.
func (d *DropFolder) IngestDirectory(ctx context.Context, skipHidden bool) ([]IngestionResult, DirStats, error) {
	var results []IngestionResult
	var stats DirStats

	err := filepath.WalkDir(d.root, func(path string, e fs.DirEntry, walkErr error) error {
		stats.Scanned++
		if walkErr != nil {
			results = append(results, IngestionResult{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != d.root && IsHidden(path) {
			if e.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if e.IsDir() || !Eligible(path) {
			return nil
		}
		stats.Matched++

		r, err := d.IngestPath(ctx, path)
		if err != nil {
			r.Err = err.Error()
			results = append(results, r)
			stats.Failed++
			return nil
		}
		results = append(results, r)
		if r.Deduplicated {
			stats.Deduplicated++
		} else {
			stats.Enqueued++
		}
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	return results, stats, nil
}

// Watch enqueues existing files and then every new file until ctx is done.
func (d *DropFolder) Watch(ctx context.Context, debounce time.Duration) error {
	events, errs, err := StartWatcher(ctx, WatchConfig{
		Roots:       []string{d.root},
		InitialScan: true,
		Debounce:    debounce,
		Logger:      d.logger,
	})
	if err != nil {
		return err
	}
	for {
		select {
		case p, ok := <-events:
			if !ok {
				return ctx.Err()
			}
			r, err := d.IngestPath(ctx, p)
			if err != nil {
				d.logger.Warn("ingest.skip", "path", p, "error", err)
				continue
			}
			d.logger.Info("ingest.ok", "path", r.SourcePath, "doc_type", r.DocType, "deduplicated", r.Deduplicated)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			d.logger.Warn("ingest.watch.error", "error", err)
		}
	}
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNoText is returned when the engine ran but produced no text.
var ErrNoText = errors.New("no text extracted")

// Client runs a TextExtractor and parks the result in the transient text area.
type Client struct {
	engine  TextExtractor
	tempDir string
	logger  *slog.Logger
}

func NewClient(engine TextExtractor, tempDir string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if tempDir == "" {
		tempDir = "temp"
	}
	return &Client{engine: engine, tempDir: tempDir, logger: logger}
}

// Transcript is the extracted text of one document. Callers must Release it.
type Transcript struct {
	ID     string
	Path   string
	Text   string
	Pages  int
	Method string

	once   sync.Once
	logger *slog.Logger
}

// Release removes the transient text file. Safe to call more than once.
func (t *Transcript) Release() {
	if t == nil {
		return
	}
	t.once.Do(func() {
		if t.Path == "" {
			return
		}
		if err := os.Remove(t.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			t.logger.Warn("extract.release.failed", "path", t.Path, "error", err)
		}
	})
}

// Extract runs the engine on docPath and writes the text to <tempDir>/<id>.txt.
func (c *Client) Extract(ctx context.Context, id, docPath string) (*Transcript, error) {
	res, err := c.engine.Extract(ctx, docPath)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", filepath.Base(docPath), err)
	}
	if strings.TrimSpace(res.Text) == "" {
		return nil, fmt.Errorf("extract %s: %w", filepath.Base(docPath), ErrNoText)
	}

	if err := os.MkdirAll(c.tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	p := filepath.Join(c.tempDir, id+".txt")
	if err := os.WriteFile(p, []byte(res.Text), 0o644); err != nil {
		return nil, fmt.Errorf("write transcript: %w", err)
	}

	c.logger.Debug("extract.transcript.written",
		"unique_id", id,
		"path", p,
		"method", res.Method,
		"pages", res.Pages,
		"chars", len(res.Text),
	)
	return &Transcript{
		ID:     id,
		Path:   p,
		Text:   res.Text,
		Pages:  res.Pages,
		Method: res.Method,
		logger: c.logger,
	}, nil
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/lease-intake/internal/common"
)

const maxErrorBody = 512

// StatusError is a non-2xx reply from a structuring provider. Body is truncated.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.Status, e.Body)
}

// RequestID returns the inbound request id carried by ctx, then the batch id,
// and mints one when neither is set.
func RequestID(ctx context.Context) string {
	if id := common.RequestIDFromContext(ctx); id != "" {
		return id
	}
	if id := common.BatchIDFromContext(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

// PostJSON posts body to url and decodes a 2xx JSON reply into out.
// A non-2xx reply returns *StatusError.
func PostJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: 45 * time.Second}
	}
	reqID := RequestID(ctx)
	log := logger.With("req_id", reqID)
	start := time.Now()

	bs, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	log.Debug("llm.http.request", "url", url, "content_length", len(bs))
	resp, err := client.Do(req)
	if err != nil {
		log.Error("llm.http.send_error", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn("llm.http.body_close_failed", "error", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	log.Info("llm.http.response",
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return &StatusError{Status: resp.StatusCode, Body: truncateBody(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response (%d bytes): %w", len(raw), err)
	}
	return nil
}

func truncateBody(b []byte) string {
	b = bytes.TrimSpace(b)
	if len(b) <= maxErrorBody {
		return string(b)
	}
	return string(b[:maxErrorBody]) + "..."
}

package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joseph-ayodele/lease-intake/internal/llm"
)

// Structure implements llm.Structurer using text-only chat/completions in JSON mode.
func (c *Client) Structure(ctx context.Context, docType, rawText string, kind llm.DocKind) (llm.Payload, error) {
	if strings.TrimSpace(rawText) == "" {
		return llm.Payload{}, llm.ErrEmptyText
	}
	if c.cfg.APIKey == "" {
		return llm.Payload{}, fmt.Errorf("%w: missing OpenAI API key", llm.ErrNotConfigured)
	}

	rid := llm.RequestID(ctx)
	start := time.Now()
	c.logger.Info("llm.structure.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"kind", kind.String(),
		"doc_type", docType,
		"text_len", len(rawText),
	)

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": llm.SystemPrompt(kind)},
			{"role": "user", "content": llm.UserPrompt(docType, rawText)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := llm.PostJSON(ctx, c.http, endpoint, headers, body, &cc, c.logger); err != nil {
		var se *llm.StatusError
		if errors.As(err, &se) {
			c.logger.Error("llm.structure.http_error",
				"req_id", rid, "status", se.Status, "body", se.Body,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
		} else {
			c.logger.Error("llm.structure.request_failed", "req_id", rid, "error", err)
		}
		return llm.Payload{}, fmt.Errorf("openai request: %w", err)
	}
	if len(cc.Choices) == 0 {
		c.logger.Error("llm.structure.no_choices", "req_id", rid)
		return llm.Payload{}, errors.New("no choices in openai response")
	}

	payload, err := llm.ParsePayload(kind, []byte(cc.Choices[0].Message.Content))
	if err != nil {
		c.logger.Error("llm.structure.parse_failed",
			"req_id", rid, "error", err, "content", cc.Choices[0].Message.Content,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Payload{}, err
	}

	c.logger.Info("llm.structure.ok",
		"req_id", rid,
		"kind", kind.String(),
		"objects", len(payload.Objects()),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return payload, nil
}

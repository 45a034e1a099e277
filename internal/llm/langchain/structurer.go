package langchain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/joseph-ayodele/lease-intake/internal/llm"
)

const parseAttempts = 3

type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
}

// Structurer implements llm.Structurer on top of any langchaingo chat model.
type Structurer struct {
	model       llms.Model
	temperature float64
	logger      *slog.Logger
}

// New builds a Structurer backed by an OpenAI-compatible endpoint.
func New(cfg Config, logger *slog.Logger) (*Structurer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: missing API key", llm.ErrNotConfigured)
	}
	opts := []openai.Option{openai.WithToken(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	return NewWithModel(client, cfg.Temperature, logger), nil
}

func NewWithModel(model llms.Model, temperature float64, logger *slog.Logger) *Structurer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Structurer{
		model:       model,
		temperature: temperature,
		logger:      logger.With("component", "langchain-structurer"),
	}
}

func (s *Structurer) Structure(ctx context.Context, docType, rawText string, kind llm.DocKind) (llm.Payload, error) {
	if strings.TrimSpace(rawText) == "" {
		return llm.Payload{}, llm.ErrEmptyText
	}
	if s.model == nil {
		return llm.Payload{}, llm.ErrNotConfigured
	}

	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(llm.SystemPrompt(kind))},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(llm.UserPrompt(docType, rawText))},
		},
	}

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt < parseAttempts; attempt++ {
		resp, err := s.model.GenerateContent(ctx, content,
			llms.WithTemperature(s.temperature),
			llms.WithJSONMode(),
		)
		if err != nil {
			s.logger.Error("llm.structure.generate_failed", "attempt", attempt+1, "error", err)
			return llm.Payload{}, err
		}
		if len(resp.Choices) < 1 {
			lastErr = fmt.Errorf("%w: no choices returned", llm.ErrMalformedPayload)
			continue
		}

		payload, err := llm.ParsePayload(kind, []byte(resp.Choices[0].Content))
		if err != nil {
			lastErr = err
			s.logger.Warn("llm.structure.parse_retry",
				"attempt", attempt+1,
				"kind", kind.String(),
				"error", err,
			)
			continue
		}
		s.logger.Info("llm.structure.ok",
			"kind", kind.String(),
			"attempts", attempt+1,
			"objects", len(payload.Objects()),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return payload, nil
	}

	s.logger.Error("llm.structure.parse_failed", "attempts", parseAttempts, "error", lastErr)
	return llm.Payload{}, lastErr
}

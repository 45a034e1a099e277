package vertex

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"

	"github.com/joseph-ayodele/lease-intake/internal/llm"
)

const defaultModel = "gemini-1.5-pro"

// generator is the part of *genai.GenerativeModel we use.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type Config struct {
	ProjectID string
	Region    string
	Model     string
}

// Structurer implements llm.Structurer on Vertex AI Gemini models in JSON mode.
type Structurer struct {
	models     map[llm.DocKind]generator
	baseClient *genai.Client
	logger     *slog.Logger
}

func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Structurer, error) {
	if cfg.ProjectID == "" || cfg.Region == "" {
		return nil, fmt.Errorf("%w: projectID and region cannot be empty", llm.ErrNotConfigured)
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}

	baseClient, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	models := make(map[llm.DocKind]generator, 2)
	for _, kind := range []llm.DocKind{llm.Single, llm.Portfolio} {
		m := baseClient.GenerativeModel(cfg.Model)
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(llm.SystemPrompt(kind))},
		}
		m.GenerationConfig = genai.GenerationConfig{
			ResponseMIMEType: "application/json",
			Temperature:      genai.Ptr[float32](0.0),
		}
		models[kind] = m
	}

	s := newStructurer(models, logger)
	s.baseClient = baseClient
	return s, nil
}

func newStructurer(models map[llm.DocKind]generator, logger *slog.Logger) *Structurer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Structurer{models: models, logger: logger.With("component", "vertex-structurer")}
}

func (s *Structurer) Structure(ctx context.Context, docType, rawText string, kind llm.DocKind) (llm.Payload, error) {
	if strings.TrimSpace(rawText) == "" {
		return llm.Payload{}, llm.ErrEmptyText
	}
	model, ok := s.models[kind]
	if !ok {
		return llm.Payload{}, fmt.Errorf("%w: no model for %s documents", llm.ErrNotConfigured, kind)
	}

	start := time.Now()
	resp, err := model.GenerateContent(ctx, genai.Text(llm.UserPrompt(docType, rawText)))
	if err != nil {
		s.logger.Error("llm.structure.generate_failed", "kind", kind.String(), "error", err)
		return llm.Payload{}, fmt.Errorf("vertex generate: %w", err)
	}

	text := responseText(resp)
	payload, err := llm.ParsePayload(kind, []byte(text))
	if err != nil {
		s.logger.Error("llm.structure.parse_failed", "kind", kind.String(), "error", err, "content", text)
		return llm.Payload{}, err
	}

	s.logger.Info("llm.structure.ok",
		"kind", kind.String(),
		"objects", len(payload.Objects()),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return payload, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}

func (s *Structurer) Close() error {
	if s.baseClient != nil {
		return s.baseClient.Close()
	}
	return nil
}

package index

import (
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

type EmbedderConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// NewOpenAIEmbedder builds a langchaingo embedder for an OpenAI-compatible endpoint.
func NewOpenAIEmbedder(cfg EmbedderConfig) (Embedder, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	token := cfg.APIKey
	if token == "" {
		// local OpenAI-compatible servers accept any token
		token = "none"
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	e, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}
	return e, nil
}

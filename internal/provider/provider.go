// Package provider abstracts the embedding backends used by semantic
// search. Provider failures are reported with their own code so callers can
// distinguish collaborator outages from daemon bugs.
package provider

import (
	"context"

	openai "github.com/sashabaranov/go-openai"

	"wisp/internal/wisperr"
)

// EmbeddingProvider turns text into vectors.
type EmbeddingProvider interface {
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// OpenAI is the hosted embedding backend.
type OpenAI struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewOpenAI creates the OpenAI-backed provider. baseURL may point at any
// API-compatible endpoint (local inference servers included).
func NewOpenAI(apiKey, baseURL, model string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.EmbeddingModel(model),
	}
}

func (p *OpenAI) Name() string { return "openai" }

func (p *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: p.model,
	})
	if err != nil {
		return nil, wisperr.Wrap(wisperr.ProviderError, "embedding request failed", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, wisperr.Newf(wisperr.ProviderError,
			"embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

// OllamaEmbedder wraps the Ollama API for embedding generation.
type OllamaEmbedder struct {
	client *api.Client
	model  string
}

// NewOllamaEmbedder creates an embedder connected to Ollama.
func NewOllamaEmbedder(cfg Config) (*OllamaEmbedder, error) {
	u, err := url.Parse(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host: %w", err)
	}

	client := api.NewClient(u, http.DefaultClient)
	return &OllamaEmbedder{
		client: client,
		model:  cfg.Model,
	}, nil
}

// Embed generates a single embedding vector.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{
		Model: e.model,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}

	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama returned no embeddings")
	}

	return resp.Embeddings[0], nil
}

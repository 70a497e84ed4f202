// Package embedding provides live vector embedding generation via Ollama,
// used by the reranker to embed a query whose qid has no precomputed
// vector in the query embedding store (spec §4.8 expansion).
package embedding

import "context"

// Config holds settings for the embedding client.
type Config struct {
	Host  string // Ollama server URL (default: "http://localhost:11434")
	Model string // Embedding model (default: "nomic-embed-text")
}

// DefaultConfig returns sensible defaults for local Ollama.
func DefaultConfig() Config {
	return Config{
		Host:  "http://localhost:11434",
		Model: "nomic-embed-text",
	}
}

// Embedder generates a vector embedding for text. It satisfies
// internal/rerank.Encoder structurally.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

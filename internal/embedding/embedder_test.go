package embedding

import "testing"

func TestConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Host != "http://localhost:11434" {
		t.Errorf("unexpected default host: %s", cfg.Host)
	}
	if cfg.Model != "nomic-embed-text" {
		t.Errorf("unexpected default model: %s", cfg.Model)
	}
}

// var _ Embedder = (*OllamaEmbedder)(nil) pins OllamaEmbedder to the
// single-method interface the reranker's live-encoding fallback depends
// on (spec §4.8 expansion).
var _ Embedder = (*OllamaEmbedder)(nil)

func TestNewOllamaEmbedder_BuildsClientForValidHost(t *testing.T) {
	e, err := NewOllamaEmbedder(Config{Host: "http://localhost:11434", Model: "nomic-embed-text"})
	if err != nil {
		t.Fatalf("NewOllamaEmbedder: %v", err)
	}
	if e.model != "nomic-embed-text" {
		t.Errorf("model = %q, want %q", e.model, "nomic-embed-text")
	}
}

func TestNewOllamaEmbedder_RejectsUnparsableHost(t *testing.T) {
	if _, err := NewOllamaEmbedder(Config{Host: "http://%zz", Model: "nomic-embed-text"}); err == nil {
		t.Fatal("expected error for unparsable host URL")
	}
}

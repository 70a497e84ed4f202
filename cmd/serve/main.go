// Command serve runs the passage retrieval engine as an MCP stdio
// server, exposing search and rerank tools over an already-built index
// (spec §6 expansion: the long-lived equivalent of the search/rerank
// batch commands).
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	gosdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/bad33ndj3/passage-retrieval/internal/bm25"
	"github.com/bad33ndj3/passage-retrieval/internal/cliutil"
	"github.com/bad33ndj3/passage-retrieval/internal/doclen"
	"github.com/bad33ndj3/passage-retrieval/internal/embedding"
	"github.com/bad33ndj3/passage-retrieval/internal/embedstore"
	"github.com/bad33ndj3/passage-retrieval/internal/lexicon"
	mcphandlers "github.com/bad33ndj3/passage-retrieval/internal/mcp"
	"github.com/bad33ndj3/passage-retrieval/internal/pagetable"
	"github.com/bad33ndj3/passage-retrieval/internal/postings"
	"github.com/bad33ndj3/passage-retrieval/internal/rerank"
)

const (
	serverName      = "passage-retrieval"
	serverVersion   = "v0.1.0"
	defaultCacheDir = ".passage-retrieval-cache"
)

type flags struct {
	indexDir    string
	queryH5     string
	passageH5   string
	pageTable   string
	cacheDir    string
	ollamaHost  string
	ollamaModel string
}

func main() {
	// MCP stdio servers must keep stdout reserved for the protocol; the
	// standard log package is only used for the file-logger setup warning
	// below, and it logs to stderr.
	log.SetOutput(os.Stderr)

	var f flags

	root := &cobra.Command{
		Use:           "serve",
		Short:         "Run the search and rerank engines as an MCP stdio server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), f)
		},
	}

	root.Flags().StringVar(&f.indexDir, "index_dir", "", "Directory containing lexicon.tsv, postings.bin, doclen.bin (required)")
	root.Flags().StringVar(&f.queryH5, "query_h5", "", "Optional query embedding store (Parquet); enables the rerank tool")
	root.Flags().StringVar(&f.passageH5, "passage_h5", "", "Optional passage embedding store (Parquet); enables the rerank tool")
	root.Flags().StringVar(&f.pageTable, "page_table", "", "Optional page_table.tsv for internal -> external docid remapping")
	root.Flags().StringVar(&f.cacheDir, "cache-dir", defaultCacheDir, "Directory for the debug log file")
	root.Flags().StringVar(&f.ollamaHost, "ollama-host", "", "Optional Ollama host for live query encoding fallback in rerank")
	root.Flags().StringVar(&f.ollamaModel, "ollama-model", "nomic-embed-text", "Ollama embedding model, used only with --ollama-host")
	_ = root.MarkFlagRequired("index_dir")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func runServe(ctx context.Context, f flags) error {
	logger, closer, err := cliutil.NewFileLogger(f.cacheDir)
	if err != nil {
		log.Printf("Warning: failed to setup file logger: %v", err)
	} else {
		defer closer()
	}

	logger.Info("server starting", "name", serverName, "version", serverVersion, "index_dir", f.indexDir)

	lex, err := lexicon.Load(filepath.Join(f.indexDir, "lexicon.tsv"))
	if err != nil {
		return fmt.Errorf("load lexicon: %w", err)
	}
	dl, err := doclen.Load(filepath.Join(f.indexDir, "doclen.bin"))
	if err != nil {
		return fmt.Errorf("load doclen sidecar: %w", err)
	}
	pf, err := postings.Open(filepath.Join(f.indexDir, "postings.bin"))
	if err != nil {
		return fmt.Errorf("open postings: %w", err)
	}
	defer pf.Close()

	var pt *pagetable.Table
	if f.pageTable != "" {
		pt, err = pagetable.Load(f.pageTable)
		if err != nil {
			return fmt.Errorf("load page table: %w", err)
		}
	}

	scorer := bm25.NewScorer(lex, dl, bm25.DefaultConfig())

	reranker := buildReranker(f, logger)

	handlers := mcphandlers.NewHandlers(scorer, pf, pt, reranker, logger)

	server := gosdkmcp.NewServer(&gosdkmcp.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, &gosdkmcp.ServerOptions{
		Instructions: "Use search for BM25-ranked passages, then rerank with the same qid/query to fuse in dense similarity.",
	})

	gosdkmcp.AddTool(server, &gosdkmcp.Tool{
		Name:        "search",
		Description: "Score a query against the BM25 index and return the top ranked external passage ids.",
	}, handlers.Search)

	gosdkmcp.AddTool(server, &gosdkmcp.Tool{
		Name:        "rerank",
		Description: "Fuse BM25 candidates for a query with dense embedding similarity (requires --query_h5/--passage_h5 at startup).",
	}, handlers.Rerank)

	logger.Info("server ready, waiting for requests")

	if err := server.Run(ctx, &gosdkmcp.StdioTransport{}); err != nil {
		logger.Error("server error", "error", err)
		return err
	}
	return nil
}

// buildReranker wires an optional Reranker from the embedding store and
// live-encoder flags. It returns nil when no stores were configured, in
// which case the rerank tool reports itself unavailable rather than the
// server failing to start (spec §4.8 expansion: rerank is opt-in).
func buildReranker(f flags, logger *slog.Logger) *rerank.Reranker {
	if f.queryH5 == "" || f.passageH5 == "" {
		logger.Info("rerank tool disabled: --query_h5/--passage_h5 not both set")
		return nil
	}
	queryStore, err := embedstore.Load(f.queryH5)
	if err != nil {
		logger.Warn("rerank tool disabled: failed to load query embedding store", "error", err)
		return nil
	}
	passageStore, err := embedstore.Load(f.passageH5)
	if err != nil {
		logger.Warn("rerank tool disabled: failed to load passage embedding store", "error", err)
		return nil
	}

	var encoder rerank.Encoder
	if f.ollamaHost != "" {
		enc, err := embedding.NewOllamaEmbedder(embedding.Config{Host: f.ollamaHost, Model: f.ollamaModel})
		if err != nil {
			logger.Warn("live query encoding disabled, falling back to precomputed query vectors only", "error", err)
		} else {
			encoder = enc
			logger.Info("live query encoding enabled", "host", f.ollamaHost, "model", f.ollamaModel)
		}
	}

	logger.Info("rerank tool enabled", "query_rows", queryStore.Len(), "passage_rows", passageStore.Len())
	return rerank.New(rerank.Config{
		Fusion:    rerank.FusionLinear,
		Alpha:     0.5,
		NormDense: rerank.NormMinMax,
		NormBM25:  rerank.NormMinMax,
		TopKOut:   10,
		Tag:       "rerank",
	}, queryStore, passageStore, encoder)
}

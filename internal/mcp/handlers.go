// Package mcp provides MCP tool handlers for the passage retrieval
// server: a thin translation layer from MCP tool-call arguments to the
// bm25/rerank packages, grounded on the teacher's internal/mcp/handlers.go
// request-struct-plus-method style (spec §6 expansion: the `serve` command).
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bad33ndj3/passage-retrieval/internal/bm25"
	"github.com/bad33ndj3/passage-retrieval/internal/embedstore"
	"github.com/bad33ndj3/passage-retrieval/internal/pagetable"
	"github.com/bad33ndj3/passage-retrieval/internal/postings"
	"github.com/bad33ndj3/passage-retrieval/internal/rerank"
)

// SearchArgs defines the arguments for the search tool.
type SearchArgs struct {
	Query string `json:"query" jsonschema_description:"Query text to score against the index"`
	TopK  int    `json:"topk,omitempty" jsonschema_description:"Number of ranked results to return (default 10)"`
	Mode  string `json:"mode,omitempty" jsonschema_description:"Candidate qualification mode: disj or conj (default disj)"`
}

// RerankArgs defines the arguments for the rerank tool.
type RerankArgs struct {
	QID       string  `json:"qid" jsonschema_description:"Query id, used to look up a precomputed query vector and to cache a live-encoded one"`
	Query     string  `json:"query" jsonschema_description:"Query text: scores BM25 candidates and, if qid has no precomputed vector, feeds the live encoder"`
	TopKIn    int     `json:"topk_in,omitempty" jsonschema_description:"BM25 candidates to rerank (default 1000)"`
	TopKOut   int     `json:"topk_out,omitempty" jsonschema_description:"Ranked results to return after fusion (default 10)"`
	Fusion    string  `json:"fusion,omitempty" jsonschema_description:"Fusion mode: dense or linear (default linear)"`
	Alpha     float64 `json:"alpha,omitempty" jsonschema_description:"Linear fusion weight, final = alpha*dense + (1-alpha)*bm25 (default 0.5)"`
	NormDense string  `json:"norm_dense,omitempty" jsonschema_description:"Dense score normalisation: none, minmax, or zscore (default minmax)"`
	NormBM25  string  `json:"norm_bm25,omitempty" jsonschema_description:"BM25 score normalisation: none, minmax, or zscore (default minmax)"`
}

// Handlers wraps the search and rerank engines and exposes them as MCP
// tools, so an interactive client can query the same index the batch
// CLI commands operate on without re-invoking a process per query.
type Handlers struct {
	scorer    *bm25.Scorer
	postings  *postings.File
	pageTable *pagetable.Table
	reranker  *rerank.Reranker
	logger    *slog.Logger
}

// NewHandlers builds Handlers over an already-open index. reranker may
// be nil, in which case the rerank tool is registered but returns an
// error explaining that no embedding stores were configured at startup.
func NewHandlers(scorer *bm25.Scorer, pf *postings.File, pageTable *pagetable.Table, reranker *rerank.Reranker, logger *slog.Logger) *Handlers {
	return &Handlers{scorer: scorer, postings: pf, pageTable: pageTable, reranker: reranker, logger: logger}
}

func parseMode(s string) (bm25.Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "disj":
		return bm25.Disjunctive, nil
	case "conj":
		return bm25.Conjunctive, nil
	default:
		return 0, fmt.Errorf("invalid mode %q: must be disj or conj", s)
	}
}

func parseNormMethod(s string) (rerank.NormMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "minmax":
		return rerank.NormMinMax, nil
	case "none":
		return rerank.NormNone, nil
	case "zscore":
		return rerank.NormZScore, nil
	default:
		return 0, fmt.Errorf("invalid normalisation %q: must be none, minmax, or zscore", s)
	}
}

// Search handles the search tool call: scores args.Query with BM25 over
// the open index and returns the top ranked external ids.
func (h *Handlers) Search(ctx context.Context, req *mcp.CallToolRequest, args SearchArgs) (*mcp.CallToolResult, any, error) {
	query := strings.TrimSpace(args.Query)
	if query == "" {
		return nil, nil, fmt.Errorf("query is required")
	}
	mode, err := parseMode(args.Mode)
	if err != nil {
		return nil, nil, err
	}
	topK := args.TopK
	if topK <= 0 {
		topK = 10
	}

	h.logger.Debug("search: scoring query", "query", query, "mode", args.Mode, "topk", topK)

	scored, err := h.scorer.Score(h.postings, query, mode)
	if err != nil {
		h.logger.Error("search: scoring failed", "error", err)
		return nil, nil, err
	}
	top, err := bm25.TopK(scored, topK)
	if err != nil {
		return nil, nil, err
	}

	if len(top) == 0 {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "No results."}},
		}, nil, nil
	}

	var sb strings.Builder
	for i, sd := range top {
		fmt.Fprintf(&sb, "%d. %s\tscore=%.4f\n", i+1, h.pageTable.External(sd.DocID), sd.Score)
	}

	h.logger.Info("search: success", "query", query, "results", len(top))
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: sb.String()}},
	}, nil, nil
}

// Rerank handles the rerank tool call: scores args.Query with BM25,
// then fuses the candidates with dense similarity via the Reranker
// (spec §4.8, computed on demand rather than from a static run file).
func (h *Handlers) Rerank(ctx context.Context, req *mcp.CallToolRequest, args RerankArgs) (*mcp.CallToolResult, any, error) {
	if h.reranker == nil {
		return nil, nil, fmt.Errorf("rerank is unavailable: no embedding stores were configured at startup (--query_h5/--passage_h5)")
	}
	qid := strings.TrimSpace(args.QID)
	query := strings.TrimSpace(args.Query)
	if qid == "" || query == "" {
		return nil, nil, fmt.Errorf("qid and query are required")
	}
	fusion := rerank.FusionLinear
	if strings.EqualFold(strings.TrimSpace(args.Fusion), "dense") {
		fusion = rerank.FusionDense
	}
	normDense, err := parseNormMethod(args.NormDense)
	if err != nil {
		return nil, nil, err
	}
	normBM25, err := parseNormMethod(args.NormBM25)
	if err != nil {
		return nil, nil, err
	}
	topKIn := args.TopKIn
	if topKIn <= 0 {
		topKIn = 1000
	}
	topKOut := args.TopKOut
	if topKOut <= 0 {
		topKOut = 10
	}
	alpha := args.Alpha
	if alpha == 0 {
		alpha = 0.5
	}

	scored, err := h.scorer.Score(h.postings, query, bm25.Disjunctive)
	if err != nil {
		h.logger.Error("rerank: BM25 scoring failed", "error", err)
		return nil, nil, err
	}
	top, err := bm25.TopK(scored, topKIn)
	if err != nil {
		return nil, nil, err
	}

	candidates := make([]rerank.Candidate, len(top))
	for i, sd := range top {
		candidates[i] = rerank.Candidate{PID: h.pageTable.External(sd.DocID), BM25Score: sd.Score}
	}

	h.reranker.Configure(rerank.Config{
		Fusion:    fusion,
		Alpha:     alpha,
		NormDense: normDense,
		NormBM25:  normBM25,
		TopKOut:   topKOut,
		Tag:       "rerank",
	})

	rows, err := h.reranker.RerankQuery(ctx, qid, query, candidates)
	if err != nil {
		h.logger.Error("rerank: fusion failed", "qid", qid, "error", err)
		return nil, nil, err
	}
	if len(rows) == 0 {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "No results."}},
		}, nil, nil
	}

	var sb strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&sb, "%d. %s\tscore=%.6f\n", r.Rank, r.DocID, r.Score)
	}

	h.logger.Info("rerank: success", "qid", qid, "results", len(rows))
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: sb.String()}},
	}, nil, nil
}

// Command rerank fuses a BM25 run file with dense embedding similarity
// (spec §4.8).
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bad33ndj3/passage-retrieval/internal/cliutil"
	"github.com/bad33ndj3/passage-retrieval/internal/embedding"
	"github.com/bad33ndj3/passage-retrieval/internal/embedstore"
	"github.com/bad33ndj3/passage-retrieval/internal/model"
	"github.com/bad33ndj3/passage-retrieval/internal/rerank"
	"github.com/bad33ndj3/passage-retrieval/internal/trecrun"
)

type flags struct {
	bm25Run     string
	queryH5     string
	passageH5   string
	qidList     string
	topKIn      int
	topKOut     int
	fusion      string
	alpha       float64
	normDense   string
	normBM25    string
	runOut      string
	tag         string
	ollamaHost  string
	ollamaModel string
}

func main() {
	var f flags

	root := &cobra.Command{
		Use:           "rerank",
		Short:         "Fuse a BM25 run with dense embedding similarity",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRerank(cmd.Context(), f)
		},
	}

	root.Flags().StringVar(&f.bm25Run, "bm25_run", "", "BM25 TREC run file (required)")
	root.Flags().StringVar(&f.queryH5, "query_h5", "", "Query embedding store (Parquet) (required)")
	root.Flags().StringVar(&f.passageH5, "passage_h5", "", "Passage embedding store (Parquet) (required)")
	root.Flags().StringVar(&f.qidList, "qid_list", "", "Optional file of qids to consider (one per line); default all qids in bm25_run")
	root.Flags().IntVar(&f.topKIn, "topk_in", 1000, "Candidates per query taken from the BM25 run")
	root.Flags().IntVar(&f.topKOut, "topk_out", 100, "Ranked results kept per query after fusion")
	root.Flags().StringVar(&f.fusion, "fusion", "linear", "Fusion mode: dense or linear")
	root.Flags().Float64Var(&f.alpha, "alpha", 0.5, "Linear fusion weight, final = alpha*dense + (1-alpha)*bm25")
	root.Flags().StringVar(&f.normDense, "norm_dense", "minmax", "Dense score normalisation: none, minmax, or zscore")
	root.Flags().StringVar(&f.normBM25, "norm_bm25", "minmax", "BM25 score normalisation: none, minmax, or zscore")
	root.Flags().StringVar(&f.runOut, "run_out", "", "Path for the output TREC run file (required)")
	root.Flags().StringVar(&f.tag, "tag", "rerank", "Tag written in the output run file")
	root.Flags().StringVar(&f.ollamaHost, "ollama-host", "", "Optional Ollama host for live query encoding fallback")
	root.Flags().StringVar(&f.ollamaModel, "ollama-model", "nomic-embed-text", "Ollama embedding model, used only with --ollama-host")
	_ = root.MarkFlagRequired("bm25_run")
	_ = root.MarkFlagRequired("query_h5")
	_ = root.MarkFlagRequired("passage_h5")
	_ = root.MarkFlagRequired("run_out")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func parseNormMethod(s string) (rerank.NormMethod, error) {
	switch s {
	case "none":
		return rerank.NormNone, nil
	case "minmax":
		return rerank.NormMinMax, nil
	case "zscore":
		return rerank.NormZScore, nil
	default:
		return 0, fmt.Errorf("invalid normalisation %q: must be none, minmax, or zscore", s)
	}
}

func runRerank(ctx context.Context, f flags) error {
	logger := cliutil.NewStderrLogger()

	var fusion rerank.FusionMode
	switch f.fusion {
	case "dense":
		fusion = rerank.FusionDense
	case "linear":
		fusion = rerank.FusionLinear
	default:
		err := fmt.Errorf("invalid --fusion %q: must be dense or linear", f.fusion)
		cliutil.Fatal(logger, "invalid fusion mode", err)
		return err
	}
	normDense, err := parseNormMethod(f.normDense)
	if err != nil {
		cliutil.Fatal(logger, "invalid --norm_dense", err)
		return err
	}
	normBM25, err := parseNormMethod(f.normBM25)
	if err != nil {
		cliutil.Fatal(logger, "invalid --norm_bm25", err)
		return err
	}

	queryStore, err := embedstore.Load(f.queryH5)
	if err != nil {
		cliutil.Fatal(logger, "failed to load query embedding store", err)
		return err
	}
	passageStore, err := embedstore.Load(f.passageH5)
	if err != nil {
		cliutil.Fatal(logger, "failed to load passage embedding store", err)
		return err
	}
	if queryStore.Len() > 0 && passageStore.Len() > 0 && queryStore.Dim != passageStore.Dim {
		err := fmt.Errorf("query embeddings have %d dims, passage embeddings have %d", queryStore.Dim, passageStore.Dim)
		cliutil.Fatal(logger, "embedding dimension mismatch", err)
		return err
	}

	bm25Records, err := trecrun.Read(f.bm25Run)
	if err != nil {
		cliutil.Fatal(logger, "failed to read BM25 run file", err)
		return err
	}

	var encoder rerank.Encoder
	if f.ollamaHost != "" {
		enc, err := embedding.NewOllamaEmbedder(embedding.Config{Host: f.ollamaHost, Model: f.ollamaModel})
		if err != nil {
			cliutil.Fatal(logger, "failed to create live Ollama encoder", err)
			return err
		}
		encoder = enc
		logger.Info("live query encoding enabled", "host", f.ollamaHost, "model", f.ollamaModel)
	}

	wantQIDs, qidText, err := loadQIDFilter(f.qidList)
	if err != nil {
		cliutil.Fatal(logger, "failed to read qid list", err)
		return err
	}

	byQuery := groupByQID(bm25Records, f.topKIn, wantQIDs)

	qids := make([]string, 0, len(byQuery))
	for qid := range byQuery {
		qids = append(qids, qid)
	}
	sort.Strings(qids)

	r := rerank.New(rerank.Config{
		Fusion:    fusion,
		Alpha:     f.alpha,
		NormDense: normDense,
		NormBM25:  normBM25,
		TopKOut:   f.topKOut,
		Tag:       f.tag,
	}, queryStore, passageStore, encoder)

	var out []model.RunRecord
	candidatesPerQuery := make([]int, 0, len(qids))
	for _, qid := range qids {
		candidates := byQuery[qid]
		rows, err := r.RerankQuery(ctx, qid, qidText[qid], candidates)
		if err != nil {
			cliutil.Warn(logger, fmt.Sprintf("skipping query %q", qid), "error", err)
			candidatesPerQuery = append(candidatesPerQuery, 0)
			continue
		}
		out = append(out, rows...)
		candidatesPerQuery = append(candidatesPerQuery, len(rows))
	}

	if err := trecrun.Write(f.runOut, out, trecrun.SixDecimals); err != nil {
		cliutil.Fatal(logger, "failed to write run file", err)
		return err
	}

	summary := trecrun.Summarize(candidatesPerQuery)
	summary.Log(logger)
	cliutil.OK(logger, "rerank complete", "queries", len(qids), "rows_written", len(out))
	return nil
}

// loadQIDFilter reads an optional qid allowlist. Each line is either a
// bare qid (list mode, no live-encoding text available) or a
// qid<TAB>text row matching the Query Driver's query file format, which
// also supplies the text a live encoder needs for a qid missing from
// query_h5. A nil allowlist means "no filter, consider every qid in the
// BM25 run."
func loadQIDFilter(path string) (want map[string]bool, text map[string]string, err error) {
	if path == "" {
		return nil, nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read qid list %s: %w", path, err)
	}
	want = make(map[string]bool)
	text = make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		if idx := strings.IndexByte(line, '\t'); idx >= 0 {
			qid, t := line[:idx], line[idx+1:]
			want[qid] = true
			text[qid] = t
			continue
		}
		want[line] = true
	}
	return want, text, nil
}

// groupByQID buckets a flat BM25 run file by query, keeping at most
// topKIn candidates per query (already rank-ordered by the writer) and
// applying the optional qid allowlist.
func groupByQID(records []model.RunRecord, topKIn int, want map[string]bool) map[string][]rerank.Candidate {
	byQuery := make(map[string][]rerank.Candidate)
	for _, rec := range records {
		if want != nil && !want[rec.QID] {
			continue
		}
		if len(byQuery[rec.QID]) >= topKIn {
			continue
		}
		byQuery[rec.QID] = append(byQuery[rec.QID], rerank.Candidate{PID: rec.DocID, BM25Score: rec.Score})
	}
	return byQuery
}

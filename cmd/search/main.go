// Command search evaluates a query file against a built index and
// writes a TREC run file (spec §4.6).
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/bad33ndj3/passage-retrieval/internal/bm25"
	"github.com/bad33ndj3/passage-retrieval/internal/cliutil"
	"github.com/bad33ndj3/passage-retrieval/internal/doclen"
	"github.com/bad33ndj3/passage-retrieval/internal/lexicon"
	"github.com/bad33ndj3/passage-retrieval/internal/model"
	"github.com/bad33ndj3/passage-retrieval/internal/pagetable"
	"github.com/bad33ndj3/passage-retrieval/internal/query"
	"github.com/bad33ndj3/passage-retrieval/internal/trecrun"
)

type flags struct {
	indexDir  string
	queries   string
	runOut    string
	k1        float64
	b         float64
	mode      string
	topK      int
	pageTable string
	workers   int
}

func main() {
	var f flags

	root := &cobra.Command{
		Use:           "search",
		Short:         "Evaluate a query file against a BM25 index and write a TREC run file",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), f)
		},
	}

	root.Flags().StringVar(&f.indexDir, "index_dir", "", "Directory containing lexicon.tsv, postings.bin, doclen.bin (required)")
	root.Flags().StringVar(&f.queries, "queries", "", "Path to qid/text query file (required)")
	root.Flags().StringVar(&f.runOut, "run_out", "", "Path for the output TREC run file (required)")
	root.Flags().Float64Var(&f.k1, "k1", bm25.DefaultConfig().K1, "BM25 k1 parameter")
	root.Flags().Float64Var(&f.b, "b", bm25.DefaultConfig().B, "BM25 b parameter")
	root.Flags().StringVar(&f.mode, "mode", "disj", "Candidate qualification mode: disj or conj")
	root.Flags().IntVar(&f.topK, "topk", 1000, "Number of ranked results to keep per query")
	root.Flags().StringVar(&f.pageTable, "page_table", "", "Optional page_table.tsv for internal -> external docid remapping")
	root.Flags().IntVar(&f.workers, "workers", runtime.NumCPU(), "Query worker pool size")
	_ = root.MarkFlagRequired("index_dir")
	_ = root.MarkFlagRequired("queries")
	_ = root.MarkFlagRequired("run_out")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func runSearch(ctx context.Context, f flags) error {
	logger := cliutil.NewStderrLogger()

	var mode bm25.Mode
	switch f.mode {
	case "disj":
		mode = bm25.Disjunctive
	case "conj":
		mode = bm25.Conjunctive
	default:
		err := fmt.Errorf("invalid --mode %q: must be 'disj' or 'conj'", f.mode)
		cliutil.Fatal(logger, "invalid search mode", err)
		return err
	}

	lex, err := lexicon.Load(filepath.Join(f.indexDir, "lexicon.tsv"))
	if err != nil {
		cliutil.Fatal(logger, "failed to load lexicon", err)
		return err
	}
	dl, err := doclen.Load(filepath.Join(f.indexDir, "doclen.bin"))
	if err != nil {
		cliutil.Fatal(logger, "failed to load doclen sidecar", err)
		return err
	}

	var pt *pagetable.Table
	if f.pageTable != "" {
		pt, err = pagetable.Load(f.pageTable)
		if err != nil {
			cliutil.Fatal(logger, "failed to load page table", err)
			return err
		}
	}

	queries, err := query.ReadQueries(f.queries, logger)
	if err != nil {
		cliutil.Fatal(logger, "failed to read query file", err)
		return err
	}

	scorer := bm25.NewScorer(lex, dl, bm25.Config{K1: f.k1, B: f.b})

	results, err := query.RunAll(ctx, query.Options{
		PostingsPath: filepath.Join(f.indexDir, "postings.bin"),
		Scorer:       scorer,
		PageTable:    pt,
		Mode:         mode,
		TopK:         f.topK,
		Workers:      f.workers,
		Logger:       logger,
	}, queries)
	if err != nil {
		cliutil.Fatal(logger, "query run failed", err)
		return err
	}

	var flat []model.RunRecord
	candidatesPerQuery := make([]int, 0, len(results))
	for _, r := range results {
		flat = append(flat, r.Rows...)
		candidatesPerQuery = append(candidatesPerQuery, r.Candidates)
	}

	if err := trecrun.Write(f.runOut, flat, trecrun.FourDecimals); err != nil {
		cliutil.Fatal(logger, "failed to write run file", err)
		return err
	}

	summary := trecrun.Summarize(candidatesPerQuery)
	summary.Log(logger)
	cliutil.OK(logger, "search complete", "queries_read", len(queries), "rows_written", len(flat))
	return nil
}

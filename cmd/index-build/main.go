// Command index-build streams a collection file into sorted run files
// plus a doclen sidecar, the first stage of external index construction
// (spec §4.2). Entry point layout grounded on the teacher's main.go.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bad33ndj3/passage-retrieval/internal/cliutil"
	"github.com/bad33ndj3/passage-retrieval/internal/runbuild"
)

func main() {
	var opts runbuild.Options

	root := &cobra.Command{
		Use:           "index-build",
		Short:         "Tokenize a collection and spill sorted (term, docid, tf) run files",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndexBuild(cmd.Context(), opts)
		},
	}

	root.Flags().StringVar(&opts.Input, "input", "", "Path to collection.tsv (required)")
	root.Flags().StringVar(&opts.OutDir, "outdir", "", "Directory for run files and doclen.bin (required)")
	root.Flags().IntVar(&opts.BatchDocs, "batch_docs", 50000, "Documents per spilled run file")
	root.Flags().IntVar(&opts.Workers, "workers", 1, "Tokenizer worker count (1 = sequential)")
	_ = root.MarkFlagRequired("input")
	_ = root.MarkFlagRequired("outdir")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func runIndexBuild(ctx context.Context, opts runbuild.Options) error {
	logger := cliutil.NewStderrLogger()
	opts.Logger = logger

	result, err := runbuild.Build(ctx, opts)
	if err != nil {
		cliutil.Fatal(logger, "index build failed", err)
		return err // unreachable, Fatal exits; kept for clarity under go vet
	}

	cliutil.OK(logger, "index build complete", "docs_processed", result.DocsProcessed, "runs_written", result.RunsWritten)
	return nil
}

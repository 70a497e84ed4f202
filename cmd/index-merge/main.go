// Command index-merge k-way merges sorted run files into the final
// postings.bin + lexicon.tsv (spec §4.3), then runs the alignment
// check supplemented from original_source/validate_subset_alignment.py
// (spec §4.9 expansion) when a page table is supplied.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bad33ndj3/passage-retrieval/internal/cliutil"
	"github.com/bad33ndj3/passage-retrieval/internal/doclen"
	"github.com/bad33ndj3/passage-retrieval/internal/pagetable"
	"github.com/bad33ndj3/passage-retrieval/internal/runmerge"
	"github.com/bad33ndj3/passage-retrieval/internal/trecrun"
)

func main() {
	var opts runmerge.Options
	var pageTablePath string

	root := &cobra.Command{
		Use:           "index-merge",
		Short:         "K-way merge sorted run files into postings.bin and lexicon.tsv",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndexMerge(opts, pageTablePath)
		},
	}

	root.Flags().StringVar(&opts.RunDir, "run_dir", "", "Directory of run_NNNNNN.tsv files and doclen.bin (required)")
	root.Flags().StringVar(&opts.OutDir, "out_dir", "", "Destination for postings.bin and lexicon.tsv (required)")
	root.Flags().StringVar(&pageTablePath, "page_table", "", "Optional page_table.tsv to validate alignment against")
	_ = root.MarkFlagRequired("run_dir")
	_ = root.MarkFlagRequired("out_dir")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func runIndexMerge(opts runmerge.Options, pageTablePath string) error {
	logger := cliutil.NewStderrLogger()
	opts.Logger = logger

	result, err := runmerge.Merge(opts)
	if err != nil {
		cliutil.Fatal(logger, "index merge failed", err)
		return err
	}

	// The doclen sidecar is produced by index-build alongside the run
	// files, not by the merge step; copy it into out_dir so a
	// subsequent search --index_dir sees lexicon, postings, and doclen
	// together, per the index directory layout implied by §6.
	if filepath.Clean(opts.RunDir) != filepath.Clean(opts.OutDir) {
		if err := copyDoclen(opts.RunDir, opts.OutDir); err != nil {
			cliutil.Fatal(logger, "failed to copy doclen sidecar into out_dir", err)
			return err
		}
	}

	numDocs, dlErr := countDocs(opts.OutDir)
	if dlErr != nil {
		cliutil.Fatal(logger, "failed to read doclen sidecar for alignment check", dlErr)
		return dlErr
	}

	if pageTablePath != "" {
		pt, err := pagetable.Load(pageTablePath)
		if err != nil {
			cliutil.Fatal(logger, "failed to load page table for alignment check", err)
			return err
		}
		if err := trecrun.ValidateAlignment(pt.Entries(), numDocs); err != nil {
			cliutil.Fatal(logger, "page table alignment check failed", err)
			return err
		}
		logger.Info("alignment check passed", "entries", len(pt.Entries()))
	}

	cliutil.OK(logger, "index merge complete", "terms", result.Terms, "postings", result.Postings, "docs", numDocs)
	return nil
}

func countDocs(outDir string) (int, error) {
	dl, err := doclen.Load(filepath.Join(outDir, "doclen.bin"))
	if err != nil {
		return 0, err
	}
	return len(dl.Lens), nil
}

func copyDoclen(runDir, outDir string) error {
	src, err := os.Open(filepath.Join(runDir, "doclen.bin"))
	if err != nil {
		return fmt.Errorf("open doclen sidecar: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(outDir, "doclen.bin"))
	if err != nil {
		return fmt.Errorf("create doclen sidecar copy: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copy doclen sidecar: %w", err)
	}
	return nil
}

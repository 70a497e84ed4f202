// Package runbuild streams a collection file and spills sorted
// (term, docid, tf) run files to disk, the first stage of external
// index construction (spec §4.2).
//
// The worker-pool shape here is adapted from the teacher's
// indexer.LoadGlobWithExcludes: a single producer feeds a bounded job
// channel, a fixed pool of workers drains it, and results flow back over
// a results channel closed once all workers finish. Where the teacher
// tolerated partial failure (best-effort file loads), the Run-Builder
// cannot: a malformed row is fatal (spec §4.2), so the first worker error
// cancels the shared context and the rest of the pipeline unwinds.
package runbuild

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/bad33ndj3/passage-retrieval/internal/doclen"
	"github.com/bad33ndj3/passage-retrieval/internal/model"
	"github.com/bad33ndj3/passage-retrieval/internal/tokenize"
)

// Options configures a build run.
type Options struct {
	Input     string // collection.tsv path
	OutDir    string // directory for run_NNNNNN.tsv files + doclen.bin
	BatchDocs int    // documents per spilled run, spec default 50000
	Workers   int    // tokenizer worker count, 0 = sequential
	Logger    *slog.Logger
}

// Result summarizes a completed build.
type Result struct {
	DocsProcessed int
	RunsWritten   int
}

// row is one parsed collection line, tagged with its docid so that
// out-of-order parallel tokenization can be restored to docid order
// before sorting into (term, docid) order (spec §5).
type row struct {
	docID uint32
	terms []string
}

// Build streams Input, tokenizing each row (optionally across Workers
// goroutines) and spilling a sorted run file every BatchDocs documents.
func Build(ctx context.Context, opts Options) (*Result, error) {
	if opts.BatchDocs <= 0 {
		opts.BatchDocs = 50000
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("create outdir %s: %w", opts.OutDir, err)
	}

	f, err := os.Open(opts.Input)
	if err != nil {
		return nil, fmt.Errorf("open collection file %s: %w", opts.Input, err)
	}
	defer f.Close()

	dw, err := doclen.NewWriter(filepath.Join(opts.OutDir, "doclen.bin"))
	if err != nil {
		return nil, err
	}
	defer dw.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1<<20), 16<<20)

	runID := 0
	nextDocID := uint32(0)
	buf := make([]model.Posting, 0, opts.BatchDocs*32)
	pending := make(map[uint32][]string) // docid -> terms, for out-of-order results
	docLenOrder := make([]uint32, 0, opts.BatchDocs)

	flush := func() error {
		if len(buf) == 0 && len(docLenOrder) == 0 {
			return nil
		}
		if err := writeRun(opts.OutDir, runID, buf); err != nil {
			return err
		}
		logger.Info("wrote run", "run_id", runID, "postings", len(buf))
		runID++
		buf = buf[:0]
		return nil
	}

	processBatch := func(batch []row) error {
		for _, r := range batch {
			pending[r.docID] = r.terms
		}
		// Drain pending in ascending docid order so doclen.bin stays
		// docid-ordered even though tokenization may complete
		// out of order across workers.
		for {
			terms, ok := pending[nextDocID]
			if !ok {
				break
			}
			delete(pending, nextDocID)

			if err := dw.Append(len(terms)); err != nil {
				return err
			}
			counts := tokenize.Count(terms)
			for term, tf := range counts {
				buf = append(buf, model.Posting{Term: term, DocID: nextDocID, TF: tf})
			}
			docLenOrder = append(docLenOrder, nextDocID)
			nextDocID++

			if len(docLenOrder) >= opts.BatchDocs {
				if err := flush(); err != nil {
					return err
				}
				docLenOrder = docLenOrder[:0]
			}
		}
		return nil
	}

	if opts.Workers <= 1 {
		err = buildSequential(sc, processBatch)
	} else {
		err = buildParallel(ctx, sc, opts.Workers, processBatch)
	}
	if err != nil {
		return nil, err
	}
	if len(pending) != 0 {
		return nil, fmt.Errorf("internal error: %d rows never reached in docid order (gap at docid %d)", len(pending), nextDocID)
	}
	if err := flush(); err != nil {
		return nil, err
	}

	logger.Info("build complete", "docs_processed", dw.Count(), "runs_written", runID)
	return &Result{DocsProcessed: dw.Count(), RunsWritten: runID}, nil
}

// buildSequential tokenizes and processes rows one at a time, in order.
func buildSequential(sc *bufio.Scanner, process func([]row) error) error {
	var docID uint32
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		if !strings.Contains(line, "\t") {
			return fmt.Errorf("collection row %d: missing tab separator", docID)
		}
		parts := strings.SplitN(line, "\t", 2)
		gotID, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 32)
		if err != nil {
			return fmt.Errorf("collection row %d: non-integer docid %q: %w", docID, parts[0], err)
		}
		if uint32(gotID) != docID {
			return fmt.Errorf("collection row out of order: expected docid %d, got %d", docID, gotID)
		}
		terms := tokenize.Tokenize(parts[1])
		if err := process([]row{{docID: docID, terms: terms}}); err != nil {
			return err
		}
		docID++
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scan collection file: %w", err)
	}
	return nil
}

// buildParallel fans tokenization out across a bounded worker pool while
// a single producer goroutine reads the file sequentially, grounded on
// the teacher's jobs/results channel pair (indexer.LoadGlobWithExcludes).
// Results are processed in completion order; processBatch itself
// restores docid order via the pending map before anything touches
// doclen.bin or the posting buffer, so out-of-order worker completion
// never reorders on-disk output (spec §5).
func buildParallel(ctx context.Context, sc *bufio.Scanner, workers int, process func([]row) error) error {
	type job struct {
		docID uint32
		text  string
	}

	jobs := make(chan job, workers*4)
	results := make(chan row, workers*4)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		var docID uint32
		for sc.Scan() {
			line := sc.Text()
			if line == "" {
				continue
			}
			if !strings.Contains(line, "\t") {
				return fmt.Errorf("collection row %d: missing tab separator", docID)
			}
			parts := strings.SplitN(line, "\t", 2)
			gotID, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 32)
			if err != nil {
				return fmt.Errorf("collection row %d: non-integer docid %q: %w", docID, parts[0], err)
			}
			if uint32(gotID) != docID {
				return fmt.Errorf("collection row out of order: expected docid %d, got %d", docID, gotID)
			}
			select {
			case jobs <- job{docID: docID, text: parts[1]}:
			case <-ctx.Done():
				return ctx.Err()
			}
			docID++
		}
		return sc.Err()
	})

	var workerErr error
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for j := range jobs {
				terms := tokenize.Tokenize(j.text)
				select {
				case results <- row{docID: j.docID, terms: terms}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		workerErr = g.Wait()
		close(results)
		close(done)
	}()

	for r := range results {
		if err := process([]row{r}); err != nil {
			return err
		}
	}
	<-done
	return workerErr
}

// writeRun sorts postings by (term, docid) and spills them as a plain
// TSV run file, matching the Python prototype's write_run layout.
func writeRun(outDir string, runID int, postings []model.Posting) error {
	sorted := make([]model.Posting, len(postings))
	copy(sorted, postings)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Term != sorted[j].Term {
			return sorted[i].Term < sorted[j].Term
		}
		return sorted[i].DocID < sorted[j].DocID
	})

	path := filepath.Join(outDir, fmt.Sprintf("run_%06d.tsv", runID))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create run file %s: %w", path, err)
	}
	defer f.Close()

	bw := bufio.NewWriterSize(f, 1<<20)
	for _, p := range sorted {
		if _, err := fmt.Fprintf(bw, "%s\t%d\t%d\n", p.Term, p.DocID, p.TF); err != nil {
			return fmt.Errorf("write run file %s: %w", path, err)
		}
	}
	return bw.Flush()
}

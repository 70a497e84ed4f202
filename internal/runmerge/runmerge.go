// Package runmerge performs the k-way merge of sorted run files into the
// final postings.bin + lexicon.tsv, the second (and inherently
// sequential) stage of external index construction (spec §4.3).
package runmerge

import (
	"bufio"
	"container/heap"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bad33ndj3/passage-retrieval/internal/lexicon"
	"github.com/bad33ndj3/passage-retrieval/internal/model"
	"github.com/bad33ndj3/passage-retrieval/internal/postings"
)

// Options configures a merge run.
type Options struct {
	RunDir string // directory of run_NNNNNN.tsv files (and doclen.bin)
	OutDir string // destination for postings.bin, lexicon.tsv
	Logger *slog.Logger
}

// Result summarizes a completed merge.
type Result struct {
	Terms    int
	Postings int64
}

// frontier tracks one run file's next unread (term, docid, tf) record.
type frontier struct {
	sc     *bufio.Scanner
	f      *os.File
	term   string
	docID  uint32
	tf     uint32
	exists bool
}

type frontierHeap []*frontier

func (h frontierHeap) Len() int { return len(h) }
func (h frontierHeap) Less(i, j int) bool {
	if h[i].term != h[j].term {
		return h[i].term < h[j].term
	}
	return h[i].docID < h[j].docID
}
func (h frontierHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *frontierHeap) Push(x any)        { *h = append(*h, x.(*frontier)) }
func (h *frontierHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func newFrontier(path string) (*frontier, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open run file %s: %w", path, err)
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	fr := &frontier{sc: sc, f: f}
	if err := fr.advance(); err != nil {
		f.Close()
		return nil, err
	}
	return fr, nil
}

// advance reads the next record from the run file. If the run is
// exhausted, exists becomes false.
func (fr *frontier) advance() error {
	if !fr.sc.Scan() {
		if err := fr.sc.Err(); err != nil {
			return fmt.Errorf("scan run file: %w", err)
		}
		fr.exists = false
		return nil
	}
	line := fr.sc.Text()
	cols := strings.Split(line, "\t")
	if len(cols) != 3 {
		return fmt.Errorf("malformed run row %q: expected 3 columns", line)
	}
	docID, err := strconv.ParseUint(cols[1], 10, 32)
	if err != nil {
		return fmt.Errorf("malformed run row %q: bad docid: %w", line, err)
	}
	tf, err := strconv.ParseUint(cols[2], 10, 32)
	if err != nil {
		return fmt.Errorf("malformed run row %q: bad tf: %w", line, err)
	}
	fr.term = cols[0]
	fr.docID = uint32(docID)
	fr.tf = uint32(tf)
	fr.exists = true
	return nil
}

// Merge performs the k-way merge described in spec §4.3 and writes
// postings.bin + lexicon.tsv into OutDir.
func Merge(opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	runPaths, err := listRunFiles(opts.RunDir)
	if err != nil {
		return nil, err
	}
	if len(runPaths) == 0 {
		return nil, fmt.Errorf("no run files found in %s", opts.RunDir)
	}

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("create outdir %s: %w", opts.OutDir, err)
	}

	frontiers := make([]*frontier, 0, len(runPaths))
	defer func() {
		for _, fr := range frontiers {
			fr.f.Close()
		}
	}()

	h := &frontierHeap{}
	heap.Init(h)
	for _, p := range runPaths {
		fr, err := newFrontier(p)
		if err != nil {
			return nil, err
		}
		frontiers = append(frontiers, fr)
		if fr.exists {
			heap.Push(h, fr)
		}
	}

	pw, err := postings.NewBlockWriter(filepath.Join(opts.OutDir, "postings.bin"))
	if err != nil {
		return nil, err
	}
	defer pw.Close()

	lw, err := lexicon.NewWriter(filepath.Join(opts.OutDir, "lexicon.tsv"))
	if err != nil {
		return nil, err
	}
	defer lw.Close()

	var (
		curTerm     string
		curDocs     []uint32
		curTFs      []uint32
		termCount   int
		totalPosts  int64
		haveCurTerm bool
	)

	flushTerm := func() error {
		if !haveCurTerm || len(curDocs) == 0 {
			return nil
		}
		off, length, err := pw.WriteTerm(curDocs, curTFs)
		if err != nil {
			return err
		}
		if err := lw.Write(model.LexiconEntry{Term: curTerm, Offset: off, Length: length, DF: uint32(len(curDocs))}); err != nil {
			return err
		}
		termCount++
		totalPosts += int64(len(curDocs))
		curDocs = curDocs[:0]
		curTFs = curTFs[:0]
		return nil
	}

	for h.Len() > 0 {
		fr := heap.Pop(h).(*frontier)
		term, docID, tf := fr.term, fr.docID, fr.tf

		if term != curTerm || !haveCurTerm {
			if err := flushTerm(); err != nil {
				return nil, err
			}
			curTerm = term
			haveCurTerm = true
		}

		// Coalesce consecutive entries sharing (term, docid) by summing
		// tf (spec §4.3: supports re-runs of the same doc; a no-op under
		// the uniqueness invariant, but still correct if violated).
		if n := len(curDocs); n > 0 && curDocs[n-1] == docID {
			curTFs[n-1] += tf
		} else {
			curDocs = append(curDocs, docID)
			curTFs = append(curTFs, tf)
		}

		if err := fr.advance(); err != nil {
			return nil, err
		}
		if fr.exists {
			heap.Push(h, fr)
		}
	}
	if err := flushTerm(); err != nil {
		return nil, err
	}

	logger.Info("merge complete", "terms", termCount, "postings", totalPosts, "runs_merged", len(runPaths))

	for _, p := range runPaths {
		if err := os.Remove(p); err != nil {
			logger.Warn("failed to remove intermediate run file", "path", p, "error", err)
		}
	}

	return &Result{Terms: termCount, Postings: totalPosts}, nil
}

func listRunFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read run dir %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "run_") || !strings.HasSuffix(e.Name(), ".tsv") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Package trecrun reads and writes TREC-style run files and carries two
// small offline checks supplemented from the Python prototype's
// validate_subset_alignment.py and report_effectiveness.py (spec §4.9
// expansion), scoped down from their full metric suite per spec §1's
// exclusion of TREC evaluation tooling.
package trecrun

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/bad33ndj3/passage-retrieval/internal/model"
)

// Read loads a TREC run file leniently: a row may have the full 6
// columns (qid Q0 docid rank score tag) or a compact 3-column form
// (qid docid score), and columns may be separated by tabs or spaces.
func Read(path string) ([]model.RunRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open run file %s: %w", path, err)
	}
	defer f.Close()

	var records []model.RunRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		cols := strings.Fields(line)
		var rec model.RunRecord
		switch {
		case len(cols) >= 6:
			rank, err := strconv.Atoi(cols[3])
			if err != nil {
				return nil, fmt.Errorf("run file %s line %d: bad rank %q: %w", path, lineNo, cols[3], err)
			}
			score, err := strconv.ParseFloat(cols[4], 64)
			if err != nil {
				return nil, fmt.Errorf("run file %s line %d: bad score %q: %w", path, lineNo, cols[4], err)
			}
			rec = model.RunRecord{QID: cols[0], DocID: cols[2], Rank: rank, Score: score, Tag: cols[5]}
		case len(cols) >= 3:
			score, err := strconv.ParseFloat(cols[2], 64)
			if err != nil {
				return nil, fmt.Errorf("run file %s line %d: bad score %q: %w", path, lineNo, cols[2], err)
			}
			rec = model.RunRecord{QID: cols[0], DocID: cols[1], Score: score}
		default:
			return nil, fmt.Errorf("run file %s line %d: expected 3 or 6 columns, got %d", path, lineNo, len(cols))
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan run file %s: %w", path, err)
	}
	return records, nil
}

// ScoreFormat selects decimal precision for the score column; BM25-only
// runs use four decimals to match the Python prototype's write_run, all
// other producers (rerank) use six (spec §4.9).
type ScoreFormat int

const (
	FourDecimals ScoreFormat = iota
	SixDecimals
)

// Write emits records as a 6-column, space-separated TREC run file. The
// ordering of records is preserved as given: callers are responsible for
// grouping by query and ranking within a query (spec §5's "ascending
// rank within a query" ordering guarantee).
func Write(path string, records []model.RunRecord, format ScoreFormat) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create run file %s: %w", path, err)
	}
	defer f.Close()

	bw := bufio.NewWriterSize(f, 1<<20)
	scoreFmt := "%.4f"
	if format == SixDecimals {
		scoreFmt = "%.6f"
	}
	for _, r := range records {
		if _, err := fmt.Fprintf(bw, "%s Q0 %s %d "+scoreFmt+" %s\n", r.QID, r.DocID, r.Rank, r.Score, r.Tag); err != nil {
			return fmt.Errorf("write run file %s: %w", path, err)
		}
	}
	return bw.Flush()
}

// ValidateAlignment checks that every external id a page table assigns
// maps to an internal docid in [0, numDocs) — the Go-idiomatic
// equivalent of validate_subset_alignment.py's internal-vs-external
// detection, folded into index-merge as a post-build sanity pass rather
// than a standalone binary (spec §4.9 expansion).
func ValidateAlignment(internalToExternal map[uint32]string, numDocs int) error {
	seen := make(map[uint32]bool, len(internalToExternal))
	for docID := range internalToExternal {
		if int(docID) >= numDocs {
			return fmt.Errorf("page table references internal docid %d, out of range [0, %d)", docID, numDocs)
		}
		if seen[docID] {
			return fmt.Errorf("page table has duplicate entry for internal docid %d", docID)
		}
		seen[docID] = true
	}
	return nil
}

// EffectivenessSummary is a lightweight per-run report, the scoped-down
// counterpart to report_effectiveness.py's full MRR/Recall/NDCG/MAP
// suite (explicitly out of scope — spec §1 excludes TREC evaluation
// tooling). It only needs a qrels-free count of how well queries were
// served, which is what the run writer already has in hand.
type EffectivenessSummary struct {
	Queries           int
	MeanCandidates    float64
	ZeroResultQueries int
}

// Summarize computes an EffectivenessSummary from per-query candidate
// counts (one entry per query attempted, including those that yielded
// zero candidates).
func Summarize(candidatesPerQuery []int) EffectivenessSummary {
	s := EffectivenessSummary{Queries: len(candidatesPerQuery)}
	if s.Queries == 0 {
		return s
	}
	total := 0
	for _, n := range candidatesPerQuery {
		total += n
		if n == 0 {
			s.ZeroResultQueries++
		}
	}
	s.MeanCandidates = float64(total) / float64(s.Queries)
	return s
}

// Log emits the summary at [OK] via the provided logger, mirroring
// report_effectiveness.py's console summary.
func (s EffectivenessSummary) Log(logger *slog.Logger) {
	logger.Info("[OK] run effectiveness summary",
		"queries", s.Queries,
		"mean_candidates_per_query", s.MeanCandidates,
		"zero_result_queries", s.ZeroResultQueries)
}

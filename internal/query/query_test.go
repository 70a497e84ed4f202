package query

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/bad33ndj3/passage-retrieval/internal/bm25"
	"github.com/bad33ndj3/passage-retrieval/internal/doclen"
	"github.com/bad33ndj3/passage-retrieval/internal/lexicon"
	"github.com/bad33ndj3/passage-retrieval/internal/model"
	"github.com/bad33ndj3/passage-retrieval/internal/pagetable"
	"github.com/bad33ndj3/passage-retrieval/internal/postings"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func TestReadQueries_TabAndSpaceForms(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.tsv")
	content := "q1\tquick brown fox\nq2 lazy dog\n\nmalformed-line-no-text\nq3\tdog\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	qs, err := ReadQueries(path, discardLogger())
	if err != nil {
		t.Fatalf("ReadQueries: %v", err)
	}
	if len(qs) != 3 {
		t.Fatalf("got %d queries, want 3: %+v", len(qs), qs)
	}
	if qs[0].QID != "q1" || qs[0].Text != "quick brown fox" {
		t.Errorf("qs[0] = %+v", qs[0])
	}
	if qs[1].QID != "q2" || qs[1].Text != "lazy dog" {
		t.Errorf("qs[1] = %+v", qs[1])
	}
}

func buildTinyIndex(t *testing.T) (dir string) {
	t.Helper()
	dir = t.TempDir()
	corpus := [][]string{
		{"the", "quick", "brown", "fox"},
		{"the", "lazy", "dog"},
		{"quick", "brown", "dog"},
	}

	dw, err := doclen.NewWriter(filepath.Join(dir, "doclen.bin"))
	if err != nil {
		t.Fatal(err)
	}
	for _, terms := range corpus {
		if err := dw.Append(len(terms)); err != nil {
			t.Fatal(err)
		}
	}
	if err := dw.Close(); err != nil {
		t.Fatal(err)
	}

	postingsByTerm := make(map[string]map[uint32]uint32)
	for docID, terms := range corpus {
		counts := make(map[string]uint32)
		for _, term := range terms {
			counts[term]++
		}
		for term, tf := range counts {
			if postingsByTerm[term] == nil {
				postingsByTerm[term] = make(map[uint32]uint32)
			}
			postingsByTerm[term][uint32(docID)] = tf
		}
	}
	terms := make([]string, 0, len(postingsByTerm))
	for term := range postingsByTerm {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	pw, err := postings.NewBlockWriter(filepath.Join(dir, "postings.bin"))
	if err != nil {
		t.Fatal(err)
	}
	lw, err := lexicon.NewWriter(filepath.Join(dir, "lexicon.tsv"))
	if err != nil {
		t.Fatal(err)
	}
	for _, term := range terms {
		docMap := postingsByTerm[term]
		docs := make([]uint32, 0, len(docMap))
		for d := range docMap {
			docs = append(docs, d)
		}
		sort.Slice(docs, func(i, j int) bool { return docs[i] < docs[j] })
		tfs := make([]uint32, len(docs))
		for i, d := range docs {
			tfs[i] = docMap[d]
		}
		off, length, err := pw.WriteTerm(docs, tfs)
		if err != nil {
			t.Fatal(err)
		}
		if err := lw.Write(model.LexiconEntry{Term: term, Offset: off, Length: length, DF: uint32(len(docs))}); err != nil {
			t.Fatal(err)
		}
	}
	if err := pw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := lw.Close(); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestRunAll_SequentialAndParallelMatch(t *testing.T) {
	dir := buildTinyIndex(t)
	lex, err := lexicon.Load(filepath.Join(dir, "lexicon.tsv"))
	if err != nil {
		t.Fatal(err)
	}
	dl, err := doclen.Load(filepath.Join(dir, "doclen.bin"))
	if err != nil {
		t.Fatal(err)
	}
	scorer := bm25.NewScorer(lex, dl, bm25.DefaultConfig())

	queries := []Query{
		{QID: "q1", Text: "quick brown"},
		{QID: "q2", Text: "dog"},
		{QID: "q3", Text: "zyzzyva"},
	}

	seq, err := RunAll(context.Background(), Options{
		PostingsPath: filepath.Join(dir, "postings.bin"),
		Scorer:       scorer,
		Mode:         bm25.Disjunctive,
		TopK:         10,
		Workers:      1,
		Logger:       discardLogger(),
	}, queries)
	if err != nil {
		t.Fatalf("sequential RunAll: %v", err)
	}

	par, err := RunAll(context.Background(), Options{
		PostingsPath: filepath.Join(dir, "postings.bin"),
		Scorer:       scorer,
		Mode:         bm25.Disjunctive,
		TopK:         10,
		Workers:      4,
		Logger:       discardLogger(),
	}, queries)
	if err != nil {
		t.Fatalf("parallel RunAll: %v", err)
	}

	if len(seq) != len(par) {
		t.Fatalf("result count differs: seq=%d par=%d", len(seq), len(par))
	}
	for i := range seq {
		if seq[i].QID != par[i].QID || len(seq[i].Rows) != len(par[i].Rows) {
			t.Errorf("result %d differs: seq=%+v par=%+v", i, seq[i], par[i])
		}
	}
	// q3 is fully out-of-vocabulary: empty result, not an error.
	if len(seq[2].Rows) != 0 {
		t.Errorf("expected empty result for OOV query, got %+v", seq[2].Rows)
	}
	if seq[0].Rows[0].DocID == "" {
		t.Errorf("expected a docid in top row, got %+v", seq[0].Rows[0])
	}
}

func TestRunAll_PageTableRemapsDocIDs(t *testing.T) {
	dir := buildTinyIndex(t)
	lex, err := lexicon.Load(filepath.Join(dir, "lexicon.tsv"))
	if err != nil {
		t.Fatal(err)
	}
	dl, err := doclen.Load(filepath.Join(dir, "doclen.bin"))
	if err != nil {
		t.Fatal(err)
	}
	scorer := bm25.NewScorer(lex, dl, bm25.DefaultConfig())

	ptPath := filepath.Join(dir, "page_table.tsv")
	if err := os.WriteFile(ptPath, []byte("0\t9001\n1\t9002\n2\t9003\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	pt, err := pagetable.Load(ptPath)
	if err != nil {
		t.Fatal(err)
	}

	results, err := RunAll(context.Background(), Options{
		PostingsPath: filepath.Join(dir, "postings.bin"),
		Scorer:       scorer,
		PageTable:    pt,
		Mode:         bm25.Disjunctive,
		TopK:         10,
		Workers:      2,
		Logger:       discardLogger(),
	}, []Query{{QID: "q1", Text: "dog"}})
	if err != nil {
		t.Fatal(err)
	}
	for _, row := range results[0].Rows {
		if row.DocID != "9002" && row.DocID != "9003" {
			t.Errorf("expected remapped external id, got %q", row.DocID)
		}
	}
}

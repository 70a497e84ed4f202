package trecrun

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bad33ndj3/passage-retrieval/internal/model"
)

func TestWriteRead_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.txt")
	records := []model.RunRecord{
		{QID: "q1", DocID: "1001", Rank: 1, Score: 12.3456, Tag: "BM25"},
		{QID: "q1", DocID: "1002", Rank: 2, Score: 9.1, Tag: "BM25"},
	}
	if err := Write(path, records, FourDecimals); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Read returned %d records, want 2", len(got))
	}
	if got[0].QID != "q1" || got[0].DocID != "1001" || got[0].Rank != 1 {
		t.Errorf("record 0 = %+v", got[0])
	}
}

func TestWrite_SixDecimalFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.txt")
	records := []model.RunRecord{{QID: "q1", DocID: "5", Rank: 1, Score: 0.123456789, Tag: "rerank"}}
	if err := Write(path, records, SixDecimals); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "q1 Q0 5 1 0.123457 rerank\n"
	if string(data) != want {
		t.Errorf("Write output = %q, want %q", string(data), want)
	}
}

func TestRead_LenientCompactForm(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.txt")
	content := "q1\t1001\t12.5\nq1 1002 9.0\n\nq2 2001 3.3\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	records, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Read returned %d records, want 3", len(records))
	}
	if records[0].QID != "q1" || records[0].DocID != "1001" || records[0].Score != 12.5 {
		t.Errorf("record 0 = %+v", records[0])
	}
}

func TestRead_MalformedRowErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.txt")
	if err := os.WriteFile(path, []byte("only-one-col\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path); err == nil {
		t.Fatal("expected error for a row with fewer than 3 columns")
	}
}

func TestValidateAlignment(t *testing.T) {
	good := map[uint32]string{0: "1001", 1: "1002", 2: "1003"}
	if err := ValidateAlignment(good, 3); err != nil {
		t.Errorf("ValidateAlignment(good): %v", err)
	}

	outOfRange := map[uint32]string{0: "1001", 5: "1002"}
	if err := ValidateAlignment(outOfRange, 3); err == nil {
		t.Fatal("expected error for out-of-range internal docid")
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]int{10, 0, 20, 0, 30})
	if s.Queries != 5 {
		t.Errorf("Queries = %d, want 5", s.Queries)
	}
	if s.ZeroResultQueries != 2 {
		t.Errorf("ZeroResultQueries = %d, want 2", s.ZeroResultQueries)
	}
	if s.MeanCandidates != 12 {
		t.Errorf("MeanCandidates = %v, want 12", s.MeanCandidates)
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	if s.Queries != 0 || s.MeanCandidates != 0 {
		t.Errorf("Summarize(nil) = %+v, want zero value", s)
	}
}

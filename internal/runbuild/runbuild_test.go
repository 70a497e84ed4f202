package runbuild

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bad33ndj3/passage-retrieval/internal/doclen"
)

func writeCollection(t *testing.T, dir string, lines []string) string {
	t.Helper()
	path := filepath.Join(dir, "collection.tsv")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readRuns(t *testing.T, dir string) map[string]int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	postings := make(map[string]int) // "term\tdocid" -> tf
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "run_") {
			continue
		}
		f, err := os.Open(filepath.Join(dir, e.Name()))
		if err != nil {
			t.Fatal(err)
		}
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			cols := strings.Split(sc.Text(), "\t")
			if len(cols) != 3 {
				t.Fatalf("malformed run row: %q", sc.Text())
			}
			postings[cols[0]+"\t"+cols[1]] += atoi(t, cols[2])
		}
		f.Close()
	}
	return postings
}

func atoi(t *testing.T, s string) int {
	t.Helper()
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

func TestBuild_Sequential_SpillsSortedRuns(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	collection := writeCollection(t, dir, []string{
		"0\tthe quick brown fox",
		"1\tthe lazy dog",
		"2\tquick brown dog",
	})

	res, err := Build(context.Background(), Options{
		Input:     collection,
		OutDir:    out,
		BatchDocs: 2,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.DocsProcessed != 3 {
		t.Errorf("DocsProcessed = %d, want 3", res.DocsProcessed)
	}
	if res.RunsWritten != 2 {
		t.Errorf("RunsWritten = %d, want 2", res.RunsWritten)
	}

	postings := readRuns(t, out)
	if postings["quick\t0"] != 1 || postings["quick\t2"] != 1 {
		t.Errorf("unexpected postings for 'quick': %v", postings)
	}
	if postings["dog\t1"] != 1 || postings["dog\t2"] != 1 {
		t.Errorf("unexpected postings for 'dog': %v", postings)
	}

	tbl, err := doclen.Load(filepath.Join(out, "doclen.bin"))
	if err != nil {
		t.Fatalf("doclen.Load: %v", err)
	}
	want := []uint32{4, 3, 3}
	for i, w := range want {
		if tbl.Lens[i] != w {
			t.Errorf("doclen[%d] = %d, want %d", i, tbl.Lens[i], w)
		}
	}
}

func TestBuild_Parallel_MatchesSequential(t *testing.T) {
	dir := t.TempDir()
	collection := writeCollection(t, dir, []string{
		"0\tthe quick brown fox",
		"1\tthe lazy dog",
		"2\tquick brown dog",
		"3\tfox and dog play",
		"4\tbrown fox jumps",
	})

	seqOut := filepath.Join(dir, "seq")
	parOut := filepath.Join(dir, "par")

	if _, err := Build(context.Background(), Options{Input: collection, OutDir: seqOut, BatchDocs: 3, Workers: 1}); err != nil {
		t.Fatalf("sequential build: %v", err)
	}
	if _, err := Build(context.Background(), Options{Input: collection, OutDir: parOut, BatchDocs: 3, Workers: 4}); err != nil {
		t.Fatalf("parallel build: %v", err)
	}

	seqPostings := readRuns(t, seqOut)
	parPostings := readRuns(t, parOut)
	if len(seqPostings) != len(parPostings) {
		t.Fatalf("posting count differs: seq=%d par=%d", len(seqPostings), len(parPostings))
	}
	for k, v := range seqPostings {
		if parPostings[k] != v {
			t.Errorf("posting %q: seq=%d par=%d", k, v, parPostings[k])
		}
	}

	seqLens, err := doclen.Load(filepath.Join(seqOut, "doclen.bin"))
	if err != nil {
		t.Fatal(err)
	}
	parLens, err := doclen.Load(filepath.Join(parOut, "doclen.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if len(seqLens.Lens) != len(parLens.Lens) {
		t.Fatalf("doclen count differs: seq=%d par=%d", len(seqLens.Lens), len(parLens.Lens))
	}
	for i := range seqLens.Lens {
		if seqLens.Lens[i] != parLens.Lens[i] {
			t.Errorf("doclen[%d]: seq=%d par=%d", i, seqLens.Lens[i], parLens.Lens[i])
		}
	}
}

func TestBuild_MalformedRow_Fatal(t *testing.T) {
	dir := t.TempDir()
	collection := writeCollection(t, dir, []string{"not-a-docid\ttext here"})
	if _, err := Build(context.Background(), Options{Input: collection, OutDir: filepath.Join(dir, "out")}); err == nil {
		t.Fatal("expected error for non-integer docid")
	}
}

func TestBuild_EmptyRowsSkipped(t *testing.T) {
	dir := t.TempDir()
	collection := writeCollection(t, dir, []string{"0\thello world", "", "1\tfoo bar"})
	res, err := Build(context.Background(), Options{Input: collection, OutDir: filepath.Join(dir, "out")})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.DocsProcessed != 2 {
		t.Errorf("DocsProcessed = %d, want 2", res.DocsProcessed)
	}
}

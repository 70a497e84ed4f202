package postings

import (
	"path/filepath"
	"testing"

	"github.com/bad33ndj3/passage-retrieval/internal/model"
)

func TestBlockWriter_WriteAndDecode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "postings.bin")
	w, err := NewBlockWriter(path)
	if err != nil {
		t.Fatalf("NewBlockWriter: %v", err)
	}

	off1, len1, err := w.WriteTerm([]uint32{0, 2, 5}, []uint32{1, 3, 2})
	if err != nil {
		t.Fatalf("WriteTerm dog: %v", err)
	}
	off2, len2, err := w.WriteTerm([]uint32{1}, []uint32{4})
	if err != nil {
		t.Fatalf("WriteTerm fox: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	pf, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pf.Close()

	pl, err := pf.Decode(model.LexiconEntry{Term: "dog", Offset: off1, Length: len1, DF: 3})
	if err != nil {
		t.Fatalf("Decode dog: %v", err)
	}
	wantDocs := []uint32{0, 2, 5}
	wantTFs := []uint32{1, 3, 2}
	for i := range wantDocs {
		if pl.Docs[i] != wantDocs[i] || pl.TFs[i] != wantTFs[i] {
			t.Errorf("dog posting[%d] = (%d,%d), want (%d,%d)", i, pl.Docs[i], pl.TFs[i], wantDocs[i], wantTFs[i])
		}
	}

	pl2, err := pf.Decode(model.LexiconEntry{Term: "fox", Offset: off2, Length: len2, DF: 1})
	if err != nil {
		t.Fatalf("Decode fox: %v", err)
	}
	if pl2.Docs[0] != 1 || pl2.TFs[0] != 4 {
		t.Errorf("fox posting = (%d,%d), want (1,4)", pl2.Docs[0], pl2.TFs[0])
	}
}

func TestDecode_RejectsBadLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "postings.bin")
	w, err := NewBlockWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	off, length, err := w.WriteTerm([]uint32{0, 1}, []uint32{1, 1})
	if err != nil {
		t.Fatal(err)
	}
	w.Close()

	pf, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer pf.Close()

	if _, err := pf.Decode(model.LexiconEntry{Term: "bad", Offset: off, Length: length, DF: 5}); err == nil {
		t.Fatal("expected error when df does not match length")
	}
	if _, err := pf.Decode(model.LexiconEntry{Term: "oob", Offset: off + 1000, Length: length, DF: 2}); err == nil {
		t.Fatal("expected error for out-of-bounds offset")
	}
}

func TestDecode_RejectsNonAscendingDocids(t *testing.T) {
	path := filepath.Join(t.TempDir(), "postings.bin")
	w, err := NewBlockWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	off, length, err := w.WriteTerm([]uint32{5, 2}, []uint32{1, 1})
	if err != nil {
		t.Fatal(err)
	}
	w.Close()

	pf, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer pf.Close()

	if _, err := pf.Decode(model.LexiconEntry{Term: "bad", Offset: off, Length: length, DF: 2}); err == nil {
		t.Fatal("expected error for non-ascending docids")
	}
}

func TestOpen_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "postings.bin")
	w, err := NewBlockWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	pf, err := Open(path)
	if err != nil {
		t.Fatalf("Open on empty file: %v", err)
	}
	defer pf.Close()

	pl, err := pf.Decode(model.LexiconEntry{Term: "x", Offset: 0, Length: 0, DF: 0})
	if err != nil {
		t.Fatalf("Decode zero-length entry: %v", err)
	}
	if len(pl.Docs) != 0 {
		t.Errorf("expected empty posting list, got %v", pl.Docs)
	}
}

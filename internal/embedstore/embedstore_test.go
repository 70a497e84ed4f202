package embedstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
)

type testRow struct {
	ID     int64     `parquet:"id"`
	Vector []float32 `parquet:"vector"`
}

func writeTestParquet[T any](t *testing.T, path string, rows []T) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	w := parquet.NewGenericWriter[T](f)
	if _, err := w.Write(rows); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_DetectsConventionalColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.parquet")
	rows := []testRow{
		{ID: 100, Vector: []float32{1, 0, 0}},
		{ID: 101, Vector: []float32{0, 1, 0}},
	}
	writeTestParquet(t, path, rows)

	store, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if store.Len() != 2 {
		t.Fatalf("Len = %d, want 2", store.Len())
	}
	if store.Dim != 3 {
		t.Fatalf("Dim = %d, want 3", store.Dim)
	}
	v, ok := store.Vector(100)
	if !ok || v[0] != 1 {
		t.Errorf("Vector(100) = %v, ok=%v", v, ok)
	}
	if _, ok := store.Vector(999); ok {
		t.Error("Vector(999) should not be found")
	}
}

func TestLoad_AlternateColumnNames(t *testing.T) {
	type altRow struct {
		DocID     int64     `parquet:"docid"`
		Embedding []float32 `parquet:"embedding"`
	}
	path := filepath.Join(t.TempDir(), "alt.parquet")
	writeTestParquet(t, path, []altRow{{DocID: 5, Embedding: []float32{0.5, 0.5}}})

	store, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	v, ok := store.Vector(5)
	if !ok || len(v) != 2 {
		t.Fatalf("Vector(5) = %v, ok=%v", v, ok)
	}
}

func TestLoad_MissingColumnsFails(t *testing.T) {
	type badRow struct {
		Foo int64     `parquet:"foo"`
		Bar []float32 `parquet:"bar"`
	}
	path := filepath.Join(t.TempDir(), "bad.parquet")
	writeTestParquet(t, path, []badRow{{Foo: 1, Bar: []float32{1}}})

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for file with no recognizable id/vector columns")
	}
}

func TestLoad_RecordsVectorDimension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dim.parquet")
	writeTestParquet(t, path, []testRow{{ID: 1, Vector: []float32{1, 2, 3}}})
	store, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if store.Dim != 3 {
		t.Errorf("Dim = %d, want 3", store.Dim)
	}
}

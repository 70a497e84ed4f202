// Package embedstore loads a columnar embedding table — a Parquet file
// with an id column and a fixed-width vector column — into an
// in-memory external-id -> vector map (spec §4.7, §3 expansion).
//
// Column names are auto-detected from a short list of conventional
// alternatives rather than hardcoded, since the original HDF5 prototype
// let callers name their own datasets; detection failure is fatal and
// names every candidate tried (spec §9: "fails loudly... when no
// candidate column is found").
package embedstore

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"strings"

	"github.com/parquet-go/parquet-go"
)

var idCandidates = []string{"id", "ids", "docid", "doc_id", "passage_id", "qid", "query_id"}

var vectorCandidates = []string{"vector", "vectors", "embedding", "embeddings", "vecs", "vec"}

// Store is an in-memory external-id -> vector lookup table. All vectors
// share the same dimension Dim.
type Store struct {
	Dim  int
	rows map[int64][]float32
}

// Vector returns the row for an external id, if loaded.
func (s *Store) Vector(id int64) ([]float32, bool) {
	v, ok := s.rows[id]
	return v, ok
}

// Len reports how many rows were loaded.
func (s *Store) Len() int { return len(s.rows) }

// Load reads a Parquet embedding file at path into a Store.
func Load(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open embedding file %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat embedding file %s: %w", path, err)
	}

	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet file %s: %w", path, err)
	}
	schema := pf.Schema()

	idCol, err := pickColumn(schema, idCandidates)
	if err != nil {
		return nil, fmt.Errorf("embedding file %s: no id column found among %v: %w", path, idCandidates, err)
	}
	vecCol, err := pickColumn(schema, vectorCandidates)
	if err != nil {
		return nil, fmt.Errorf("embedding file %s: no vector column found among %v: %w", path, vectorCandidates, err)
	}

	// The column names are only known at runtime, so the row type is
	// built via reflection rather than a fixed struct with parquet tags.
	rowType := reflect.StructOf([]reflect.StructField{
		{Name: "ID", Type: reflect.TypeOf(int64(0)), Tag: reflect.StructTag(`parquet:"` + idCol + `"`)},
		{Name: "Vector", Type: reflect.TypeOf([]float32(nil)), Tag: reflect.StructTag(`parquet:"` + vecCol + `"`)},
	})

	r := parquet.NewReader(f, schema)
	defer r.Close()

	rows := make(map[int64][]float32, pf.NumRows())
	dim := -1
	for {
		rowPtr := reflect.New(rowType)
		if err := r.Read(rowPtr.Interface()); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("read embedding file %s: %w", path, err)
		}
		id := rowPtr.Elem().FieldByName("ID").Int()
		vec := rowPtr.Elem().FieldByName("Vector").Interface().([]float32)
		if dim == -1 {
			dim = len(vec)
		} else if len(vec) != dim {
			return nil, fmt.Errorf("embedding file %s: row id=%d has dimension %d, expected %d", path, id, len(vec), dim)
		}
		rows[id] = vec
	}
	if dim == -1 {
		dim = 0
	}

	slog.Default().Info("loaded embedding store",
		"path", path, "id_column", idCol, "vector_column", vecCol, "rows", len(rows), "dim", dim)

	return &Store{Dim: dim, rows: rows}, nil
}

func pickColumn(schema *parquet.Schema, candidates []string) (string, error) {
	have := make(map[string]string, len(schema.Fields()))
	for _, field := range schema.Fields() {
		have[strings.ToLower(field.Name())] = field.Name()
	}
	for _, c := range candidates {
		if name, ok := have[c]; ok {
			return name, nil
		}
	}
	return "", fmt.Errorf("none of %v present in schema", candidates)
}

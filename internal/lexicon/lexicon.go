// Package lexicon reads and writes lexicon.tsv: one row per term mapping
// to its posting list's location and document frequency.
package lexicon

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/bad33ndj3/passage-retrieval/internal/model"
)

// Lexicon is an in-memory term -> locator index, loaded once per process
// and shared read-only across query workers (spec §5).
type Lexicon struct {
	entries map[string]model.LexiconEntry
	terms   []string // ascending, for deterministic iteration
}

// Lookup returns the entry for a term, if present.
func (l *Lexicon) Lookup(term string) (model.LexiconEntry, bool) {
	e, ok := l.entries[term]
	return e, ok
}

// Len reports the number of distinct terms.
func (l *Lexicon) Len() int { return len(l.entries) }

// Terms returns all terms in ascending order.
func (l *Lexicon) Terms() []string { return l.terms }

// Load reads lexicon.tsv into memory.
func Load(path string) (*Lexicon, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open lexicon file %s: %w", path, err)
	}
	defer f.Close()

	entries := make(map[string]model.LexiconEntry)
	terms := make([]string, 0, 1024)

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if line == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) != 4 {
			return nil, fmt.Errorf("lexicon file %s line %d: expected 4 columns, got %d", path, lineNo, len(cols))
		}
		offset, err := strconv.ParseInt(cols[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("lexicon file %s line %d: bad byte_offset %q: %w", path, lineNo, cols[1], err)
		}
		length, err := strconv.ParseInt(cols[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("lexicon file %s line %d: bad byte_length %q: %w", path, lineNo, cols[2], err)
		}
		df, err := strconv.ParseUint(cols[3], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("lexicon file %s line %d: bad df %q: %w", path, lineNo, cols[3], err)
		}
		term := cols[0]
		entries[term] = model.LexiconEntry{Term: term, Offset: offset, Length: length, DF: uint32(df)}
		terms = append(terms, term)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan lexicon file %s: %w", path, err)
	}

	sort.Strings(terms)
	return &Lexicon{entries: entries, terms: terms}, nil
}

// Writer appends lexicon rows in ascending term order, exactly as the
// Run-Merger's single-threaded k-way merge produces them.
type Writer struct {
	f        *os.File
	bw       *bufio.Writer
	lastTerm string
	wrote    bool
}

// NewWriter creates (or truncates) lexicon.tsv at path.
func NewWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create lexicon file %s: %w", path, err)
	}
	return &Writer{f: f, bw: bufio.NewWriterSize(f, 64*1024)}, nil
}

// Write appends one lexicon entry. Terms must arrive in strictly
// ascending order (the Run-Merger's invariant); Write returns an error
// if that invariant is violated so a bug surfaces at build time rather
// than producing a silently broken index.
func (w *Writer) Write(e model.LexiconEntry) error {
	if w.wrote && e.Term <= w.lastTerm {
		return fmt.Errorf("lexicon terms out of order: %q after %q", e.Term, w.lastTerm)
	}
	if _, err := fmt.Fprintf(w.bw, "%s\t%d\t%d\t%d\n", e.Term, e.Offset, e.Length, e.DF); err != nil {
		return fmt.Errorf("write lexicon entry %q: %w", e.Term, err)
	}
	w.lastTerm = e.Term
	w.wrote = true
	return nil
}

// Close flushes and closes the lexicon file.
func (w *Writer) Close() error {
	if err := w.bw.Flush(); err != nil {
		_ = w.f.Close()
		return fmt.Errorf("flush lexicon writer: %w", err)
	}
	return w.f.Close()
}

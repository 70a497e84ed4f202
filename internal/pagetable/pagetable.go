// Package pagetable loads the optional internal docid -> external
// passage id mapping. The page table is advisory: lookups that miss
// fall back to the internal id (spec §7).
package pagetable

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Table maps internal docids to external passage ids.
type Table struct {
	ext map[uint32]string
}

// Load reads page_table.tsv (internal_docid<TAB>external_passage_id).
// Malformed rows are skipped; the page table is advisory, not load-bearing,
// so a partially-malformed file is not fatal.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open page table %s: %w", path, err)
	}
	defer f.Close()

	t := &Table{ext: make(map[uint32]string)}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		s := strings.TrimSpace(line)
		if s == "" || !strings.Contains(s, "\t") {
			continue
		}
		parts := strings.SplitN(s, "\t", 2)
		internal, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			continue
		}
		t.ext[uint32(internal)] = strings.TrimSpace(parts[1])
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan page table %s: %w", path, err)
	}
	return t, nil
}

// Entries returns a copy of the internal -> external mapping, for
// callers that need to enumerate it (e.g. the alignment check run
// from index-merge).
func (t *Table) Entries() map[uint32]string {
	out := make(map[uint32]string, len(t.ext))
	for k, v := range t.ext {
		out[k] = v
	}
	return out
}

// External returns the external id for an internal docid, falling back
// to the internal id's decimal form when the table has no entry (or is
// nil, meaning no page table was supplied at all).
func (t *Table) External(docID uint32) string {
	if t == nil {
		return strconv.FormatUint(uint64(docID), 10)
	}
	if ext, ok := t.ext[docID]; ok {
		return ext
	}
	return strconv.FormatUint(uint64(docID), 10)
}

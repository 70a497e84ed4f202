// Package postings decodes per-term posting-list blocks from
// postings.bin. The file is memory-mapped (github.com/edsrzf/mmap-go) so
// that decoding a block is a slice read over the mapped region rather
// than a seek-then-read syscall pair, keeping per-term decode lock-free
// against concurrent readers (spec §5).
package postings

import (
	"encoding/binary"
	"fmt"
	"os"

	mmap "github.com/edsrzf/mmap-go"

	"github.com/bad33ndj3/passage-retrieval/internal/model"
)

// File is a read-only handle on postings.bin. A File may be shared
// across goroutines: Decode only reads from the mapped region.
type File struct {
	f   *os.File
	mm  mmap.MMap
	len int64
}

// Open memory-maps the postings file at path for reading.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open postings file %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat postings file %s: %w", path, err)
	}
	if info.Size() == 0 {
		// mmap.Map rejects zero-length files; an empty index (no terms)
		// is legal, so fall back to an unmapped handle that any Decode
		// call will reject via the bounds check below.
		return &File{f: f, len: 0}, nil
	}
	mm, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap postings file %s: %w", path, err)
	}
	return &File{f: f, mm: mm, len: info.Size()}, nil
}

// Close unmaps and closes the underlying file.
func (p *File) Close() error {
	var err error
	if p.mm != nil {
		err = p.mm.Unmap()
	}
	if cerr := p.f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Decode reads the df postings addressed by a lexicon entry's
// (offset, length) and returns the strictly-ascending docid array and
// the parallel tf array. The baseline encoding (spec §6) is two 32-bit
// little-endian arrays, docs then tfs, each of length df.
func (p *File) Decode(e model.LexiconEntry) (model.PostingList, error) {
	if e.Length == 0 {
		return model.PostingList{}, nil
	}
	if e.Offset < 0 || e.Length < 0 || e.Offset+e.Length > p.len {
		return model.PostingList{}, fmt.Errorf("posting block for %q out of bounds: offset=%d length=%d file_size=%d", e.Term, e.Offset, e.Length, p.len)
	}
	wantLen := int64(8 * e.DF)
	if e.Length != wantLen {
		return model.PostingList{}, fmt.Errorf("posting block for %q has length %d, expected 8*df=%d", e.Term, e.Length, wantLen)
	}

	block := p.mm[e.Offset : e.Offset+e.Length]
	n := int(e.DF)
	docs := make([]uint32, n)
	tfs := make([]uint32, n)

	for i := 0; i < n; i++ {
		docs[i] = binary.LittleEndian.Uint32(block[i*4 : i*4+4])
	}
	tfOff := n * 4
	for i := 0; i < n; i++ {
		tfs[i] = binary.LittleEndian.Uint32(block[tfOff+i*4 : tfOff+i*4+4])
	}

	var prev uint32
	for i, d := range docs {
		if i > 0 && d <= prev {
			return model.PostingList{}, fmt.Errorf("posting block for %q not strictly ascending at index %d (docid %d after %d)", e.Term, i, d, prev)
		}
		prev = d
	}

	return model.PostingList{Docs: docs, TFs: tfs}, nil
}

// BlockWriter appends contiguous per-term posting blocks to postings.bin
// in the exact byte layout Decode expects, and hands back the
// (offset, length) pair for the lexicon.
type BlockWriter struct {
	f      *os.File
	offset int64
}

// NewBlockWriter creates (or truncates) postings.bin at path.
func NewBlockWriter(path string) (*BlockWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create postings file %s: %w", path, err)
	}
	return &BlockWriter{f: f}, nil
}

// WriteTerm appends one term's posting list (docs ascending, tfs
// parallel) and returns its (offset, length) within the file.
func (w *BlockWriter) WriteTerm(docs, tfs []uint32) (offset, length int64, err error) {
	if len(docs) != len(tfs) {
		return 0, 0, fmt.Errorf("docs/tfs length mismatch: %d vs %d", len(docs), len(tfs))
	}
	n := len(docs)
	buf := make([]byte, 8*n)
	for i, d := range docs {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], d)
	}
	tfOff := n * 4
	for i, t := range tfs {
		binary.LittleEndian.PutUint32(buf[tfOff+i*4:tfOff+i*4+4], t)
	}

	start := w.offset
	written, err := w.f.Write(buf)
	if err != nil {
		return 0, 0, fmt.Errorf("write posting block: %w", err)
	}
	w.offset += int64(written)
	return start, int64(written), nil
}

// Close closes the underlying file.
func (w *BlockWriter) Close() error {
	return w.f.Close()
}

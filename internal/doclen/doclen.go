// Package doclen reads and writes the per-document length sidecar:
// a flat array of 32-bit little-endian unsigned integers, one per
// internal docid, in docid order.
package doclen

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
)

// Table is an in-memory doclen array plus the derived average, the
// single number the BM25 scorer needs besides per-doc length.
type Table struct {
	Lens   []uint32
	AvgDL  float64
	SumLen uint64
}

// Load reads a doclen.bin file in its entirety.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read doclen file %s: %w", path, err)
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("doclen file %s has truncated trailing record (%d bytes)", path, len(data))
	}

	n := len(data) / 4
	lens := make([]uint32, n)
	var sum uint64
	for i := 0; i < n; i++ {
		v := binary.LittleEndian.Uint32(data[i*4 : i*4+4])
		lens[i] = v
		sum += uint64(v)
	}

	avg := 0.0
	if n > 0 {
		avg = float64(sum) / float64(n)
	}

	return &Table{Lens: lens, AvgDL: avg, SumLen: sum}, nil
}

// Writer appends document lengths to a doclen.bin file in the order they
// are observed by the Run-Builder's single producer goroutine, so the
// on-disk array never needs reordering once written.
type Writer struct {
	f  *os.File
	bw *bufio.Writer
	n  int
}

// NewWriter creates (or truncates) the doclen sidecar at path.
func NewWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create doclen file %s: %w", path, err)
	}
	return &Writer{f: f, bw: bufio.NewWriterSize(f, 64*1024)}, nil
}

// Append writes the next document's token count. Callers must call this
// exactly once per docid, in ascending docid order.
func (w *Writer) Append(length int) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(length))
	if _, err := w.bw.Write(buf[:]); err != nil {
		return fmt.Errorf("write doclen record %d: %w", w.n, err)
	}
	w.n++
	return nil
}

// Close flushes buffered writes and closes the underlying file.
func (w *Writer) Close() error {
	if err := w.bw.Flush(); err != nil {
		_ = w.f.Close()
		return fmt.Errorf("flush doclen writer: %w", err)
	}
	return w.f.Close()
}

// Count returns the number of documents written so far.
func (w *Writer) Count() int { return w.n }

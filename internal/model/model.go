// Package model contains the core data types shared across the retrieval
// pipeline. They are pure data structures with no behavior, so every
// downstream package can agree on the same nouns without importing each
// other's internals.
package model

// Posting is a single (term, docid, tf) observation: term t appears tf
// times in document docid.
type Posting struct {
	Term  string
	DocID uint32
	TF    uint32
}

// LexiconEntry locates one term's posting list inside postings.bin and
// records its document frequency.
type LexiconEntry struct {
	Term   string
	Offset int64
	Length int64
	DF     uint32
}

// PostingList is the decoded form of a lexicon entry's byte block:
// two equal-length, docid-ascending arrays.
type PostingList struct {
	Docs []uint32
	TFs  []uint32
}

// Len reports the number of postings in the list.
func (p PostingList) Len() int { return len(p.Docs) }

// RunRecord is a single TREC-style ranked output row.
type RunRecord struct {
	QID   string
	DocID string
	Rank  int
	Score float64
	Tag   string
}

// ScoredDoc pairs an internal docid with a score, the unit ranking
// operates on before it is mapped to external ids.
type ScoredDoc struct {
	DocID uint32
	Score float64
}

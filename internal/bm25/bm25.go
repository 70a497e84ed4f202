// Package bm25 scores documents against a query over an inverted index,
// adapting the teacher's search.BM25Searcher (calcIDF/calcTF/scoreChunk)
// from a single in-memory chunk set to a disk-backed lexicon + posting
// reader + doclen table.
package bm25

import (
	"fmt"
	"math"
	"sort"

	"github.com/bad33ndj3/passage-retrieval/internal/doclen"
	"github.com/bad33ndj3/passage-retrieval/internal/lexicon"
	"github.com/bad33ndj3/passage-retrieval/internal/model"
	"github.com/bad33ndj3/passage-retrieval/internal/postings"
	"github.com/bad33ndj3/passage-retrieval/internal/tokenize"
)

// Config holds the BM25 tuning parameters (spec §4.5 defaults).
type Config struct {
	K1 float64
	B  float64
}

// DefaultConfig returns the spec-mandated defaults.
func DefaultConfig() Config {
	return Config{K1: 0.9, B: 0.4}
}

// Mode selects disjunctive or conjunctive candidate qualification.
type Mode int

const (
	Disjunctive Mode = iota
	Conjunctive
)

// Scorer evaluates BM25 queries against a fixed, already-built index.
// A Scorer is read-only and safe for concurrent use by multiple query
// workers provided each worker opens its own *postings.File handle
// (spec §5); Scorer itself holds no mutable state.
type Scorer struct {
	lex    *lexicon.Lexicon
	dl     *doclen.Table
	cfg    Config
	numDoc float64
}

// NewScorer builds a Scorer over a loaded lexicon and doclen table.
func NewScorer(lex *lexicon.Lexicon, dl *doclen.Table, cfg Config) *Scorer {
	return &Scorer{lex: lex, dl: dl, cfg: cfg, numDoc: float64(len(dl.Lens))}
}

// idf computes the Robertson-Spärck-Jones inverse document frequency
// with +1 smoothing (spec §4.5): ln((N-df+0.5)/(df+0.5) + 1).
func (s *Scorer) idf(df float64) float64 {
	return math.Log((s.numDoc-df+0.5)/(df+0.5) + 1)
}

// termScore computes one posting's BM25 contribution given the term's
// idf, its tf in the document, and the document's length.
func (s *Scorer) termScore(idfT, tf, docLen float64) float64 {
	denom := tf + s.cfg.K1*(1-s.cfg.B+s.cfg.B*docLen/s.dl.AvgDL)
	if denom == 0 {
		return 0
	}
	return idfT * tf * (s.cfg.K1 + 1) / denom
}

// Score evaluates query against the index using pf to decode posting
// lists, returning every qualifying document and its score, per mode.
// An empty or fully out-of-vocabulary query yields an empty, non-error
// result (spec §4.5 edge case).
func (s *Scorer) Score(pf *postings.File, query string, mode Mode) ([]model.ScoredDoc, error) {
	terms := tokenize.Tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}
	queryTF := tokenize.Count(terms)

	type termPostings struct {
		idf float64
		pl  model.PostingList
	}
	inVocab := make(map[string]termPostings, len(queryTF))
	for term := range queryTF {
		entry, ok := s.lex.Lookup(term)
		if !ok {
			continue // unknown term at query time is silent (spec §7)
		}
		pl, err := pf.Decode(entry)
		if err != nil {
			return nil, fmt.Errorf("decode postings for %q: %w", term, err)
		}
		inVocab[term] = termPostings{idf: s.idf(float64(entry.DF)), pl: pl}
	}
	if len(inVocab) == 0 {
		return nil, nil
	}

	scores := make(map[uint32]float64)
	hits := make(map[uint32]int) // docid -> number of distinct query terms it matched

	// Query-side term frequency is ignored (spec §4.5): each in-vocabulary
	// query term contributes once per matching document regardless of how
	// many times it repeats in the query.
	for _, tp := range inVocab {
		for i, docID := range tp.pl.Docs {
			tf := float64(tp.pl.TFs[i])
			docLen := float64(s.dl.Lens[docID])
			scores[docID] += s.termScore(tp.idf, tf, docLen)
			hits[docID]++
		}
	}

	if mode == Conjunctive {
		required := len(inVocab)
		for docID, n := range hits {
			if n < required {
				delete(scores, docID)
			}
		}
	}

	out := make([]model.ScoredDoc, 0, len(scores))
	for docID, score := range scores {
		out = append(out, model.ScoredDoc{DocID: docID, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].DocID < out[j].DocID
	})
	return out, nil
}

// TopK truncates a descending-sorted, ascending-docid-tiebroken result
// set to the first k entries. k must be >= 1.
func TopK(scored []model.ScoredDoc, k int) ([]model.ScoredDoc, error) {
	if k < 1 {
		return nil, fmt.Errorf("topK must be >= 1, got %d", k)
	}
	if len(scored) <= k {
		return scored, nil
	}
	return scored[:k], nil
}

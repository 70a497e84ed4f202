// Package rerank combines BM25 candidates with dense embedding
// similarity, the Go-idiomatic generalization of the teacher's
// HybridSearcher (internal/search/hybrid.go): same dot-product +
// normalize-then-fuse shape, but over disk-backed embedding stores and
// BM25 run files instead of in-memory chunks (spec §4.8).
package rerank

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/bad33ndj3/passage-retrieval/internal/embedstore"
	"github.com/bad33ndj3/passage-retrieval/internal/model"
)

// NormMethod selects how a score map is normalized before fusion.
type NormMethod int

const (
	NormNone NormMethod = iota
	NormMinMax
	NormZScore
)

// epsilon substitutes for zero variance/range during normalization
// (spec §7: "Zero-variance normalisation: substitute ε = 1e-9").
const epsilon = 1e-9

// Normalize is a pure map -> map transform: it never mutates scores in
// place, matching the teacher's scoreHybrid style of building a fresh
// result map rather than rewriting the input (spec §9 design note).
func Normalize(scores map[int64]float64, method NormMethod) map[int64]float64 {
	out := make(map[int64]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	switch method {
	case NormMinMax:
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, v := range scores {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		span := hi - lo
		if span < epsilon {
			span = epsilon
		}
		for k, v := range scores {
			out[k] = (v - lo) / span
		}
	case NormZScore:
		mean := 0.0
		for _, v := range scores {
			mean += v
		}
		mean /= float64(len(scores))
		variance := 0.0
		for _, v := range scores {
			d := v - mean
			variance += d * d
		}
		variance /= float64(len(scores))
		std := math.Sqrt(variance)
		if std < epsilon {
			std = epsilon
		}
		for k, v := range scores {
			out[k] = (v - mean) / std
		}
	default: // NormNone
		for k, v := range scores {
			out[k] = v
		}
	}
	return out
}

// FusionMode selects how dense and BM25 scores combine.
type FusionMode int

const (
	FusionDense FusionMode = iota
	FusionLinear
)

// Config holds the per-run reranking parameters (spec §4.8).
type Config struct {
	Fusion    FusionMode
	Alpha     float64 // fusion weight, final = alpha*dense + (1-alpha)*bm25
	NormDense NormMethod
	NormBM25  NormMethod
	TopKOut   int
	Tag       string
}

// Candidate is one BM25-ranked document awaiting dense scoring.
type Candidate struct {
	PID       string // external passage id, as written by the Query Driver
	BM25Score float64
}

// Encoder produces a live query embedding, grounded on the teacher's
// embedding.Embedder interface (internal/embedding/embedder.go).
type Encoder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// dot computes the dot-product similarity between two equal-length
// float32 vectors, mirroring the teacher's cosineSimilarity helper but
// without the norm division the spec's dense score omits.
func dot(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch: query has %d dims, passage has %d", len(a), len(b))
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum, nil
}

// Reranker scores BM25 candidates with dense similarity and fuses the
// two score streams. A Reranker is not safe for concurrent RerankQuery
// calls against the same instance unless liveEncoder is nil, because the
// live-embedding cache is an unguarded map written on every live encode.
type Reranker struct {
	cfg          Config
	queryStore   *embedstore.Store
	passageStore *embedstore.Store
	liveEncoder  Encoder
	liveCache    map[string][]float32
}

// New builds a Reranker. liveEncoder may be nil, in which case qids
// absent from queryStore are skipped with a warning by the caller
// rather than erroring (spec §4.8 expansion).
func New(cfg Config, queryStore, passageStore *embedstore.Store, liveEncoder Encoder) *Reranker {
	return &Reranker{
		cfg:          cfg,
		queryStore:   queryStore,
		passageStore: passageStore,
		liveEncoder:  liveEncoder,
		liveCache:    make(map[string][]float32),
	}
}

// Configure replaces the fusion/normalisation/topK parameters for
// subsequent RerankQuery calls, leaving the query/passage stores, live
// encoder, and live-encode cache untouched. It lets a long-lived caller
// such as the MCP serve command vary fusion settings per tool call
// without rebuilding a Reranker (and losing its live-encode cache) each
// time (spec §6 expansion).
func (r *Reranker) Configure(cfg Config) {
	r.cfg = cfg
}

// queryVector resolves qid to a query vector, falling back to the live
// encoder (and caching the result for this Reranker's lifetime) when no
// precomputed row exists.
func (r *Reranker) queryVector(ctx context.Context, qid, qtext string) ([]float32, error) {
	if extID, err := strconv.ParseInt(qid, 10, 64); err == nil {
		if v, ok := r.queryStore.Vector(extID); ok {
			return v, nil
		}
	}
	if v, ok := r.liveCache[qid]; ok {
		return v, nil
	}
	if r.liveEncoder == nil {
		return nil, fmt.Errorf("qid %q has no precomputed query vector and no live encoder is configured", qid)
	}
	v, err := r.liveEncoder.Embed(ctx, qtext)
	if err != nil {
		return nil, fmt.Errorf("live-encode query %q: %w", qid, err)
	}
	r.liveCache[qid] = v
	return v, nil
}

// RerankQuery fuses one query's BM25 candidates with dense similarity
// and returns the top TopKOut TREC rows for qid, ranked and tagged.
// Candidates whose pid is absent from the passage store are dropped
// (spec §4.8 step 2); a query with no usable query vector is the
// caller's responsibility to skip (spec §4.8 expansion: "[WARN] ...
// consistent with §7's 'empty result is not an error'").
func (r *Reranker) RerankQuery(ctx context.Context, qid, qtext string, candidates []Candidate) ([]model.RunRecord, error) {
	qv, err := r.queryVector(ctx, qid, qtext)
	if err != nil {
		return nil, err
	}

	denseScores := make(map[int64]float64, len(candidates))
	bm25Scores := make(map[int64]float64, len(candidates))
	for _, c := range candidates {
		pid, err := strconv.ParseInt(c.PID, 10, 64)
		if err != nil {
			continue // non-numeric external id cannot address the passage store
		}
		pvec, ok := r.passageStore.Vector(pid)
		if !ok {
			continue
		}
		d, err := dot(qv, pvec)
		if err != nil {
			return nil, fmt.Errorf("query %q vs passage %d: %w", qid, pid, err)
		}
		denseScores[pid] = d
		bm25Scores[pid] = c.BM25Score
	}

	normDense := Normalize(denseScores, r.cfg.NormDense)
	normBM25 := Normalize(bm25Scores, r.cfg.NormBM25)

	final := make(map[int64]float64, len(normDense))
	switch r.cfg.Fusion {
	case FusionLinear:
		for pid, d := range normDense {
			final[pid] = r.cfg.Alpha*d + (1-r.cfg.Alpha)*normBM25[pid]
		}
	default: // FusionDense
		for pid, d := range normDense {
			final[pid] = d
		}
	}

	type ranked struct {
		pid   int64
		score float64
	}
	list := make([]ranked, 0, len(final))
	for pid, score := range final {
		list = append(list, ranked{pid, score})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].score != list[j].score {
			return list[i].score > list[j].score
		}
		return list[i].pid < list[j].pid
	})
	if r.cfg.TopKOut > 0 && len(list) > r.cfg.TopKOut {
		list = list[:r.cfg.TopKOut]
	}

	out := make([]model.RunRecord, len(list))
	for i, sc := range list {
		out[i] = model.RunRecord{
			QID:   qid,
			DocID: strconv.FormatInt(sc.pid, 10),
			Rank:  i + 1,
			Score: sc.score,
			Tag:   r.cfg.Tag,
		}
	}
	return out, nil
}

// Package tokenize implements the single normaliser shared by index build
// and query evaluation. Any divergence between the two call sites is a
// correctness bug (spec §4.1), so both the Run-Builder and the Query
// Driver must call Tokenize and nothing else.
package tokenize

import (
	"strings"
	"unicode"
)

// Tokenize splits text into a deterministic, ordered sequence of
// lowercase alphanumeric tokens. Unicode letters and digits are emitted
// literally: no stemming, no stop-list, no locale-specific casing rules
// beyond strings.ToLower.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}

	lower := strings.ToLower(text)
	tokens := make([]string, 0, len(lower)/6+1)

	var b strings.Builder
	for _, r := range lower {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}

	return tokens
}

// Count returns per-term frequency within a token stream, the input to
// both Run-Builder's posting accumulation and the BM25 scorer's query
// term folding (spec §4.5: duplicate query terms do not double-count).
func Count(tokens []string) map[string]uint32 {
	counts := make(map[string]uint32, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	return counts
}

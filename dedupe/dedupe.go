// ABOUTME: Fuzzy deduplication of freeform text lists
// ABOUTME: Removes near-duplicate strings via normalization, containment, and token overlap
package dedupe

import (
	"strings"
)

// DefaultThreshold is the token-set Jaccard similarity at or above which
// two items are treated as duplicates.
const DefaultThreshold = 0.8

// minTokenLen filters short words out of the token-set comparison so
// stopwords like "a" and "to" don't dominate the overlap.
const minTokenLen = 2

// Dedupe removes near-duplicate strings from items, keeping the first
// occurrence in input order. Items that normalize to the empty string are
// dropped. Two items are duplicates when their normalized forms are
// equal, one contains the other, or their token sets overlap at or above
// threshold.
func Dedupe(items []string, threshold float64) []string {
	if len(items) == 0 {
		return nil
	}

	var kept []string
	var keptNorm []string

	for _, item := range items {
		norm := Normalize(item)
		if norm == "" {
			continue
		}

		duplicate := false
		for _, existing := range keptNorm {
			if isDuplicate(norm, existing, threshold) {
				duplicate = true
				break
			}
		}

		if !duplicate {
			kept = append(kept, item)
			keptNorm = append(keptNorm, norm)
		}
	}

	return kept
}

// MergeAndDedupe reconciles a stored list with newly produced items:
// existing entries win on near-duplicates and keep their position.
func MergeAndDedupe(existing, incoming []string, threshold float64) []string {
	merged := make([]string, 0, len(existing)+len(incoming))
	merged = append(merged, existing...)
	merged = append(merged, incoming...)
	return Dedupe(merged, threshold)
}

// Normalize lowercases, trims, strips punctuation, and collapses
// whitespace runs so cosmetic differences don't defeat comparison.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '.', ',', '!', '?', ';', ':', '\'', '"':
			// stripped
		default:
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

func isDuplicate(a, b string, threshold float64) bool {
	if a == b {
		return true
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	return jaccard(tokenSet(a), tokenSet(b)) >= threshold
}

// tokenSet returns the words of length > minTokenLen. Single-word items
// typically produce an empty or single-element set; empty sets only
// compare equal to other empty sets, which the normalized-equality check
// above already covered.
func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		if len(w) > minTokenLen {
			set[w] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// ABOUTME: Greedy order-preserving alignment of new text parts against old ones
// ABOUTME: Decides which old subtrees an edit may keep, re-parse or discard

package reuse

import "strings"

// DefaultThreshold is the token overlap ratio a partial match must exceed
const DefaultThreshold = 0.25

// Part is an existing child segment
type Part struct {
	ID   string
	Text string
}

// Match is the alignment result for one new part.
// OldIndex is -1 when nothing was reused.
type Match struct {
	OldIndex int
	Exact    bool
}

// Matched reports whether an old part was selected
func (m Match) Matched() bool { return m.OldIndex >= 0 }

// Partial reports whether the old part should seed a recursive re-parse
func (m Match) Partial() bool { return m.OldIndex >= 0 && !m.Exact }

var noMatch = Match{OldIndex: -1}

// Tokenizer splits a part into the tokens compared for overlap
type Tokenizer func(text string) []string

// Counts returns how often each string occurs
func Counts(items []string) map[string]int {
	m := make(map[string]int, len(items))
	for _, s := range items {
		m[s]++
	}
	return m
}

// IsReordered reports whether both slices hold the same multiset of
// strings in a different order
func IsReordered(old, parts []string) bool {
	if len(old) != len(parts) {
		return false
	}
	same := true
	for i := range old {
		if old[i] != parts[i] {
			same = false
			break
		}
	}
	if same {
		return false
	}

	oldCounts := Counts(old)
	newCounts := Counts(parts)
	if len(oldCounts) != len(newCounts) {
		return false
	}
	for k, v := range oldCounts {
		if newCounts[k] != v {
			return false
		}
	}
	return true
}

// TokenOverlap counts the tokens of a found in b, each token of b consumed once
func TokenOverlap(a, b []string) int {
	counts := Counts(b)
	n := 0
	for _, t := range a {
		if counts[t] > 0 {
			n++
			counts[t]--
		}
	}
	return n
}

// overlapRatio is the share of old's tokens that survive in the new part
func overlapRatio(oldText string, newTokens []string, tokenize Tokenizer) float64 {
	if strings.TrimSpace(oldText) == "" {
		return 0
	}
	oldTokens := tokenize(oldText)
	if len(oldTokens) == 0 {
		return 0
	}
	return float64(TokenOverlap(oldTokens, newTokens)) / float64(len(oldTokens))
}

// Greedy aligns parts against old, left to right. A cursor into old only
// moves forward, so an old part is reused at most once and reuse never
// crosses an earlier match. At each candidate position an exact text match
// wins; otherwise the first candidate whose overlap ratio exceeds threshold
// is taken as a partial match. A pure reorder reuses nothing.
func Greedy(old []Part, parts []string, tokenize Tokenizer, threshold float64) []Match {
	result := make([]Match, len(parts))

	oldTexts := make([]string, len(old))
	for i, p := range old {
		oldTexts[i] = p.Text
	}
	if IsReordered(oldTexts, parts) {
		for i := range result {
			result[i] = noMatch
		}
		return result
	}

	cursor := 0
	for i, text := range parts {
		result[i] = noMatch
		newTokens := tokenize(text)
		for j := cursor; j < len(old); j++ {
			if old[j].Text == text {
				result[i] = Match{OldIndex: j, Exact: true}
				cursor = j + 1
				break
			}
			if overlapRatio(old[j].Text, newTokens, tokenize) > threshold {
				result[i] = Match{OldIndex: j}
				cursor = j + 1
				break
			}
		}
	}
	return result
}

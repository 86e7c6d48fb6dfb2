package text

import (
	"regexp"
	"sort"
	"strings"
)

const minKeywordLength = 4

var nonAlphaRe = regexp.MustCompile(`[^a-z]+`)

var stopwords = map[string]struct{}{
	"that": {}, "this": {}, "with": {}, "from": {}, "have": {}, "been": {},
	"were": {}, "they": {}, "will": {}, "would": {}, "could": {}, "should": {},
	"their": {}, "which": {}, "there": {}, "these": {}, "those": {}, "other": {},
	"into": {}, "such": {}, "than": {}, "only": {}, "also": {}, "made": {},
	"make": {}, "well": {}, "must": {}, "said": {}, "each": {}, "does": {},
	"very": {},
}

// IsStopword reports whether w is dropped during tokenization.
func IsStopword(w string) bool {
	_, ok := stopwords[w]
	return ok
}

// Tokenize lowercases s, strips everything but letters and returns the words
// of at least four letters that are not stopwords. Order and duplicates are
// preserved.
func Tokenize(s string) []string {
	clean := nonAlphaRe.ReplaceAllString(strings.ToLower(s), " ")
	fields := strings.Fields(clean)
	out := fields[:0]
	for _, w := range fields {
		if len(w) < minKeywordLength || IsStopword(w) {
			continue
		}
		out = append(out, w)
	}
	return out
}

// UniqueTokens is Tokenize with duplicates removed, keeping first occurrence.
func UniqueTokens(s string) []string {
	tokens := Tokenize(s)
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// ExtractKeywords returns the limit most frequent tokens of s. Ties go to the
// word seen first.
func ExtractKeywords(s string, limit int) []string {
	if limit <= 0 {
		return nil
	}

	counts := make(map[string]int)
	var order []string
	for _, w := range Tokenize(s) {
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	if len(order) > limit {
		order = order[:limit]
	}
	return order
}

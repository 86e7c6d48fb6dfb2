package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/eratner15/tariff-engineer/features/ruling"
)

// MinPartialLength is the shortest term allowed to count as a substring
// match.
const MinPartialLength = 4

// Lexical match weights.
const (
	exactWeight   = 2
	partialWeight = 1
)

type strategy interface {
	kind() MatchKind
	candidates(ctx context.Context, q preparedQuery) ([]ScoredResult, error)
}

// lexicalStrategy scores the whole corpus, reading it in id order pageSize
// records at a time. Only records scoring above zero are kept.
type lexicalStrategy struct {
	store    Store
	pageSize int
}

func (lexicalStrategy) kind() MatchKind { return MatchLexical }

func (l lexicalStrategy) candidates(ctx context.Context, q preparedQuery) ([]ScoredResult, error) {
	if len(q.keywords) == 0 {
		return nil, nil
	}
	pageSize := max(l.pageSize, 1)

	var out []ScoredResult
	after := ""
	for {
		page, err := l.store.ListAfter(ctx, after, pageSize)
		if err != nil {
			return nil, fmt.Errorf("list rulings after %q: %w", after, err)
		}
		for _, rec := range page {
			score := LexicalScore(q.keywords, recordTerms(rec))
			if score > 0 {
				out = append(out, ScoredResult{Record: rec, Score: score, MatchKind: MatchLexical})
			}
		}
		if len(page) < pageSize {
			return out, nil
		}
		after = page[len(page)-1].ID
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

// LexicalScore awards exactWeight per query keyword present in terms, else
// partialWeight for the first term containing it or contained by it, and
// normalises by the number of query keywords.
func LexicalScore(queryKeywords, terms []string) float64 {
	if len(queryKeywords) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[t] = struct{}{}
	}

	points := 0
	for _, q := range queryKeywords {
		if _, ok := set[q]; ok {
			points += exactWeight
			continue
		}
		for _, t := range terms {
			if partialMatch(q, t) {
				points += partialWeight
				break
			}
		}
	}
	return float64(points) / float64(len(queryKeywords))
}

func partialMatch(a, b string) bool {
	if min(len(a), len(b)) < MinPartialLength {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func recordTerms(rec ruling.Record) []string {
	terms := make([]string, 0, len(rec.Keywords)+len(rec.HTSCodes)+1)
	for _, k := range rec.Keywords {
		terms = append(terms, strings.ToLower(k))
	}
	terms = append(terms, rec.HTSCodes...)
	if rec.Category != "" {
		terms = append(terms, strings.ToLower(rec.Category))
	}
	return terms
}

type semanticStrategy struct {
	embedder  Embedder
	store     Store
	threshold float64
	limit     int
	timeout   time.Duration
}

func (semanticStrategy) kind() MatchKind { return MatchSemantic }

func (s semanticStrategy) candidates(ctx context.Context, q preparedQuery) ([]ScoredResult, error) {
	if strings.TrimSpace(q.text) == "" {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	vec, err := s.embedder.EmbedQuery(ctx, q.text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	matches, err := s.store.VectorSearch(ctx, vec, s.threshold, s.limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	out := make([]ScoredResult, 0, len(matches))
	for _, m := range matches {
		out = append(out, ScoredResult{Record: m.Record, Score: m.Similarity, MatchKind: MatchSemantic})
	}
	return out, nil
}

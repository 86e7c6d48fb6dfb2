package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/eratner15/tariff-engineer/features/ruling"
	"github.com/eratner15/tariff-engineer/internal/category"
	"github.com/eratner15/tariff-engineer/internal/settings"
	"github.com/eratner15/tariff-engineer/internal/text"
)

// CategoryBoost multiplies the score of records whose category matches the
// query's.
const CategoryBoost = 1.5

const DefaultSemanticTimeout = 5 * time.Second

type MatchKind string

const (
	MatchLexical  MatchKind = "lexical"
	MatchSemantic MatchKind = "semantic"
)

// Query is a free-text product description. A non-empty Category overrides
// detection.
type Query struct {
	Text     string
	Category string
}

type ScoredResult struct {
	ruling.Record
	Score     float64   `json:"score"`
	MatchKind MatchKind `json:"match_kind"`
}

type Result struct {
	Results []ScoredResult `json:"rulings"`
	// Category is the detected or overridden category of the query.
	Category string `json:"category"`
	// Total is the size of the stored corpus.
	Total int `json:"total"`
	// Matches counts rulings that scored above zero, before truncation.
	Matches int `json:"matches"`
	// Degraded is set when the corpus could not be read or is empty.
	Degraded bool `json:"degraded"`
}

type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type Store interface {
	ListAfter(ctx context.Context, afterID string, limit int) ([]ruling.Record, error)
	Count(ctx context.Context) (int, error)
	VectorSearch(ctx context.Context, vec []float32, threshold float64, limit int) ([]ruling.Match, error)
}

type SettingsProvider interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

type Option func(*Service)

// WithEmbedder enables the semantic strategy.
func WithEmbedder(e Embedder) Option {
	return func(s *Service) { s.embedder = e }
}

func WithSettings(p SettingsProvider) Option {
	return func(s *Service) { s.settings = p }
}

func WithQueryLogger(l *QueryLogger) Option {
	return func(s *Service) { s.logger = l }
}

// WithSemanticTimeout bounds query embedding plus vector search.
func WithSemanticTimeout(d time.Duration) Option {
	return func(s *Service) { s.semanticTimeout = d }
}

type Service struct {
	store           Store
	embedder        Embedder
	settings        SettingsProvider
	logger          *QueryLogger
	semanticTimeout time.Duration
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, semanticTimeout: DefaultSemanticTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rank scores stored rulings against q and returns at most limit results.
// A limit <= 0 uses the configured top-k. Rank never fails: strategy errors
// are logged and the affected strategy contributes nothing.
func (s *Service) Rank(ctx context.Context, q Query, limit int) Result {
	start := time.Now()
	cfg := s.loadSettings(ctx)
	if limit <= 0 {
		limit = cfg.SearchTopK
	}

	prepared := prepare(q)
	res := Result{Category: prepared.category, Results: []ScoredResult{}}

	defer func() {
		if s.logger != nil {
			s.logger.Record(ctx, q, limit, res, time.Since(start))
		}
	}()

	total, err := s.store.Count(ctx)
	if err != nil {
		slog.WarnContext(ctx, "ruling store unavailable, returning degraded result", "error", err)
		res.Degraded = true
		return res
	}
	if total == 0 {
		res.Degraded = true
		return res
	}
	res.Total = total

	strategies := []strategy{lexicalStrategy{store: s.store, pageSize: cfg.CandidateLimit}}
	if s.embedder != nil {
		strategies = append(strategies, semanticStrategy{
			embedder:  s.embedder,
			store:     s.store,
			threshold: float64(cfg.SemanticThreshold),
			limit:     cfg.SemanticLimit,
			timeout:   s.semanticTimeout,
		})
	}

	merged := map[string]ScoredResult{}
	for _, st := range strategies {
		candidates, err := st.candidates(ctx, prepared)
		if err != nil && st.kind() == MatchLexical {
			slog.WarnContext(ctx, "ruling store unavailable, returning degraded result", "error", err)
			res.Degraded = true
			return res
		}
		if err != nil {
			slog.WarnContext(ctx, "ranking strategy failed, skipping", "strategy", st.kind(), "error", err)
			continue
		}
		for _, c := range candidates {
			c.Score = boost(c.Score, c.Category, prepared.category)
			if c.Score <= 0 {
				continue
			}
			prev, seen := merged[c.ID]
			if !seen || c.Score > prev.Score {
				merged[c.ID] = c
			}
		}
	}

	ranked := make([]ScoredResult, 0, len(merged))
	for _, r := range merged {
		ranked = append(ranked, r)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ID < ranked[j].ID
	})

	res.Matches = len(ranked)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	res.Results = ranked
	return res
}

func (s *Service) loadSettings(ctx context.Context) settings.Settings {
	if s.settings == nil {
		return settings.Defaults()
	}
	cfg, err := s.settings.Get(ctx)
	if err != nil || cfg == nil || cfg.Validate() != nil {
		if err != nil {
			slog.WarnContext(ctx, "failed to load search settings, using defaults", "error", err)
		}
		return settings.Defaults()
	}
	return *cfg
}

type preparedQuery struct {
	text     string
	category string
	keywords []string
}

func prepare(q Query) preparedQuery {
	cat := category.Normalize(strings.TrimSpace(q.Category))
	if cat == "" {
		cat = category.Detect(q.Text)
	}
	keywords := text.UniqueTokens(q.Text)
	keywords = append(keywords, text.ExtractHTSCodes(q.Text)...)
	return preparedQuery{text: q.Text, category: cat, keywords: keywords}
}

func boost(score float64, recordCategory, queryCategory string) float64 {
	if recordCategory != "" && category.Normalize(recordCategory) == queryCategory {
		return score * CategoryBoost
	}
	return score
}

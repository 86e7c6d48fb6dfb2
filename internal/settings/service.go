package settings

import (
	"context"
	"errors"
	"fmt"
)

var ErrInvalid = errors.New("invalid settings")

// Bounds accepted by Validate.
const (
	MaxTopK           = 100
	MaxSemanticLimit  = 100
	MaxCandidateLimit = 100000
)

// Settings tunes ranking at runtime.
type Settings struct {
	ID                int     `json:"-"`
	SearchTopK        int     `json:"search_top_k"`
	SemanticThreshold float32 `json:"semantic_threshold"`
	SemanticLimit     int     `json:"semantic_limit"`
	// CandidateLimit is how many rulings lexical scoring reads per page.
	CandidateLimit    int     `json:"candidate_limit"`
}

// Defaults mirror the row seeded by the settings migration.
func Defaults() Settings {
	return Settings{
		ID:                1,
		SearchTopK:        10,
		SemanticThreshold: 0.5,
		SemanticLimit:     10,
		CandidateLimit:    5000,
	}
}

func (s Settings) Validate() error {
	switch {
	case s.SearchTopK < 1 || s.SearchTopK > MaxTopK:
		return fmt.Errorf("%w: search_top_k must be between 1 and %d", ErrInvalid, MaxTopK)
	case s.SemanticThreshold < 0 || s.SemanticThreshold > 1:
		return fmt.Errorf("%w: semantic_threshold must be between 0 and 1", ErrInvalid)
	case s.SemanticLimit < 1 || s.SemanticLimit > MaxSemanticLimit:
		return fmt.Errorf("%w: semantic_limit must be between 1 and %d", ErrInvalid, MaxSemanticLimit)
	case s.CandidateLimit < 1 || s.CandidateLimit > MaxCandidateLimit:
		return fmt.Errorf("%w: candidate_limit must be between 1 and %d", ErrInvalid, MaxCandidateLimit)
	}
	return nil
}

type Repository interface {
	Get(ctx context.Context) (*Settings, error)
	Update(ctx context.Context, s *Settings) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context) (*Settings, error) {
	return s.repo.Get(ctx)
}

func (s *Service) Update(ctx context.Context, set *Settings) error {
	if err := set.Validate(); err != nil {
		return err
	}
	return s.repo.Update(ctx, set)
}

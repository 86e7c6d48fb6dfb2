package settings

import (
	"context"
	"database/sql"
	"errors"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// Get returns the stored settings, or Defaults when the row is missing.
func (r *PostgresRepo) Get(ctx context.Context) (*Settings, error) {
	s := &Settings{}
	query := `SELECT id, search_top_k, semantic_threshold, semantic_limit, candidate_limit FROM settings WHERE id = 1`
	err := r.db.QueryRowContext(ctx, query).Scan(&s.ID, &s.SearchTopK, &s.SemanticThreshold, &s.SemanticLimit, &s.CandidateLimit)
	if errors.Is(err, sql.ErrNoRows) {
		d := Defaults()
		return &d, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepo) Update(ctx context.Context, s *Settings) error {
	query := `
		INSERT INTO settings (id, search_top_k, semantic_threshold, semantic_limit, candidate_limit, updated_at)
		VALUES (1, $1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET
			search_top_k = EXCLUDED.search_top_k,
			semantic_threshold = EXCLUDED.semantic_threshold,
			semantic_limit = EXCLUDED.semantic_limit,
			candidate_limit = EXCLUDED.candidate_limit,
			updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, s.SearchTopK, s.SemanticThreshold, s.SemanticLimit, s.CandidateLimit)
	return err
}

package settings_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/eratner15/tariff-engineer/internal/settings"
)

func TestPostgresRepo_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := settings.NewPostgresRepo(db)
	query := regexp.QuoteMeta("SELECT id, search_top_k, semantic_threshold, semantic_limit, candidate_limit FROM settings WHERE id = 1")

	t.Run("Success", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "search_top_k", "semantic_threshold", "semantic_limit", "candidate_limit"}).
			AddRow(1, 15, 0.7, 12, 2000)
		mock.ExpectQuery(query).WillReturnRows(rows)

		s, err := repo.Get(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, 15, s.SearchTopK)
		assert.Equal(t, float32(0.7), s.SemanticThreshold)
		assert.Equal(t, 2000, s.CandidateLimit)
	})

	t.Run("MissingRowFallsBackToDefaults", func(t *testing.T) {
		mock.ExpectQuery(query).WillReturnError(sql.ErrNoRows)

		s, err := repo.Get(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, settings.Defaults(), *s)
	})

	t.Run("Error", func(t *testing.T) {
		mock.ExpectQuery(query).WillReturnError(sqlmock.ErrCancelled)

		s, err := repo.Get(context.Background())
		assert.Error(t, err)
		assert.Nil(t, s)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Update(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := settings.NewPostgresRepo(db)
	s := &settings.Settings{SearchTopK: 20, SemanticThreshold: 0.6, SemanticLimit: 15, CandidateLimit: 1000}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO settings")).
		WithArgs(20, float32(0.6), 15, 1000).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.Update(context.Background(), s))
	assert.NoError(t, mock.ExpectationsWereMet())
}

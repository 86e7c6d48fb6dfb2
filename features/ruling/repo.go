package ruling

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
)

const rulingColumns = `id, kind, source_url, issue_date, hts_codes, product_description, classification, rationale, keywords, category, embedded, embedding_model, ingested_at, last_seen_at`

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// Upsert inserts r or replaces every mutable column of an existing row with
// the same id. ingested_at survives replacement; last_seen_at is refreshed.
func (r *PostgresRepo) Upsert(ctx context.Context, rec *Record) error {
	query := `INSERT INTO rulings (id, kind, source_url, issue_date, hts_codes, product_description, classification, rationale, keywords, category, embedded, embedding_model)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO UPDATE SET
	kind = EXCLUDED.kind,
	source_url = EXCLUDED.source_url,
	issue_date = EXCLUDED.issue_date,
	hts_codes = EXCLUDED.hts_codes,
	product_description = EXCLUDED.product_description,
	classification = EXCLUDED.classification,
	rationale = EXCLUDED.rationale,
	keywords = EXCLUDED.keywords,
	category = EXCLUDED.category,
	embedded = EXCLUDED.embedded,
	embedding_model = EXCLUDED.embedding_model,
	last_seen_at = NOW()
RETURNING ingested_at, last_seen_at`

	return r.db.QueryRowContext(ctx, query,
		rec.ID, string(rec.Kind), rec.SourceURL, nullTime(rec.IssueDate), pq.Array(rec.HTSCodes),
		rec.ProductDescription, rec.ClassificationSnippet, rec.Rationale, pq.Array(rec.Keywords),
		rec.Category, rec.Embedded, rec.EmbeddingModel,
	).Scan(&rec.IngestedAt, &rec.LastSeenAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Record, error) {
	query := `SELECT ` + rulingColumns + ` FROM rulings WHERE id = $1`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetMany returns the stored records among ids, ordered by id.
func (r *PostgresRepo) GetMany(ctx context.Context, ids []string) ([]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + rulingColumns + ` FROM rulings WHERE id = ANY($1) ORDER BY id`
	return r.queryRecords(ctx, query, pq.Array(ids))
}

func (r *PostgresRepo) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM rulings WHERE id = $1)`
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PostgresRepo) ListAll(ctx context.Context, limit int) ([]Record, error) {
	query := `SELECT ` + rulingColumns + ` FROM rulings ORDER BY id LIMIT $1`
	return r.queryRecords(ctx, query, limit)
}

// ListAfter returns up to limit records with ids greater than afterID, in id
// order. Pass "" for the first page.
func (r *PostgresRepo) ListAfter(ctx context.Context, afterID string, limit int) ([]Record, error) {
	query := `SELECT ` + rulingColumns + ` FROM rulings WHERE id > $1 ORDER BY id LIMIT $2`
	return r.queryRecords(ctx, query, afterID, limit)
}

func (r *PostgresRepo) ListUnembedded(ctx context.Context, limit int) ([]Record, error) {
	query := `SELECT ` + rulingColumns + ` FROM rulings WHERE NOT embedded ORDER BY id LIMIT $1`
	return r.queryRecords(ctx, query, limit)
}

func (r *PostgresRepo) MarkEmbedded(ctx context.Context, id, model string) error {
	query := `UPDATE rulings SET embedded = TRUE, embedding_model = $1 WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, model, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM rulings`
	if err := r.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *PostgresRepo) CountEmbedded(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM rulings WHERE embedded`
	if err := r.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// SearchByHTSPrefix returns rulings citing any code that starts with prefix.
func (r *PostgresRepo) SearchByHTSPrefix(ctx context.Context, prefix string, limit int) ([]Record, error) {
	query := `SELECT ` + rulingColumns + ` FROM rulings WHERE EXISTS (SELECT 1 FROM unnest(hts_codes) AS code WHERE code LIKE $1) ORDER BY id LIMIT $2`
	return r.queryRecords(ctx, query, prefix+"%", limit)
}

func (r *PostgresRepo) queryRecords(ctx context.Context, query string, args ...interface{}) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s rowScanner) (Record, error) {
	var (
		rec       Record
		kind      string
		issueDate sql.NullTime
	)
	err := s.Scan(&rec.ID, &kind, &rec.SourceURL, &issueDate, pq.Array(&rec.HTSCodes),
		&rec.ProductDescription, &rec.ClassificationSnippet, &rec.Rationale, pq.Array(&rec.Keywords),
		&rec.Category, &rec.Embedded, &rec.EmbeddingModel, &rec.IngestedAt, &rec.LastSeenAt)
	if err != nil {
		return Record{}, err
	}
	rec.Kind = Kind(kind)
	if issueDate.Valid {
		t := issueDate.Time
		rec.IssueDate = &t
	}
	return rec, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

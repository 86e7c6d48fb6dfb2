package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/eratner15/tariff-engineer/internal/adapter/gemini"
	wstore "github.com/eratner15/tariff-engineer/internal/adapter/weaviate"
	"github.com/eratner15/tariff-engineer/internal/config"
)

type Dependencies struct {
	DB *sql.DB
	// VectorStore is nil when ENABLE_VECTOR_INDEX is off.
	VectorStore VectorStore
	NSQProducer *nsq.Producer
	// Embedder is nil unless ENABLE_EMBEDDINGS is set.
	Embedder *gemini.Embedder
}

// Options turns the optional dependencies into app options.
func (d *Dependencies) Options() []Option {
	var opts []Option
	if d.Embedder != nil {
		opts = append(opts, WithEmbeddingBackend(d.Embedder))
	}
	return opts
}

func (d *Dependencies) Close() {
	if d.NSQProducer != nil {
		d.NSQProducer.Stop()
	}
	if d.Embedder != nil {
		if err := d.Embedder.Close(); err != nil {
			slog.Warn("failed to close embedder", "error", err)
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			slog.Warn("failed to close db", "error", err)
		}
	}
}

func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	if err := pingWithRetry(ctx, db, cfg.BootstrapRetryAttempts, retryDelay); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if err := migrateUp(db, cfg.MigrationPath); err != nil {
		_ = db.Close()
		return nil, err
	}

	deps := &Dependencies{DB: db}

	if cfg.EnableVectorIndex {
		wClient, err := weaviate.NewClient(weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme})
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("weaviate client error: %w", err)
		}
		vecStore := wstore.NewStore(wClient)
		if err := EnsureSchemaWithRetry(ctx, vecStore, cfg.BootstrapRetryAttempts, retryDelay); err != nil {
			deps.Close()
			return nil, fmt.Errorf("weaviate schema error: %w", err)
		}
		deps.VectorStore = vecStore
	}

	if cfg.EnableEmbeddings {
		embedder, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("gemini client error: %w", err)
		}
		deps.Embedder = embedder
	}

	producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("nsq producer error: %w", err)
	}
	deps.NSQProducer = producer

	// Consumers polling lookupd get 404s until a topic exists.
	go createTopics(ctx, http.DefaultClient, cfg.NSQDHTTP, config.Topics, 2*time.Second)

	return deps, nil
}

func pingWithRetry(ctx context.Context, db *sql.DB, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < max(attempts, 1); i++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1, "error", err)
		if i < attempts-1 {
			if werr := wait(ctx, delay); werr != nil {
				return werr
			}
		}
	}
	return err
}

func migrateUp(db *sql.DB, path string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up error: %w", err)
	}
	slog.Info("migrations applied", "path", path)
	return nil
}

// createTopics asks nsqd's HTTP API to create each topic after delay.
func createTopics(ctx context.Context, client *http.Client, nsqdHTTP string, topics []string, delay time.Duration) {
	if err := wait(ctx, delay); err != nil {
		return
	}
	for _, topic := range topics {
		u := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, url.QueryEscape(topic))
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
		if err != nil {
			slog.Warn("failed to build NSQ topic request", "topic", topic, "error", err)
			continue
		}
		resp, err := client.Do(req) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", topic, "error", err)
			continue
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
		if resp.StatusCode != http.StatusOK {
			slog.Warn("unexpected NSQ topic creation status", "topic", topic, "status", resp.StatusCode)
			continue
		}
		slog.Info("nsq topic ready", "topic", topic)
	}
}

type schemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

// EnsureSchemaWithRetry keeps trying until Weaviate accepts the schema.
func EnsureSchemaWithRetry(ctx context.Context, store schemaEnsurer, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < max(attempts, 1); i++ {
		if err = store.EnsureSchema(ctx); err == nil {
			return nil
		}
		slog.Warn("failed to ensure weaviate schema, retrying...", "attempt", i+1, "error", err)
		if i < attempts-1 {
			if werr := wait(ctx, delay); werr != nil {
				return werr
			}
		}
	}
	return err
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

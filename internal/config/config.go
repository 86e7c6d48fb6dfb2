package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalidValue    = errors.New("invalid configuration value")
)

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"tariff"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"rulings"`

	WeaviateHost      string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme    string `envconfig:"WEAVIATE_SCHEME" default:"http"`
	EnableVectorIndex bool   `envconfig:"ENABLE_VECTOR_INDEX" default:"true"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	EnableAPI         bool   `envconfig:"ENABLE_API" default:"true"`
	EnableCrawlWorker bool   `envconfig:"ENABLE_CRAWL_WORKER" default:"false"`
	CrawlConcurrency  int    `envconfig:"CRAWL_CONCURRENCY" default:"4"`
	MigrationPath     string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Embeddings are switched on explicitly; the key is never read from
	// anywhere but here.
	EnableEmbeddings       bool   `envconfig:"ENABLE_EMBEDDINGS" default:"false"`
	GeminiAPIKey           string `envconfig:"GEMINI_API_KEY"`
	EmbeddingModel         string `envconfig:"EMBEDDING_MODEL" default:"gemini-embedding-001"`
	EmbeddingMaxAttempts   int    `envconfig:"EMBEDDING_MAX_ATTEMPTS" default:"3"`
	EmbeddingRetryDelayMS  int    `envconfig:"EMBEDDING_RETRY_DELAY_MS" default:"1000"`
	SemanticTimeoutSeconds int    `envconfig:"SEMANTIC_TIMEOUT_SECONDS" default:"5"`

	// Crawler
	RulingsBaseURL      string `envconfig:"RULINGS_BASE_URL" default:"https://rulings.cbp.gov/ruling/"`
	FetchTimeoutSeconds int    `envconfig:"FETCH_TIMEOUT_SECONDS" default:"30"`
	UserAgent           string `envconfig:"USER_AGENT" default:"tariff-engineer-crawler/1.0"`
	CrawlDelayMS        int    `envconfig:"CRAWL_DELAY_MS" default:"500"`
	CrawlBatchSize      int    `envconfig:"CRAWL_BATCH_SIZE" default:"0"`
	CrawlBatchDelayMS   int    `envconfig:"CRAWL_BATCH_DELAY_MS" default:"2000"`
	CrawlMaxRetries     int    `envconfig:"CRAWL_MAX_RETRIES" default:"3"`
	CrawlRetryDelayMS   int    `envconfig:"CRAWL_RETRY_DELAY_MS" default:"2000"`
	CrawlReportEvery    int    `envconfig:"CRAWL_REPORT_EVERY" default:"100"`

	// Server
	ServerPort   int    `envconfig:"SERVER_PORT" default:"8081"`
	QueryLogPath string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Shell variables win; a missing .env is fine.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.EnableEmbeddings && c.GeminiAPIKey == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY (ENABLE_EMBEDDINGS is set)", ErrMissingRequired)
	}

	nonNegative := map[string]int{
		"CRAWL_DELAY_MS":       c.CrawlDelayMS,
		"CRAWL_BATCH_SIZE":     c.CrawlBatchSize,
		"CRAWL_BATCH_DELAY_MS": c.CrawlBatchDelayMS,
		"CRAWL_MAX_RETRIES":    c.CrawlMaxRetries,
		"CRAWL_RETRY_DELAY_MS": c.CrawlRetryDelayMS,
		"CRAWL_REPORT_EVERY":   c.CrawlReportEvery,
		"CRAWL_CONCURRENCY":    c.CrawlConcurrency,
	}
	for name, v := range nonNegative {
		if v < 0 {
			return fmt.Errorf("%w: %s must not be negative, got %d", ErrInvalidValue, name, v)
		}
	}
	return nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPass, c.DBName)
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

func (c *Config) SemanticTimeout() time.Duration {
	return time.Duration(c.SemanticTimeoutSeconds) * time.Second
}

func (c *Config) EmbeddingRetryDelay() time.Duration {
	return time.Duration(c.EmbeddingRetryDelayMS) * time.Millisecond
}

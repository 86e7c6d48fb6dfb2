package ruling

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var (
	ErrInvalidID = errors.New("invalid ruling id")
	// ErrNotFound means the source has no ruling under the requested id, or
	// the store has no record of it.
	ErrNotFound = errors.New("ruling not found")
	// ErrTransientFetch covers timeouts, connection failures and 5xx/429
	// responses. Fetches failing this way are retried.
	ErrTransientFetch = errors.New("transient fetch error")
	ErrStore          = errors.New("ruling store error")
	// ErrVectorSearchUnavailable is returned when no vector index is wired.
	ErrVectorSearchUnavailable = errors.New("vector search unavailable")
)

// Kind distinguishes local New York rulings from precedential Headquarters
// rulings.
type Kind string

const (
	KindLocal        Kind = "local"
	KindPrecedential Kind = "precedential"
)

var idRe = regexp.MustCompile(`^([NH])(\d+)$`)

// Prefix is the letter that starts every id of this kind.
func (k Kind) Prefix() string {
	switch k {
	case KindLocal:
		return "N"
	case KindPrecedential:
		return "H"
	}
	return ""
}

// ParseKind accepts the kind names as well as their id prefixes.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "local", "N", "n", "NY", "ny":
		return KindLocal, nil
	case "precedential", "H", "h", "HQ", "hq":
		return KindPrecedential, nil
	}
	return "", fmt.Errorf("unknown ruling kind %q", s)
}

// KindOf derives the kind from a ruling id such as "N330123".
func KindOf(id string) (Kind, error) {
	m := idRe.FindStringSubmatch(id)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if m[1] == "N" {
		return KindLocal, nil
	}
	return KindPrecedential, nil
}

// FormatID renders the id for sequence number n.
func FormatID(kind Kind, n int) string {
	return kind.Prefix() + strconv.Itoa(n)
}

// SourceURL is the canonical page for a ruling.
func SourceURL(id string) string {
	return "https://rulings.cbp.gov/ruling/" + id
}

// Record is one stored ruling. Embedding is only populated in memory between
// extraction and persistence; Embedded reports whether the vector index holds
// a vector for it.
type Record struct {
	ID                    string     `json:"id"`
	Kind                  Kind       `json:"kind"`
	SourceURL             string     `json:"source_url"`
	IssueDate             *time.Time `json:"issue_date,omitempty"`
	HTSCodes              []string   `json:"hts_codes"`
	ProductDescription    string     `json:"product_description"`
	ClassificationSnippet string     `json:"classification"`
	Rationale             string     `json:"rationale"`
	Keywords              []string   `json:"keywords"`
	Category              string     `json:"category"`
	Embedding             []float32  `json:"-"`
	Embedded              bool       `json:"embedded"`
	EmbeddingModel        string     `json:"embedding_model,omitempty"`
	IngestedAt            time.Time  `json:"ingested_at"`
	LastSeenAt            time.Time  `json:"last_seen_at"`
}

// Match is a record returned by a vector search with its similarity in [0,1].
type Match struct {
	Record     Record
	Similarity float64
}

// Repository is the relational source of truth for rulings.
type Repository interface {
	Upsert(ctx context.Context, r *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	GetMany(ctx context.Context, ids []string) ([]Record, error)
	Exists(ctx context.Context, id string) (bool, error)
	ListAll(ctx context.Context, limit int) ([]Record, error)
	ListAfter(ctx context.Context, afterID string, limit int) ([]Record, error)
	ListUnembedded(ctx context.Context, limit int) ([]Record, error)
	MarkEmbedded(ctx context.Context, id, model string) error
	Count(ctx context.Context) (int, error)
	SearchByHTSPrefix(ctx context.Context, prefix string, limit int) ([]Record, error)
}

// VectorMatch is a raw hit from the vector index.
type VectorMatch struct {
	RulingID   string
	Similarity float64
}

// VectorIndex holds one vector per ruling.
type VectorIndex interface {
	UpsertVector(ctx context.Context, r *Record) error
	SearchNearVector(ctx context.Context, vec []float32, threshold float64, limit int) ([]VectorMatch, error)
	CountVectors(ctx context.Context) (int, error)
}

package vector

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// ClassName is the Weaviate class holding one vector per ruling.
const ClassName = "Ruling"

// SchemaClient is the slice of the Weaviate schema API the bootstrap needs.
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

// Properties are the filterable attributes stored next to each vector. The
// full ruling lives in Postgres.
func Properties() []*models.Property {
	return []*models.Property{
		{Name: "rulingId", DataType: []string{"text"}, Tokenization: "field"},
		{Name: "kind", DataType: []string{"text"}, Tokenization: "field"},
		{Name: "category", DataType: []string{"text"}, Tokenization: "field"},
		{Name: "htsCodes", DataType: []string{"text[]"}, Tokenization: "field"},
		{Name: "embeddingModel", DataType: []string{"text"}, Tokenization: "field"},
	}
}

// EnsureSchema creates the ruling class, or adds whichever properties an
// older deployment of it is missing.
func EnsureSchema(ctx context.Context, client SchemaClient) error {
	exists, err := client.ClassExists(ctx, ClassName)
	if err != nil {
		return fmt.Errorf("check class %s: %w", ClassName, err)
	}

	properties := Properties()

	if !exists {
		class := &models.Class{
			Class:       ClassName,
			Description: "Embedding of a customs classification ruling",
			Vectorizer:  "none",
			VectorIndexConfig: map[string]interface{}{
				"distance": "cosine",
			},
			Properties: properties,
		}
		return client.CreateClass(ctx, class)
	}

	class, err := client.GetClass(ctx, ClassName)
	if err != nil {
		return fmt.Errorf("get class %s: %w", ClassName, err)
	}

	existing := make(map[string]bool, len(class.Properties))
	for _, p := range class.Properties {
		existing[p.Name] = true
	}

	for _, p := range properties {
		if existing[p.Name] {
			continue
		}
		if err := client.AddProperty(ctx, ClassName, p); err != nil {
			return fmt.Errorf("add property %s: %w", p.Name, err)
		}
	}
	return nil
}

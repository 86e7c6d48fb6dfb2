package weaviate

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/eratner15/tariff-engineer/features/ruling"
	"github.com/eratner15/tariff-engineer/internal/vector"
)

// rulingNamespace seeds the deterministic object ids so that re-ingesting a
// ruling overwrites its vector instead of adding a second one.
var rulingNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://rulings.cbp.gov/ruling/"))

// ObjectID is the Weaviate object id for a ruling id.
func ObjectID(rulingID string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(rulingNamespace, []byte(rulingID)).String())
}

type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return vector.EnsureSchema(ctx, vector.NewClientAdapter(s.client))
}

// UpsertVector writes rec.Embedding through the batch endpoint, which
// replaces an existing object with the same id.
func (s *Store) UpsertVector(ctx context.Context, rec *ruling.Record) error {
	if len(rec.Embedding) == 0 {
		return fmt.Errorf("ruling %s has no embedding", rec.ID)
	}

	obj := &models.Object{
		Class: vector.ClassName,
		ID:    ObjectID(rec.ID),
		Properties: map[string]interface{}{
			"rulingId":       rec.ID,
			"kind":           string(rec.Kind),
			"category":       rec.Category,
			"htsCodes":       rec.HTSCodes,
			"embeddingModel": rec.EmbeddingModel,
		},
		Vector: rec.Embedding,
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(obj).Do(ctx)
	if err != nil {
		return err
	}
	for _, r := range resp {
		if r.Result == nil || r.Result.Errors == nil {
			continue
		}
		var msgs []string
		for _, e := range r.Result.Errors.Error {
			if e != nil {
				msgs = append(msgs, e.Message)
			}
		}
		if len(msgs) > 0 {
			return fmt.Errorf("batch upsert %s: %s", rec.ID, strings.Join(msgs, "; "))
		}
	}
	return nil
}

// SearchNearVector returns rulings whose cosine similarity with vec is at
// least threshold, closest first.
func (s *Store) SearchNearVector(ctx context.Context, vec []float32, threshold float64, limit int) ([]ruling.VectorMatch, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(vec).
		WithDistance(float32(1 - threshold))

	fields := []graphql.Field{
		{Name: "rulingId"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithNearVector(nearVector).
		WithLimit(limit).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", graphQLErrors(res.Errors))
	}

	var matches []ruling.VectorMatch
	data, ok := res.Data["Get"].(map[string]interface{})
	if !ok {
		return matches, nil
	}
	objs, ok := data[vector.ClassName].([]interface{})
	if !ok {
		return matches, nil
	}

	for _, o := range objs {
		props, ok := o.(map[string]interface{})
		if !ok {
			continue
		}
		id, ok := props["rulingId"].(string)
		if !ok || id == "" {
			continue
		}
		m := ruling.VectorMatch{RulingID: id}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			if d, ok := additional["distance"].(float64); ok {
				m.Similarity = 1 - d
			}
		}
		if m.Similarity < threshold {
			continue
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// CountVectors returns the number of objects in the ruling class.
func (s *Store) CountVectors(ctx context.Context) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(vector.ClassName).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %s", graphQLErrors(res.Errors))
	}

	agg, ok := res.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	groups, ok := agg[vector.ClassName].([]interface{})
	if !ok || len(groups) == 0 {
		return 0, nil
	}
	group, ok := groups[0].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	meta, ok := group["meta"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	count, ok := meta["count"].(float64)
	if !ok {
		return 0, nil
	}
	return int(count), nil
}

func graphQLErrors(errs []*models.GraphQLError) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		if e != nil {
			msgs = append(msgs, e.Message)
		}
	}
	return strings.Join(msgs, "; ")
}

package app

import (
	"context"

	"github.com/eratner15/tariff-engineer/features/ruling"
)

// MockVectorStore is a canned VectorStore shared by the package tests.
type MockVectorStore struct {
	EnsureSchemaErr error
	Matches         []ruling.VectorMatch
	Vectors         int
}

func (m *MockVectorStore) EnsureSchema(ctx context.Context) error {
	return m.EnsureSchemaErr
}

func (m *MockVectorStore) UpsertVector(ctx context.Context, r *ruling.Record) error {
	return nil
}

func (m *MockVectorStore) SearchNearVector(ctx context.Context, vec []float32, threshold float64, limit int) ([]ruling.VectorMatch, error) {
	return m.Matches, nil
}

func (m *MockVectorStore) CountVectors(ctx context.Context) (int, error) {
	return m.Vectors, nil
}

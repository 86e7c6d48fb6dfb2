package ruling_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/eratner15/tariff-engineer/features/ruling"
)

type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) Upsert(ctx context.Context, r *ruling.Record) error {
	return m.Called(ctx, r).Error(0)
}

func (m *MockRepo) Get(ctx context.Context, id string) (*ruling.Record, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ruling.Record), args.Error(1)
}

func (m *MockRepo) GetMany(ctx context.Context, ids []string) ([]ruling.Record, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ruling.Record), args.Error(1)
}

func (m *MockRepo) Exists(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepo) ListAll(ctx context.Context, limit int) ([]ruling.Record, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ruling.Record), args.Error(1)
}

func (m *MockRepo) ListAfter(ctx context.Context, afterID string, limit int) ([]ruling.Record, error) {
	args := m.Called(ctx, afterID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ruling.Record), args.Error(1)
}

func (m *MockRepo) ListUnembedded(ctx context.Context, limit int) ([]ruling.Record, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ruling.Record), args.Error(1)
}

func (m *MockRepo) MarkEmbedded(ctx context.Context, id, model string) error {
	return m.Called(ctx, id, model).Error(0)
}

func (m *MockRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockRepo) SearchByHTSPrefix(ctx context.Context, prefix string, limit int) ([]ruling.Record, error) {
	args := m.Called(ctx, prefix, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ruling.Record), args.Error(1)
}

type MockIndex struct {
	mock.Mock
}

func (m *MockIndex) UpsertVector(ctx context.Context, r *ruling.Record) error {
	return m.Called(ctx, r).Error(0)
}

func (m *MockIndex) SearchNearVector(ctx context.Context, vec []float32, threshold float64, limit int) ([]ruling.VectorMatch, error) {
	args := m.Called(ctx, vec, threshold, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ruling.VectorMatch), args.Error(1)
}

func (m *MockIndex) CountVectors(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

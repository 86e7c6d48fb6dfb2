package mcp

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/eratner15/tariff-engineer/features/ruling"
	"github.com/eratner15/tariff-engineer/internal/retrieval"
)

type MockRanker struct {
	mock.Mock
}

func (m *MockRanker) Rank(ctx context.Context, q retrieval.Query, limit int) retrieval.Result {
	args := m.Called(ctx, q, limit)
	return args.Get(0).(retrieval.Result)
}

type MockRulings struct {
	mock.Mock
}

func (m *MockRulings) Get(ctx context.Context, id string) (*ruling.Record, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ruling.Record), args.Error(1)
}

func (m *MockRulings) SearchByHTSPrefix(ctx context.Context, prefix string, limit int) ([]ruling.Record, error) {
	args := m.Called(ctx, prefix, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ruling.Record), args.Error(1)
}

package worker_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/eratner15/tariff-engineer/internal/crawler"
)

type MockProcessor struct{ mock.Mock }

func (m *MockProcessor) ProcessID(ctx context.Context, id string, force bool) (crawler.Outcome, error) {
	args := m.Called(ctx, id, force)
	return args.Get(0).(crawler.Outcome), args.Error(1)
}

type MockBackfiller struct{ mock.Mock }

func (m *MockBackfiller) Backfill(ctx context.Context, limit int) (int, error) {
	args := m.Called(ctx, limit)
	return args.Int(0), args.Error(1)
}

type MockTaskPublisher struct{ mock.Mock }

func (m *MockTaskPublisher) Publish(topic string, body []byte) error {
	args := m.Called(topic, body)
	return args.Error(0)
}

type MockBatchPublisher struct {
	MockTaskPublisher
}

func (m *MockBatchPublisher) MultiPublish(topic string, body [][]byte) error {
	args := m.Called(topic, body)
	return args.Error(0)
}

package job

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/eratner15/tariff-engineer/internal/config"
)

var ErrPublishTimeout = errors.New("timeout waiting for NSQ publish")

const (
	DefaultListLimit      = 100
	defaultPublishTimeout = 5 * time.Second
)

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo           Repository
	pub            EventPublisher
	logger         *slog.Logger
	publishTimeout time.Duration
}

func NewService(repo Repository, pub EventPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, pub: pub, logger: logger, publishTimeout: defaultPublishTimeout}
}

// WithPublishTimeout bounds how long Retry waits on the broker.
func (s *Service) WithPublishTimeout(d time.Duration) *Service {
	s.publishTimeout = d
	return s
}

func (s *Service) List(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return s.repo.List(ctx, limit)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// RecordFailure stores a failed ingestion as a job whose payload is a forced
// crawl task for the same id.
func (s *Service) RecordFailure(ctx context.Context, rulingID, stage string, cause error) error {
	payload, err := json.Marshal(retryPayload{RulingID: rulingID, Force: true})
	if err != nil {
		return err
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	j := &Job{RulingID: rulingID, Stage: stage, Payload: payload, Error: msg}
	if err := s.repo.Save(ctx, j); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "saved failed job for retry", "job_id", j.ID, "ruling_id", rulingID, "stage", stage)
	return nil
}

// Retry republishes the job's crawl task and removes the job.
func (s *Service) Retry(ctx context.Context, id string) error {
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- s.pub.Publish(config.TopicCrawlTask, j.Payload)
	}()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-time.After(s.publishTimeout):
		return ErrPublishTimeout
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "job retried", "job_id", id, "ruling_id", j.RulingID)
	return s.repo.Delete(ctx, id)
}

package job_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eratner15/tariff-engineer/features/job"
	"github.com/eratner15/tariff-engineer/internal/testutils"
)

func TestJobRepo_Integration(t *testing.T) {
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	repo := job.NewPostgresRepo(s.DB)
	svc := job.NewService(repo, nil, nil)
	ctx := context.Background()

	require.NoError(t, svc.RecordFailure(ctx, "N330001", "fetch", errors.New("timeout")))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, svc.RecordFailure(ctx, "N330002", "embed", errors.New("quota")))

	jobs, err := repo.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "N330002", jobs[0].RulingID)
	assert.JSONEq(t, `{"ruling_id":"N330002","force":true}`, string(jobs[0].Payload))

	got, err := repo.Get(ctx, jobs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "fetch", got.Stage)

	require.NoError(t, repo.Delete(ctx, got.ID))
	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/mdconv/internal/config"
	"github.com/timmy/mdconv/internal/domain"
)

func newTestRepo(t *testing.T) *JobRepository {
	t.Helper()
	db, err := InitDB(&config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "jobs.db")})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewJobRepository(db)
}

func TestJobRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	job := &domain.Job{ID: "job-1", Namespace: "device-1", ContentHash: "abc", Filename: "a.pdf"}
	require.NoError(t, repo.Create(ctx, job))

	got, err := repo.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatePending, got.State)
	assert.Equal(t, 0, got.Progress)

	require.NoError(t, repo.UpdateProgress(ctx, "job-1", 36))
	require.NoError(t, repo.UpdateProgress(ctx, "job-1", 20))
	got, _ = repo.Get(ctx, "job-1")
	assert.Equal(t, domain.JobStateProgress, got.State)
	assert.Equal(t, 36, got.Progress)

	require.NoError(t, repo.Complete(ctx, "job-1", domain.JobStateSuccess, "/md/a.md", ""))
	got, _ = repo.Get(ctx, "job-1")
	assert.Equal(t, domain.JobStateSuccess, got.State)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, "/md/a.md", got.ResultPath)
	require.NotNil(t, got.CompletedAt)

	// terminal rows are final
	require.NoError(t, repo.Complete(ctx, "job-1", domain.JobStateFailure, "", "late failure"))
	require.NoError(t, repo.UpdateProgress(ctx, "job-1", 50))
	again, _ := repo.Get(ctx, "job-1")
	assert.Equal(t, domain.JobStateSuccess, again.State)
	assert.Empty(t, again.Error)
	assert.Equal(t, 100, again.Progress)
}

func TestJobRepositoryNotFound(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
	assert.ErrorIs(t, repo.UpdateProgress(ctx, "missing", 10), domain.ErrJobNotFound)
	assert.ErrorIs(t, repo.Complete(ctx, "missing", domain.JobStateFailure, "", "x"), domain.ErrJobNotFound)
}

func TestJobRepositoryFailActiveAndExpire(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	require.NoError(t, repo.Create(ctx, &domain.Job{ID: "a", Namespace: "ns", ContentHash: "1"}))
	require.NoError(t, repo.Create(ctx, &domain.Job{ID: "b", Namespace: "ns", ContentHash: "2"}))
	require.NoError(t, repo.UpdateProgress(ctx, "b", 50))
	require.NoError(t, repo.Create(ctx, &domain.Job{ID: "c", Namespace: "ns", ContentHash: "3"}))
	require.NoError(t, repo.Complete(ctx, "c", domain.JobStateSuccess, "/c.md", ""))

	n, err := repo.FailActive(ctx, "worker lost")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	b, _ := repo.Get(ctx, "b")
	assert.Equal(t, domain.JobStateFailure, b.State)
	assert.Equal(t, "worker lost", b.Error)
	assert.Equal(t, 50, b.Progress)

	n, err = repo.DeleteExpired(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	require.NoError(t, repo.Create(ctx, &domain.Job{ID: "d", Namespace: "ns", ContentHash: "4"}))
	n, err = repo.DeleteExpired(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	require.NoError(t, repo.Delete(ctx, "d"))
	_, err = repo.Get(ctx, "d")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/timmy/mdconv/internal/domain"
)

var (
	activeStates   = []domain.JobState{domain.JobStatePending, domain.JobStateProgress}
	terminalStates = []domain.JobState{domain.JobStateSuccess, domain.JobStateFailure}
)

// JobRepository persists conversion jobs. Every state change is a
// conditional UPDATE, so terminal rows are never rewritten and progress
// never decreases even with concurrent writers.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	if job.State == "" {
		job.State = domain.JobStatePending
	}
	return r.db.WithContext(ctx).Create(job).Error
}

// Get retrieves a job by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - *domain.Job: job record if found.
//   - error: domain.ErrJobNotFound when no row matches.
func (r *JobRepository) Get(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (r *JobRepository) UpdateProgress(ctx context.Context, id string, progress int) error {
	progress = min(max(progress, 0), 100)
	res := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND state IN ? AND progress <= ?", id, activeStates, progress).
		Updates(map[string]interface{}{
			"state":      domain.JobStateProgress,
			"progress":   progress,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.ensureExists(ctx, id)
	}
	return nil
}

func (r *JobRepository) Complete(ctx context.Context, id string, state domain.JobState, resultPath, errMsg string) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"state":        state,
		"updated_at":   now,
		"completed_at": now,
	}
	if state == domain.JobStateSuccess {
		updates["progress"] = 100
		updates["result_path"] = resultPath
	} else {
		updates["error"] = errMsg
	}

	res := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND state IN ?", id, activeStates).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.ensureExists(ctx, id)
	}
	return nil
}

func (r *JobRepository) FailActive(ctx context.Context, message string) (int64, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("state IN ?", activeStates).
		Updates(map[string]interface{}{
			"state":        domain.JobStateFailure,
			"error":        message,
			"updated_at":   now,
			"completed_at": now,
		})
	return res.RowsAffected, res.Error
}

func (r *JobRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("state IN ? AND completed_at < ?", terminalStates, before).
		Delete(&domain.Job{})
	return res.RowsAffected, res.Error
}

func (r *JobRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.Job{}, "id = ?", id).Error
}

func (r *JobRepository) ensureExists(ctx context.Context, id string) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Job{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

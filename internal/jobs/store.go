package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/timmy/mdconv/internal/domain"
)

// Store persists job records. Implementations enforce the state machine:
// progress never decreases, and terminal jobs are never modified.
type Store interface {
	Create(ctx context.Context, job *domain.Job) error
	// Get returns domain.ErrJobNotFound for unknown ids.
	Get(ctx context.Context, id string) (*domain.Job, error)
	// UpdateProgress moves a non-terminal job to PROGRESS with the higher of
	// its current and the given progress.
	UpdateProgress(ctx context.Context, id string, progress int) error
	// Complete moves a non-terminal job to a terminal state. Completing an
	// already terminal job is a no-op.
	Complete(ctx context.Context, id string, state domain.JobState, resultPath, errMsg string) error
	// FailActive fails every non-terminal job and returns how many it touched.
	FailActive(ctx context.Context, message string) (int64, error)
	// DeleteExpired removes terminal jobs completed before the cutoff.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps jobs in process memory. Jobs do not survive a restart.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*domain.Job), now: time.Now}
}

func (s *MemoryStore) Create(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	stored := *job
	if stored.State == "" {
		stored.State = domain.JobStatePending
	}
	stored.CreatedAt, stored.UpdatedAt = now, now
	s.jobs[job.ID] = &stored
	*job = stored
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *MemoryStore) UpdateProgress(_ context.Context, id string, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.State.Terminal() {
		return nil
	}
	job.State = domain.JobStateProgress
	if progress > job.Progress {
		job.Progress = min(progress, 100)
	}
	job.UpdatedAt = s.now().UTC()
	return nil
}

func (s *MemoryStore) Complete(_ context.Context, id string, state domain.JobState, resultPath, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.State.Terminal() {
		return nil
	}
	complete(job, state, resultPath, errMsg, s.now().UTC())
	return nil
}

func (s *MemoryStore) FailActive(_ context.Context, message string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	now := s.now().UTC()
	for _, job := range s.jobs {
		if !job.State.Terminal() {
			complete(job, domain.JobStateFailure, "", message, now)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, job := range s.jobs {
		if job.State.Terminal() && job.CompletedAt != nil && job.CompletedAt.Before(before) {
			delete(s.jobs, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

func complete(job *domain.Job, state domain.JobState, resultPath, errMsg string, now time.Time) {
	job.State = state
	if state == domain.JobStateSuccess {
		job.Progress = 100
		job.ResultPath = resultPath
	} else {
		job.Error = errMsg
	}
	job.UpdatedAt = now
	job.CompletedAt = &now
}

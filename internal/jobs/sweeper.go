package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/timmy/mdconv/internal/logger"
)

// Sweeper periodically deletes terminal jobs older than the retention window.
type Sweeper struct {
	store     Store
	retention time.Duration
	cron      *cron.Cron
	now       func() time.Time
}

// NewSweeper schedules Sweep with a cron schedule such as "@every 10m".
func NewSweeper(store Store, retention time.Duration, schedule string) (*Sweeper, error) {
	s := &Sweeper{store: store, retention: retention, cron: cron.New(), now: time.Now}
	ctx := logger.SetComponent(context.Background(), "job-sweeper")
	if _, err := s.cron.AddFunc(schedule, func() {
		if _, err := s.Sweep(ctx); err != nil {
			logger.CtxError(ctx, "Job sweep failed: %v", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Sweeper) Start() { s.cron.Start() }

// Stop halts the schedule and waits for a running sweep.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep deletes expired jobs and returns how many were removed.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.retention)
	n, err := s.store.DeleteExpired(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.With(logger.Fields{logger.FieldCount: n}).Info(ctx, "Deleted expired jobs")
	}
	return n, nil
}

// Package jobs runs conversions out of band and tracks their state.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/timmy/mdconv/internal/domain"
	"github.com/timmy/mdconv/internal/logger"
)

var (
	// ErrShuttingDown is returned by Submit after Shutdown has been called.
	ErrShuttingDown = errors.New("job manager is shutting down")
	// ErrJobActive is returned by Remove for jobs that have not finished.
	ErrJobActive = errors.New("job is still running")
)

// WorkerLostMessage is recorded on jobs whose worker disappeared.
const WorkerLostMessage = "conversion worker lost before the job finished; please resubmit"

// cancelGrace bounds how long Shutdown waits for cancelled conversions.
const cancelGrace = 5 * time.Second

// Converter runs the conversion pipeline for one document.
type Converter interface {
	Run(ctx context.Context, doc *domain.Document, progress func(percent int)) (*domain.ConversionResult, error)
}

// ResultCache records successful results for later submissions.
type ResultCache interface {
	Put(ctx context.Context, ns, hash string, result *domain.ConversionResult) error
}

// Manager schedules conversions on a bounded set of workers. At most one
// conversion runs per (namespace, content hash); a second submission while
// one is in flight gets the existing job.
type Manager struct {
	store     Store
	converter Converter
	cache     ResultCache
	slots     *semaphore.Weighted

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]string // namespace|hash -> job id
	closed   bool
}

// NewManager creates a Manager running at most workers conversions at once.
// Parameters:
//   - store: job state persistence.
//   - converter: the conversion pipeline.
//   - cache: receives every successful result.
//   - workers: concurrent conversion limit.
// Returns:
//   - *Manager: ready to accept submissions.
func NewManager(store Store, converter Converter, cache ResultCache, workers int) *Manager {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:     store,
		converter: converter,
		cache:     cache,
		slots:     semaphore.NewWeighted(int64(workers)),
		baseCtx:   ctx,
		cancel:    cancel,
		inflight:  make(map[string]string),
	}
}

func inflightKey(ns, hash string) string { return ns + "|" + hash }

// Submit schedules doc and returns its job without waiting for it to run.
// The manager owns doc.Path from here on.
func (m *Manager) Submit(ctx context.Context, doc *domain.Document) (*domain.Job, error) {
	key := inflightKey(doc.Namespace, doc.ContentHash)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrShuttingDown
	}

	if id, ok := m.inflight[key]; ok {
		if job, err := m.store.Get(ctx, id); err == nil {
			logger.CtxInfo(ctx, "Conversion already running as job %s", id)
			// The duplicate upload has no pipeline to clean it up.
			if doc.Path != "" {
				if err := os.Remove(doc.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
					logger.CtxWarn(ctx, "Failed to remove duplicate upload: %v", err)
				}
			}
			return job, nil
		}
	}

	job := &domain.Job{
		ID:          uuid.NewString(),
		Namespace:   doc.Namespace,
		ContentHash: doc.ContentHash,
		Filename:    doc.Filename,
		State:       domain.JobStatePending,
	}
	if err := m.store.Create(ctx, job); err != nil {
		return nil, domain.StorageError("create job", err)
	}

	m.inflight[key] = job.ID
	m.wg.Add(1)
	go m.execute(job.ID, key, doc)

	logger.With(logger.Fields{logger.FieldJobID: job.ID}).Info(ctx, "Queued conversion of %s", doc.Filename)
	cp := *job
	return &cp, nil
}

// Status returns the job's current state. It never modifies the job.
func (m *Manager) Status(ctx context.Context, id string) (*domain.Job, error) {
	return m.store.Get(ctx, id)
}

// Remove deletes a finished job's record and returns it. Running jobs are
// left alone.
func (m *Manager) Remove(ctx context.Context, id string) (*domain.Job, error) {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !job.State.Terminal() {
		return job, ErrJobActive
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return job, domain.StorageError("delete job", err)
	}
	return job, nil
}

func (m *Manager) execute(id, key string, doc *domain.Document) {
	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		delete(m.inflight, key)
		m.mu.Unlock()
	}()

	ctx := logger.SetJobID(m.baseCtx, id)
	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldNamespace:   doc.Namespace,
		logger.FieldContentHash: doc.ContentHash,
	})
	// state writes must land even when the manager is being cancelled
	storeCtx := context.WithoutCancel(ctx)

	if err := m.slots.Acquire(ctx, 1); err != nil {
		_ = os.Remove(doc.Path)
		m.finish(storeCtx, id, doc, nil, err)
		return
	}
	defer m.slots.Release(1)

	progress := func(percent int) {
		if err := m.store.UpdateProgress(storeCtx, id, percent); err != nil {
			logger.CtxWarn(ctx, "Failed to record progress %d: %v", percent, err)
		}
	}

	result, err := m.run(ctx, doc, progress)
	m.finish(storeCtx, id, doc, result, err)
}

// run shields the manager from a panicking converter.
func (m *Manager) run(ctx context.Context, doc *domain.Document, progress func(int)) (result *domain.ConversionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.FromContext(ctx).WithField("stack", string(debug.Stack())).Errorf("Conversion panicked: %v", r)
			result, err = nil, fmt.Errorf("conversion panicked: %v", r)
		}
	}()
	return m.converter.Run(ctx, doc, progress)
}

func (m *Manager) finish(ctx context.Context, id string, doc *domain.Document, result *domain.ConversionResult, runErr error) {
	if runErr != nil {
		logger.CtxError(ctx, "Conversion of %s failed: %v", doc.Filename, runErr)
		if err := m.store.Complete(ctx, id, domain.JobStateFailure, "", runErr.Error()); err != nil {
			logger.CtxError(ctx, "Failed to record job failure: %v", err)
		}
		return
	}

	if m.cache != nil {
		if err := m.cache.Put(ctx, doc.Namespace, doc.ContentHash, result); err != nil {
			logger.CtxWarn(ctx, "Failed to write cache entry: %v", err)
		}
	}
	if err := m.store.Complete(ctx, id, domain.JobStateSuccess, result.MarkdownPath, ""); err != nil {
		logger.CtxError(ctx, "Failed to record job success: %v", err)
	}
}

// RecoverOrphaned fails jobs left non-terminal by a previous process. Call it
// before the first Submit.
func (m *Manager) RecoverOrphaned(ctx context.Context) (int64, error) {
	n, err := m.store.FailActive(ctx, WorkerLostMessage)
	if err != nil {
		return 0, fmt.Errorf("recover orphaned jobs: %w", err)
	}
	if n > 0 {
		logger.With(logger.Fields{logger.FieldCount: n}).Warn(ctx, "Failed jobs orphaned by a previous run")
	}
	return n, nil
}

// Shutdown stops accepting submissions and waits for running conversions.
// When ctx expires first, running conversions are cancelled and given up to
// cancelGrace to record their jobs as FAILURE. Jobs still running after that
// are failed by RecoverOrphaned on the next start.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.cancel()
		return nil
	case <-ctx.Done():
		m.cancel()
		select {
		case <-done:
		case <-time.After(cancelGrace):
			logger.CtxWarn(ctx, "Conversions still running %s after cancel", cancelGrace)
		}
		return ctx.Err()
	}
}

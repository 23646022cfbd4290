package jobs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/mdconv/internal/domain"
)

type fakeConverter struct {
	release  chan struct{}
	steps    []int
	err      error
	panicMsg string

	mu    sync.Mutex
	calls int
}

func (f *fakeConverter) Run(ctx context.Context, doc *domain.Document, progress func(int)) (*domain.ConversionResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	for _, p := range f.steps {
		progress(p)
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	_ = os.Remove(doc.Path)
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ConversionResult{
		Status:       domain.ConversionSuccess,
		MarkdownPath: "/out/" + doc.Filename + ".md",
		ContentHash:  doc.ContentHash,
		Namespace:    doc.Namespace,
	}, nil
}

func (f *fakeConverter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeCache struct {
	mu   sync.Mutex
	puts map[string]*domain.ConversionResult
}

func (c *fakeCache) Put(_ context.Context, ns, hash string, r *domain.ConversionResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.puts == nil {
		c.puts = map[string]*domain.ConversionResult{}
	}
	c.puts[ns+"/"+hash] = r
	return nil
}

func (c *fakeCache) get(key string) *domain.ConversionResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.puts[key]
}

func newDoc(t *testing.T, name, hash string) *domain.Document {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("data"), 0o644))
	return &domain.Document{Path: p, Filename: name, ContentHash: hash, Format: domain.FormatCSV, Namespace: "device-1"}
}

func waitTerminal(t *testing.T, m *Manager, id string) *domain.Job {
	t.Helper()
	var job *domain.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = m.Status(context.Background(), id)
		return err == nil && job.State.Terminal()
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestManagerSuccess(t *testing.T) {
	cache := &fakeCache{}
	conv := &fakeConverter{steps: []int{10, 55, 90, 100}}
	m := NewManager(NewMemoryStore(), conv, cache, 2)

	job, err := m.Submit(context.Background(), newDoc(t, "a.csv", "h1"))
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatePending, job.State)
	assert.NotEmpty(t, job.ID)

	done := waitTerminal(t, m, job.ID)
	assert.Equal(t, domain.JobStateSuccess, done.State)
	assert.Equal(t, 100, done.Progress)
	assert.Equal(t, "/out/a.csv.md", done.ResultPath)
	assert.Empty(t, done.Error)
	assert.NotNil(t, done.CompletedAt)

	require.NotNil(t, cache.get("device-1/h1"))
}

func TestManagerDeduplicatesInflight(t *testing.T) {
	conv := &fakeConverter{release: make(chan struct{})}
	m := NewManager(NewMemoryStore(), conv, &fakeCache{}, 4)
	ctx := context.Background()

	first, err := m.Submit(ctx, newDoc(t, "a.csv", "same"))
	require.NoError(t, err)

	dup := newDoc(t, "a-copy.csv", "same")
	second, err := m.Submit(ctx, dup)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.NoFileExists(t, dup.Path)

	other, err := m.Submit(ctx, newDoc(t, "b.csv", "different"))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)

	close(conv.release)
	waitTerminal(t, m, first.ID)
	waitTerminal(t, m, other.ID)
	assert.Equal(t, 2, conv.callCount())

	// once finished, a resubmission gets a fresh job
	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return len(m.inflight) == 0
	}, time.Second, 5*time.Millisecond)
	third, err := m.Submit(ctx, newDoc(t, "a.csv", "same"))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
	waitTerminal(t, m, third.ID)
}

func TestManagerFailureKeepsCauseAndProgress(t *testing.T) {
	cause := domain.EmptyContentError("no content extracted from a.csv", nil)
	m := NewManager(NewMemoryStore(), &fakeConverter{steps: []int{10}, err: cause}, &fakeCache{}, 1)

	job, err := m.Submit(context.Background(), newDoc(t, "a.csv", "h"))
	require.NoError(t, err)

	done := waitTerminal(t, m, job.ID)
	assert.Equal(t, domain.JobStateFailure, done.State)
	assert.Equal(t, "no content extracted from a.csv", done.Error)
	assert.Equal(t, 10, done.Progress)
	assert.Empty(t, done.ResultPath)
}

func TestManagerRecoversPanics(t *testing.T) {
	m := NewManager(NewMemoryStore(), &fakeConverter{panicMsg: "nil map"}, &fakeCache{}, 1)

	job, err := m.Submit(context.Background(), newDoc(t, "a.csv", "h"))
	require.NoError(t, err)

	done := waitTerminal(t, m, job.ID)
	assert.Equal(t, domain.JobStateFailure, done.State)
	assert.Contains(t, done.Error, "nil map")
}

func TestManagerStatusIsIdempotent(t *testing.T) {
	m := NewManager(NewMemoryStore(), &fakeConverter{}, &fakeCache{}, 1)
	job, err := m.Submit(context.Background(), newDoc(t, "a.csv", "h"))
	require.NoError(t, err)
	waitTerminal(t, m, job.ID)

	first, err := m.Status(context.Background(), job.ID)
	require.NoError(t, err)
	second, err := m.Status(context.Background(), job.ID)
	require.NoError(t, err)

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	assert.Equal(t, string(a), string(b))

	_, err = m.Status(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

type progressSpy struct {
	*MemoryStore
	mu       sync.Mutex
	readings []int
}

func (s *progressSpy) UpdateProgress(ctx context.Context, id string, p int) error {
	err := s.MemoryStore.UpdateProgress(ctx, id, p)
	job, _ := s.MemoryStore.Get(ctx, id)
	s.mu.Lock()
	s.readings = append(s.readings, job.Progress)
	s.mu.Unlock()
	return err
}

func TestManagerProgressNeverDecreases(t *testing.T) {
	store := &progressSpy{MemoryStore: NewMemoryStore()}
	m := NewManager(store, &fakeConverter{steps: []int{10, 60, 30, 90}}, &fakeCache{}, 1)

	job, err := m.Submit(context.Background(), newDoc(t, "a.csv", "h"))
	require.NoError(t, err)
	waitTerminal(t, m, job.ID)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, []int{10, 60, 60, 90}, store.readings)
}

func TestManagerShutdown(t *testing.T) {
	conv := &fakeConverter{release: make(chan struct{})}
	m := NewManager(NewMemoryStore(), conv, &fakeCache{}, 1)
	job, err := m.Submit(context.Background(), newDoc(t, "a.csv", "h"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Shutdown(ctx), context.DeadlineExceeded)

	_, err = m.Submit(context.Background(), newDoc(t, "b.csv", "h2"))
	assert.ErrorIs(t, err, ErrShuttingDown)

	// the cancelled job is already recorded when Shutdown returns
	done, err := m.Status(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateFailure, done.State)
	assert.Contains(t, done.Error, context.Canceled.Error())
}

func TestRecoverOrphaned(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, &domain.Job{ID: "stuck", Namespace: "ns", ContentHash: "h"}))
	require.NoError(t, store.UpdateProgress(ctx, "stuck", 40))
	require.NoError(t, store.Create(ctx, &domain.Job{ID: "done", Namespace: "ns", ContentHash: "h2"}))
	require.NoError(t, store.Complete(ctx, "done", domain.JobStateSuccess, "/out.md", ""))

	m := NewManager(store, &fakeConverter{}, nil, 1)
	n, err := m.RecoverOrphaned(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	stuck, _ := store.Get(ctx, "stuck")
	assert.Equal(t, domain.JobStateFailure, stuck.State)
	assert.Equal(t, WorkerLostMessage, stuck.Error)
	assert.Equal(t, 40, stuck.Progress)

	done, _ := store.Get(ctx, "done")
	assert.Equal(t, domain.JobStateSuccess, done.State)
}

func TestMemoryStoreTerminalIsFinal(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, &domain.Job{ID: "j"}))
	require.NoError(t, store.Complete(ctx, "j", domain.JobStateFailure, "", "boom"))

	require.NoError(t, store.UpdateProgress(ctx, "j", 80))
	require.NoError(t, store.Complete(ctx, "j", domain.JobStateSuccess, "/x.md", ""))

	job, err := store.Get(ctx, "j")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateFailure, job.State)
	assert.Equal(t, "boom", job.Error)
	assert.Equal(t, 0, job.Progress)
	assert.Empty(t, job.ResultPath)

	assert.ErrorIs(t, store.UpdateProgress(ctx, "nope", 1), domain.ErrJobNotFound)
	assert.ErrorIs(t, store.Complete(ctx, "nope", domain.JobStateFailure, "", ""), domain.ErrJobNotFound)
}

func TestSweeper(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	store.now = func() time.Time { return base }
	require.NoError(t, store.Create(ctx, &domain.Job{ID: "old"}))
	require.NoError(t, store.Complete(ctx, "old", domain.JobStateSuccess, "/a.md", ""))
	require.NoError(t, store.Create(ctx, &domain.Job{ID: "running"}))

	store.now = func() time.Time { return base.Add(70 * time.Hour) }
	require.NoError(t, store.Create(ctx, &domain.Job{ID: "recent"}))
	require.NoError(t, store.Complete(ctx, "recent", domain.JobStateFailure, "", "x"))

	s, err := NewSweeper(store, 48*time.Hour, "@every 1h")
	require.NoError(t, err)
	s.now = func() time.Time { return base.Add(72 * time.Hour) }

	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = store.Get(ctx, "old")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
	_, err = store.Get(ctx, "running")
	assert.NoError(t, err)
	_, err = store.Get(ctx, "recent")
	assert.NoError(t, err)

	s.Start()
	s.Stop()

	_, err = NewSweeper(store, time.Hour, "every so often")
	assert.Error(t, err)
}

func TestManagerRemove(t *testing.T) {
	conv := &fakeConverter{release: make(chan struct{})}
	m := NewManager(NewMemoryStore(), conv, &fakeCache{}, 1)

	job, err := m.Submit(context.Background(), newDoc(t, "r.csv", "hr"))
	require.NoError(t, err)

	_, err = m.Remove(context.Background(), job.ID)
	assert.ErrorIs(t, err, ErrJobActive)

	close(conv.release)
	waitTerminal(t, m, job.ID)

	removed, err := m.Remove(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, removed.ID)

	_, err = m.Status(context.Background(), job.ID)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/timmy/mdconv/internal/cache"
	"github.com/timmy/mdconv/internal/domain"
	"github.com/timmy/mdconv/internal/logger"
)

// Status descriptions shown to callers.
const (
	DescPending   = "Task is waiting for execution"
	DescProgress  = "Converting file..."
	DescSuccess   = "Conversion completed"
	DescCached    = "Conversion completed (cached)"
	DescFailure   = "Conversion failed"
	maxNameLength = 200
)

// JobQueue is the part of the job manager the service drives.
type JobQueue interface {
	Submit(ctx context.Context, doc *domain.Document) (*domain.Job, error)
	Status(ctx context.Context, id string) (*domain.Job, error)
	Remove(ctx context.Context, id string) (*domain.Job, error)
}

// OutputMirror removes the remote copy of an output file.
type OutputMirror interface {
	Remove(ctx context.Context, namespace, contentHash, outputPath string) error
}

// ConversionService is the entry point for callers: it stores uploads,
// consults the cache and hands misses to the job queue.
type ConversionService struct {
	cache    *cache.Store
	layout   cache.Layout
	queue    JobQueue
	mirror   OutputMirror
	markdown goldmark.Markdown
}

// ConversionOption customizes a ConversionService.
type ConversionOption func(*ConversionService)

// WithMirror removes mirrored outputs together with local ones.
func WithMirror(m OutputMirror) ConversionOption {
	return func(s *ConversionService) { s.mirror = m }
}

// NewConversionService creates a new conversion service.
// Parameters:
//   - store: namespaced result cache; its layout also places uploads.
//   - queue: asynchronous job runner.
// Returns:
//   - *ConversionService: service ready for requests.
func NewConversionService(store *cache.Store, queue JobQueue, opts ...ConversionOption) *ConversionService {
	s := &ConversionService{
		cache:    store,
		layout:   store.Layout(),
		queue:    queue,
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// log returns the request-scoped logger.
func (s *ConversionService) log(ctx context.Context) *logger.Logger {
	return logger.FromContext(ctx)
}

// SubmitResult is the handle returned for an upload. On a cache hit ID is
// the content hash and Cached is true.
type SubmitResult struct {
	ID     string
	Cached bool
	Job    *domain.Job
}

// StatusView is what callers see for a handle. It carries no timestamps so
// repeated reads of a finished job are identical.
type StatusView struct {
	State       domain.JobState `json:"state"`
	Progress    int             `json:"progress"`
	Description string          `json:"description"`
	Error       string          `json:"error,omitempty"`
	Filename    string          `json:"filename,omitempty"`
}

// Preview is the converted Markdown of a finished handle.
type Preview struct {
	Content  string `json:"content"`
	Filename string `json:"filename"`
	HTML     string `json:"html,omitempty"`
}

// ClearResult reports which handles were cleared.
type ClearResult struct {
	Removed []string `json:"removed"`
	Failed  []string `json:"failed"`
}

// Submit stores the upload, and either resolves it from the cache or
// queues a conversion job.
// Parameters:
//   - ctx: request context.
//   - ns: caller namespace (device id).
//   - filename: original upload name; decides the format.
//   - r: upload body.
// Returns:
//   - *SubmitResult: job handle or cached handle.
//   - error: InputError for bad input, StorageError when the upload cannot be stored.
func (s *ConversionService) Submit(ctx context.Context, ns, filename string, r io.Reader) (*SubmitResult, error) {
	if ns == "" {
		return nil, domain.InputError("missing device id")
	}
	if !cache.ValidNamespace(ns) {
		return nil, domain.InputError("invalid device id")
	}
	name := sanitizeFilename(filename)
	if name == "" || r == nil {
		return nil, domain.InputError("no file uploaded")
	}
	format, ok := domain.FormatFromFilename(name)
	if !ok {
		return nil, domain.InputError(fmt.Sprintf("unsupported file type %q (supported: %s)",
			filepath.Ext(name), strings.Join(domain.SupportedExtensions(), ", ")))
	}

	ctx = logger.WithFields(ctx, logger.Fields{logger.FieldNamespace: ns, logger.FieldFormat: string(format)})

	if err := s.layout.Ensure(ns); err != nil {
		return nil, domain.StorageError("prepare namespace directories", err)
	}

	path, hash, err := s.saveUpload(ns, name, r)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithField(ctx, logger.FieldContentHash, hash)

	if _, hit := s.cache.Get(ctx, ns, hash); hit {
		removeQuietly(ctx, path)
		s.log(ctx).Infof("Cache hit for %s", name)
		return &SubmitResult{ID: hash, Cached: true}, nil
	}

	job, err := s.queue.Submit(ctx, &domain.Document{
		Path:        path,
		Filename:    name,
		ContentHash: hash,
		Format:      format,
		Namespace:   ns,
	})
	if err != nil {
		removeQuietly(ctx, path)
		return nil, err
	}
	return &SubmitResult{ID: job.ID, Job: job}, nil
}

// saveUpload streams r into the namespace's upload directory while hashing it.
func (s *ConversionService) saveUpload(ns, name string, r io.Reader) (string, string, error) {
	dir := s.layout.UploadDir(ns)
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", "", domain.StorageError("create upload file", err)
	}
	tmpName := tmp.Name()

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return "", "", domain.InputError("file too large")
		}
		return "", "", domain.StorageError("write upload", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", "", domain.StorageError("write upload", err)
	}

	final := filepath.Join(dir, uuid.NewString()+"_"+name)
	if err := os.Rename(tmpName, final); err != nil {
		_ = os.Remove(tmpName)
		return "", "", domain.StorageError("store upload", err)
	}
	return final, hex.EncodeToString(hasher.Sum(nil)), nil
}

// Status describes a handle. Content-hash handles resolve through the cache
// of the caller's namespace; job handles must belong to that namespace.
func (s *ConversionService) Status(ctx context.Context, ns, id string) (*StatusView, error) {
	if cache.ValidHash(id) {
		if result, ok := s.cache.Get(ctx, ns, id); ok {
			return &StatusView{
				State:       domain.JobStateSuccess,
				Progress:    100,
				Description: DescCached,
				Filename:    filepath.Base(result.MarkdownPath),
			}, nil
		}
	}

	job, err := s.job(ctx, ns, id)
	if err != nil {
		return nil, err
	}
	return viewOf(job), nil
}

// BatchStatus resolves several handles at once. Unknown handles are omitted.
func (s *ConversionService) BatchStatus(ctx context.Context, ns string, ids []string) map[string]*StatusView {
	out := make(map[string]*StatusView, len(ids))
	for _, id := range ids {
		view, err := s.Status(ctx, ns, id)
		if err != nil {
			if !errors.Is(err, domain.ErrJobNotFound) {
				s.log(ctx).WithError(err).Warnf("Status lookup for %s failed", id)
			}
			continue
		}
		out[id] = view
	}
	return out
}

// Preview returns the Markdown of a finished handle, optionally rendered
// to HTML.
func (s *ConversionService) Preview(ctx context.Context, ns, id string, withHTML bool) (*Preview, error) {
	path, err := s.outputPath(ctx, ns, id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrJobNotFound
		}
		return nil, domain.StorageError("read output", err)
	}

	p := &Preview{Content: string(data), Filename: filepath.Base(path)}
	if withHTML {
		var buf bytes.Buffer
		if err := s.markdown.Convert(data, &buf); err != nil {
			return nil, fmt.Errorf("render preview: %w", err)
		}
		p.HTML = buf.String()
	}
	return p, nil
}

// Download returns the output file path of a finished handle and the name
// it should be served under.
func (s *ConversionService) Download(ctx context.Context, ns, id string) (string, string, error) {
	path, err := s.outputPath(ctx, ns, id)
	if err != nil {
		return "", "", err
	}
	if _, err := os.Stat(path); err != nil {
		return "", "", domain.ErrJobNotFound
	}
	return path, filepath.Base(path), nil
}

// ClearHistory removes the cache entries, outputs and job records behind
// the given handles. Failures are logged per handle and never abort the batch.
func (s *ConversionService) ClearHistory(ctx context.Context, ns string, ids []string) (*ClearResult, error) {
	if !cache.ValidNamespace(ns) {
		return nil, domain.InputError("missing or invalid device id")
	}
	res := &ClearResult{Removed: []string{}, Failed: []string{}}
	for _, id := range ids {
		if err := s.clearOne(ctx, ns, id); err != nil {
			s.log(ctx).WithError(err).Warnf("Failed to clear %s", id)
			res.Failed = append(res.Failed, id)
			continue
		}
		res.Removed = append(res.Removed, id)
	}
	s.log(ctx).WithFields(logger.Fields{
		logger.FieldCount: len(res.Removed),
		"failed":          len(res.Failed),
	}).Info("History cleared")
	return res, nil
}

func (s *ConversionService) clearOne(ctx context.Context, ns, id string) error {
	hash := id
	var resultPath string

	if !cache.ValidHash(id) {
		job, err := s.job(ctx, ns, id)
		if err != nil {
			return err
		}
		if _, err := s.queue.Remove(ctx, id); err != nil {
			return err
		}
		hash, resultPath = job.ContentHash, job.ResultPath
	}

	result, err := s.cache.Delete(ctx, ns, hash)
	if err != nil {
		return err
	}
	if result != nil && result.MarkdownPath != "" {
		resultPath = result.MarkdownPath
	}
	if result == nil && resultPath == "" {
		return domain.ErrJobNotFound
	}
	if resultPath == "" {
		return nil
	}

	if err := os.Remove(resultPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return domain.StorageError("delete output", err)
	}
	// the per-hash directory is exclusive to this output
	_ = os.Remove(filepath.Dir(resultPath))

	if s.mirror != nil {
		if err := s.mirror.Remove(ctx, ns, hash, resultPath); err != nil {
			s.log(ctx).WithError(err).Warn("Failed to remove mirrored output")
		}
	}
	return nil
}

// job fetches a job and hides jobs of other namespaces.
func (s *ConversionService) job(ctx context.Context, ns, id string) (*domain.Job, error) {
	job, err := s.queue.Status(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Namespace != ns {
		return nil, domain.ErrJobNotFound
	}
	return job, nil
}

func (s *ConversionService) outputPath(ctx context.Context, ns, id string) (string, error) {
	if cache.ValidHash(id) {
		if result, ok := s.cache.Get(ctx, ns, id); ok {
			return result.MarkdownPath, nil
		}
	}
	job, err := s.job(ctx, ns, id)
	if err != nil {
		return "", err
	}
	if job.State != domain.JobStateSuccess || job.ResultPath == "" {
		return "", domain.ErrNotCompleted
	}
	return job.ResultPath, nil
}

func viewOf(job *domain.Job) *StatusView {
	v := &StatusView{State: job.State, Progress: job.Progress}
	switch job.State {
	case domain.JobStatePending:
		v.Description = DescPending
	case domain.JobStateProgress:
		v.Description = DescProgress
	case domain.JobStateSuccess:
		v.Description = DescSuccess
		v.Filename = filepath.Base(job.ResultPath)
	case domain.JobStateFailure:
		v.Description = DescFailure
		v.Error = job.Error
	}
	return v
}

// sanitizeFilename keeps only the base name and drops characters that are
// unsafe in paths.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	name = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f:
			return -1
		case strings.ContainsRune(`:*?"<>|`, r):
			return '_'
		}
		return r
	}, name)
	name = strings.TrimLeft(name, ".")
	if len(name) > maxNameLength {
		ext := filepath.Ext(name)
		if len(ext) >= maxNameLength/2 {
			ext = ""
		}
		name = strings.ToValidUTF8(name[:maxNameLength-len(ext)], "") + ext
	}
	return name
}

func removeQuietly(ctx context.Context, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.CtxWarn(ctx, "Failed to remove upload %s: %v", path, err)
	}
}

// Package pipeline runs one document through the structured extractor and,
// when its output is unusable, the format-specific fallback chain.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/timmy/mdconv/internal/cache"
	"github.com/timmy/mdconv/internal/domain"
	"github.com/timmy/mdconv/internal/engine"
	"github.com/timmy/mdconv/internal/logger"
)

// Progress milestones, in percent.
const (
	ProgressStart = 10
	ProgressOCR   = 80 // span shared by all pages during OCR fallback
	ProgressDone  = 100
)

// OCRFailedText stands in for a page no engine could read.
const OCRFailedText = "OCR failed"

// ProgressFunc receives monotonically non-decreasing percentages.
type ProgressFunc func(percent int)

// Publisher mirrors a finished output somewhere else.
type Publisher interface {
	Publish(ctx context.Context, namespace, contentHash, outputPath string) (string, error)
}

// Engines are the capabilities the pipeline consults. Structured and LocalA
// are required for their branches; the others may be nil.
type Engines struct {
	Structured engine.Engine
	Archive    engine.Engine
	Renderer   engine.PageRenderer
	LocalA     engine.PageEngine
	LocalB     engine.PageEngine
	Vision     engine.PageEngine
	Enhancer   engine.Preprocessor
}

// Pipeline converts documents to Markdown files under a Layout.
type Pipeline struct {
	engines     Engines
	validator   Validator
	layout      cache.Layout
	publisher   Publisher
	pageWorkers int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPageWorkers bounds how many pages are recognized concurrently.
func WithPageWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.pageWorkers = n
		}
	}
}

// WithPublisher mirrors every written output through pub.
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// New creates a pipeline.
// Parameters:
//   - engines: injected extraction capabilities.
//   - v: content validator applied after every attempt.
//   - layout: directory layout outputs are written into.
//   - opts: optional settings.
// Returns:
//   - *Pipeline: ready to Run.
func New(engines Engines, v Validator, layout cache.Layout, opts ...Option) *Pipeline {
	p := &Pipeline{engines: engines, validator: v, layout: layout, pageWorkers: 1}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run converts doc and writes the Markdown output. The source file is
// removed on every return path. Engine failures never escape Run; the
// returned error is an EmptyContentError, a StorageError or ctx's error.
func (p *Pipeline) Run(ctx context.Context, doc *domain.Document, progress func(percent int)) (*domain.ConversionResult, error) {
	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldNamespace:   doc.Namespace,
		logger.FieldContentHash: doc.ContentHash,
		logger.FieldFormat:      string(doc.Format),
	})
	start := time.Now()
	report := monotonic(progress)
	defer p.removeSource(ctx, doc.Path)

	report(ProgressStart)
	logger.CtxInfo(ctx, "Converting %s", doc.Filename)

	text, cause := p.extract(ctx, doc, report)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, domain.EmptyContentError("no content extracted from "+doc.Filename, cause)
	}

	outputPath := p.layout.OutputPath(doc.Namespace, doc.ContentHash, doc.Stem())
	if err := cache.WriteFileAtomic(outputPath, []byte(text), 0o644); err != nil {
		return nil, domain.StorageError("write markdown output", err)
	}

	if p.publisher != nil {
		if _, err := p.publisher.Publish(ctx, doc.Namespace, doc.ContentHash, outputPath); err != nil {
			logger.CtxWarn(ctx, "Mirroring output failed: %v", err)
		}
	}

	report(ProgressDone)
	logger.With(logger.Fields{logger.FieldSize: len(text)}).
		WithDuration(time.Since(start).Milliseconds()).
		Info(ctx, "Converted %s", doc.Filename)

	return &domain.ConversionResult{
		Status:       domain.ConversionSuccess,
		MarkdownPath: outputPath,
		ContentHash:  doc.ContentHash,
		Namespace:    doc.Namespace,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// extract returns the best text available and, when that text is not a
// validated result, the most relevant failure for diagnostics.
func (p *Pipeline) extract(ctx context.Context, doc *domain.Document, report ProgressFunc) (string, error) {
	attempts := Chain{{
		Engine: p.engines.Structured.Name(),
		Run:    func(ctx context.Context) (string, error) { return p.engines.Structured.Extract(ctx, doc) },
	}}.Evaluate(ctx, p.validator)
	structured := Last(attempts)
	if structured.OK() {
		return structured.Text, nil
	}

	switch {
	case doc.Format == domain.FormatPDF && p.engines.Renderer != nil && p.engines.LocalA != nil:
		text, err := p.ocrPDF(ctx, doc, report)
		if err != nil {
			logger.CtxWarn(ctx, "OCR fallback unavailable, keeping structured output: %v", err)
			return structured.Text, errors.Join(structured.Err, err)
		}
		return text, nil

	case doc.Format.Category() == domain.CategoryArchive && p.engines.Archive != nil:
		archive := Last(Chain{{
			Engine: p.engines.Archive.Name(),
			Run:    func(ctx context.Context) (string, error) { return p.engines.Archive.Extract(ctx, doc) },
		}}.Evaluate(ctx, p.validator))
		if archive.Blank() {
			logger.CtxInfo(ctx, "Archive extraction produced nothing, keeping structured output")
			return structured.Text, errors.Join(structured.Err, archive.Err)
		}
		return archive.Text, nil
	}

	return structured.Text, structured.Err
}

// ocrPDF renders every page and runs the per-page chain. Pages may be
// recognized concurrently but are joined in page order.
func (p *Pipeline) ocrPDF(ctx context.Context, doc *domain.Document, report ProgressFunc) (string, error) {
	pages, err := p.engines.Renderer.Render(ctx, doc.Path)
	if err != nil {
		return "", domain.EngineError("renderer", err)
	}
	logger.With(logger.Fields{logger.FieldCount: len(pages)}).Info(ctx, "Running OCR fallback")

	texts := make([]string, len(pages))
	total := len(pages)
	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.pageWorkers)
	for i, page := range pages {
		g.Go(func() error {
			pageCtx := logger.WithField(gctx, logger.FieldPage, page.Number)
			texts[i] = p.recognizePage(pageCtx, page)

			mu.Lock()
			done++
			report(ProgressStart + ProgressOCR*done/total)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var b strings.Builder
	for i, page := range pages {
		fmt.Fprintf(&b, "## Page %d\n\n%s\n\n", page.Number, texts[i])
	}
	return b.String(), nil
}

// recognizePage runs local OCR A, local OCR B, then the vision model, stopping
// at the first validated text. Without one, it prefers non-blank vision output,
// then non-blank local output.
func (p *Pipeline) recognizePage(ctx context.Context, page engine.PageImage) string {
	local := page
	if p.engines.Enhancer != nil {
		if data, err := p.engines.Enhancer.Process(page.Data); err != nil {
			logger.CtxWarn(ctx, "Page enhancement failed, using original image: %v", err)
		} else {
			local.Data = data
		}
	}

	var chain Chain
	for _, e := range []engine.PageEngine{p.engines.LocalA, p.engines.LocalB} {
		if e != nil {
			chain = append(chain, pageStep(e, local))
		}
	}
	if p.engines.Vision != nil {
		chain = append(chain, pageStep(p.engines.Vision, page))
	}

	attempts := chain.Evaluate(ctx, p.validator)
	if last := Last(attempts); last.OK() {
		return last.Text
	}

	preference := []engine.PageEngine{p.engines.Vision, p.engines.LocalA, p.engines.LocalB}
	for _, e := range preference {
		if e == nil {
			continue
		}
		if a, ok := find(attempts, e.Name()); ok && !a.Blank() {
			return a.Text
		}
	}
	logger.CtxWarn(ctx, "No engine produced text for page %d", page.Number)
	return OCRFailedText
}

func pageStep(e engine.PageEngine, page engine.PageImage) Step {
	return Step{
		Engine: e.Name(),
		Run: func(ctx context.Context) (string, error) {
			text, err := e.Recognize(ctx, page)
			if err != nil {
				return "", domain.EngineError(e.Name(), err)
			}
			return text, nil
		},
	}
}

func (p *Pipeline) removeSource(ctx context.Context, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.CtxWarn(ctx, "%v", domain.StorageError("remove source "+path, err))
	}
}

// monotonic drops reports lower than one already delivered.
func monotonic(progress func(percent int)) ProgressFunc {
	if progress == nil {
		return func(int) {}
	}
	var (
		mu   sync.Mutex
		last = -1
	)
	return func(percent int) {
		mu.Lock()
		defer mu.Unlock()
		if percent <= last {
			return
		}
		last = percent
		progress(percent)
	}
}

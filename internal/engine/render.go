package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/timmy/mdconv/internal/logger"
)

var renderedPagePattern = regexp.MustCompile(`-(\d+)\.png$`)

// RendererConfig configures PDF rasterization.
type RendererConfig struct {
	Pdftoppm string // binary name or absolute path; "pdftoppm" when empty
	DPI      int    // default 200
	MaxPages int    // 0 = no limit
	WorkDir  string // parent of per-document scratch directories; os.TempDir() when empty
}

// PDFRenderer rasterizes PDF pages with pdftoppm. pdfcpu supplies the page
// count so the page range is explicit.
type PDFRenderer struct {
	cfg         RendererConfig
	runner      Runner
	pageCounter func(path string) (int, error)
}

func NewPDFRenderer(cfg RendererConfig, runner Runner) *PDFRenderer {
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 200
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &PDFRenderer{cfg: cfg, runner: runner, pageCounter: api.PageCountFile}
}

// Render returns one PNG per page, ordered by page number.
func (r *PDFRenderer) Render(ctx context.Context, pdfPath string) ([]PageImage, error) {
	pageCount, err := r.pageCounter(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("count pages: %w", err)
	}
	if pageCount == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}
	last := pageCount
	if r.cfg.MaxPages > 0 && last > r.cfg.MaxPages {
		logger.CtxWarn(ctx, "Rendering only the first %d of %d pages", r.cfg.MaxPages, pageCount)
		last = r.cfg.MaxPages
	}

	if r.cfg.WorkDir != "" {
		if err := os.MkdirAll(r.cfg.WorkDir, 0o755); err != nil {
			return nil, fmt.Errorf("create work dir: %w", err)
		}
	}
	dir, err := os.MkdirTemp(r.cfg.WorkDir, "pages-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	prefix := filepath.Join(dir, "page")
	args := []string{
		"-r", strconv.Itoa(r.cfg.DPI),
		"-png",
		"-f", "1",
		"-l", strconv.Itoa(last),
		pdfPath, prefix,
	}
	if _, stderr, err := r.runner.Run(ctx, r.cfg.Pdftoppm, args...); err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, truncate(strings.TrimSpace(string(stderr)), 512))
	}

	files, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, fmt.Errorf("list rendered pages: %w", err)
	}

	pages := make([]PageImage, 0, len(files))
	for _, f := range files {
		m := renderedPagePattern.FindStringSubmatch(f)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read page %d: %w", n, err)
		}
		pages = append(pages, PageImage{Number: n, Data: data})
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no pages")
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })
	return pages, nil
}

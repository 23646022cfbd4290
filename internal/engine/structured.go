package engine

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/timmy/mdconv/internal/domain"
	"github.com/timmy/mdconv/internal/logger"
)

// Transcriber turns an audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, data []byte) (string, error)
}

// StructuredConfig configures the structured extractor.
type StructuredConfig struct {
	Pdftotext string // binary name or absolute path; "pdftotext" when empty
}

// Structured converts native document formats directly to Markdown, without
// rendering pages. Images are handed to the vision engine and audio to the
// transcriber; either may be nil, in which case those formats yield "".
type Structured struct {
	cfg         StructuredConfig
	runner      Runner
	vision      PageEngine
	transcriber Transcriber
}

// NewStructured creates the structured extractor.
// Parameters:
//   - cfg: external tool locations.
//   - runner: command runner, ExecRunner{} in production.
//   - vision: optional engine for image inputs.
//   - transcriber: optional engine for audio inputs.
// Returns:
//   - *Structured: ready-to-use extractor.
func NewStructured(cfg StructuredConfig, runner Runner, vision PageEngine, transcriber Transcriber) *Structured {
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Structured{cfg: cfg, runner: runner, vision: vision, transcriber: transcriber}
}

func (s *Structured) Name() string { return NameStructured }

// Extract converts doc according to its declared format.
func (s *Structured) Extract(ctx context.Context, doc *domain.Document) (string, error) {
	start := time.Now()
	text, err := s.extract(ctx, doc)
	entry := logger.With(logger.Fields{
		logger.FieldEngine: NameStructured,
		logger.FieldFormat: string(doc.Format),
	}).WithDuration(time.Since(start).Milliseconds())
	if err != nil {
		entry.Warn(ctx, "Structured extraction failed: %v", err)
		return "", domain.EngineError(NameStructured, err)
	}
	entry.WithField(logger.FieldSize, len(text)).Debug(ctx, "Structured extraction finished")
	return text, nil
}

func (s *Structured) extract(ctx context.Context, doc *domain.Document) (string, error) {
	if doc.Format == domain.FormatPDF {
		return s.pdfText(ctx, doc.Path)
	}

	data, err := os.ReadFile(doc.Path)
	if err != nil {
		return "", fmt.Errorf("read source: %w", err)
	}

	switch doc.Format.Category() {
	case domain.CategoryImage:
		if s.vision == nil {
			return "", nil
		}
		return s.vision.Recognize(ctx, PageImage{Number: 1, Data: data})
	case domain.CategoryAudio:
		if s.transcriber == nil {
			return "", nil
		}
		return s.transcriber.Transcribe(ctx, doc.Filename, data)
	}

	switch doc.Format {
	case domain.FormatDOCX:
		return docxToMarkdown(data)
	case domain.FormatPPTX:
		return pptxToMarkdown(data)
	case domain.FormatXLSX:
		return xlsxToMarkdown(data)
	case domain.FormatZIP:
		return zipToMarkdown(data)
	default:
		return convertText(doc.Format, data)
	}
}

// pdfText reads the embedded text layer; scanned PDFs come back empty.
func (s *Structured) pdfText(ctx context.Context, pdfPath string) (string, error) {
	stdout, stderr, err := s.runner.Run(ctx, s.cfg.Pdftotext, "-layout", "-enc", "UTF-8", pdfPath, "-")
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w: %s", err, truncate(strings.TrimSpace(string(stderr)), 512))
	}
	return string(stdout), nil
}

func convertText(format domain.Format, data []byte) (string, error) {
	switch format {
	case domain.FormatHTML:
		return htmlToMarkdown(data)
	case domain.FormatCSV:
		return csvToMarkdown(data)
	case domain.FormatJSON:
		return jsonToMarkdown(data)
	case domain.FormatXML:
		return xmlToMarkdown(data)
	}
	return "", fmt.Errorf("no structured converter for %q", format)
}

// zipToMarkdown converts the text-based entries of an archive with the
// matching converter. Entries of any other type are skipped here and left
// to the archive extractor.
func zipToMarkdown(data []byte) (string, error) {
	zr, err := openZip(data)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		format, ok := domain.FormatFromFilename(f.Name)
		if !ok || format.Category() != domain.CategoryText {
			continue
		}
		text, err := convertEntry(f, format)
		if err != nil {
			return "", fmt.Errorf("convert %s: %w", f.Name, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		fmt.Fprintf(&out, "## File: %s\n\n%s\n\n", path.Base(f.Name), strings.TrimSpace(text))
	}
	return out.String(), nil
}

func convertEntry(f *zip.File, format domain.Format) (string, error) {
	body, err := readZipEntry(f)
	if err != nil {
		return "", err
	}
	return convertText(format, body)
}

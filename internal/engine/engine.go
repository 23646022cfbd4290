// Package engine holds the extraction capabilities consulted by the
// conversion pipeline. Every engine is constructed explicitly and injected;
// none of them keep package-level state.
package engine

import (
	"context"

	"github.com/timmy/mdconv/internal/domain"
)

// Engine extracts text from a whole document.
type Engine interface {
	Name() string
	Extract(ctx context.Context, doc *domain.Document) (string, error)
}

// PageImage is one rendered page of a document.
type PageImage struct {
	Number int    // 1-based
	Data   []byte // encoded image, PNG for rendered pages
}

// PageEngine recognizes the text on a single page image.
type PageEngine interface {
	Name() string
	Recognize(ctx context.Context, page PageImage) (string, error)
}

// PageRenderer rasterizes every page of a PDF, in page order.
type PageRenderer interface {
	Render(ctx context.Context, pdfPath string) ([]PageImage, error)
}

// Preprocessor rewrites a page image before local OCR.
type Preprocessor interface {
	Process(data []byte) ([]byte, error)
}

// Engine names, used in logs and attempt records.
const (
	NameStructured = "structured"
	NameTesseract  = "tesseract"
	NamePaddle     = "paddleocr"
	NameVision     = "vision"
	NameArchive    = "archive"
)

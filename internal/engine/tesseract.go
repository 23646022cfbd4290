package engine

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract is the first local OCR engine. A gosseract client is not safe
// for concurrent use, so each page gets its own.
type Tesseract struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

// NewTesseract constructs a Tesseract engine for the given trained-data
// languages, e.g. chi_sim and eng.
func NewTesseract(languages []string) *Tesseract {
	return &Tesseract{languages: languages, clientFactory: gosseract.NewClient}
}

func (e *Tesseract) Name() string { return NameTesseract }

func (e *Tesseract) Recognize(ctx context.Context, page PageImage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c := e.clientFactory()
	defer c.Close()

	if len(e.languages) > 0 {
		if err := c.SetLanguage(e.languages...); err != nil {
			return "", fmt.Errorf("set languages: %w", err)
		}
	}
	if err := c.SetImageFromBytes(page.Data); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize page %d: %w", page.Number, err)
	}
	return text, nil
}

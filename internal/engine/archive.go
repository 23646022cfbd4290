package engine

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/timmy/mdconv/internal/domain"
	"github.com/timmy/mdconv/internal/logger"
)

var archiveImageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".webp": true,
}

// Archive reads archive entries as raw text. Plain .txt entries are read
// first; only when they yield nothing is every other non-image entry read
// under a heading carrying its entry name. Invalid UTF-8 is dropped.
type Archive struct{}

func NewArchive() *Archive { return &Archive{} }

func (a *Archive) Name() string { return NameArchive }

func (a *Archive) Extract(ctx context.Context, doc *domain.Document) (string, error) {
	data, err := os.ReadFile(doc.Path)
	if err != nil {
		return "", domain.EngineError(NameArchive, fmt.Errorf("read source: %w", err))
	}
	zr, err := openZip(data)
	if err != nil {
		return "", domain.EngineError(NameArchive, err)
	}

	var out strings.Builder
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.ToLower(path.Ext(f.Name)) != ".txt" {
			continue
		}
		body, err := readZipEntry(f)
		if err != nil {
			logger.CtxWarn(ctx, "Skipping unreadable archive entry %s: %v", f.Name, err)
			continue
		}
		out.WriteString(strings.ToValidUTF8(string(body), ""))
		out.WriteString("\n\n")
	}
	if strings.TrimSpace(out.String()) != "" {
		return out.String(), nil
	}

	out.Reset()
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || archiveImageExts[strings.ToLower(path.Ext(f.Name))] {
			continue
		}
		body, err := readZipEntry(f)
		if err != nil {
			logger.CtxWarn(ctx, "Skipping unreadable archive entry %s: %v", f.Name, err)
			continue
		}
		fmt.Fprintf(&out, "# %s\n\n%s\n\n", f.Name, strings.ToValidUTF8(string(body), ""))
	}
	return out.String(), nil
}

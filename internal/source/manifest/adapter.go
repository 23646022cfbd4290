package manifest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/timmy/mdconv/internal/logger"
	"github.com/timmy/mdconv/internal/source"
)

// Entry is one line of a JSON Lines manifest. Relative paths resolve
// against the manifest's directory.
type Entry struct {
	ID        string `json:"id"`
	Path      string `json:"path"`
	Filename  string `json:"filename"`
	Namespace string `json:"namespace"`
}

// Adapter implements the Source interface for a manifest file.
type Adapter struct {
	path string

	once    sync.Once
	items   []source.Item
	loadErr error
}

// NewAdapter creates a new manifest adapter.
// Parameters:
//   - path: location of the manifest.jsonl file.
// Returns:
//   - *Adapter: initialized manifest adapter.
func NewAdapter(path string) *Adapter {
	return &Adapter{path: path}
}

// GetSourceID returns the unique identifier for this source.
func (a *Adapter) GetSourceID() string {
	return "manifest:" + a.path
}

// FetchBatch fetches a batch of documents listed in the manifest, in file order.
func (a *Adapter) FetchBatch(ctx context.Context, cursor string, limit int) ([]source.Item, string, error) {
	a.once.Do(func() { a.loadErr = a.loadItems(ctx) })
	if a.loadErr != nil {
		return nil, "", fmt.Errorf("failed to load manifest: %w", a.loadErr)
	}
	return source.Page(a.items, cursor, limit)
}

func (a *Adapter) loadItems(ctx context.Context) error {
	file, err := os.Open(a.path)
	if err != nil {
		return fmt.Errorf("failed to open manifest: %w", err)
	}
	defer file.Close()

	base := filepath.Dir(a.path)
	a.items = []source.Item{}

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil || entry.Path == "" {
			logger.CtxWarn(ctx, "Skipping malformed manifest line %d", lineNo)
			continue
		}

		path := entry.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(base, path)
		}
		if _, err := os.Stat(path); err != nil {
			logger.CtxWarn(ctx, "Skipping manifest line %d: %v", lineNo, err)
			continue
		}

		id := entry.ID
		if id == "" {
			id = strconv.Itoa(lineNo)
		}
		name := entry.Filename
		if name == "" {
			name = filepath.Base(path)
		}
		item, ok := source.NewItem(id, name)
		if !ok {
			logger.CtxWarn(ctx, "Skipping manifest line %d: unsupported file type", lineNo)
			continue
		}
		item.Path = path
		item.Namespace = entry.Namespace
		a.items = append(a.items, item)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading manifest: %w", err)
	}
	return nil
}

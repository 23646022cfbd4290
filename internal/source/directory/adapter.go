package directory

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/timmy/mdconv/internal/source"
)

// SourceID prefixes the identifier of every directory source.
const SourceID = "dir"

// Adapter implements the Source interface for a directory tree. Hidden
// files and directories are skipped, as are files whose type is not
// allow-listed.
type Adapter struct {
	root string

	once    sync.Once
	items   []source.Item
	loadErr error
}

// NewAdapter creates a new directory adapter.
func NewAdapter(root string) *Adapter {
	return &Adapter{root: root}
}

// GetSourceID returns the unique identifier for this source
func (a *Adapter) GetSourceID() string {
	return SourceID + ":" + a.root
}

// FetchBatch fetches a batch of documents
func (a *Adapter) FetchBatch(_ context.Context, cursor string, limit int) ([]source.Item, string, error) {
	a.once.Do(func() { a.loadErr = a.loadItems() })
	if a.loadErr != nil {
		return nil, "", fmt.Errorf("failed to load items: %w", a.loadErr)
	}
	return source.Page(a.items, cursor, limit)
}

// GetTotalCount returns the total number of documents
func (a *Adapter) GetTotalCount() (int, error) {
	a.once.Do(func() { a.loadErr = a.loadItems() })
	return len(a.items), a.loadErr
}

func (a *Adapter) loadItems() error {
	if _, err := os.Stat(a.root); err != nil {
		return fmt.Errorf("directory %s: %w", a.root, err)
	}

	a.items = []source.Item{}
	err := filepath.WalkDir(a.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != a.root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}

		rel, _ := filepath.Rel(a.root, path)
		if item, ok := source.NewItem(filepath.ToSlash(rel), path); ok {
			a.items = append(a.items, item)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk directory: %w", err)
	}

	sort.Slice(a.items, func(i, j int) bool {
		return a.items[i].ID < a.items[j].ID
	})
	return nil
}

// Package source enumerates local documents for batch conversion.
package source

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/timmy/mdconv/internal/domain"
)

// Item is one document offered by a source.
type Item struct {
	ID        string        // unique within the source
	Path      string        // local file path
	Filename  string        // name the output is derived from
	Format    domain.Format // allow-listed format
	Namespace string        // optional; the caller's default applies when empty
}

// Source defines the interface for document sources.
type Source interface {
	// GetSourceID returns the unique identifier for this source.
	// Parameters: none.
	// Returns:
	//   - string: stable source identifier.
	GetSourceID() string

	// FetchBatch fetches a batch of items starting from the given cursor.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - cursor: pagination cursor or empty for first page.
	//   - limit: maximum number of items to fetch.
	// Returns:
	//   - items: batch of items.
	//   - nextCursor: cursor for the next batch or empty if done.
	//   - err: non-nil if fetching fails.
	FetchBatch(ctx context.Context, cursor string, limit int) (items []Item, nextCursor string, err error)
}

// Page slices items with an index cursor, the pagination every local source
// shares.
func Page(items []Item, cursor string, limit int) ([]Item, string, error) {
	start := 0
	if cursor != "" {
		var err error
		start, err = strconv.Atoi(cursor)
		if err != nil || start < 0 {
			return nil, "", fmt.Errorf("invalid cursor %q", cursor)
		}
	}
	if start >= len(items) {
		return []Item{}, "", nil
	}
	if limit <= 0 {
		limit = len(items)
	}

	end := min(start+limit, len(items))
	next := ""
	if end < len(items) {
		next = strconv.Itoa(end)
	}
	return items[start:end], next, nil
}

// NewItem builds an Item for path, or reports false when the file type is
// not on the allow-list.
func NewItem(id, path string) (Item, bool) {
	name := filepath.Base(path)
	format, ok := domain.FormatFromFilename(name)
	if !ok {
		return Item{}, false
	}
	return Item{ID: id, Path: path, Filename: name, Format: format}, true
}

// Files is a fixed list of paths, e.g. from the command line. Unsupported
// files are kept so the caller can report them.
type Files struct {
	items []Item
}

// NewFiles creates a Files source.
func NewFiles(paths []string) *Files {
	items := make([]Item, 0, len(paths))
	for i, p := range paths {
		item, ok := NewItem(strconv.Itoa(i), p)
		if !ok {
			item = Item{ID: strconv.Itoa(i), Path: p, Filename: filepath.Base(p)}
		}
		items = append(items, item)
	}
	return &Files{items: items}
}

func (f *Files) GetSourceID() string { return "files" }

func (f *Files) FetchBatch(_ context.Context, cursor string, limit int) ([]Item, string, error) {
	return Page(f.items, cursor, limit)
}

// Collect drains src into a single slice.
func Collect(ctx context.Context, src Source, batchSize int) ([]Item, error) {
	var all []Item
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		items, next, err := src.FetchBatch(ctx, cursor, batchSize)
		if err != nil {
			return all, fmt.Errorf("fetch from %s: %w", src.GetSourceID(), err)
		}
		all = append(all, items...)
		if next == "" {
			return all, nil
		}
		cursor = next
	}
}

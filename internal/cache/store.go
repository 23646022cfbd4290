package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/timmy/mdconv/internal/domain"
	"github.com/timmy/mdconv/internal/logger"
)

// Store maps (namespace, content hash) to a previous ConversionResult. Each
// entry is a JSON file under the namespace's cache directory.
type Store struct {
	layout Layout
}

func NewStore(layout Layout) *Store {
	return &Store{layout: layout}
}

// Layout returns the directory layout the store writes into.
func (s *Store) Layout() Layout { return s.layout }

// Get returns the cached result for (ns, hash). Missing, unreadable or
// dangling entries (output file gone) are all misses.
func (s *Store) Get(ctx context.Context, ns, hash string) (*domain.ConversionResult, bool) {
	if !ValidNamespace(ns) || !ValidHash(hash) {
		return nil, false
	}

	data, err := os.ReadFile(s.layout.EntryPath(ns, hash))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.CtxWarn(ctx, "Cache entry unreadable, treating as miss: %v", err)
		}
		return nil, false
	}

	var result domain.ConversionResult
	if err := json.Unmarshal(data, &result); err != nil {
		logger.CtxWarn(ctx, "Cache entry corrupt, treating as miss: %v", err)
		return nil, false
	}
	if result.Status != domain.ConversionSuccess || result.MarkdownPath == "" {
		return nil, false
	}
	if _, err := os.Stat(result.MarkdownPath); err != nil {
		logger.CtxDebug(ctx, "Cache entry for %s points at missing output", hash)
		return nil, false
	}

	if result.ContentHash == "" {
		result.ContentHash = hash
	}
	if result.Namespace == "" {
		result.Namespace = ns
	}
	return &result, true
}

// Put records result for (ns, hash), replacing any previous entry.
func (s *Store) Put(ctx context.Context, ns, hash string, result *domain.ConversionResult) error {
	if !ValidNamespace(ns) || !ValidHash(hash) {
		return domain.StorageError("write cache entry", fmt.Errorf("invalid key %q/%q", ns, hash))
	}
	data, err := json.Marshal(result)
	if err != nil {
		return domain.StorageError("encode cache entry", err)
	}
	if err := WriteFileAtomic(s.layout.EntryPath(ns, hash), data, 0o644); err != nil {
		return domain.StorageError("write cache entry", err)
	}
	logger.With(logger.Fields{logger.FieldContentHash: hash}).Debug(ctx, "Cache entry written")
	return nil
}

// Delete removes the entry for (ns, hash) and returns the result it referenced,
// or nil when there was no readable entry.
func (s *Store) Delete(ctx context.Context, ns, hash string) (*domain.ConversionResult, error) {
	if !ValidNamespace(ns) || !ValidHash(hash) {
		return nil, nil
	}
	path := s.layout.EntryPath(ns, hash)

	var result *domain.ConversionResult
	if data, err := os.ReadFile(path); err == nil {
		var r domain.ConversionResult
		if json.Unmarshal(data, &r) == nil {
			result = &r
		}
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return result, domain.StorageError("delete cache entry", err)
	}
	return result, nil
}

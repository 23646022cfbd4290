package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/timmy/mdconv/internal/logger"
)

const (
	markdownContentType = "text/markdown; charset=utf-8"
	hashDirLength       = 16
)

// Mirror copies finished Markdown outputs to object storage. The local file
// stays authoritative; the mirror is a convenience copy.
type Mirror struct {
	store  ObjectStorage
	prefix string
}

// NewMirror wraps store, placing every object under prefix.
func NewMirror(store ObjectStorage, prefix string) *Mirror {
	return &Mirror{store: store, prefix: prefix}
}

// Key returns the object key for a namespace, content hash and output file.
// Like the local output directory, it carries the first 16 hash characters.
func (m *Mirror) Key(namespace, contentHash, outputPath string) string {
	if len(contentHash) > hashDirLength {
		contentHash = contentHash[:hashDirLength]
	}
	return path.Join(m.prefix, namespace, contentHash, filepath.Base(outputPath))
}

// Publish uploads the Markdown file at outputPath and returns its object key.
func (m *Mirror) Publish(ctx context.Context, namespace, contentHash, outputPath string) (string, error) {
	f, err := os.Open(outputPath)
	if err != nil {
		return "", fmt.Errorf("open output: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat output: %w", err)
	}

	key := m.Key(namespace, contentHash, outputPath)
	if err := m.store.Upload(ctx, key, f, info.Size(), markdownContentType); err != nil {
		return "", err
	}

	logger.With(logger.Fields{logger.FieldSize: info.Size()}).
		Debug(ctx, "Mirrored markdown to %s", m.store.GetURL(key))
	return key, nil
}

// Remove deletes the mirrored copy of outputPath.
func (m *Mirror) Remove(ctx context.Context, namespace, contentHash, outputPath string) error {
	return m.store.Delete(ctx, m.Key(namespace, contentHash, outputPath))
}

package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memStorage) Upload(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = buf.Bytes()
	m.types[key] = contentType
	return nil
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memStorage) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

func (m *memStorage) GetURL(key string) string { return "mem://" + key }

func (m *memStorage) EnsureBucket(context.Context) error { return nil }

func TestMirrorPublishAndRemove(t *testing.T) {
	ctx := context.Background()
	out := filepath.Join(t.TempDir(), "report.md")
	require.NoError(t, os.WriteFile(out, []byte("# Report\n"), 0o644))

	store := newMemStorage()
	m := NewMirror(store, "markdown")

	key, err := m.Publish(ctx, "device-1", "abc123", out)
	require.NoError(t, err)
	assert.Equal(t, "markdown/device-1/abc123/report.md", key)
	assert.Equal(t, []byte("# Report\n"), store.objects[key])
	assert.Equal(t, markdownContentType, store.types[key])

	require.NoError(t, m.Remove(ctx, "device-1", "abc123", out))
	assert.False(t, store.has(key))
}

func TestMirrorKeyMatchesOutputLayout(t *testing.T) {
	hash := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	out := filepath.Join("/data/markdown/device-1", hash[:16], "report.md")

	m := NewMirror(newMemStorage(), "markdown")
	assert.Equal(t, "markdown/device-1/0123456789abcdef/report.md", m.Key("device-1", hash, out))

	key, err := NewMirror(newMemStorage(), "").Publish(context.Background(), "ns", hash, writeMarkdown(t))
	require.NoError(t, err)
	assert.Equal(t, "ns/0123456789abcdef/report.md", key)
}

func writeMarkdown(t *testing.T) string {
	t.Helper()
	out := filepath.Join(t.TempDir(), "report.md")
	require.NoError(t, os.WriteFile(out, []byte("# Report\n"), 0o644))
	return out
}

func TestMirrorPublishMissingFile(t *testing.T) {
	m := NewMirror(newMemStorage(), "")
	_, err := m.Publish(context.Background(), "ns", "h", filepath.Join(t.TempDir(), "missing.md"))
	assert.Error(t, err)
}

func TestDetectStorageType(t *testing.T) {
	assert.Equal(t, StorageTypeR2, detectStorageType("https://acc.r2.cloudflarestorage.com"))
	assert.Equal(t, StorageTypeS3, detectStorageType("s3.us-east-1.amazonaws.com"))
	assert.Equal(t, StorageTypeS3, detectStorageType(""))
	assert.Equal(t, StorageTypeS3Compatible, detectStorageType("localhost:9000"))
	assert.Equal(t, "localhost:9000", normalizeEndpoint("http://localhost:9000/bucket"))
}

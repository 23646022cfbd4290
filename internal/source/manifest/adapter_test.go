package manifest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/mdconv/internal/domain"
	"github.com/timmy/mdconv/internal/source"
)

func TestAdapterReadsManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.pdf"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blob.bin"), []byte("x"), 0o644))

	lines := []string{
		`{"id":"one","path":"a.pdf","namespace":"team-a"}`,
		`not json`,
		`{"path":"missing.pdf"}`,
		`# comment`,
		`{"path":"blob.bin","filename":"renamed.csv"}`,
		`{"path":"blob.bin"}`,
	}
	manifest := filepath.Join(dir, "manifest.jsonl")
	require.NoError(t, os.WriteFile(manifest, []byte(strings.Join(lines, "\n")), 0o644))

	items, err := source.Collect(context.Background(), NewAdapter(manifest), 10)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "one", items[0].ID)
	assert.Equal(t, filepath.Join(dir, "a.pdf"), items[0].Path)
	assert.Equal(t, "team-a", items[0].Namespace)
	assert.Equal(t, domain.FormatPDF, items[0].Format)

	assert.Equal(t, "5", items[1].ID)
	assert.Equal(t, "renamed.csv", items[1].Filename)
	assert.Equal(t, filepath.Join(dir, "blob.bin"), items[1].Path)
	assert.Equal(t, domain.FormatCSV, items[1].Format)
}

func TestAdapterMissingManifest(t *testing.T) {
	_, _, err := NewAdapter(filepath.Join(t.TempDir(), "none.jsonl")).FetchBatch(context.Background(), "", 1)
	assert.Error(t, err)
}

package directory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/mdconv/internal/source"
)

func TestAdapterWalksAllowListedFiles(t *testing.T) {
	root := t.TempDir()
	for _, p := range []string{
		"b.pdf",
		"a/report.docx",
		"a/notes.txt",
		".hidden/secret.pdf",
		"a/.draft.csv",
		"z/sheet.xlsx",
	} {
		full := filepath.Join(root, p)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte("x"), 0o644))
	}

	a := NewAdapter(root)
	items, err := source.Collect(context.Background(), a, 2)
	require.NoError(t, err)

	var ids []string
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	assert.Equal(t, []string{"a/report.docx", "b.pdf", "z/sheet.xlsx"}, ids)

	n, err := a.GetTotalCount()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestAdapterMissingRoot(t *testing.T) {
	a := NewAdapter(filepath.Join(t.TempDir(), "nope"))
	_, _, err := a.FetchBatch(context.Background(), "", 10)
	assert.Error(t, err)
}

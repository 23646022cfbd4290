package engine

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/mdconv/internal/domain"
)

// writeZip writes entries (name → body) to a new archive in dir.
func writeZip(t *testing.T, dir string, entries [][2]string) string {
	t.Helper()
	p := filepath.Join(dir, "bundle.zip")
	f, err := os.Create(p)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for _, e := range entries {
		w, err := zw.Create(e[0])
		require.NoError(t, err)
		_, err = w.Write([]byte(e[1]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return p
}

func archiveDoc(p string) *domain.Document {
	return &domain.Document{Path: p, Filename: filepath.Base(p), Format: domain.FormatZIP, Namespace: "ns"}
}

func TestArchiveReadsTextEntriesAndSkipsImages(t *testing.T) {
	png := "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\xff\xfe"
	p := writeZip(t, t.TempDir(), [][2]string{{"a.txt", "hello"}, {"b.png", png}})

	text, err := NewArchive().Extract(context.Background(), archiveDoc(p))
	require.NoError(t, err)
	assert.Contains(t, text, "hello")
	assert.NotContains(t, text, "PNG")
	assert.NotContains(t, text, "b.png")
}

func TestArchiveFallsBackToOtherEntries(t *testing.T) {
	p := writeZip(t, t.TempDir(), [][2]string{
		{"notes.md", "some notes"},
		{"cover.jpg", "\xff\xd8\xff"},
		{"bad.log", "ok\xffbytes"},
	})

	text, err := NewArchive().Extract(context.Background(), archiveDoc(p))
	require.NoError(t, err)
	assert.Contains(t, text, "# notes.md\n\nsome notes")
	assert.Contains(t, text, "# bad.log\n\nokbytes")
	assert.NotContains(t, text, "cover.jpg")
}

func TestArchiveRejectsNonZip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "broken.zip")
	require.NoError(t, os.WriteFile(p, []byte("not a zip"), 0o644))

	_, err := NewArchive().Extract(context.Background(), archiveDoc(p))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEngine)
}

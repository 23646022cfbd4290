package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/mdconv/internal/domain"
)

func TestPage(t *testing.T) {
	items := []Item{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	batch, next, err := Page(items, "", 2)
	require.NoError(t, err)
	assert.Len(t, batch, 2)
	assert.Equal(t, "2", next)

	batch, next, err = Page(items, next, 2)
	require.NoError(t, err)
	assert.Equal(t, []Item{{ID: "c"}}, batch)
	assert.Empty(t, next)

	batch, next, err = Page(items, "10", 2)
	require.NoError(t, err)
	assert.Empty(t, batch)
	assert.Empty(t, next)

	_, _, err = Page(items, "x", 2)
	assert.Error(t, err)
}

func TestFilesAndCollect(t *testing.T) {
	src := NewFiles([]string{"/tmp/a.pdf", "/tmp/b.exe", "/tmp/c.DOCX"})

	all, err := Collect(context.Background(), src, 1)
	require.NoError(t, err)
	require.Len(t, all, 3)

	assert.Equal(t, domain.FormatPDF, all[0].Format)
	assert.Equal(t, domain.Format(""), all[1].Format)
	assert.Equal(t, "b.exe", all[1].Filename)
	assert.Equal(t, domain.FormatDOCX, all[2].Format)
}

package domain

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatFromFilename(t *testing.T) {
	f, ok := FormatFromFilename("Report.PDF")
	assert.True(t, ok)
	assert.Equal(t, FormatPDF, f)
	assert.Equal(t, CategoryDocument, f.Category())

	_, ok = FormatFromFilename("tool.exe")
	assert.False(t, ok)
	_, ok = FormatFromFilename("README")
	assert.False(t, ok)
}

func TestSupportedExtensions(t *testing.T) {
	exts := SupportedExtensions()
	assert.True(t, slices.IsSorted(exts))
	assert.Contains(t, exts, "pdf")
	assert.Contains(t, exts, "docx")
	for _, ext := range exts {
		_, ok := FormatFromFilename("file." + ext)
		assert.True(t, ok, ext)
	}
}

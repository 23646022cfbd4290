package domain

import (
	"path/filepath"
	"slices"
	"strings"
)

// Format is a lower-case file extension without the leading dot.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatPPTX Format = "pptx"
	FormatDOCX Format = "docx"
	FormatXLSX Format = "xlsx"
	FormatJPG  Format = "jpg"
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatMP3  Format = "mp3"
	FormatWAV  Format = "wav"
	FormatHTML Format = "html"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXML  Format = "xml"
	FormatZIP  Format = "zip"
)

// Category groups formats that share an extraction strategy.
type Category string

const (
	CategoryDocument Category = "document"
	CategoryImage    Category = "image"
	CategoryAudio    Category = "audio"
	CategoryText     Category = "text"
	CategoryArchive  Category = "archive"
)

var supportedFormats = map[Format]Category{
	FormatPDF:  CategoryDocument,
	FormatPPTX: CategoryDocument,
	FormatDOCX: CategoryDocument,
	FormatXLSX: CategoryDocument,
	FormatJPG:  CategoryImage,
	FormatJPEG: CategoryImage,
	FormatPNG:  CategoryImage,
	FormatMP3:  CategoryAudio,
	FormatWAV:  CategoryAudio,
	FormatHTML: CategoryText,
	FormatCSV:  CategoryText,
	FormatJSON: CategoryText,
	FormatXML:  CategoryText,
	FormatZIP:  CategoryArchive,
}

// FormatFromFilename derives the declared format from a file name.
// Parameters:
//   - name: file name or path.
// Returns:
//   - Format: normalized extension.
//   - bool: true when the format is on the allow-list.
func FormatFromFilename(name string) (Format, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	f := Format(ext)
	_, ok := supportedFormats[f]
	return f, ok
}

// Category returns the extraction category of f, or "" when unsupported.
func (f Format) Category() Category {
	return supportedFormats[f]
}

// SupportedExtensions lists the allow-listed extensions, sorted.
func SupportedExtensions() []string {
	out := make([]string, 0, len(supportedFormats))
	for f := range supportedFormats {
		out = append(out, string(f))
	}
	slices.Sort(out)
	return out
}

// Document is one uploaded input. Path is owned by the pipeline once submitted and
// is removed when the pipeline finishes, whatever the outcome.
type Document struct {
	Path        string // on-disk source file
	Filename    string // sanitized original name; output stem derives from it
	ContentHash string // hex SHA-256 of the raw bytes
	Format      Format
	Namespace   string
}

// Stem returns the file name without its extension.
func (d *Document) Stem() string {
	name := d.Filename
	if name == "" {
		name = filepath.Base(d.Path)
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

package engine

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var slidePattern = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

func openZip(data []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open container: %w", err)
	}
	return zr, nil
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// docxToMarkdown converts word/document.xml: headings from paragraph styles,
// plain paragraphs, and tables as Markdown tables.
func docxToMarkdown(data []byte) (string, error) {
	zr, err := openZip(data)
	if err != nil {
		return "", err
	}
	var body []byte
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			if body, err = readZipEntry(f); err != nil {
				return "", fmt.Errorf("read document.xml: %w", err)
			}
			break
		}
	}
	if body == nil {
		return "", errors.New("word/document.xml not found")
	}

	var (
		out        strings.Builder
		para       strings.Builder
		cell       strings.Builder
		style      string
		inText     bool
		tableDepth int
		row        []string
		rows       [][]string
	)

	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				para.Reset()
				style = ""
			case "pStyle":
				style = attrValue(t, "val")
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br":
				para.WriteByte('\n')
			case "tbl":
				tableDepth++
				if tableDepth == 1 {
					rows = nil
				}
			case "tr":
				if tableDepth == 1 {
					row = nil
				}
			case "tc":
				if tableDepth == 1 {
					cell.Reset()
				}
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				text := strings.TrimSpace(para.String())
				if tableDepth > 0 {
					if text != "" {
						if cell.Len() > 0 {
							cell.WriteByte(' ')
						}
						cell.WriteString(text)
					}
				} else if text != "" {
					out.WriteString(headingPrefix(style))
					out.WriteString(text)
					out.WriteString("\n\n")
				}
			case "tc":
				if tableDepth == 1 {
					row = append(row, cell.String())
				}
			case "tr":
				if tableDepth == 1 {
					rows = append(rows, row)
				}
			case "tbl":
				tableDepth--
				if tableDepth == 0 && len(rows) > 0 {
					out.WriteString(markdownTable(rows))
					out.WriteString("\n")
				}
			}
		}
	}
	return out.String(), nil
}

// headingPrefix maps Word paragraph styles such as "Heading2" or "Title" to
// Markdown heading markers.
func headingPrefix(style string) string {
	s := strings.ToLower(style)
	switch {
	case s == "title":
		return "# "
	case strings.HasPrefix(s, "heading"):
		level, err := strconv.Atoi(strings.TrimPrefix(s, "heading"))
		if err != nil || level < 1 {
			return ""
		}
		if level > 6 {
			level = 6
		}
		return strings.Repeat("#", level) + " "
	}
	return ""
}

func attrValue(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// pptxToMarkdown emits one section per slide, in slide-number order.
func pptxToMarkdown(data []byte) (string, error) {
	zr, err := openZip(data)
	if err != nil {
		return "", err
	}

	type slide struct {
		number int
		file   *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		m := slidePattern.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{number: n, file: f})
	}
	if len(slides) == 0 {
		return "", errors.New("presentation has no slides")
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].number < slides[j].number })

	var out strings.Builder
	for _, s := range slides {
		body, err := readZipEntry(s.file)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path.Base(s.file.Name), err)
		}
		paragraphs, err := drawingParagraphs(body)
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", path.Base(s.file.Name), err)
		}
		fmt.Fprintf(&out, "## Slide %d\n\n", s.number)
		for _, p := range paragraphs {
			out.WriteString(p)
			out.WriteString("\n\n")
		}
	}
	return out.String(), nil
}

// drawingParagraphs collects the non-empty a:p paragraphs of a slide.
func drawingParagraphs(body []byte) ([]string, error) {
	var (
		paragraphs []string
		para       strings.Builder
		inText     bool
	)
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return paragraphs, nil
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				para.Reset()
			case "t":
				inText = true
			case "br":
				para.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if text := strings.TrimSpace(para.String()); text != "" {
					paragraphs = append(paragraphs, text)
				}
			}
		}
	}
}

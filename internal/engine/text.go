package engine

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/xuri/excelize/v2"
)

// htmlToMarkdown drops non-content elements with goquery, then converts
// the remaining markup.
func htmlToMarkdown(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, iframe").Remove()

	var title string
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		title = "# " + t + "\n\n"
	}
	doc.Find("head").Remove()

	html, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}

	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("convert html: %w", err)
	}
	return title + markdown, nil
}

func csvToMarkdown(data []byte) (string, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return "", fmt.Errorf("parse csv: %w", err)
	}
	return markdownTable(rows), nil
}

func jsonToMarkdown(data []byte) (string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return "", nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return "", fmt.Errorf("parse json: %w", err)
	}
	return "```json\n" + buf.String() + "\n```\n", nil
}

func xmlToMarkdown(data []byte) (string, error) {
	body := strings.TrimSpace(string(data))
	if body == "" {
		return "", nil
	}
	return "```xml\n" + body + "\n```\n", nil
}

// xlsxToMarkdown renders each sheet as a heading followed by a table.
func xlsxToMarkdown(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var out strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		fmt.Fprintf(&out, "## %s\n\n", sheet)
		out.WriteString(markdownTable(rows))
		out.WriteString("\n")
	}
	return out.String(), nil
}

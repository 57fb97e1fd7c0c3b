// Package pdftext extracts per-page plain text from uploaded PDF files.
package pdftext

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/pavelanni/examgen/internal/model"
)

// DefaultJoinLimit caps the joined text handed to question generation.
const DefaultJoinLimit = 15000

// ErrNoText is returned when a file yields no extractable text at all,
// typically a scanned PDF without a text layer.
var ErrNoText = errors.New("no extractable text")

// ExtractPages returns one ContextPage per PDF page, numbered from 1.
// Pages that cannot be read get empty text. A file with no text on any
// page is an error.
func ExtractPages(name string, r io.ReaderAt, size int64) (pages []model.ContextPage, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if rec := recover(); rec != nil {
			pages, err = nil, fmt.Errorf("parse %s: %v", name, rec)
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}

	found := false
	for i := 1; i <= reader.NumPage(); i++ {
		cp := model.ContextPage{SourceName: name, PageNumber: i}
		if page := reader.Page(i); !page.V.IsNull() {
			if text, err := page.GetPlainText(nil); err == nil {
				cp.Text = strings.TrimSpace(text)
			}
		}
		found = found || cp.Text != ""
		pages = append(pages, cp)
	}
	if !found {
		return nil, fmt.Errorf("%s: %w", name, ErrNoText)
	}
	return pages, nil
}

// ExtractFiles extracts every uploaded file in order. A file that fails is
// reported in skipped and does not abort the others.
func ExtractFiles(files []model.UploadedFile) (pages []model.ContextPage, skipped []error) {
	for _, f := range files {
		p, err := ExtractPages(f.Name, bytes.NewReader(f.Data), int64(len(f.Data)))
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		pages = append(pages, p...)
	}
	return pages, skipped
}

// JoinText concatenates page texts separated by blank lines and cuts the
// result to at most limit runes. A limit <= 0 means no cut.
func JoinText(pages []model.ContextPage, limit int) string {
	var b strings.Builder
	for _, p := range pages {
		if p.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(p.Text)
	}
	return Truncate(b.String(), limit)
}

// Truncate cuts s to at most limit runes.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

// Preview returns the first limit runes of the joined text with whitespace
// runs collapsed, for list views.
func Preview(pages []model.ContextPage, limit int) string {
	return Truncate(strings.Join(strings.Fields(JoinText(pages, 0)), " "), limit)
}

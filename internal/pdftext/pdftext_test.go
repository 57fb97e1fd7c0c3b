package pdftext

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/examgen/internal/model"
	"github.com/pavelanni/examgen/internal/pdftext/pdftest"
)

func TestExtractPagesRejectsGarbage(t *testing.T) {
	data := []byte("this is not a pdf")
	_, err := ExtractPages("notes.pdf", bytes.NewReader(data), int64(len(data)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notes.pdf")
}

func TestExtractFilesCollectsFailures(t *testing.T) {
	pages, skipped := ExtractFiles([]model.UploadedFile{
		{Name: "a.pdf", Data: []byte("junk")},
		{Name: "b.pdf", Data: nil},
	})
	assert.Empty(t, pages)
	require.Len(t, skipped, 2)
	assert.Contains(t, skipped[0].Error(), "a.pdf")
	assert.Contains(t, skipped[1].Error(), "b.pdf")
}

func TestJoinText(t *testing.T) {
	pages := []model.ContextPage{
		{SourceName: "a.pdf", PageNumber: 1, Text: "first"},
		{SourceName: "a.pdf", PageNumber: 3, Text: "second"},
	}
	assert.Equal(t, "first\n\nsecond", JoinText(pages, 0))
	assert.Equal(t, "first\n\nsec", JoinText(pages, 10))
	assert.Equal(t, "", JoinText(nil, 10))
}

func TestTruncateCountsRunes(t *testing.T) {
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{"가나다라마", 3, "가나다"},
		{"abc", 3, "abc"},
		{"abc", 5, "abc"},
		{"abc", 0, "abc"},
		{"", 2, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Truncate(tt.in, tt.limit), "Truncate(%q, %d)", tt.in, tt.limit)
	}
}

func TestPreview(t *testing.T) {
	pages := []model.ContextPage{{Text: "  line one\n\n  line   two "}, {Text: strings.Repeat("x", 50)}}
	got := Preview(pages, 20)
	assert.Equal(t, "line one line two xx", got)
}

func TestJoinTextSkipsBlankPages(t *testing.T) {
	pages := []model.ContextPage{{Text: ""}, {Text: "a"}, {Text: ""}, {Text: "b"}}
	assert.Equal(t, "a\n\nb", JoinText(pages, 0))
}

func TestExtractPages(t *testing.T) {
	data := pdftest.Build("Water is H2O", "", "Cells divide by mitosis")
	pages, err := ExtractPages("bio.pdf", bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Equal(t, model.ContextPage{SourceName: "bio.pdf", PageNumber: 1, Text: "Water is H2O"}, pages[0])
	assert.Equal(t, "", pages[1].Text)
	assert.Equal(t, 3, pages[2].PageNumber)
	assert.Contains(t, pages[2].Text, "mitosis")
}

func TestExtractPagesNoText(t *testing.T) {
	data := pdftest.Build("", "")
	_, err := ExtractPages("scan.pdf", bytes.NewReader(data), int64(len(data)))
	assert.ErrorIs(t, err, ErrNoText)
}

func TestExtractFilesKeepsOrder(t *testing.T) {
	pages, skipped := ExtractFiles([]model.UploadedFile{
		{Name: "a.pdf", Data: pdftest.Build("alpha")},
		{Name: "broken.pdf", Data: []byte("%PDF-garbage")},
		{Name: "b.pdf", Data: pdftest.Build("beta")},
	})
	require.Len(t, skipped, 1)
	require.Len(t, pages, 2)
	assert.Equal(t, "a.pdf", pages[0].SourceName)
	assert.Equal(t, "b.pdf", pages[1].SourceName)
}

package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "rag-indexer/pkg/errors"
)

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		contentType, filename string
		want                  Format
	}{
		{"text/plain", "a.txt", FormatText},
		{"text/markdown; charset=utf-8", "a.md", FormatMarkdown},
		{"application/pdf", "x", FormatPDF},
		{"application/octet-stream", "report.PDF", FormatPDF},
		{"application/octet-stream", "notes.md", FormatMarkdown},
		{"", "page.htm", FormatHTML},
		{"application/x-unknown", "file.bin", FormatText},
		{docxContentType, "a.docx", FormatDOCX},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, DetectFormat(c.contentType, c.filename), "%s %s", c.contentType, c.filename)
	}
}

func TestUploadPolicy_Validate(t *testing.T) {
	p := UploadPolicy{MaxSize: 10 * 1024 * 1024}
	assert.NoError(t, p.Validate("a.txt", "text/plain", 10))
	assert.NoError(t, p.Validate("a.md", "application/x-whatever", 10))

	err := p.Validate("a.txt", "text/plain", 0)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	err = p.Validate("a.txt", "text/plain", 11*1024*1024)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	assert.Contains(t, err.Error(), "10MB")

	err = p.Validate("a.exe", "application/x-msdownload", 10)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	assert.Contains(t, err.Error(), "Unsupported file type")

	anyType := UploadPolicy{MaxSize: 50 * 1024 * 1024, AnyType: true}
	assert.NoError(t, anyType.Validate("prices.csv", "text/csv", 10))
	assert.Error(t, anyType.Validate("prices.csv", "text/csv", 0))
}

func TestParse_PlainTextUTF8(t *testing.T) {
	p := NewDocumentParser(nil)
	got := p.Parse(context.Background(), []byte("héllo\n\nworld"), "text/plain", "a.txt")
	assert.Equal(t, "héllo\n\nworld", got)
}

func TestParse_Latin1Fallback(t *testing.T) {
	p := NewDocumentParser(nil)
	// 0xE9 在 latin-1 中为 é，不是合法 UTF-8
	got := p.Parse(context.Background(), []byte{'c', 'a', 'f', 0xE9}, "text/plain", "a.txt")
	assert.Equal(t, "café", got)
}

func TestParse_StripsNUL(t *testing.T) {
	p := NewDocumentParser(nil)
	got := p.Parse(context.Background(), []byte("a\x00b"), "text/plain", "a.txt")
	assert.Equal(t, "ab", got)
}

func TestParse_Markdown(t *testing.T) {
	src := "# Title\n\nSome *bold* text\nsecond line.\n\n- item one\n- item two\n\n```\ncode here\n```\n"
	got := NewDocumentParser(nil).Parse(context.Background(), []byte(src), "text/markdown", "a.md")
	assert.Contains(t, got, "Title\n\nSome bold text")
	assert.Contains(t, got, "second line.")
	assert.Contains(t, got, "item one")
	assert.Contains(t, got, "code here")
	assert.NotContains(t, got, "#")
	assert.NotContains(t, got, "*")
	assert.NotContains(t, got, "```")
}

func TestParse_HTML(t *testing.T) {
	src := `<html><head><title>T</title><style>p{color:red}</style></head>
<body><h1>Heading</h1><p>Hello <b>world</b>.</p><script>alert(1)</script>
<ul><li>One</li><li>Two</li></ul></body></html>`
	got := NewDocumentParser(nil).Parse(context.Background(), []byte(src), "text/html", "a.html")
	assert.Equal(t, "Heading\n\nHello world.\n\nOne\n\nTwo", got)
}

func TestParse_MalformedPDFFallsBack(t *testing.T) {
	got := NewDocumentParser(nil).Parse(context.Background(), []byte("definitely not a pdf"), "application/pdf", "x.pdf")
	assert.Equal(t, "definitely not a pdf", got)
}

func TestParse_MalformedDOCXFallsBack(t *testing.T) {
	got := NewDocumentParser(nil).Parse(context.Background(), []byte("plain bytes"), docxContentType, "x.docx")
	assert.Equal(t, "plain bytes", got)
}

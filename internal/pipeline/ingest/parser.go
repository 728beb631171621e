// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ingest

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fumiama/go-docx"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/net/html"
	"golang.org/x/text/encoding/charmap"

	"rag-indexer/pkg/log"
)

// Parser 文档解析：任何输入都返回尽力解码出的文本，不返回错误
type Parser interface {
	Parse(ctx context.Context, content []byte, contentType, filename string) string
}

// DocumentParser 按格式分派的解析器；格式解析失败时退化为原始文本解码
type DocumentParser struct {
	logger *log.Logger
}

// NewDocumentParser 创建文档解析器
func NewDocumentParser(logger *log.Logger) *DocumentParser {
	if logger == nil {
		logger = log.Nop()
	}
	return &DocumentParser{logger: logger}
}

// Parse 解析文档内容为纯文本
func (p *DocumentParser) Parse(ctx context.Context, content []byte, contentType, filename string) (out string) {
	format := DetectFormat(contentType, filename)
	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, "parser panic, falling back to raw decode",
				"filename", filename, "format", string(format), "panic", fmt.Sprint(r))
			out = decodeText(content)
		}
		out = strings.ReplaceAll(out, "\x00", "")
	}()

	var (
		result string
		err    error
	)
	switch format {
	case FormatPDF:
		result, err = ExtractPDFText(content)
	case FormatMarkdown:
		result = markdownText(content)
	case FormatHTML:
		result, err = htmlText(content)
	case FormatDOCX:
		result, err = docxText(content)
	default:
		result = decodeText(content)
	}
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to parse document, falling back to raw decode",
			"filename", filename, "format", string(format), "error", err)
		return decodeText(content)
	}

	p.logger.InfoContext(ctx, "parsed document",
		"filename", filename, "format", string(format), "chars", utf8.RuneCountInString(result))
	return result
}

// decodeText 优先按 UTF-8 解码，非法时按 latin-1
func decodeText(content []byte) string {
	if utf8.Valid(content) {
		return string(content)
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(content)
	if err != nil {
		return strings.ToValidUTF8(string(content), "")
	}
	return string(decoded)
}

// markdownText 去掉 Markdown 标记，块之间以空行分隔
func markdownText(src []byte) string {
	src = []byte(decodeText(src))
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var blocks []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			blocks = append(blocks, s)
		}
	}
	var walk func(n ast.Node)
	walk = func(n ast.Node) {
		switch n.Kind() {
		case ast.KindFencedCodeBlock, ast.KindCodeBlock, ast.KindHTMLBlock:
			var buf bytes.Buffer
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				buf.Write(seg.Value(src))
			}
			add(buf.String())
			return
		case ast.KindParagraph, ast.KindHeading, ast.KindTextBlock:
			add(inlineText(n, src))
			return
		}
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			walk(c)
		}
	}
	walk(doc)
	return strings.Join(blocks, "\n\n")
}

func inlineText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	var walk func(n ast.Node)
	walk = func(n ast.Node) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch node := c.(type) {
			case *ast.Text:
				buf.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					buf.WriteByte('\n')
				}
			case *ast.String:
				buf.Write(node.Value)
			case *ast.AutoLink:
				buf.Write(node.Label(src))
			default:
				walk(c)
			}
		}
	}
	walk(n)
	return buf.String()
}

// htmlSkipTags 不含正文的元素
var htmlSkipTags = map[string]bool{
	"head": true, "script": true, "style": true, "noscript": true, "template": true,
}

// htmlBlockTags 块级元素，前后断段
var htmlBlockTags = map[string]bool{
	"p": true, "div": true, "li": true, "td": true, "th": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "pre": true, "section": true, "article": true,
	"ul": true, "ol": true, "table": true, "br": true, "hr": true,
}

// htmlText 提取可见文本，块级元素之间以空行分隔
func htmlText(content []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader([]byte(decodeText(content))))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var (
		blocks []string
		cur    strings.Builder
	)
	flush := func() {
		if s := strings.Join(strings.Fields(cur.String()), " "); s != "" {
			blocks = append(blocks, s)
		}
		cur.Reset()
	}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			cur.WriteString(n.Data)
			return
		case html.ElementNode:
			if htmlSkipTags[n.Data] {
				return
			}
		}
		block := n.Type == html.ElementNode && htmlBlockTags[n.Data]
		if block {
			flush()
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			flush()
		}
	}
	walk(doc)
	flush()
	return strings.Join(blocks, "\n\n"), nil
}

// docxText 按段落提取 DOCX 正文
func docxText(content []byte) (string, error) {
	doc, err := docx.Parse(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("parse docx: %w", err)
	}
	var paras []string
	for _, item := range doc.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		var buf strings.Builder
		for _, child := range para.Children {
			run, ok := child.(*docx.Run)
			if !ok {
				continue
			}
			for _, rc := range run.Children {
				if t, ok := rc.(*docx.Text); ok {
					buf.WriteString(t.Text)
				}
			}
		}
		if s := strings.TrimSpace(buf.String()); s != "" {
			paras = append(paras, s)
		}
	}
	return strings.Join(paras, "\n\n"), nil
}

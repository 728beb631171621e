package ingest

import (
	"bytes"
	"fmt"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
)

// ExtractPDFText 提取 PDF 正文，按页以空行拼接；unipdf 失败或无文本时改用 ledongthuc/pdf
func ExtractPDFText(data []byte) (string, error) {
	text, err := extractWithUnipdf(data)
	if err == nil && strings.TrimSpace(text) != "" {
		return text, nil
	}
	fallback, ferr := extractWithLedongthuc(data)
	if ferr != nil {
		if err != nil {
			return "", fmt.Errorf("unipdf: %v; pdf: %w", err, ferr)
		}
		return "", ferr
	}
	return fallback, nil
}

func extractWithUnipdf(data []byte) (text string, err error) {
	if len(data) == 0 {
		return "", nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unipdf panic: %v", r)
		}
	}()

	reader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("打开 PDF 失败: %w", err)
	}
	numPages, err := reader.GetNumPages()
	if err != nil {
		return "", fmt.Errorf("获取页数失败: %w", err)
	}

	var pages []string
	for i := 1; i <= numPages; i++ {
		page, err := reader.GetPage(i)
		if err != nil {
			return "", fmt.Errorf("获取第 %d 页失败: %w", i, err)
		}
		ex, err := extractor.New(page)
		if err != nil {
			return "", fmt.Errorf("创建第 %d 页提取器失败: %w", i, err)
		}
		t, err := ex.ExtractText()
		if err != nil {
			return "", fmt.Errorf("提取第 %d 页文本失败: %w", i, err)
		}
		if t = strings.TrimSpace(t); t != "" {
			pages = append(pages, t)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

func extractWithLedongthuc(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf panic: %v", r)
		}
	}()

	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("打开 PDF 失败: %w", err)
	}
	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		t, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if t = strings.TrimSpace(t); t != "" {
			pages = append(pages, t)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

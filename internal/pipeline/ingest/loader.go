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
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	apperrors "rag-indexer/pkg/errors"
)

// Format 解析器选择的文档格式
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
	FormatDOCX     Format = "docx"
	// FormatAuto 需要按扩展名判断
	FormatAuto Format = "auto"
)

const docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

var contentTypeFormats = map[string]Format{
	"text/plain":               FormatText,
	"text/markdown":            FormatMarkdown,
	"text/x-markdown":          FormatMarkdown,
	"text/html":                FormatHTML,
	"application/pdf":          FormatPDF,
	docxContentType:            FormatDOCX,
	"application/octet-stream": FormatAuto,
}

var extensionFormats = map[string]Format{
	".txt":      FormatText,
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".html":     FormatHTML,
	".htm":      FormatHTML,
	".pdf":      FormatPDF,
	".docx":     FormatDOCX,
}

// normalizeContentType 去掉参数部分（如 charset）并转小写
func normalizeContentType(contentType string) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// DetectFormat 先按 content type，再按扩展名判断格式；都无法判断时为 FormatText
func DetectFormat(contentType, filename string) Format {
	f, ok := contentTypeFormats[normalizeContentType(contentType)]
	if ok && f != FormatAuto {
		return f
	}
	if f, ok := extensionFormats[strings.ToLower(filepath.Ext(filename))]; ok {
		return f
	}
	return FormatText
}

// UploadPolicy 上传校验规则
type UploadPolicy struct {
	MaxSize int64
	// AnyType 跳过类型校验，无法识别的格式按文本解析
	AnyType bool
}

// Validate 校验上传文件：非空、大小上限、类型（content type 或扩展名其一受支持即可）
func (p UploadPolicy) Validate(filename, contentType string, size int64) error {
	if strings.TrimSpace(filename) == "" {
		return apperrors.Validation("Filename is required")
	}
	if size == 0 {
		return apperrors.Validation("Empty file")
	}
	if p.MaxSize > 0 && size > p.MaxSize {
		return apperrors.Validation(
			fmt.Sprintf("File too large. Maximum size is %dMB", p.MaxSize/(1024*1024)),
			map[string]any{"max_bytes": p.MaxSize, "size": size},
		)
	}
	if p.AnyType {
		return nil
	}
	if _, ok := contentTypeFormats[normalizeContentType(contentType)]; ok {
		return nil
	}
	if _, ok := extensionFormats[strings.ToLower(filepath.Ext(filename))]; ok {
		return nil
	}
	return apperrors.Validation(
		fmt.Sprintf("Unsupported file type: %s. Supported: .txt, .md, .pdf, .html, .docx", contentType),
	)
}

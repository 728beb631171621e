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

package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind 应用错误分类，HTTP 层据此映射状态码
type Kind string

const (
	KindUnknown         Kind = ""
	KindValidation      Kind = "validation"
	KindNotFound        Kind = "not_found"
	KindSecurity        Kind = "security"
	KindRateLimit       Kind = "rate_limit"
	KindExternalService Kind = "external_service"
	KindConflict        Kind = "conflict"
)

// AppError 带分类的应用错误；Details 原样输出到响应体
type AppError struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *AppError) Error() string {
	if e.Message == "" && e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// Validation 输入不合法（400）
func Validation(msg string, details ...map[string]any) *AppError {
	return &AppError{Kind: KindValidation, Message: msg, Details: first(details), Err: ErrInvalidArg}
}

// NotFound 引用的实体不存在（404）
func NotFound(resource, id string) *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]any{"resource": resource, "id": id},
		Err:     ErrNotFound,
	}
}

// Security 跨 owner 访问（403）
func Security(msg string) *AppError {
	return &AppError{Kind: KindSecurity, Message: msg}
}

// RateLimit 超出配额（429），retry_after 为窗口秒数
func RateLimit(window time.Duration) *AppError {
	secs := int(window.Seconds())
	return &AppError{
		Kind:    KindRateLimit,
		Message: fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", secs),
		Details: map[string]any{"retry_after": secs},
	}
}

// External 外部服务（embedding / 向量索引 / LLM）失败（502）
func External(service string, err error) *AppError {
	msg := "unknown"
	if err != nil {
		msg = err.Error()
	}
	return &AppError{
		Kind:    KindExternalService,
		Message: fmt.Sprintf("%s error: %s", service, msg),
		Details: map[string]any{"service": service},
		Err:     err,
	}
}

// Conflict 资源被占用（409），如文档正在被另一条管线索引
func Conflict(msg string) *AppError {
	return &AppError{Kind: KindConflict, Message: msg, Err: ErrConflict}
}

// KindOf 返回错误链上第一个 AppError 的分类；裸 ErrNotFound 视为 not_found
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidArg):
		return KindValidation
	case errors.Is(err, ErrConflict):
		return KindConflict
	}
	return KindUnknown
}

// MessageOf 返回面向用户的错误消息
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Message
	}
	return err.Error()
}

// DetailsOf 返回 AppError 的 Details，无则 nil
func DetailsOf(err error) map[string]any {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Details
	}
	return nil
}

// HTTPStatus 分类到 HTTP 状态码
func HTTPStatus(k Kind) int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindSecurity:
		return http.StatusForbidden
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindExternalService:
		return http.StatusBadGateway
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func first(ds []map[string]any) map[string]any {
	if len(ds) == 0 {
		return nil
	}
	return ds[0]
}

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

package llm

import (
	"context"
	"errors"

	apperrors "rag-indexer/pkg/errors"
)

// ServiceName 外部服务错误中的服务名
const ServiceName = "llm"

// Generator 补全接口：系统指令 + 用户 prompt，返回文本与 token 用量
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (*Completion, error)
	// Model 返回模型名称
	Model() string
}

// Completion 补全结果
type Completion struct {
	Text             string `json:"text"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// Unavailable 未配置 LLM 时的占位实现，每次调用都返回 external_service 错误
func Unavailable(model string) Generator {
	return unavailable{model: model}
}

type unavailable struct{ model string }

func (u unavailable) Generate(ctx context.Context, system, prompt string) (*Completion, error) {
	return nil, apperrors.External(ServiceName, errors.New("api key not configured"))
}

func (u unavailable) Model() string { return u.model }

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
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"rag-indexer/pkg/config"
	apperrors "rag-indexer/pkg/errors"
	"rag-indexer/pkg/metrics"
)

// ChatGenerator 基于 eino ChatModel 的补全实现
type ChatGenerator struct {
	chat      model.BaseChatModel
	modelName string
}

// NewChatGenerator 包装任意 eino ChatModel
func NewChatGenerator(chat model.BaseChatModel, modelName string) *ChatGenerator {
	return &ChatGenerator{chat: chat, modelName: modelName}
}

// NewOpenAIGenerator 创建 OpenAI 兼容的补全客户端
func NewOpenAIGenerator(ctx context.Context, cfg config.LLMConfig) (*ChatGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm api key 未配置")
	}
	chatCfg := &openai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: 60 * time.Second,
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		chatCfg.MaxTokens = &maxTokens
	}
	temperature := cfg.Temperature
	chatCfg.Temperature = &temperature

	chat, err := openai.NewChatModel(ctx, chatCfg)
	if err != nil {
		return nil, fmt.Errorf("创建 ChatModel 失败: %w", err)
	}
	return NewChatGenerator(chat, cfg.Model), nil
}

// Generate 调用补全并记录 token 用量
func (g *ChatGenerator) Generate(ctx context.Context, system, prompt string) (*Completion, error) {
	var messages []*schema.Message
	if system != "" {
		messages = append(messages, schema.SystemMessage(system))
	}
	messages = append(messages, schema.UserMessage(prompt))

	msg, err := g.chat.Generate(ctx, messages)
	if err != nil {
		return nil, apperrors.External(ServiceName, err)
	}
	if msg == nil {
		return nil, apperrors.External(ServiceName, fmt.Errorf("empty response"))
	}

	out := &Completion{Text: msg.Content}
	if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
		u := msg.ResponseMeta.Usage
		out.PromptTokens = u.PromptTokens
		out.CompletionTokens = u.CompletionTokens
		out.TotalTokens = u.TotalTokens
	}
	metrics.LLMTokensTotal.WithLabelValues("prompt").Add(float64(out.PromptTokens))
	metrics.LLMTokensTotal.WithLabelValues("completion").Add(float64(out.CompletionTokens))
	return out, nil
}

// Model 返回模型名称
func (g *ChatGenerator) Model() string { return g.modelName }

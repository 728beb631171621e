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

package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	apperrors "rag-indexer/pkg/errors"
)

// ServiceName 错误与日志中使用的服务名
const ServiceName = "embedding"

// OpenAIConfig OpenAI 兼容 embeddings 接口配置
type OpenAIConfig struct {
	BaseURL           string
	APIKey            string
	Model             string
	Dimension         int
	Timeout           time.Duration
	RequestsPerMinute float64 // <=0 不限速
}

// OpenAIClient 调用 POST {base}/embeddings；不做自动重试，任何失败直接返回
type OpenAIClient struct {
	model     string
	dimension int
	apiKey    string
	baseURL   string
	client    *resty.Client
	limiter   *rate.Limiter
}

// NewOpenAIClient 创建 OpenAI 兼容 embedding 客户端
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 1024
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(0)

	c := &OpenAIClient{
		model:     cfg.Model,
		dimension: cfg.Dimension,
		apiKey:    cfg.APIKey,
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		client:    client,
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60.0), 1)
	}
	return c
}

// Model 返回模型名称
func (c *OpenAIClient) Model() string { return c.model }

// Dimension 返回向量维度
func (c *OpenAIClient) Dimension() int { return c.dimension }

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// EmbedBatch 对一批文本向量化；响应按 index 还原顺序
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}
	if c.apiKey == "" {
		return nil, apperrors.External(ServiceName, fmt.Errorf("api key not configured"))
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, apperrors.External(ServiceName, err)
		}
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+c.apiKey).
		SetBody(embeddingRequest{Model: c.model, Input: texts, Dimensions: c.dimension}).
		Post(c.baseURL + "/embeddings")
	if err != nil {
		return nil, apperrors.External(ServiceName, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, apperrors.External(ServiceName, fmt.Errorf("status %d: %s", resp.StatusCode(), truncateBody(resp.String())))
	}

	var result embeddingResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, apperrors.External(ServiceName, fmt.Errorf("decode response: %w", err))
	}
	if len(result.Data) != len(texts) {
		return nil, apperrors.External(ServiceName, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(result.Data)))
	}

	sort.SliceStable(result.Data, func(i, j int) bool { return result.Data[i].Index < result.Data[j].Index })
	out := make([][]float64, len(result.Data))
	for i, d := range result.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

func truncateBody(s string) string {
	const max = 512
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

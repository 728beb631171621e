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

package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"rag-indexer/pkg/secrets"
)

// Config 应用配置结构体
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Model      ModelConfig      `mapstructure:"model"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Chunking   ChunkingConfig   `mapstructure:"chunking"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Search     SearchConfig     `mapstructure:"search"`
	Samples    SamplesConfig    `mapstructure:"samples"`
	Secrets    secrets.Config   `mapstructure:"secrets"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// APIConfig API 服务配置
type APIConfig struct {
	Port           int           `mapstructure:"port"`
	Host           string        `mapstructure:"host"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxUploadMB    int           `mapstructure:"max_upload_mb"`
	MaxSampleMB    int           `mapstructure:"max_sample_mb"`
	Admin          AdminConfig   `mapstructure:"admin"`
	ShutdownPeriod time.Duration `mapstructure:"shutdown_period"`
}

// AdminConfig /admin 路由组鉴权；JWTKey 为空时不启用
type AdminConfig struct {
	Username   string        `mapstructure:"username"`
	Password   string        `mapstructure:"password"`
	JWTKey     string        `mapstructure:"jwt_key"`
	JWTTimeout time.Duration `mapstructure:"jwt_timeout"`
}

// ModelConfig 模型配置
type ModelConfig struct {
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	LLM       LLMConfig       `mapstructure:"llm"`
}

// EmbeddingConfig Embedding 提供商与批处理配置
type EmbeddingConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	Dimension         int           `mapstructure:"dimension"`
	BatchSize         int           `mapstructure:"batch_size"`
	MaxChars          int           `mapstructure:"max_chars"`
	Concurrency       int           `mapstructure:"concurrency"`
	RequestsPerMinute float64       `mapstructure:"requests_per_minute"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// LLMConfig 生成（ask）模型配置
type LLMConfig struct {
	BaseURL      string  `mapstructure:"base_url"`
	APIKey       string  `mapstructure:"api_key"`
	Model        string  `mapstructure:"model"`
	MaxTokens    int     `mapstructure:"max_tokens"`
	Temperature  float32 `mapstructure:"temperature"`
	SystemPrompt string  `mapstructure:"system_prompt"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	Metadata MetadataConfig `mapstructure:"metadata"`
	Vector   VectorConfig   `mapstructure:"vector"`
	Object   ObjectConfig   `mapstructure:"object"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Lock     LockConfig     `mapstructure:"lock"`
}

// MetadataConfig 元数据（catalog）存储配置
type MetadataConfig struct {
	Type     string `mapstructure:"type"` // memory | postgres
	DSN      string `mapstructure:"dsn"`
	PoolSize int    `mapstructure:"pool_size"`
}

// VectorConfig 向量存储配置
type VectorConfig struct {
	Type       string `mapstructure:"type"` // memory | hnsw | redis
	Addr       string `mapstructure:"addr"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	Collection string `mapstructure:"collection"`
	Metric     string `mapstructure:"metric"` // cosine | euclidean
}

// ObjectConfig 对象存储配置
type ObjectConfig struct {
	Type string `mapstructure:"type"` // memory | local
	Root string `mapstructure:"root"`
}

// CacheConfig 查询向量缓存配置
type CacheConfig struct {
	Type     string        `mapstructure:"type"` // memory | redis
	Addr     string        `mapstructure:"addr"`
	DB       int           `mapstructure:"db"`
	Password string        `mapstructure:"password"`
	Size     int           `mapstructure:"size"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// LockConfig 单文档索引租约配置
type LockConfig struct {
	Type     string        `mapstructure:"type"` // memory | redis
	Addr     string        `mapstructure:"addr"`
	DB       int           `mapstructure:"db"`
	Password string        `mapstructure:"password"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// ChunkingConfig 分块参数（字节）
type ChunkingConfig struct {
	MaxSize int `mapstructure:"max_size"`
	Overlap int `mapstructure:"overlap"`
}

// RateLimitConfig 滑动窗口限流配置
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
	Backend  string        `mapstructure:"backend"` // memory | redis
	Addr     string        `mapstructure:"addr"`
	DB       int           `mapstructure:"db"`
	Password string        `mapstructure:"password"`
}

// SearchConfig 检索与问答默认参数
type SearchConfig struct {
	TopK           int     `mapstructure:"top_k"`
	ScoreThreshold float64 `mapstructure:"score_threshold"`
	AskTopK        int     `mapstructure:"ask_top_k"`
}

// SamplesConfig 示例文档配置
type SamplesConfig struct {
	SeedOnStart bool `mapstructure:"seed_on_start"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.timeout", "120s")
	v.SetDefault("api.max_upload_mb", 10)
	v.SetDefault("api.max_sample_mb", 50)
	v.SetDefault("api.admin.username", "admin")
	v.SetDefault("api.admin.jwt_timeout", "1h")
	v.SetDefault("api.shutdown_period", "30s")

	v.SetDefault("model.embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("model.embedding.api_key", "${OPENAI_API_KEY}")
	v.SetDefault("model.embedding.model", "text-embedding-3-small")
	v.SetDefault("model.embedding.dimension", 1024)
	v.SetDefault("model.embedding.batch_size", 50)
	v.SetDefault("model.embedding.max_chars", 20000)
	v.SetDefault("model.embedding.concurrency", 1)
	v.SetDefault("model.embedding.timeout", "60s")

	v.SetDefault("model.llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("model.llm.api_key", "${OPENAI_API_KEY}")
	v.SetDefault("model.llm.model", "gpt-4o-mini")
	v.SetDefault("model.llm.max_tokens", 1024)
	v.SetDefault("model.llm.temperature", 0.3)

	v.SetDefault("storage.metadata.type", "memory")
	v.SetDefault("storage.metadata.pool_size", 10)
	v.SetDefault("storage.vector.type", "memory")
	v.SetDefault("storage.vector.collection", "rag-documents")
	v.SetDefault("storage.vector.metric", "cosine")
	v.SetDefault("storage.object.type", "local")
	v.SetDefault("storage.object.root", "./storage")
	v.SetDefault("storage.cache.type", "memory")
	v.SetDefault("storage.cache.size", 1000)
	v.SetDefault("storage.cache.ttl", "10m")
	v.SetDefault("storage.lock.type", "memory")
	v.SetDefault("storage.lock.ttl", "10m")

	v.SetDefault("chunking.max_size", 2000)
	v.SetDefault("chunking.overlap", 0)

	v.SetDefault("rate_limit.requests", 100)
	v.SetDefault("rate_limit.window", "60s")
	v.SetDefault("rate_limit.backend", "memory")

	v.SetDefault("search.top_k", 10)
	v.SetDefault("search.score_threshold", 0.35)
	v.SetDefault("search.ask_top_k", 5)

	v.SetDefault("samples.seed_on_start", true)
	v.SetDefault("secrets.provider", "env")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("monitoring.prometheus.enable", true)
	v.SetDefault("monitoring.tracing.service_name", "rag-indexer")
}

// LoadConfig 加载配置文件；configPath 为空时仅使用默认值与环境变量
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("无法读取配置文件: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	replaceEnvVars(&config)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// replaceEnvVars 展开 API Key 中的 ${VAR}
func replaceEnvVars(config *Config) {
	config.Model.Embedding.APIKey = expandEnv(config.Model.Embedding.APIKey)
	config.Model.LLM.APIKey = expandEnv(config.Model.LLM.APIKey)
	config.Storage.Metadata.DSN = expandEnv(config.Storage.Metadata.DSN)
	config.API.Admin.JWTKey = expandEnv(config.API.Admin.JWTKey)
	config.API.Admin.Password = expandEnv(config.API.Admin.Password)
}

func expandEnv(s string) string {
	if !strings.HasPrefix(s, "${") || !strings.HasSuffix(s, "}") {
		return s
	}
	return os.Getenv(strings.TrimSuffix(strings.TrimPrefix(s, "${"), "}"))
}

// ResolveSecrets 将 secret: 引用替换为 secret store 中的值
func (c *Config) ResolveSecrets(ctx context.Context, store secrets.Store) error {
	fields := []*string{
		&c.Model.Embedding.APIKey,
		&c.Model.LLM.APIKey,
		&c.Storage.Metadata.DSN,
		&c.API.Admin.JWTKey,
		&c.API.Admin.Password,
	}
	for _, f := range fields {
		v, err := secrets.Resolve(ctx, store, *f)
		if err != nil {
			return err
		}
		*f = v
	}
	return nil
}

// Validate 校验分块与限流参数
func (c *Config) Validate() error {
	if c.Chunking.MaxSize <= 0 {
		return fmt.Errorf("chunking.max_size 必须大于 0")
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.MaxSize {
		return fmt.Errorf("chunking.overlap 必须在 [0, max_size) 内")
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.requests 与 rate_limit.window 必须大于 0")
	}
	if c.Model.Embedding.BatchSize <= 0 {
		return fmt.Errorf("model.embedding.batch_size 必须大于 0")
	}
	return nil
}

// LoadAPIConfig 加载 API 配置（configs/api.yaml，不存在时退回默认值）
func LoadAPIConfig() (*Config, error) {
	path := "configs/api.yaml"
	if p := os.Getenv("RAG_CONFIG"); p != "" {
		path = p
	}
	if _, err := os.Stat(path); err != nil {
		return LoadConfig("")
	}
	return LoadConfig(path)
}

// Copyright 2026 fanjia1024
// Secret resolution for provider credentials

package secrets

import (
	"context"
	"fmt"
	"strings"
)

// RefPrefix 配置值以此前缀开头时视为 secret 引用，如 "secret:openai_api_key"
const RefPrefix = "secret:"

// Store 只读 Secret 存储接口
type Store interface {
	// Get 获取 secret 值，不存在时返回错误
	Get(ctx context.Context, key string) (string, error)
}

// Config Secret Store 配置
type Config struct {
	Provider   string `mapstructure:"provider"` // env | memory | vault
	Address    string `mapstructure:"address"`
	Token      string `mapstructure:"token"`
	PathPrefix string `mapstructure:"path_prefix"`
}

// NewStore 创建 Secret Store；Provider 为空时使用 env
func NewStore(config Config) (Store, error) {
	switch config.Provider {
	case "", "env":
		return NewEnvStore(), nil
	case "memory":
		return NewMemoryStore(nil), nil
	case "vault":
		return NewVaultStore(VaultConfig{
			Address:    config.Address,
			Token:      config.Token,
			PathPrefix: config.PathPrefix,
		})
	default:
		return nil, fmt.Errorf("unsupported secret provider: %s", config.Provider)
	}
}

// Resolve 若 value 为 secret 引用则从 store 读取，否则原样返回
func Resolve(ctx context.Context, store Store, value string) (string, error) {
	if !strings.HasPrefix(value, RefPrefix) {
		return value, nil
	}
	if store == nil {
		return "", fmt.Errorf("secret reference %q without secret store", value)
	}
	key := strings.TrimPrefix(value, RefPrefix)
	v, err := store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("resolve secret %q: %w", key, err)
	}
	return v, nil
}

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

// Package redisconn 统一构造向量、缓存、租约、限流各后端使用的 redis 客户端
package redisconn

import (
	"github.com/redis/go-redis/v9"
)

// DefaultAddr 未配置地址时使用
const DefaultAddr = "localhost:6379"

// Options 由地址、密码、DB 构造 redis.Options
func Options(addr, password string, db int) *redis.Options {
	if addr == "" {
		addr = DefaultAddr
	}
	if db < 0 {
		db = 0
	}
	// Redis Stack 的 FT.* 命令按 RESP2 解析回复
	return &redis.Options{
		Addr:          addr,
		Password:      password,
		DB:            db,
		Protocol:      2,
		UnstableResp3: true,
	}
}

// NewClient 创建 redis 客户端
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(Options(addr, password, db))
}

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

// Package lock 提供带过期时间的互斥租约，用于保证同一文档同时只有一个索引流程
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"rag-indexer/internal/storage/redisconn"
	"rag-indexer/pkg/config"
)

// ErrHeld 租约已被其他持有者占用
var ErrHeld = errors.New("lease is held by another owner")

// DefaultTTL 未配置时的租约时长
const DefaultTTL = 10 * time.Minute

// Lease 已获得的租约
type Lease interface {
	Key() string
	// Release 释放租约；仅当仍由自己持有时生效
	Release(ctx context.Context) error
}

// Locker 租约管理
type Locker interface {
	// Acquire 获取 key 的租约，已被占用时返回 ErrHeld
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// NewLocker 根据配置创建：memory | redis
func NewLocker(cfg config.LockConfig) (Locker, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryLocker(), nil
	case "redis":
		return NewRedisLocker(redisconn.NewClient(cfg.Addr, cfg.Password, cfg.DB)), nil
	default:
		return nil, fmt.Errorf("不支持的租约类型: %s", cfg.Type)
	}
}

// MemoryLocker 进程内租约
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]memoryEntry
	now    func() time.Time
}

type memoryEntry struct {
	token     string
	expiresAt time.Time
}

// NewMemoryLocker 创建进程内租约管理
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{leases: make(map[string]memoryEntry), now: time.Now}
}

// Acquire 获取租约；过期的租约视为空闲
func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, ok := l.leases[key]; ok && now.Before(e.expiresAt) {
		return nil, fmt.Errorf("%s: %w", key, ErrHeld)
	}
	token := uuid.NewString()
	l.leases[key] = memoryEntry{token: token, expiresAt: now.Add(ttl)}
	return &memoryLease{locker: l, key: key, token: token}, nil
}

type memoryLease struct {
	locker *MemoryLocker
	key    string
	token  string
}

func (m *memoryLease) Key() string { return m.key }

func (m *memoryLease) Release(ctx context.Context) error {
	m.locker.mu.Lock()
	defer m.locker.mu.Unlock()
	if e, ok := m.locker.leases[m.key]; ok && e.token == m.token {
		delete(m.locker.leases, m.key)
	}
	return nil
}

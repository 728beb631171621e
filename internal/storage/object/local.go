package object

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	apperrors "rag-indexer/pkg/errors"
)

// LocalStore 本地磁盘对象存储，key 映射为 root 下的相对路径
type LocalStore struct {
	root string
}

// NewLocalStore 创建本地对象存储，root 不存在时创建
func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		root = "./storage"
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("解析存储目录失败: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}
	return &LocalStore{root: abs}, nil
}

// path 将 key 映射为 root 内的文件路径，拒绝越出 root 的 key
func (s *LocalStore) path(key string) (string, error) {
	p := filepath.Join(s.root, filepath.FromSlash(key))
	if p != s.root && !strings.HasPrefix(p, s.root+string(os.PathSeparator)) {
		return "", apperrors.Validation("invalid object key: " + key)
	}
	return p, nil
}

// Upload 写入文件（先写临时文件再 rename）
func (s *LocalStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	p, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("创建目录失败: %w", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("写入对象失败: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("写入对象失败: %w", err)
	}
	return "file://" + p, nil
}

// Download 读取文件
func (s *LocalStore) Download(ctx context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("object %s: %w", key, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("读取对象失败: %w", err)
	}
	return data, nil
}

// Delete 删除文件
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("object %s: %w", key, apperrors.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("删除对象失败: %w", err)
	}
	// 清理空的父目录（documents/<uuid>/）
	_ = os.Remove(filepath.Dir(p))
	return nil
}

// Exists 检查文件是否存在
func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// Close 无需释放资源
func (s *LocalStore) Close() error { return nil }

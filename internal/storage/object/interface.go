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

package object

import (
	"context"
)

// Store 对象存储接口：原始上传文件按 key 存取。
// key 不存在时 Download 返回包装了 errors.ErrNotFound 的错误。
type Store interface {
	// Upload 写入对象，返回存储定位符
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Download 读取对象
	Download(ctx context.Context, key string) ([]byte, error)
	// Delete 删除对象
	Delete(ctx context.Context, key string) error
	// Exists 检查对象是否存在
	Exists(ctx context.Context, key string) (bool, error)
	// Close 关闭存储连接
	Close() error
}

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
	"io"
)

// Store 上传内容暂存：multipart 提交的文件写入这里，job payload 只携带 URI
type Store interface {
	// Put 写入对象，已存在时覆盖
	Put(ctx context.Context, key string, data io.Reader, size int64, metadata map[string]string) error
	// Get 读取对象；不存在时返回 errors.ErrNotFound
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete 删除对象；不存在时返回 errors.ErrNotFound
	Delete(ctx context.Context, key string) error
	// List 列出前缀下的对象，按 key 排序
	List(ctx context.Context, prefix string) ([]*ObjectInfo, error)
	// URI 执行器可解析的对象地址
	URI(key string) string
	// Close 释放资源
	Close() error
}

// ObjectInfo 对象信息
type ObjectInfo struct {
	Key       string            `json:"key"`
	Size      int64             `json:"size"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt int64             `json:"created_at"`
}

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
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"ingest-scheduler/pkg/errors"
)

const metaSuffix = ".meta.json"

// FileStore 目录暂存：对象写为 dir/key，元数据写为同名 .meta.json；与执行器共享目录时按 file:// URI 读取
type FileStore struct {
	dir string
}

// NewFileStore 创建目录暂存，目录不存在时创建
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage.object.dir 不能为空")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	return &FileStore{dir: abs}, nil
}

// path 将 key 映射到目录内路径，拒绝越出目录的 key
func (s *FileStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" || strings.HasSuffix(clean, metaSuffix) {
		return "", errors.Wrapf(errors.ErrInvalidArg, "invalid object key %q", key)
	}
	return filepath.Join(s.dir, filepath.FromSlash(clean)), nil
}

// Put 实现 Store；先写临时文件再 rename
func (s *FileStore) Put(ctx context.Context, key string, data io.Reader, size int64, metadata map[string]string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write object data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if len(metadata) > 0 {
		meta, err := json.Marshal(metadata)
		if err != nil {
			return err
		}
		if err := os.WriteFile(p+metaSuffix, meta, 0o640); err != nil {
			return err
		}
	}
	return os.Rename(tmp.Name(), p)
}

// Get 实现 Store
func (s *FileStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(errors.ErrNotFound, "object %s", key)
	}
	return f, err
}

// Delete 实现 Store
func (s *FileStore) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(errors.ErrNotFound, "object %s", key)
		}
		return err
	}
	_ = os.Remove(p + metaSuffix)
	return nil
}

// List 实现 Store
func (s *FileStore) List(ctx context.Context, prefix string) ([]*ObjectInfo, error) {
	var results []*ObjectInfo
	err := filepath.WalkDir(s.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, metaSuffix) || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(s.dir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		obj := &ObjectInfo{Key: key, Size: info.Size(), CreatedAt: info.ModTime().Unix()}
		if meta, err := os.ReadFile(p + metaSuffix); err == nil {
			_ = json.Unmarshal(meta, &obj.Metadata)
		}
		results = append(results, obj)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Key < results[j].Key })
	return results, nil
}

// URI 实现 Store
func (s *FileStore) URI(key string) string {
	p, err := s.path(key)
	if err != nil {
		return ""
	}
	return "file://" + filepath.ToSlash(p)
}

// Close 实现 Store
func (s *FileStore) Close() error { return nil }

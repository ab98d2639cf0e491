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

package secrets

import (
	"context"
	"fmt"
	"strings"
)

// RefPrefix 配置值中引用 secret 的前缀，如 secret://jobtrack/dsn
const RefPrefix = "secret://"

// Store secret 读取接口；调度器只在启动时解析连接串与密码
type Store interface {
	// Get 获取 secret 值
	Get(ctx context.Context, key string) (string, error)

	// Set 设置 secret 值
	Set(ctx context.Context, key string, value string) error

	// Delete 删除 secret
	Delete(ctx context.Context, key string) error

	// List 列出所有 secret keys
	List(ctx context.Context, prefix string) ([]string, error)
}

// Config Secret Store 配置
type Config struct {
	Provider string      // env | memory | file | vault
	Dir      string      // provider=file 时的挂载目录，默认 /run/secrets
	Vault    VaultConfig // provider=vault 时使用
}

// NewStore 创建 Secret Store；provider 为空时使用环境变量
func NewStore(config Config) (Store, error) {
	switch config.Provider {
	case "", "env":
		return NewEnvStore(), nil
	case "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(config.Dir), nil
	case "vault":
		return NewVaultStore(config.Vault)
	default:
		return nil, fmt.Errorf("unsupported secret provider: %s", config.Provider)
	}
}

// Resolve 解析 secret://key 引用；非引用值原样返回
func Resolve(ctx context.Context, store Store, ref string) (string, error) {
	if !strings.HasPrefix(ref, RefPrefix) {
		return ref, nil
	}
	key := strings.TrimPrefix(ref, RefPrefix)
	if key == "" {
		return "", fmt.Errorf("empty secret reference")
	}
	val, err := store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", ref, err)
	}
	return strings.TrimSpace(val), nil
}

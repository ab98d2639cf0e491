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
	"path"
	"strings"

	vault "github.com/hashicorp/vault/api"
)

// VaultConfig Vault 配置（KV v2 引擎）
type VaultConfig struct {
	Address    string // Vault server address，如 http://vault:8200
	Token      string // Vault token；为空时沿用 VAULT_TOKEN
	Mount      string // KV v2 挂载点，默认 secret
	PathPrefix string // 所有 key 的公共前缀，如 ingest-scheduler
}

type vaultStore struct {
	kv         *vault.KVv2
	client     *vault.Client
	mount      string
	pathPrefix string
}

// NewVaultStore 创建 Vault secret store；读取 key 对应 secret 的 value 字段
func NewVaultStore(config VaultConfig) (Store, error) {
	cfg := vault.DefaultConfig()
	if config.Address != "" {
		cfg.Address = config.Address
	}
	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if config.Token != "" {
		client.SetToken(config.Token)
	}
	mount := config.Mount
	if mount == "" {
		mount = "secret"
	}
	return &vaultStore{
		kv:         client.KVv2(mount),
		client:     client,
		mount:      mount,
		pathPrefix: strings.Trim(config.PathPrefix, "/"),
	}, nil
}

func (v *vaultStore) secretPath(key string) string {
	return path.Join(v.pathPrefix, key)
}

func (v *vaultStore) Get(ctx context.Context, key string) (string, error) {
	secret, err := v.kv.Get(ctx, v.secretPath(key))
	if err != nil {
		return "", fmt.Errorf("failed to read secret from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("secret not found: %s", key)
	}
	if data, ok := secret.Data["value"].(string); ok {
		return data, nil
	}
	return "", fmt.Errorf("secret %s has no string field \"value\"", key)
}

func (v *vaultStore) Set(ctx context.Context, key string, value string) error {
	_, err := v.kv.Put(ctx, v.secretPath(key), map[string]interface{}{"value": value})
	if err != nil {
		return fmt.Errorf("failed to write secret to vault: %w", err)
	}
	return nil
}

func (v *vaultStore) Delete(ctx context.Context, key string) error {
	if err := v.kv.Delete(ctx, v.secretPath(key)); err != nil {
		return fmt.Errorf("failed to delete secret from vault: %w", err)
	}
	return nil
}

func (v *vaultStore) List(ctx context.Context, prefix string) ([]string, error) {
	listPath := path.Join(v.mount, "metadata", v.pathPrefix, prefix)
	secret, err := v.client.Logical().ListWithContext(ctx, listPath)
	if err != nil {
		return nil, fmt.Errorf("failed to list secrets from vault: %w", err)
	}
	if secret == nil {
		return nil, nil
	}
	keys, ok := secret.Data["keys"].([]interface{})
	if !ok {
		return nil, nil
	}
	var result []string
	for _, k := range keys {
		if str, ok := k.(string); ok {
			result = append(result, path.Join(prefix, str))
		}
	}
	return result, nil
}

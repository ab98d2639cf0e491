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

package analyzer

import (
	"fmt"
	"strings"
)

// WorkUnit 一个待处理的输入单元（通常是一个文件）
type WorkUnit struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	SizeBytes   int64  `json:"size_bytes"`
	ContentType string `json:"content_type,omitempty"`
	// NeedsOCR 已知无文本层（扫描件、图片），由 Probe 或调用方设置
	NeedsOCR  bool `json:"needs_ocr,omitempty"`
	PageCount int  `json:"page_count,omitempty"`
	// Source 不透明的内容引用（对象存储 key、URI），调度器不解析
	Source string `json:"source,omitempty"`
}

// Complexity 处理复杂度档位
type Complexity int

const (
	Simple Complexity = iota
	Moderate
	Complex
	Heavy
)

func (c Complexity) String() string {
	switch c {
	case Simple:
		return "simple"
	case Moderate:
		return "moderate"
	case Complex:
		return "complex"
	case Heavy:
		return "heavy"
	default:
		return fmt.Sprintf("complexity(%d)", int(c))
	}
}

// MarshalText 以小写名称序列化
func (c Complexity) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText 解析小写名称
func (c *Complexity) UnmarshalText(b []byte) error {
	parsed, err := ParseComplexity(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseComplexity 解析档位名称（不区分大小写）
func ParseComplexity(s string) (Complexity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "simple":
		return Simple, nil
	case "moderate":
		return Moderate, nil
	case "complex":
		return Complex, nil
	case "heavy":
		return Heavy, nil
	}
	return 0, fmt.Errorf("unknown complexity %q", s)
}

// FileAnalysis 单个工作单元的处理成本估算；创建后不再修改
type FileAnalysis struct {
	UnitID            string     `json:"unit_id,omitempty"`
	Name              string     `json:"name"`
	SizeBytes         int64      `json:"size_bytes"`
	ContentType       string     `json:"content_type"`
	Complexity        Complexity `json:"complexity"`
	EstimatedSeconds  float64    `json:"estimated_seconds"`
	EstimatedMemoryMB float64    `json:"estimated_memory_mb"`
	NeedsOCR          bool       `json:"needs_ocr,omitempty"`
	// Fallback 类型无法识别，使用保守默认估算
	Fallback bool `json:"fallback,omitempty"`
}

// SizeMB 以 MB 表示的大小
func (a FileAnalysis) SizeMB() float64 {
	return float64(a.SizeBytes) / (1024 * 1024)
}

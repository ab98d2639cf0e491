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
	"math"
	"path/filepath"
	"strings"
)

const (
	bytesPerMB = 1024 * 1024

	heavySizeMB   = 100
	complexSizeMB = 25

	maxEstimatedSeconds = 600
	maxEstimatedMemory  = 800

	fallbackSeconds = 30
	fallbackSizeMB  = 1
)

var baseSeconds = map[Complexity]float64{
	Simple:   5,
	Moderate: 15,
	Complex:  45,
	Heavy:    120,
}

var baseMemoryMB = map[Complexity]float64{
	Simple:   50,
	Moderate: 100,
	Complex:  200,
	Heavy:    400,
}

// 文件名中出现这些词时复杂度上调一档
var ocrHints = []string{"scan", "scanned", "photo", "image", "ocr"}

type category int

const (
	catUnknown category = iota
	catText
	catDocument
	catOffice
	catImage
)

var extContentTypes = map[string]string{
	".txt":      "text/plain",
	".text":     "text/plain",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".csv":      "text/csv",
	".pdf":      "application/pdf",
	".html":     "text/html",
	".htm":      "text/html",
	".json":     "application/json",
	".xml":      "application/xml",
	".rtf":      "application/rtf",
	".doc":      "application/msword",
	".docx":     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".ppt":      "application/vnd.ms-powerpoint",
	".pptx":     "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".xls":      "application/vnd.ms-excel",
	".xlsx":     "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".odt":      "application/vnd.oasis.opendocument.text",
	".odp":      "application/vnd.oasis.opendocument.presentation",
	".png":      "image/png",
	".jpg":      "image/jpeg",
	".jpeg":     "image/jpeg",
	".tif":      "image/tiff",
	".tiff":     "image/tiff",
	".bmp":      "image/bmp",
	".gif":      "image/gif",
	".webp":     "image/webp",
}

// ContentTypeFor 规范化声明类型；未声明时按扩展名推断，无法推断时返回空串
func ContentTypeFor(declared, name string) string {
	if ct := normalizeContentType(declared); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	return extContentTypes[strings.ToLower(filepath.Ext(name))]
}

func normalizeContentType(ct string) string {
	ct, _, _ = strings.Cut(ct, ";")
	return strings.ToLower(strings.TrimSpace(ct))
}

func categorize(ct string) category {
	switch {
	case ct == "":
		return catUnknown
	case ct == "text/plain", ct == "text/markdown", ct == "text/x-markdown", ct == "text/csv":
		return catText
	case ct == "application/pdf", ct == "text/html", ct == "application/json",
		ct == "application/xml", ct == "text/xml", ct == "application/rtf":
		return catDocument
	case ct == "application/msword", ct == "application/vnd.ms-powerpoint", ct == "application/vnd.ms-excel",
		strings.HasPrefix(ct, "application/vnd.openxmlformats-officedocument."),
		strings.HasPrefix(ct, "application/vnd.oasis.opendocument."):
		return catOffice
	case strings.HasPrefix(ct, "image/"):
		return catImage
	}
	return catUnknown
}

// Analyze 估算单个工作单元的复杂度、耗时与内存。纯函数：相同输入得到相同结果，且从不失败；
// 无法识别的类型退化为 Moderate 与保守的占位估算。
func Analyze(u WorkUnit) FileAnalysis {
	ct := ContentTypeFor(u.ContentType, u.Name)
	sizeMB := float64(u.SizeBytes) / bytesPerMB
	if sizeMB < 0 {
		sizeMB = 0
	}
	a := FileAnalysis{
		UnitID:      u.ID,
		Name:        u.Name,
		SizeBytes:   u.SizeBytes,
		ContentType: ct,
		NeedsOCR:    u.NeedsOCR,
	}
	cat := categorize(ct)
	if cat == catImage {
		a.NeedsOCR = true
	}

	switch {
	case sizeMB > heavySizeMB:
		a.Complexity = Heavy
	case sizeMB > complexSizeMB:
		a.Complexity = Complex
	case cat == catUnknown:
		return fallback(a, sizeMB)
	default:
		a.Complexity = byType(cat, sizeMB)
	}
	if hasOCRHint(u.Name) && a.Complexity < Heavy {
		a.Complexity++
	}

	a.EstimatedSeconds = math.Min(baseSeconds[a.Complexity]*(1+sizeMB/10)*typeMultiplier(ct, a.NeedsOCR), maxEstimatedSeconds)
	a.EstimatedMemoryMB = math.Min(baseMemoryMB[a.Complexity]+2*sizeMB, maxEstimatedMemory)
	return a
}

// fallback 未识别类型：Moderate，30s；大小未知时按 1MB 估算内存
func fallback(a FileAnalysis, sizeMB float64) FileAnalysis {
	if a.SizeBytes <= 0 {
		sizeMB = fallbackSizeMB
	}
	a.Complexity = Moderate
	a.Fallback = true
	a.EstimatedSeconds = fallbackSeconds
	a.EstimatedMemoryMB = math.Min(baseMemoryMB[Moderate]+2*sizeMB, maxEstimatedMemory)
	return a
}

func byType(cat category, sizeMB float64) Complexity {
	switch cat {
	case catText:
		return Simple
	case catDocument:
		switch {
		case sizeMB <= 1:
			return Simple
		case sizeMB <= 10:
			return Moderate
		default:
			return Complex
		}
	default:
		return Moderate
	}
}

func typeMultiplier(ct string, needsOCR bool) float64 {
	switch {
	case needsOCR:
		return 2.0
	case ct == "application/pdf":
		return 1.5
	default:
		return 1.0
	}
}

func hasOCRHint(name string) bool {
	base := strings.ToLower(strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)))
	tokens := strings.FieldsFunc(base, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	for _, tok := range tokens {
		for _, hint := range ocrHints {
			if tok == hint {
				return true
			}
		}
	}
	return false
}

// AnalyzeAll 依次分析一组工作单元，保持输入顺序
func AnalyzeAll(units []WorkUnit) []FileAnalysis {
	out := make([]FileAnalysis, len(units))
	for i, u := range units {
		out[i] = Analyze(u)
	}
	return out
}

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
	"bytes"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
)

// Probe 读取内容头部补全工作单元的元数据：未声明类型时按魔数识别，PDF 读取页数，
// 首页无文本层时标记 NeedsOCR。Probe 只补全信息，返回的 error 不影响已补全的字段。
func Probe(u WorkUnit, data []byte) (WorkUnit, error) {
	if u.SizeBytes <= 0 {
		u.SizeBytes = int64(len(data))
	}
	if ContentTypeFor(u.ContentType, u.Name) == "" && len(data) > 0 {
		u.ContentType = normalizeContentType(mimetype.Detect(data).String())
	}
	if ContentTypeFor(u.ContentType, u.Name) != "application/pdf" || len(data) == 0 {
		return u, nil
	}
	pages, hasText, err := inspectPDF(data)
	if err != nil {
		return u, err
	}
	u.PageCount = pages
	if pages > 0 && !hasText {
		u.NeedsOCR = true
	}
	return u, nil
}

// inspectPDF 返回页数以及首页是否带文本层
func inspectPDF(data []byte) (int, bool, error) {
	reader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return 0, false, fmt.Errorf("打开 PDF failed: %w", err)
	}
	numPages, err := reader.GetNumPages()
	if err != nil {
		return 0, false, fmt.Errorf("获取页数failed: %w", err)
	}
	if numPages == 0 {
		return 0, false, nil
	}
	page, err := reader.GetPage(1)
	if err != nil {
		return numPages, false, fmt.Errorf("获取第 1 页failed: %w", err)
	}
	ex, err := extractor.New(page)
	if err != nil {
		return numPages, false, fmt.Errorf("创建第 1 页提取器failed: %w", err)
	}
	text, err := ex.ExtractText()
	if err != nil {
		return numPages, false, fmt.Errorf("提取第 1 页文本failed: %w", err)
	}
	return numPages, strings.TrimSpace(text) != "", nil
}

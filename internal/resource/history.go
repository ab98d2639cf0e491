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

package resource

// history 定长环形缓冲，写满后淘汰最旧样本；并发保护由 Monitor 负责
type history struct {
	buf  []SystemResources
	next int
	full bool
}

func newHistory(size int) *history {
	if size <= 0 {
		size = 100
	}
	return &history{buf: make([]SystemResources, size)}
}

func (h *history) push(r SystemResources) {
	h.buf[h.next] = r
	h.next = (h.next + 1) % len(h.buf)
	if h.next == 0 {
		h.full = true
	}
}

func (h *history) len() int {
	if h.full {
		return len(h.buf)
	}
	return h.next
}

// snapshot 按时间顺序（最旧在前）返回副本
func (h *history) snapshot() []SystemResources {
	out := make([]SystemResources, 0, h.len())
	if h.full {
		out = append(out, h.buf[h.next:]...)
	}
	return append(out, h.buf[:h.next]...)
}

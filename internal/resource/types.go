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

import (
	"time"
)

// SystemResources 某一时刻的主机资源快照；创建后不再修改
type SystemResources struct {
	Timestamp         time.Time `json:"timestamp"`
	CPUPercent        float64   `json:"cpu_percent"`
	MemoryPercent     float64   `json:"memory_percent"`
	MemoryAvailableMB float64   `json:"memory_available_mb"`
	MemoryTotalMB     float64   `json:"memory_total_mb"`
	DiskPercent       float64   `json:"disk_percent"`
	// LoadAverage 1 分钟负载；平台不支持时为 nil
	LoadAverage *float64 `json:"load_average,omitempty"`
	// Missing 本次读取失败、以中性值填充的指标名（cpu/memory/disk/load）
	Missing []string `json:"missing,omitempty"`
}

// Complete CPU 与内存都读取成功；不完整的样本不能作为恢复或准入的依据
func (r SystemResources) Complete() bool {
	return !r.missing("cpu") && !r.missing("memory")
}

func (r SystemResources) missing(metric string) bool {
	for _, m := range r.Missing {
		if m == metric {
			return true
		}
	}
	return false
}

// Thresholds 告警阈值（百分比）；运行期只读，修改需重建 Monitor
type Thresholds struct {
	CPUWarning     float64 `json:"cpu_warning"`
	CPUCritical    float64 `json:"cpu_critical"`
	MemoryWarning  float64 `json:"memory_warning"`
	MemoryCritical float64 `json:"memory_critical"`
	DiskWarning    float64 `json:"disk_warning"`
	DiskCritical   float64 `json:"disk_critical"`
}

// DefaultThresholds 默认阈值：CPU 70/90，内存 80/95，磁盘 85/95
func DefaultThresholds() Thresholds {
	return Thresholds{
		CPUWarning:     70,
		CPUCritical:    90,
		MemoryWarning:  80,
		MemoryCritical: 95,
		DiskWarning:    85,
		DiskCritical:   95,
	}
}

// LoadLevel 粗粒度负载等级，调度循环据此调节并发
type LoadLevel int

const (
	LoadLow LoadLevel = iota
	LoadModerate
	LoadHigh
	LoadCritical
)

func (l LoadLevel) String() string {
	switch l {
	case LoadLow:
		return "low"
	case LoadModerate:
		return "moderate"
	case LoadHigh:
		return "high"
	case LoadCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// moderateFraction 使用率达到 warning 阈值的该比例即视为 moderate
const moderateFraction = 0.75

func levelFor(value, warning, critical float64) LoadLevel {
	switch {
	case value >= critical:
		return LoadCritical
	case value >= warning:
		return LoadHigh
	case value >= warning*moderateFraction:
		return LoadModerate
	default:
		return LoadLow
	}
}

// Classify 由 CPU 与内存中较高的等级决定整体负载等级
func (t Thresholds) Classify(r SystemResources) LoadLevel {
	cpu := levelFor(r.CPUPercent, t.CPUWarning, t.CPUCritical)
	mem := levelFor(r.MemoryPercent, t.MemoryWarning, t.MemoryCritical)
	if cpu > mem {
		return cpu
	}
	return mem
}

// Severity 告警级别
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert 一次阈值越界告警
type Alert struct {
	Resource  string          `json:"resource"` // cpu | memory | disk
	Severity  Severity        `json:"severity"`
	Value     float64         `json:"value"`
	Threshold float64         `json:"threshold"`
	Sample    SystemResources `json:"sample"`
	At        time.Time       `json:"at"`
}

// key 每种 (resource, severity) 组合独立冷却
func (a Alert) key() string {
	return a.Resource + "/" + string(a.Severity)
}

// evaluate 返回该样本越过的阈值；同一资源只报告最高级别，读取失败的指标不参与
func (t Thresholds) evaluate(r SystemResources) []Alert {
	checks := []struct {
		resource      string
		value         float64
		warning, crit float64
	}{
		{"cpu", r.CPUPercent, t.CPUWarning, t.CPUCritical},
		{"memory", r.MemoryPercent, t.MemoryWarning, t.MemoryCritical},
		{"disk", r.DiskPercent, t.DiskWarning, t.DiskCritical},
	}
	var alerts []Alert
	for _, c := range checks {
		if r.missing(c.resource) {
			continue
		}
		switch {
		case c.value >= c.crit:
			alerts = append(alerts, Alert{Resource: c.resource, Severity: SeverityCritical, Value: c.value, Threshold: c.crit, Sample: r, At: r.Timestamp})
		case c.value >= c.warning:
			alerts = append(alerts, Alert{Resource: c.resource, Severity: SeverityWarning, Value: c.value, Threshold: c.warning, Sample: r, At: r.Timestamp})
		}
	}
	return alerts
}

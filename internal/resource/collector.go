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
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// MemoryReading 一次内存读取
type MemoryReading struct {
	UsedPercent float64
	AvailableMB float64
	TotalMB     float64
}

// Collector 主机指标读取；每个指标独立失败，互不影响
type Collector interface {
	CPUPercent(ctx context.Context) (float64, error)
	Memory(ctx context.Context) (MemoryReading, error)
	DiskPercent(ctx context.Context, path string) (float64, error)
	LoadAverage(ctx context.Context) (float64, error)
}

// HostCollector 基于 gopsutil 读取本机指标
type HostCollector struct {
	// CPUWindow cpu.Percent 的采样窗口；0 表示与上次调用比较
	CPUWindow time.Duration
}

// NewHostCollector 创建本机指标读取器
func NewHostCollector() *HostCollector {
	return &HostCollector{CPUWindow: 200 * time.Millisecond}
}

func (c *HostCollector) CPUPercent(ctx context.Context) (float64, error) {
	vals, err := cpu.PercentWithContext(ctx, c.CPUWindow, false)
	if err != nil {
		return 0, err
	}
	if len(vals) == 0 {
		return 0, errNoCPUData
	}
	return vals[0], nil
}

func (c *HostCollector) Memory(ctx context.Context) (MemoryReading, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return MemoryReading{}, err
	}
	return MemoryReading{
		UsedPercent: vm.UsedPercent,
		AvailableMB: float64(vm.Available) / mb,
		TotalMB:     float64(vm.Total) / mb,
	}, nil
}

func (c *HostCollector) DiskPercent(ctx context.Context, path string) (float64, error) {
	u, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}
	return u.UsedPercent, nil
}

func (c *HostCollector) LoadAverage(ctx context.Context) (float64, error) {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return avg.Load1, nil
}

const mb = 1024 * 1024

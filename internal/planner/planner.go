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

package planner

import (
	"fmt"
	"math"
	"sort"
	"time"

	"ingest-scheduler/internal/analyzer"
)

// Strategy 批次内成员的执行方式
type Strategy string

const (
	Parallel   Strategy = "parallel"
	Sequential Strategy = "sequential"
	Hybrid     Strategy = "hybrid" // 按 GroupSize 分组，组内并行、组间串行
)

// PriorityWeights 批次优先级公式的权重：
// Base + 小批次奖励 + min(FastBatchCap, (Horizon-总耗时)/Divisor) + 每个 Simple 成员奖励
type PriorityWeights struct {
	Base                    int
	SmallBatchBonus         int // 成员数 <= 2
	MediumBatchBonus        int // 成员数 <= 5
	FastBatchCap            float64
	FastBatchHorizonSeconds float64
	FastBatchDivisor        float64
	SimpleMemberBonus       int
}

// Config 批次上限与策略参数
type Config struct {
	MaxBatchMemoryMB   float64
	MaxBatchDuration   time.Duration
	MaxBatchMembers    int
	SequentialMemoryMB float64 // 预估内存超过该值时串行执行
	HybridGroupSize    int
	Weights            PriorityWeights
}

// DefaultConfig 默认上限：1.5GB / 15 分钟 / 8 个成员
func DefaultConfig() Config {
	return Config{
		MaxBatchMemoryMB:   1500,
		MaxBatchDuration:   15 * time.Minute,
		MaxBatchMembers:    8,
		SequentialMemoryMB: 1024,
		HybridGroupSize:    4,
		Weights: PriorityWeights{
			Base:                    100,
			SmallBatchBonus:         20,
			MediumBatchBonus:        10,
			FastBatchCap:            10,
			FastBatchHorizonSeconds: 300,
			FastBatchDivisor:        30,
			SimpleMemberBonus:       2,
		},
	}
}

// BatchPlan 一组一起执行的工作单元
type BatchPlan struct {
	ID               string                  `json:"id"`
	Members          []analyzer.FileAnalysis `json:"members"`
	TotalMemoryMB    float64                 `json:"total_memory_mb"`
	PeakMemoryMB     float64                 `json:"peak_memory_mb"`
	EstimatedSeconds float64                 `json:"estimated_seconds"`
	Strategy         Strategy                `json:"strategy"`
	GroupSize        int                     `json:"group_size,omitempty"`
	Priority         int                     `json:"priority"`
}

// EstimatedDuration 总预估耗时
func (b BatchPlan) EstimatedDuration() time.Duration {
	return time.Duration(b.EstimatedSeconds * float64(time.Second))
}

// Planner 无状态的批次规划器
type Planner struct {
	cfg Config
}

// New 创建规划器；零值字段取默认值
func New(cfg Config) *Planner {
	def := DefaultConfig()
	if cfg.MaxBatchMemoryMB <= 0 {
		cfg.MaxBatchMemoryMB = def.MaxBatchMemoryMB
	}
	if cfg.MaxBatchDuration <= 0 {
		cfg.MaxBatchDuration = def.MaxBatchDuration
	}
	if cfg.MaxBatchMembers <= 0 {
		cfg.MaxBatchMembers = def.MaxBatchMembers
	}
	if cfg.SequentialMemoryMB <= 0 {
		cfg.SequentialMemoryMB = def.SequentialMemoryMB
	}
	if cfg.HybridGroupSize <= 0 {
		cfg.HybridGroupSize = def.HybridGroupSize
	}
	if cfg.Weights == (PriorityWeights{}) {
		cfg.Weights = def.Weights
	}
	if cfg.Weights.FastBatchDivisor <= 0 {
		cfg.Weights.FastBatchDivisor = def.Weights.FastBatchDivisor
	}
	return &Planner{cfg: cfg}
}

// Config 返回生效配置
func (p *Planner) Config() Config {
	return p.cfg
}

// Plan 将分析结果划分为批次。按 (复杂度, 大小) 稳定排序后贪心装箱，加入下一个单元会超出内存、
// 耗时或成员数上限时开启新批次；单个超限单元独占一个批次，不会被丢弃。
// 对同一输入顺序结果确定，不修改入参。
func (p *Planner) Plan(analyses []analyzer.FileAnalysis) []BatchPlan {
	if len(analyses) == 0 {
		return nil
	}
	sorted := make([]analyzer.FileAnalysis, len(analyses))
	copy(sorted, analyses)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Complexity != sorted[j].Complexity {
			return sorted[i].Complexity < sorted[j].Complexity
		}
		return sorted[i].SizeBytes < sorted[j].SizeBytes
	})

	maxSeconds := p.cfg.MaxBatchDuration.Seconds()
	var plans []BatchPlan
	var cur []analyzer.FileAnalysis
	var mem, secs float64
	flush := func() {
		if len(cur) == 0 {
			return
		}
		plans = append(plans, p.build(fmt.Sprintf("batch-%d", len(plans)+1), cur))
		cur, mem, secs = nil, 0, 0
	}
	for _, a := range sorted {
		if len(cur) > 0 && (mem+a.EstimatedMemoryMB > p.cfg.MaxBatchMemoryMB ||
			secs+a.EstimatedSeconds > maxSeconds ||
			len(cur)+1 > p.cfg.MaxBatchMembers) {
			flush()
		}
		cur = append(cur, a)
		mem += a.EstimatedMemoryMB
		secs += a.EstimatedSeconds
	}
	flush()
	return plans
}

func (p *Planner) build(id string, members []analyzer.FileAnalysis) BatchPlan {
	b := BatchPlan{ID: id, Members: members}
	allSimple := true
	simple := 0
	for _, m := range members {
		b.TotalMemoryMB += m.EstimatedMemoryMB
		b.EstimatedSeconds += m.EstimatedSeconds
		if m.Complexity == analyzer.Simple {
			simple++
		} else {
			allSimple = false
		}
	}

	switch {
	case len(members) == 1 || b.TotalMemoryMB > p.cfg.SequentialMemoryMB:
		b.Strategy = Sequential
	case allSimple || len(members) <= p.cfg.HybridGroupSize:
		b.Strategy = Parallel
	default:
		b.Strategy = Hybrid
		b.GroupSize = p.cfg.HybridGroupSize
	}
	b.PeakMemoryMB = peakMemory(members, b.Strategy, p.cfg.HybridGroupSize)
	b.Priority = p.priority(len(members), b.EstimatedSeconds, simple)
	return b
}

// peakMemory 按执行方式估算同时驻留的内存：串行取最大成员，并行取总和，分组取最大的 groupSize 个之和
func peakMemory(members []analyzer.FileAnalysis, s Strategy, groupSize int) float64 {
	mems := make([]float64, len(members))
	for i, m := range members {
		mems[i] = m.EstimatedMemoryMB
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(mems)))
	n := len(mems)
	switch s {
	case Sequential:
		n = 1
	case Hybrid:
		if groupSize < n {
			n = groupSize
		}
	}
	var peak float64
	for _, v := range mems[:n] {
		peak += v
	}
	return peak
}

func (p *Planner) priority(members int, totalSeconds float64, simple int) int {
	w := p.cfg.Weights
	prio := w.Base
	switch {
	case members <= 2:
		prio += w.SmallBatchBonus
	case members <= 5:
		prio += w.MediumBatchBonus
	}
	fast := (w.FastBatchHorizonSeconds - totalSeconds) / w.FastBatchDivisor
	fast = math.Max(0, math.Min(w.FastBatchCap, fast))
	prio += int(math.Round(fast))
	prio += simple * w.SimpleMemberBonus
	return prio
}

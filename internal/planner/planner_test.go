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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingest-scheduler/internal/analyzer"
)

const mib = 1024 * 1024

func units(n int, name string, size int64) []analyzer.FileAnalysis {
	out := make([]analyzer.FileAnalysis, n)
	for i := range out {
		out[i] = analyzer.Analyze(analyzer.WorkUnit{Name: fmt.Sprintf("%s-%02d.txt", name, i), SizeBytes: size})
	}
	return out
}

func TestPlan_TwelveSmallTextFiles(t *testing.T) {
	p := New(DefaultConfig())
	plans := p.Plan(units(12, "doc", 2*mib))
	require.Len(t, plans, 2)

	first, second := plans[0], plans[1]
	assert.Equal(t, "batch-1", first.ID)
	assert.Len(t, first.Members, 8)
	assert.Equal(t, Parallel, first.Strategy)
	assert.InDelta(t, 432, first.TotalMemoryMB, 1e-9)
	assert.InDelta(t, 432, first.PeakMemoryMB, 1e-9)
	assert.InDelta(t, 48, first.EstimatedSeconds, 1e-9)
	assert.Equal(t, 124, first.Priority)

	assert.Len(t, second.Members, 4)
	assert.Equal(t, 127, second.Priority)
	assert.GreaterOrEqual(t, second.Priority, 120)
}

func TestPlan_CapInvariant(t *testing.T) {
	var in []analyzer.FileAnalysis
	for i := 0; i < 40; i++ {
		size := int64(i%7+1) * 9 * mib
		in = append(in, analyzer.Analyze(analyzer.WorkUnit{Name: fmt.Sprintf("f%d.pdf", i), SizeBytes: size}))
	}
	in = append(in, analyzer.Analyze(analyzer.WorkUnit{Name: "huge.pdf", SizeBytes: 500 * mib}))

	cfg := DefaultConfig()
	plans := New(cfg).Plan(in)
	total := 0
	for _, b := range plans {
		total += len(b.Members)
		assert.LessOrEqual(t, len(b.Members), cfg.MaxBatchMembers)
		if len(b.Members) > 1 {
			assert.LessOrEqual(t, b.TotalMemoryMB, cfg.MaxBatchMemoryMB, b.ID)
			assert.LessOrEqual(t, b.EstimatedSeconds, cfg.MaxBatchDuration.Seconds(), b.ID)
		}
		assert.LessOrEqual(t, b.PeakMemoryMB, b.TotalMemoryMB)
	}
	assert.Equal(t, len(in), total)
}

func TestPlan_OversizedUnitGetsOwnBatch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBatchMemoryMB = 300
	in := []analyzer.FileAnalysis{
		{Name: "big", Complexity: analyzer.Heavy, SizeBytes: 300 * mib, EstimatedMemoryMB: 800, EstimatedSeconds: 600},
		{Name: "small", Complexity: analyzer.Simple, SizeBytes: mib, EstimatedMemoryMB: 52, EstimatedSeconds: 5.5},
	}
	plans := New(cfg).Plan(in)
	require.Len(t, plans, 2)
	assert.Equal(t, "small", plans[0].Members[0].Name)
	assert.Equal(t, "big", plans[1].Members[0].Name)
	assert.Equal(t, Sequential, plans[1].Strategy)
	assert.Equal(t, 800.0, plans[1].PeakMemoryMB)
}

func TestPlan_SortsByComplexityThenSize(t *testing.T) {
	in := []analyzer.FileAnalysis{
		{Name: "c", Complexity: analyzer.Complex, SizeBytes: 1},
		{Name: "s2", Complexity: analyzer.Simple, SizeBytes: 20},
		{Name: "m", Complexity: analyzer.Moderate, SizeBytes: 5},
		{Name: "s1", Complexity: analyzer.Simple, SizeBytes: 10},
	}
	plans := New(DefaultConfig()).Plan(in)
	require.Len(t, plans, 1)
	var names []string
	for _, m := range plans[0].Members {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"s1", "s2", "m", "c"}, names)
	assert.Equal(t, "c", in[0].Name, "input must not be reordered")
}

func TestPlan_Strategies(t *testing.T) {
	mk := func(c analyzer.Complexity, mem float64) analyzer.FileAnalysis {
		return analyzer.FileAnalysis{Complexity: c, EstimatedMemoryMB: mem, EstimatedSeconds: 10}
	}
	p := New(DefaultConfig())

	tests := []struct {
		name      string
		members   []analyzer.FileAnalysis
		want      Strategy
		wantPeak  float64
		wantGroup int
	}{
		{"single member", []analyzer.FileAnalysis{mk(analyzer.Simple, 50)}, Sequential, 50, 0},
		{"memory over 1GB", []analyzer.FileAnalysis{mk(analyzer.Complex, 600), mk(analyzer.Complex, 500)}, Sequential, 600, 0},
		{"few moderate", []analyzer.FileAnalysis{mk(analyzer.Moderate, 100), mk(analyzer.Moderate, 120)}, Parallel, 220, 0},
		{"many simple", []analyzer.FileAnalysis{
			mk(analyzer.Simple, 50), mk(analyzer.Simple, 50), mk(analyzer.Simple, 50),
			mk(analyzer.Simple, 50), mk(analyzer.Simple, 50), mk(analyzer.Simple, 50),
		}, Parallel, 300, 0},
		{"many mixed", []analyzer.FileAnalysis{
			mk(analyzer.Simple, 50), mk(analyzer.Moderate, 110), mk(analyzer.Moderate, 120),
			mk(analyzer.Moderate, 130), mk(analyzer.Moderate, 140), mk(analyzer.Moderate, 150),
		}, Hybrid, 540, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := p.build("b", tt.members)
			assert.Equal(t, tt.want, b.Strategy)
			assert.InDelta(t, tt.wantPeak, b.PeakMemoryMB, 1e-9)
			assert.Equal(t, tt.wantGroup, b.GroupSize)
		})
	}
}

func TestPlan_PriorityWeightsConfigurable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights.Base = 10
	cfg.Weights.SimpleMemberBonus = 0
	plans := New(cfg).Plan(units(1, "one", mib))
	require.Len(t, plans, 1)
	// 10 + 20 + round(9.8) = 40
	assert.Equal(t, 40, plans[0].Priority)
}

func TestPlan_SlowBatchGetsNoFastBonus(t *testing.T) {
	in := []analyzer.FileAnalysis{{Complexity: analyzer.Heavy, EstimatedSeconds: 600, EstimatedMemoryMB: 800}}
	plans := New(Config{}).Plan(in)
	require.Len(t, plans, 1)
	assert.Equal(t, 120, plans[0].Priority)
	assert.Equal(t, 10*time.Minute, plans[0].EstimatedDuration())
}

func TestPlan_Deterministic(t *testing.T) {
	in := units(20, "x", 3*mib)
	p := New(DefaultConfig())
	assert.Equal(t, p.Plan(in), p.Plan(in))
	assert.Nil(t, p.Plan(nil))
}

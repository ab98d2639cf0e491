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
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCollector struct {
	mu      sync.Mutex
	cpu     float64
	memory  MemoryReading
	disk    float64
	load    float64
	cpuErr  error
	memErr  error
	diskErr error
	loadErr error
	panics  bool
	calls   atomic.Int32
}

func newFakeCollector(cpu, memPct float64) *fakeCollector {
	return &fakeCollector{
		cpu:    cpu,
		memory: MemoryReading{UsedPercent: memPct, AvailableMB: 16000 * (100 - memPct) / 100, TotalMB: 16000},
		disk:   40,
		load:   1.5,
	}
}

func (f *fakeCollector) set(cpu, memPct float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cpu = cpu
	f.memory.UsedPercent = memPct
	f.memory.AvailableMB = f.memory.TotalMB * (100 - memPct) / 100
}

func (f *fakeCollector) CPUPercent(context.Context) (float64, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("collector exploded")
	}
	return f.cpu, f.cpuErr
}

func (f *fakeCollector) Memory(context.Context) (MemoryReading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.memory, f.memErr
}

func (f *fakeCollector) DiskPercent(context.Context, string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disk, f.diskErr
}

func (f *fakeCollector) LoadAverage(context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load, f.loadErr
}

func TestMonitor_SampleStoresCurrentAndHistory(t *testing.T) {
	fc := newFakeCollector(30, 40)
	m := NewMonitor(fc, Config{HistorySize: 3}, nil)

	_, ok := m.Current()
	assert.False(t, ok)

	for i := 0; i < 5; i++ {
		fc.set(float64(10+i), 40)
		_, err := m.Sample(context.Background())
		require.NoError(t, err)
	}
	cur, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, 14.0, cur.CPUPercent)
	require.NotNil(t, cur.LoadAverage)
	assert.Equal(t, 1.5, *cur.LoadAverage)

	hist := m.History()
	require.Len(t, hist, 3)
	assert.Equal(t, 12.0, hist[0].CPUPercent)
	assert.Equal(t, 14.0, hist[2].CPUPercent)
}

func TestMonitor_PartialFailureFillsNeutral(t *testing.T) {
	fc := newFakeCollector(95, 50)
	fc.cpuErr = errors.New("boom")
	fc.loadErr = errors.New("unsupported")
	m := NewMonitor(fc, Config{}, nil)

	var alerts []Alert
	m.OnAlert(func(a Alert) { alerts = append(alerts, a) })

	r, err := m.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.0, r.CPUPercent)
	assert.Nil(t, r.LoadAverage)
	assert.ElementsMatch(t, []string{"cpu", "load"}, r.Missing)
	assert.Empty(t, alerts)
}

func TestMonitor_AllCoreMetricsFail(t *testing.T) {
	fc := newFakeCollector(10, 10)
	fc.cpuErr = errors.New("x")
	fc.memErr = errors.New("x")
	fc.diskErr = errors.New("x")
	m := NewMonitor(fc, Config{}, nil)

	_, err := m.Sample(context.Background())
	assert.ErrorIs(t, err, ErrSampleFailed)
	_, ok := m.Current()
	assert.False(t, ok)
	assert.Empty(t, m.History())
}

func TestMonitor_MissingMemoryKeepsCapacity(t *testing.T) {
	fc := newFakeCollector(10, 50)
	m := NewMonitor(fc, Config{}, nil)
	_, err := m.Sample(context.Background())
	require.NoError(t, err)

	fc.memErr = errors.New("gone")
	r, err := m.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.0, r.MemoryPercent)
	assert.Equal(t, 16000.0, r.MemoryTotalMB)
	assert.Contains(t, r.Missing, "memory")
}

func TestMonitor_AlertsWithCooldown(t *testing.T) {
	fc := newFakeCollector(75, 96)
	m := NewMonitor(fc, Config{AlertCooldown: time.Minute}, nil)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	var mu sync.Mutex
	var alerts []Alert
	m.OnAlert(func(a Alert) {
		mu.Lock()
		alerts = append(alerts, a)
		mu.Unlock()
	})

	_, err := m.Sample(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	byResource := map[string]Alert{}
	for _, a := range alerts {
		byResource[a.Resource] = a
	}
	assert.Equal(t, SeverityWarning, byResource["cpu"].Severity)
	assert.Equal(t, 70.0, byResource["cpu"].Threshold)
	assert.Equal(t, SeverityCritical, byResource["memory"].Severity)
	assert.Equal(t, 95.0, byResource["memory"].Threshold)

	// 冷却期内同类告警被抑制
	now = now.Add(30 * time.Second)
	_, err = m.Sample(context.Background())
	require.NoError(t, err)
	assert.Len(t, alerts, 2)

	now = now.Add(31 * time.Second)
	_, err = m.Sample(context.Background())
	require.NoError(t, err)
	assert.Len(t, alerts, 4)
}

func TestMonitor_ListenerPanicDoesNotBreakSampling(t *testing.T) {
	fc := newFakeCollector(95, 10)
	m := NewMonitor(fc, Config{}, nil)
	got := 0
	m.OnAlert(func(Alert) { panic("listener") })
	m.OnAlert(func(Alert) { got++ })

	_, err := m.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestMonitor_CanAdmit(t *testing.T) {
	t.Run("no sample admits", func(t *testing.T) {
		m := NewMonitor(newFakeCollector(0, 0), Config{}, nil)
		assert.True(t, m.CanAdmit(10000, 50))
	})

	t.Run("heavy job on small host refused", func(t *testing.T) {
		fc := newFakeCollector(10, 40)
		fc.memory = MemoryReading{UsedPercent: 40, AvailableMB: 600, TotalMB: 1000}
		m := NewMonitor(fc, Config{}, nil)
		_, err := m.Sample(context.Background())
		require.NoError(t, err)
		assert.False(t, m.CanAdmit(800, 20))
		assert.True(t, m.CanAdmit(100, 20))
	})

	t.Run("heavy job on large host admitted", func(t *testing.T) {
		m := NewMonitor(newFakeCollector(10, 40), Config{}, nil)
		_, err := m.Sample(context.Background())
		require.NoError(t, err)
		assert.True(t, m.CanAdmit(800, 20))
	})

	t.Run("cpu projection", func(t *testing.T) {
		m := NewMonitor(newFakeCollector(55, 10), Config{}, nil)
		_, err := m.Sample(context.Background())
		require.NoError(t, err)
		assert.False(t, m.CanAdmit(10, 20))
		assert.True(t, m.CanAdmit(10, 10))
	})

	t.Run("unreadable memory refuses until next full sample", func(t *testing.T) {
		fc := newFakeCollector(10, 96)
		m := NewMonitor(fc, Config{}, nil)
		_, err := m.Sample(context.Background())
		require.NoError(t, err)

		fc.memErr = errors.New("gone")
		r, err := m.Sample(context.Background())
		require.NoError(t, err)
		assert.False(t, r.Complete())
		assert.False(t, m.CanAdmit(10, 10))

		fc.memErr = nil
		fc.set(10, 40)
		r, err = m.Sample(context.Background())
		require.NoError(t, err)
		assert.True(t, r.Complete())
		assert.True(t, m.CanAdmit(10, 10))
	})
}

func TestMonitor_LoadLevel(t *testing.T) {
	fc := newFakeCollector(10, 10)
	m := NewMonitor(fc, Config{}, nil)
	assert.Equal(t, LoadLow, m.LoadLevel())

	cases := []struct {
		cpu, mem float64
		want     LoadLevel
	}{
		{10, 10, LoadLow},
		{55, 10, LoadModerate},
		{10, 85, LoadHigh},
		{91, 20, LoadCritical},
		{60, 96, LoadCritical},
	}
	for _, c := range cases {
		fc.set(c.cpu, c.mem)
		_, err := m.Sample(context.Background())
		require.NoError(t, err)
		assert.Equal(t, c.want, m.LoadLevel(), "cpu=%v mem=%v", c.cpu, c.mem)
	}
}

func TestMonitor_StartIdempotentAndStop(t *testing.T) {
	fc := newFakeCollector(10, 10)
	m := NewMonitor(fc, Config{}, nil)
	ctx := context.Background()

	m.Start(ctx, 10*time.Millisecond)
	m.Start(ctx, 10*time.Millisecond)
	assert.True(t, m.Running())

	require.Eventually(t, func() bool { return fc.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	m.Stop()
	assert.False(t, m.Running())

	n := fc.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, fc.calls.Load())
	m.Stop()
}

func TestMonitor_LoopSurvivesCollectorPanic(t *testing.T) {
	fc := newFakeCollector(10, 10)
	fc.panics = true
	m := NewMonitor(fc, Config{}, nil)
	m.Start(context.Background(), 5*time.Millisecond)
	defer m.Stop()

	require.Eventually(t, func() bool { return fc.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	fc.mu.Lock()
	fc.panics = false
	fc.mu.Unlock()
	require.Eventually(t, func() bool { _, ok := m.Current(); return ok }, 2*time.Second, 5*time.Millisecond)
}

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

package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		QueueDepth, RunningJobs, MaxConcurrentJobs, SchedulerPaused,
		AdmissionRefusedTotal, JobTotal, JobDuration,
		SchedulerTickDurationSeconds, LoopPanicsTotal, CriticalCancelTotal,
		ResourceUsagePercent, ResourceAlertTotal, ResourceSampleErrorsTotal,
		BatchPlansTotal, SubmissionsTotal,
	)
}

var QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "ingest_queue_depth",
	Help: "优先队列中等待准入的 Job 数",
})

var RunningJobs = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "ingest_running_jobs",
	Help: "当前正在执行的 Job 数",
})

var MaxConcurrentJobs = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "ingest_max_concurrent_jobs",
	Help: "当前生效的并发上限（告警时会下调）",
})

var SchedulerPaused = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "ingest_scheduler_paused",
	Help: "调度循环是否因 critical 告警暂停（1=暂停）",
})

var AdmissionRefusedTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "ingest_admission_refused_total",
	Help: "资源准入拒绝次数（Job 被放回队列）",
})

var JobTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ingest_job_total",
		Help: "Job 状态迁移总数（按状态）",
	},
	[]string{"state"}, // queued | running | completed | failed | cancelled
)

var JobDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "ingest_job_duration_seconds",
		Help:    "Job 从 Running 到终态的耗时（秒）",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 900, 1800},
	},
	[]string{"state"},
)

var SchedulerTickDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
	Name:    "ingest_scheduler_tick_duration_seconds",
	Help:    "单次调度 tick 耗时（秒）",
	Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
})

var LoopPanicsTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "ingest_loop_panics_total",
	Help: "调度循环内被恢复的 panic 次数",
})

var CriticalCancelTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "ingest_critical_cancel_total",
	Help: "持续 critical 压力下主动取消的运行中 Job 数",
})

var ResourceUsagePercent = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "ingest_resource_usage_percent",
		Help: "最近一次采样的资源使用率",
	},
	[]string{"resource"}, // cpu | memory | disk
)

var ResourceAlertTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ingest_resource_alert_total",
		Help: "资源阈值告警次数（冷却期内被抑制的不计）",
	},
	[]string{"resource", "severity"},
)

var ResourceSampleErrorsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ingest_resource_sample_errors_total",
		Help: "资源指标读取失败次数",
	},
	[]string{"metric"},
)

var BatchPlansTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ingest_batch_plans_total",
		Help: "规划出的批次数（按处理策略）",
	},
	[]string{"strategy"},
)

var SubmissionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ingest_submissions_total",
		Help: "提交请求数（按结果）",
	},
	[]string{"result"}, // accepted | rejected
)

func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

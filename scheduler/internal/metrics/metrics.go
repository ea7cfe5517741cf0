// Package metrics 调度与分配的 prometheus 指标
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "yqhp"
	subsystem = "scheduler"
)

// Metrics 调度器指标
type Metrics struct {
	Registry *prometheus.Registry

	jobRuns         *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	rows            *prometheus.CounterVec
	resultSyncStuck prometheus.Gauge
	allocations     *prometheus.CounterVec
}

// New 创建指标并注册到 reg，reg 为空时新建
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{Registry: reg}

	m.jobRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "job_runs_total",
		Help:      "Coordinator cycles by job and outcome (acquired, skipped, error).",
	}, []string{"job", "outcome"})
	reg.MustRegister(m.jobRuns)

	m.jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "job_duration_seconds",
		Help:      "Duration of coordinator cycles that held the job lock.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"job"})
	reg.MustRegister(m.jobDuration)

	m.rows = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "rows_total",
		Help:      "Rows handled by coordinators by job and outcome (ok, skipped, failed).",
	}, []string{"job", "outcome"})
	reg.MustRegister(m.rows)

	m.resultSyncStuck = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "result_sync_stuck",
		Help:      "Terminal executions whose result sync started but was never recorded as attempted.",
	})
	reg.MustRegister(m.resultSyncStuck)

	m.allocations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "mock_service_allocations_total",
		Help:      "Mock service provisioning attempts by result code.",
	}, []string{"result"})
	reg.MustRegister(m.allocations)

	return m
}

// ObserveRun 记录一次任务周期
func (m *Metrics) ObserveRun(job string, acquired bool, d time.Duration, err error) {
	if m == nil {
		return
	}
	switch {
	case !acquired:
		m.jobRuns.WithLabelValues(job, "skipped").Inc()
		return
	case err != nil:
		m.jobRuns.WithLabelValues(job, "error").Inc()
	default:
		m.jobRuns.WithLabelValues(job, "acquired").Inc()
	}
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

// AddRows 记录一次批处理中各结果的行数
func (m *Metrics) AddRows(job string, ok, skipped, failed int) {
	if m == nil {
		return
	}
	m.rows.WithLabelValues(job, "ok").Add(float64(ok))
	m.rows.WithLabelValues(job, "skipped").Add(float64(skipped))
	m.rows.WithLabelValues(job, "failed").Add(float64(failed))
}

// SetResultSyncStuck 设置结果同步异常行数
func (m *Metrics) SetResultSyncStuck(n int64) {
	if m == nil {
		return
	}
	m.resultSyncStuck.Set(float64(n))
}

// ObserveAllocation 记录一次分配结果，result 为 ok 或错误码
func (m *Metrics) ObserveAllocation(result string) {
	if m == nil {
		return
	}
	m.allocations.WithLabelValues(result).Inc()
}

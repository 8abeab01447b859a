// Package metrics 定义轮询相关的 Prometheus 指标。
//
//   - newswatch_articles_recorded_total{source}: 写入事件日志的文章数
//   - newswatch_fetch_failures_total{source}: 抓取失败或空页面次数
//   - newswatch_persist_failures_total{source}: 事件日志 / 水位线写入失败次数
//   - newswatch_cycle_duration_seconds: 一轮轮询（所有数据源）的耗时
//   - newswatch_scheduler_running: 轮询循环是否在运行
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "newswatch"

// Metrics 的方法对 nil 接收者安全，未启用指标时可以直接传 nil
type Metrics struct {
	ArticlesRecorded *prometheus.CounterVec
	FetchFailures    *prometheus.CounterVec
	PersistFailures  *prometheus.CounterVec
	CycleDuration    prometheus.Histogram
	SchedulerRunning prometheus.Gauge
}

// New 在 reg 上注册所有指标；reg 为 nil 时使用默认 registry
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		ArticlesRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_recorded_total",
			Help:      "Number of new articles appended to the event log.",
		}, []string{"source"}),
		FetchFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Number of listing fetches that failed or returned no articles.",
		}, []string{"source"}),
		PersistFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Number of event log or watermark write failures.",
		}, []string{"source"}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one polling cycle across all sources.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		SchedulerRunning: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_running",
			Help:      "1 while the polling loop is alive, 0 otherwise.",
		}),
	}
}

func (m *Metrics) RecordArticles(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ArticlesRecorded.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) RecordFetchFailure(source string) {
	if m == nil {
		return
	}
	m.FetchFailures.WithLabelValues(source).Inc()
}

func (m *Metrics) RecordPersistFailure(source string) {
	if m == nil {
		return
	}
	m.PersistFailures.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.CycleDuration.Observe(d.Seconds())
}

func (m *Metrics) SetRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.SchedulerRunning.Set(1)
		return
	}
	m.SchedulerRunning.Set(0)
}

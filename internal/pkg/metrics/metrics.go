package metrics

import (
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueueEntriesScheduled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_queue_entries_scheduled_total",
			Help: "Queue entries created by the week builder",
		},
		[]string{"platform"},
	)

	QueueDuplicateSkips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_queue_duplicate_skips_total",
			Help: "Schedule attempts skipped because a queued entry already exists or content is a recent duplicate",
		},
		[]string{"platform", "reason"},
	)

	QueueTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_queue_transitions_total",
			Help: "Queue entry state transitions",
		},
		[]string{"status"},
	)

	JanitorDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cadence_janitor_deleted_total",
			Help: "Stale queued entries removed by the janitor",
		},
	)

	AnalysisRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_analysis_runs_total",
			Help: "Analysis runs by final status",
		},
		[]string{"status"},
	)

	BucketUpserts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_bucket_upserts_total",
			Help: "Peak engagement bucket upserts",
		},
		[]string{"platform"},
	)

	InsightMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_insight_misses_total",
			Help: "Per-post insight fetches that degraded to zero metrics",
		},
		[]string{"platform"},
	)
)

var registerOnce sync.Once

// Register 注册全部指标，重复调用安全
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			QueueEntriesScheduled,
			QueueDuplicateSkips,
			QueueTransitions,
			JanitorDeleted,
			AnalysisRuns,
			BucketUpserts,
			InsightMisses,
		)
	})
}

// Handler Prometheus 抓取端点
func Handler() gin.HandlerFunc {
	handler := promhttp.Handler()
	return func(c *gin.Context) {
		handler.ServeHTTP(c.Writer, c.Request)
	}
}

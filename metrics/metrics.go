// Package metrics defines the Prometheus collectors exported by the service.
package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PreviewFetches counts preview fetch attempts by strategy (rendered or
	// direct) and resulting status.
	PreviewFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "liveshelf_preview_fetch_total",
		Help: "Preview fetch attempts by strategy and status",
	}, []string{"strategy", "status"})

	// ImageProxyRequests counts image proxy outcomes.
	ImageProxyRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "liveshelf_image_proxy_total",
		Help: "Image proxy requests by result",
	}, []string{"result"})

	// HTTPDuration tracks request latency per route.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "liveshelf_http_request_duration_seconds",
		Help:    "HTTP request duration by route and method",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	dbOpenConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "liveshelf_db_open_connections",
		Help: "Open database connections",
	})
	dbInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "liveshelf_db_in_use_connections",
		Help: "Database connections currently in use",
	})
	dbIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "liveshelf_db_idle_connections",
		Help: "Idle database connections",
	})
	dbWaitCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "liveshelf_db_wait_count_total",
		Help: "Total connections waited for",
	})
)

// UpdateDBStats publishes a snapshot of the connection pool.
func UpdateDBStats(stats sql.DBStats) {
	dbOpenConnections.Set(float64(stats.OpenConnections))
	dbInUse.Set(float64(stats.InUse))
	dbIdle.Set(float64(stats.Idle))
	dbWaitCount.Set(float64(stats.WaitCount))
}

// Package metrics exposes query, backup, HTTP and worker pool measurements
// to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/semmidev/dbtoolkit/internal/infrastructure/worker"
)

const namespace = "dbtoolkit"

type Collector struct {
	registry *prometheus.Registry

	queriesTotal   *prometheus.CounterVec
	queryDuration  *prometheus.HistogramVec
	backupsTotal   *prometheus.CounterVec
	backupDuration *prometheus.HistogramVec
	backupBytes    *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New builds a collector on its own registry, with Go runtime and process
// collectors attached.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		queriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Queries executed, by database type and result",
		}, []string{"db_type", "result"}),
		queryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Query execution time",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60},
		}, []string{"db_type"}),
		backupsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_total",
			Help:      "Backups finished, by database type and final status",
		}, []string{"db_type", "status"}),
		backupDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backup_duration_seconds",
			Help:      "Backup run time from start to final status",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"db_type"}),
		backupBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_bytes_total",
			Help:      "Bytes written by completed backups",
		}, []string{"db_type"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (c *Collector) ObserveQuery(dbType string, success bool, seconds float64) {
	result := "error"
	if success {
		result = "success"
	}
	c.queriesTotal.WithLabelValues(dbType, result).Inc()
	c.queryDuration.WithLabelValues(dbType).Observe(seconds)
}

func (c *Collector) ObserveBackup(dbType, status string, seconds float64, sizeBytes int64) {
	c.backupsTotal.WithLabelValues(dbType, status).Inc()
	c.backupDuration.WithLabelValues(dbType).Observe(seconds)
	if sizeBytes > 0 {
		c.backupBytes.WithLabelValues(dbType).Add(float64(sizeBytes))
	}
}

func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RegisterPool publishes live worker pool occupancy.
func (c *Collector) RegisterPool(stats func() worker.Stats) {
	factory := promauto.With(c.registry)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "backup_pool", Name: "active",
		Help: "Backups currently running",
	}, func() float64 { return float64(stats().Active) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "backup_pool", Name: "queued",
		Help: "Backups waiting for a worker",
	}, func() float64 { return float64(stats().Queued) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "backup_pool", Name: "capacity",
		Help: "Queue slots available to waiting backups",
	}, func() float64 { return float64(stats().Capacity) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "backup_pool", Name: "panics_total",
		Help: "Backup tasks that panicked",
	}, func() float64 { return float64(stats().Panicked) })
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector of the process. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
	treeOperations      *prometheus.CounterVec
	persistDuration     *prometheus.HistogramVec
	reportCache         *prometheus.CounterVec
	changeNotifications *prometheus.CounterVec
	exports             *prometheus.CounterVec
}

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_http_requests_total",
				Help: "Total number of HTTP requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		treeOperations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_tree_operations_total",
				Help: "Total number of category tree operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		persistDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_persist_duration_seconds",
				Help:    "Duration of writes to the store of record",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"operation"},
		),
		reportCache: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_report_cache_total",
				Help: "Report cache lookups by result",
			},
			[]string{"report", "result"},
		),
		changeNotifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_change_notifications_total",
				Help: "Change notifications by direction and outcome",
			},
			[]string{"direction", "outcome"},
		),
		exports: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_report_exports_total",
				Help: "Report exports by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// TreeOperation counts one category operation. A nil err is "ok".
func (m *Metrics) TreeOperation(op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.treeOperations.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) ObservePersist(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.persistDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) ReportCache(report string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.reportCache.WithLabelValues(report, result).Inc()
}

// ChangeNotification counts a published ("out") or received ("in") change.
func (m *Metrics) ChangeNotification(direction string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.changeNotifications.WithLabelValues(direction, outcome).Inc()
}

func (m *Metrics) Export(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.exports.WithLabelValues(outcome).Inc()
}

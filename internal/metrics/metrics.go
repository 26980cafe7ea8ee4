// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nfstats"

// Metrics groups the collectors for imports, probes and HTTP traffic.
type Metrics struct {
	registry *prometheus.Registry

	importsTotal     *prometheus.CounterVec
	importDuration   prometheus.Histogram
	importedEntities *prometheus.CounterVec

	probesTotal     *prometheus.CounterVec
	probeLastStatus *prometheus.GaugeVec

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestErrors   *prometheus.CounterVec
}

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		importsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "runs_total",
			Help:      "Imports by document kind and outcome.",
		}, []string{"kind", "outcome"}),
		importDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "duration_seconds",
			Help:      "Duration of pipelines.json imports.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		importedEntities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "entities_total",
			Help:      "Entities written by imports, by kind and action.",
		}, []string{"kind", "action"}),
		probesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "runs_total",
			Help:      "Uptime probes by availability.",
		}, []string{"url", "available"}),
		probeLastStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "last_status",
			Help:      "HTTP status of the latest probe, -1 when the request failed.",
		}, []string{"url"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status_class"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status_class"}),
		requestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "Total number of HTTP requests with status >= 400.",
		}, []string{"method", "route", "status_code"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.importsTotal, m.importDuration, m.importedEntities,
		m.probesTotal, m.probeLastStatus,
		m.requestTotal, m.requestDuration, m.requestErrors,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveImport records one import attempt of the given document kind.
func (m *Metrics) ObserveImport(kind string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.importsTotal.WithLabelValues(kind, outcome).Inc()
	if kind == "pipelines" {
		m.importDuration.Observe(d.Seconds())
	}
}

// AddEntities counts entities created or patched by an import.
func (m *Metrics) AddEntities(kind, action string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.importedEntities.WithLabelValues(kind, action).Add(float64(n))
}

// ObserveProbe records the outcome of one uptime probe.
func (m *Metrics) ObserveProbe(url string, status int, available bool) {
	if m == nil {
		return
	}
	m.probesTotal.WithLabelValues(url, strconv.FormatBool(available)).Inc()
	m.probeLastStatus.WithLabelValues(url).Set(float64(status))
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	class := statusClass(status)
	m.requestTotal.WithLabelValues(method, route, class).Inc()
	m.requestDuration.WithLabelValues(method, route, class).Observe(d.Seconds())
	if status >= http.StatusBadRequest {
		m.requestErrors.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	}
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}

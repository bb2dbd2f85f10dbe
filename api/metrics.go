package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"isoserve/logger"
)

const metricsNamespace = "isoserve"

// Metrics holds the request collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	bytes    prometheus.Counter
	log      *logger.Logger
}

// NewMetrics creates and registers the request collectors. The Go runtime and
// process collectors are added only when runtime is set.
func NewMetrics(log *logger.Logger, runtime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Time spent serving HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "response_bytes_total",
			Help:      "Response body bytes written.",
		}),
		log: log,
	}
	m.registry.MustRegister(m.requests, m.duration, m.bytes)
	if runtime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Middleware records every request passing through.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := newResponseRecorder(w)

		next.ServeHTTP(rec, r)

		m.requests.WithLabelValues(r.Method, strconv.Itoa(rec.statusCode())).Inc()
		m.duration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
		m.bytes.Add(float64(rec.bytes))
	})
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      &promErrorLogger{log: m.log},
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// promErrorLogger forwards promhttp errors to the application log.
type promErrorLogger struct {
	log *logger.Logger
}

func (p *promErrorLogger) Println(v ...interface{}) {
	p.log.Error("Metrics exposition error", map[string]interface{}{
		"error": fmt.Sprint(v...),
	})
}

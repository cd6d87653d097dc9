// Package metrics provides Prometheus metrics for MemberFlow.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Generation sources recorded by ObserveGeneration.
const (
	SourceAI       = "ai"
	SourceTemplate = "template"
	SourceReused   = "reused"
)

// Metrics holds all Prometheus metrics for MemberFlow. Every method is safe to
// call on a nil *Metrics, which records nothing.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	FlowsStartedTotal  *prometheus.CounterVec
	GenerationsTotal   *prometheus.CounterVec
	GenerationFailures *prometheus.CounterVec
	AIFallbacksTotal   *prometheus.CounterVec
	SweptTotal         *prometheus.CounterVec
}

// NewMetrics creates the metrics on a private registry together with the Go
// runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	m := &Metrics{registry: reg}

	m.HTTPRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memberflow_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	m.HTTPRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "memberflow_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"route"},
	)

	m.FlowsStartedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memberflow_flows_started_total",
			Help: "Total number of flows started",
		},
		[]string{"flow"},
	)
	m.GenerationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memberflow_generations_total",
			Help: "Total number of completed generations by source",
		},
		[]string{"flow", "source"},
	)
	m.GenerationFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memberflow_generation_failures_total",
			Help: "Total number of generations that produced no artifact",
		},
		[]string{"flow"},
	)
	m.AIFallbacksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memberflow_ai_fallbacks_total",
			Help: "Total number of AI failures recovered by template generation",
		},
		[]string{"reason"},
	)
	m.SweptTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memberflow_swept_total",
			Help: "Total number of expired records removed by the sweeper",
		},
		[]string{"resource"},
	)

	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and latency keyed by the matched chi route
// pattern, so path parameters do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// FlowStarted counts a flow start.
func (m *Metrics) FlowStarted(flow string) {
	if m == nil {
		return
	}
	m.FlowsStartedTotal.WithLabelValues(flow).Inc()
}

// ObserveGeneration counts a generation outcome by source.
func (m *Metrics) ObserveGeneration(flow, source string) {
	if m == nil {
		return
	}
	m.GenerationsTotal.WithLabelValues(flow, source).Inc()
}

// GenerationFailed counts a generation that returned an error.
func (m *Metrics) GenerationFailed(flow string) {
	if m == nil {
		return
	}
	m.GenerationFailures.WithLabelValues(flow).Inc()
}

// AIFallback counts an AI failure that fell back to templates.
func (m *Metrics) AIFallback(reason string) {
	if m == nil {
		return
	}
	m.AIFallbacksTotal.WithLabelValues(reason).Inc()
}

// Swept counts expired records removed from resource.
func (m *Metrics) Swept(resource string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.SweptTotal.WithLabelValues(resource).Add(float64(n))
}

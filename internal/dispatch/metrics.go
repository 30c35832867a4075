package dispatch

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Call outcomes recorded in restmcp_tool_calls_total.
const (
	OutcomeOK        = "ok"
	OutcomeUpstream  = "upstream_error"
	OutcomeTransport = "transport_error"
	OutcomeInvalid   = "validation_error"
	OutcomeCanceled  = "canceled"
)

// Metrics collects per-tool call counters. Each instance owns its registry so
// tests and multiple servers in one process do not collide.
type Metrics struct {
	registry          *prometheus.Registry
	callsTotal        *prometheus.CounterVec
	callDuration      *prometheus.HistogramVec
	upstreamResponses *prometheus.CounterVec
}

// NewMetrics registers the collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		callsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Total number of tool calls by outcome",
			},
			[]string{"tool", "outcome"},
		),
		callDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_call_duration_seconds",
				Help:      "Tool call duration in seconds, upstream round trip included",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		upstreamResponses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_responses_total",
				Help:      "Upstream HTTP responses by status code",
			},
			[]string{"tool", "status"},
		),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordCall counts one finished call.
func (m *Metrics) RecordCall(tool, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.callsTotal.WithLabelValues(tool, outcome).Inc()
	m.callDuration.WithLabelValues(tool).Observe(d.Seconds())
}

func (m *Metrics) recordStatus(tool string, status int) {
	if m == nil {
		return
	}
	m.upstreamResponses.WithLabelValues(tool, strconv.Itoa(status)).Inc()
}

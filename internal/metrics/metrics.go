// Package metrics holds the Prometheus instruments of the broker and nodes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels of a node response.
const (
	OutcomeOK        = "ok"
	OutcomeTimeout   = "timeout"
	OutcomeException = "exception"
	OutcomeError     = "error"
)

type Metrics struct {
	reg prometheus.Gatherer

	NodeResponses  *prometheus.CounterVec
	NodeLatency    *prometheus.HistogramVec
	DecodedBytes   prometheus.Counter
	ReduceDuration prometheus.Histogram
	ResultRows     prometheus.Histogram
	Queries        *prometheus.CounterVec
}

// New registers every instrument on reg. A nil reg uses a fresh private
// registry, which keeps tests and multiple coordinators apart.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		NodeResponses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "novagather_node_responses_total",
			Help: "Node responses received by the broker, by outcome",
		}, []string{"node", "outcome"}),
		NodeLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "novagather_node_latency_seconds",
			Help:    "Time from scatter to a node's decoded response",
			Buckets: prometheus.DefBuckets,
		}, []string{"node"}),
		DecodedBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "novagather_decoded_bytes_total",
			Help: "DataTable payload bytes decoded by the broker",
		}),
		ReduceDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "novagather_reduce_duration_seconds",
			Help:    "Time spent merging node responses",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		ResultRows: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "novagather_result_rows",
			Help:    "Rows in reduced results",
			Buckets: prometheus.ExponentialBuckets(1, 10, 7),
		}),
		Queries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "novagather_queries_total",
			Help: "Queries served, by node-side status",
		}, []string{"status"}),
	}
}

// Handler serves the registry for /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the fetch engine.
type Metrics struct {
	Registry      *prometheus.Registry
	RequestsTotal *prometheus.CounterVec
	RetriesTotal  prometheus.Counter
	BlockedTotal  prometheus.Counter
	FailuresTotal prometheus.Counter
}

// NewMetrics constructs and registers all collectors on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_requests_total",
			Help: "Total fetch attempts by strategy.",
		},
		[]string{"strategy"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fetch_retries_total",
			Help: "Total retry attempts scheduled.",
		},
	)
	blocked := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fetch_blocked_pages_total",
			Help: "Responses rejected as blocked or incomplete.",
		},
	)
	failures := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fetch_failures_total",
			Help: "Fetches that exhausted all retries.",
		},
	)

	registry.MustRegister(requests, retries, blocked, failures)

	return &Metrics{
		Registry:      registry,
		RequestsTotal: requests,
		RetriesTotal:  retries,
		BlockedTotal:  blocked,
		FailuresTotal: failures,
	}
}

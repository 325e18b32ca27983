package search

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricGate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "search_gate_decisions_total",
		Help: "Search gate outcomes by reason",
	}, []string{"reason"}) // allowed, vague, not_timely, too_short, empty

	metricRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "search_requests_total",
		Help: "Search requests by status",
	}, []string{"status"})

	metricLatencyMS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "search_latency_ms",
		Help:    "Latency of search provider responses (ms)",
		Buckets: prometheus.ExponentialBuckets(50, 1.6, 10),
	})
)

package llm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_requests_total",
		Help: "Chat completion requests by kind and status",
	}, []string{"kind", "status"}) // kind: decision, reply

	metricTTFTMS = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_ttft_ms",
		Help:    "Time to first streamed token (ms)",
		Buckets: prometheus.ExponentialBuckets(50, 1.6, 10),
	}, []string{"kind"})

	metricTotalMS = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_total_ms",
		Help:    "Time to complete a chat completion (ms)",
		Buckets: prometheus.ExponentialBuckets(100, 1.6, 12),
	}, []string{"kind"})
)

package tts

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ttsSynthesisTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_synthesis_total",
		Help: "Total TTS synthesis requests by status",
	}, []string{"status"})

	ttsTotalDurationMS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tts_total_duration_ms",
		Help:    "Total TTS synthesis time in milliseconds",
		Buckets: prometheus.ExponentialBuckets(50, 1.6, 12),
	})

	ttsProviderLatencyMS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tts_provider_latency_ms",
		Help:    "Latency of the speak API response headers (ms)",
		Buckets: prometheus.ExponentialBuckets(20, 1.6, 10),
	})

	ttsAudioSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tts_audio_seconds",
		Help:    "Duration of synthesized audio per chunk",
		Buckets: prometheus.LinearBuckets(1, 2, 10),
	})
)

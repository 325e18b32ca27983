package vad

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vad_frames_total",
		Help: "Total audio frames evaluated by the VAD",
	})

	metricEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vad_events_total",
		Help: "VAD edge events emitted",
	}, []string{"type"}) // speech_start, speech_end
)

package clientws

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gaugeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections_active",
		Help: "Client websocket connections currently open",
	})

	metricOutbound = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_messages_out_total",
		Help: "Messages written to clients by type",
	}, []string{"type"})

	metricStaleAudio = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_stale_audio_dropped_total",
		Help: "Audio messages dropped at the writer because their generation was superseded",
	})

	metricInboundDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_inbound_frames_dropped_total",
		Help: "Inbound audio frames dropped by the rate limiter",
	})

	metricViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_protocol_violations_total",
		Help: "Connections closed because of a malformed or unknown message",
	})
)

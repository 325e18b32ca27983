package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gaugeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sessions_active",
		Help: "Live sessions in the registry",
	})

	metricSessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sessions_created_total",
		Help: "Sessions created since start",
	})
)

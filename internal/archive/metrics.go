package archive

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricOps = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "archive_ops_total",
	Help: "Archive operations by op and result",
}, []string{"op", "result"})

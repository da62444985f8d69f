package notify

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// liveConnections gauges currently registered push connections.
	liveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notify_live_connections",
			Help: "Number of live push connections registered with the hub.",
		},
	)

	// pushesTotal counts envelope pushes by kind and outcome.
	pushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_pushes_total",
			Help: "Total envelopes pushed to live connections by type and outcome.",
		},
		[]string{"type", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(liveConnections, pushesTotal)
}

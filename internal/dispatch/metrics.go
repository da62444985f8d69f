// Package dispatch: Prometheus instrumentation.
//
// Counters are labeled by platform and outcome; cardinality stays bounded
// because both label sets are small and fixed.
package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// sendsTotal counts outbound send attempts by platform and final status.
	sendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_sends_total",
			Help: "Total outbound message send attempts by platform and status.",
		},
		[]string{"platform", "status"},
	)

	// deliveriesTotal counts webhook-reconciled delivery reports.
	deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_delivery_reports_total",
			Help: "Total delivery reports reconciled by platform and status.",
		},
		[]string{"platform", "status"},
	)
)

func init() {
	prometheus.MustRegister(sendsTotal, deliveriesTotal)
}

func observeSend(platform, status string) {
	sendsTotal.WithLabelValues(platform, status).Inc()
}

func observeDelivery(platform, status string) {
	deliveriesTotal.WithLabelValues(platform, status).Inc()
}

// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EyeCalls counts provider calls per eye, target role and outcome.
	EyeCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "thirdeye",
		Name:      "eye_calls_total",
		Help:      "Provider calls made on behalf of an eye.",
	}, []string{"eye", "role", "outcome"})

	// EyeLatency observes provider call latency.
	EyeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "thirdeye",
		Name:      "eye_call_duration_seconds",
		Help:      "Provider call latency per eye.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 3, 5, 10, 30, 60},
	}, []string{"eye"})

	// OrderViolations counts rejected invocations by reason.
	OrderViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "thirdeye",
		Name:      "order_violations_total",
		Help:      "Eye invocations rejected by the order guard.",
	}, []string{"reason"})

	// DuelLegs counts duel legs by outcome.
	DuelLegs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "thirdeye",
		Name:      "duel_legs_total",
		Help:      "Duel legs run, by outcome.",
	}, []string{"outcome"})

	// BackgroundDuels tracks background duels currently in flight.
	BackgroundDuels = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "thirdeye",
		Name:      "background_duels_running",
		Help:      "Background duels currently running.",
	})

	// HubConnections tracks live subscriber connections.
	HubConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "thirdeye",
		Name:      "hub_connections",
		Help:      "Live subscriber connections.",
	})

	// HubBroadcasts counts broadcast deliveries by scope and result.
	HubBroadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "thirdeye",
		Name:      "hub_deliveries_total",
		Help:      "Broadcast deliveries to subscribers.",
	}, []string{"scope", "result"})

	// HubEvictions counts subscribers removed by reason.
	HubEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "thirdeye",
		Name:      "hub_evictions_total",
		Help:      "Subscribers removed by the hub.",
	}, []string{"reason"})
)

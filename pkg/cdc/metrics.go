package cdc

import "github.com/prometheus/client_golang/prometheus"

var (
	recordsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "olake",
		Subsystem: "cdc",
		Name:      "change_events_total",
		Help:      "Data change events observed by partition readers.",
	})

	heartbeatsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "olake",
		Subsystem: "cdc",
		Name:      "heartbeats_total",
		Help:      "Heartbeat events observed by partition readers.",
	})

	stopsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "olake",
		Subsystem: "cdc",
		Name:      "stops_total",
		Help:      "Engine stop requests by reason.",
	}, []string{"reason"})
)

// InitMetrics registers the partition reader metrics
func InitMetrics(registry prometheus.Registerer) {
	registry.MustRegister(recordsTotal)
	registry.MustRegister(heartbeatsTotal)
	registry.MustRegister(stopsTotal)
}

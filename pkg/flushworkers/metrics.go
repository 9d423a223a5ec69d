package flushworkers

import (
	"sync"

	"github.com/datazip-inc/olake-cdc/types"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	runningWorkersGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "olake",
			Subsystem: "flush_workers",
			Name:      "running",
			Help:      "Number of in-flight flush workers per stream.",
		}, []string{"stream"})

	inFlightBytesGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "olake",
			Subsystem: "flush_workers",
			Name:      "in_flight_bytes",
			Help:      "Known bytes held by in-flight flush workers per stream.",
		}, []string{"stream"})

	unknownSizeGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "olake",
			Subsystem: "flush_workers",
			Name:      "unknown_batch_size",
			Help:      "Number of flush workers that have not pulled their batch yet per stream.",
		}, []string{"stream"})

	metricsMu sync.Mutex
)

// InitMetrics registers the flush worker metrics
func InitMetrics(registry prometheus.Registerer) {
	registry.MustRegister(runningWorkersGauge)
	registry.MustRegister(inFlightBytesGauge)
	registry.MustRegister(unknownSizeGauge)
}

func updateMetrics(snapshot map[types.StreamDescriptor]StreamSummary) {
	metricsMu.Lock()
	defer metricsMu.Unlock()

	runningWorkersGauge.Reset()
	inFlightBytesGauge.Reset()
	unknownSizeGauge.Reset()
	for stream, summary := range snapshot {
		runningWorkersGauge.WithLabelValues(stream.ID()).Set(float64(summary.Workers))
		inFlightBytesGauge.WithLabelValues(stream.ID()).Set(float64(summary.KnownBytes))
		unknownSizeGauge.WithLabelValues(stream.ID()).Set(float64(summary.UnknownSizes))
	}
}

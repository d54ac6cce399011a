// Package metrics holds the prometheus collectors for frame buffers,
// ingest cores and the sampler, plus the server exposing them.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "framerelay"

var (
	FramesWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "buffer",
		Name:      "frames_written_total",
		Help:      "Frames written into ring buffers.",
	}, []string{"kind"})

	FramesRead = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "buffer",
		Name:      "frames_read_total",
		Help:      "Frames read out of ring buffers.",
	}, []string{"kind"})

	FramesEvicted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "buffer",
		Name:      "frames_evicted_total",
		Help:      "Unread frames dropped to admit a newer write.",
	}, []string{"kind"})

	FramesDiscarded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "frames_discarded_total",
		Help:      "Decoded chunks discarded for not matching the source geometry.",
	}, []string{"source"})

	DecodeFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "decode_failures_total",
		Help:      "Decode sessions which ended with an error.",
	}, []string{"source"})

	ActiveSources = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "sources",
		Help:      "Sources currently held by the registry.",
	})

	SamplerCycles = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sampler",
		Name:      "cycles_total",
		Help:      "Completed sampling cycles.",
	})

	SamplerFaults = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sampler",
		Name:      "faults_total",
		Help:      "Sampling cycles aborted by a recovered fault.",
	})
)

func init() {
	prometheus.MustRegister(
		FramesWritten, FramesRead, FramesEvicted,
		FramesDiscarded, DecodeFailures, ActiveSources,
		SamplerCycles, SamplerFaults,
	)
}

// ForgetSource drops the per source series once a source is deleted.
func ForgetSource(id string) {
	FramesDiscarded.DeleteLabelValues(id)
	DecodeFailures.DeleteLabelValues(id)
}

// Package metrics registers the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Drop reasons for StreamFramesDropped.
const (
	DropReasonDecode       = "decode"
	DropReasonOversize     = "oversize"
	DropReasonBackpressure = "backpressure"
)

var (
	// DiscreteRuns counts discrete script executions by terminal status
	// (ok, spawn_failed, nonzero_exit, malformed_output, timeout).
	DiscreteRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gymbridge_discrete_runs_total",
			Help: "Total number of discrete script executions",
		},
		[]string{"script", "status"},
	)

	// StreamFrames counts frames decoded and republished per stream id.
	StreamFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gymbridge_stream_frames_total",
			Help: "Total number of stream frames delivered to the fan-out hub",
		},
		[]string{"stream_id"},
	)

	// StreamFramesDropped counts frames discarded instead of delivered.
	StreamFramesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gymbridge_stream_frames_dropped_total",
			Help: "Total number of stream frames dropped, by reason",
		},
		[]string{"reason"},
	)

	// StreamRestarts counts automatic restarts of crashed streaming scripts.
	StreamRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gymbridge_stream_restarts_total",
			Help: "Total number of automatic streaming script restarts",
		},
		[]string{"script"},
	)
)

func init() {
	prometheus.MustRegister(
		DiscreteRuns,
		StreamFrames,
		StreamFramesDropped,
		StreamRestarts,
	)
}

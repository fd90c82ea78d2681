// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesCapturedTotal counts frames read from the capture handle by interface
	FramesCapturedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netscope_frames_captured_total",
			Help: "Total number of frames read from the capture handle",
		},
		[]string{"interface"},
	)

	// RecordsDeliveredTotal counts records handed to the registered sink
	RecordsDeliveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netscope_records_delivered_total",
			Help: "Total number of decoded records delivered to the sink",
		},
		[]string{"interface"},
	)

	// DecodeFailuresTotal counts frames that could not be decoded
	DecodeFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netscope_decode_failures_total",
			Help: "Total number of frames that failed to decode",
		},
		[]string{"interface"},
	)

	// RecordsDroppedTotal counts records evicted by delivery channel overflow
	RecordsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netscope_records_dropped_total",
			Help: "Total number of records dropped by delivery channel overflow",
		},
		[]string{"interface"},
	)

	// SessionStatus tracks the current capture session status
	SessionStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "netscope_session_status",
			Help: "Current capture session status (0=idle, 1=running, 2=failed)",
		},
	)
)

// SessionStatus gauge values
const (
	SessionStatusIdle    = 0
	SessionStatusRunning = 1
	SessionStatusFailed  = 2
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the project-local prometheus registry, exposed on the debug
// server's /metrics endpoint.
var Registry = prometheus.NewRegistry()

var (
	// LinkState tracks the current connection state (one-hot over states).
	LinkState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wayfinder_link_state",
			Help: "Current telemetry link state (1 for the active state, 0 otherwise).",
		},
		[]string{"state"},
	)

	// FramesReceivedTotal counts raw frames taken off the transport.
	FramesReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wayfinder_frames_received_total",
			Help: "Total number of raw frames received from the bridge.",
		},
	)

	// FramesDecodedTotal counts frames decoded into a typed event.
	FramesDecodedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wayfinder_frames_decoded_total",
			Help: "Total number of frames successfully decoded.",
		},
	)

	// FramesFailedTotal counts frames that failed to decode.
	FramesFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wayfinder_frames_failed_total",
			Help: "Total number of frames that failed to decode.",
		},
	)

	// ReconnectAttemptsTotal counts scheduled reconnect cycles.
	ReconnectAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wayfinder_reconnect_attempts_total",
			Help: "Total number of reconnect attempts scheduled.",
		},
	)

	// SamplesTotal counts canonical sensor records published, by source link.
	SamplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wayfinder_samples_total",
			Help: "Total number of sensor records published to subscribers.",
		},
		[]string{"source"},
	)
)

func init() {
	Registry.MustRegister(
		LinkState,
		FramesReceivedTotal,
		FramesDecodedTotal,
		FramesFailedTotal,
		ReconnectAttemptsTotal,
		SamplesTotal,
	)
}

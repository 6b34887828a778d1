package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors for Box Panel internals.
//
// Registered on the default registry; exposed by the API server at /metrics.
var (
	// ApplianceCalls counts HTTP calls to the appliance, labelled by outcome.
	// Outcome is "success", the appliance error_code, or a transport code.
	ApplianceCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "boxpanel",
		Subsystem: "appliance",
		Name:      "calls_total",
		Help:      "Number of HTTP calls made to the appliance API.",
	}, []string{"outcome"})

	// Logins counts login attempts against the appliance.
	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "boxpanel",
		Subsystem: "session",
		Name:      "logins_total",
		Help:      "Number of challenge-response login attempts.",
	}, []string{"outcome"})

	// PollTicks counts telemetry poll ticks, labelled by outcome
	// ("success" or "failure").
	PollTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "boxpanel",
		Subsystem: "telemetry",
		Name:      "poll_ticks_total",
		Help:      "Number of connection-status poll ticks.",
	}, []string{"outcome"})

	// Subscribers tracks the current number of push channel subscribers.
	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "boxpanel",
		Subsystem: "telemetry",
		Name:      "subscribers",
		Help:      "Current number of connected push channel subscribers.",
	})

	// SweepDisconnects counts subscribers force-closed by the liveness sweep.
	SweepDisconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "boxpanel",
		Subsystem: "telemetry",
		Name:      "sweep_disconnects_total",
		Help:      "Number of subscribers removed after failing two liveness sweeps.",
	})
)

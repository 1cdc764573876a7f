// Package metrics registers Prometheus collectors for the bot's runtime.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	FramesReceived      prometheus.Counter
	FramesDropped       prometheus.Counter
	FramesDeduplicated  prometheus.Counter
	Reconnects          prometheus.Counter
	ActionsSubmitted    *prometheus.CounterVec
	CommandsDispatched  *prometheus.CounterVec
	CommandErrors       prometheus.Counter
	Violations          *prometheus.CounterVec
	EnforcementFailures prometheus.Counter

	// Gauges
	ConnectedGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		FramesReceived = promauto.NewCounter(prometheus.CounterOpts{Name: "oopzbot_frames_received_total", Help: "Decoded inbound frames"})
		FramesDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "oopzbot_frames_dropped_total", Help: "Malformed inbound frames dropped"})
		FramesDeduplicated = promauto.NewCounter(prometheus.CounterOpts{Name: "oopzbot_frames_deduplicated_total", Help: "Inbound frames dropped as duplicates after reconnect"})
		Reconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "oopzbot_reconnects_total", Help: "Reconnect attempts"})
		ActionsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{Name: "oopzbot_actions_submitted_total", Help: "Signed outbound actions submitted"}, []string{"type"})
		CommandsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{Name: "oopzbot_commands_dispatched_total", Help: "Commands dispatched to handlers"}, []string{"command"})
		CommandErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "oopzbot_command_errors_total", Help: "Handler invocations that returned an error"})
		Violations = promauto.NewCounterVec(prometheus.CounterOpts{Name: "oopzbot_moderation_violations_total", Help: "Policy violations by detection stage"}, []string{"stage"})
		EnforcementFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "oopzbot_enforcement_failures_total", Help: "Enforcement actions that failed to submit"})
		ConnectedGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "oopzbot_connected", Help: "Gateway connection up=1 down=0"})
	})
}

// SetConnected sets the connection gauge to 1 if up else 0.
func SetConnected(up bool) {
	if ConnectedGauge == nil {
		return
	}
	if up {
		ConnectedGauge.Set(1)
	} else {
		ConnectedGauge.Set(0)
	}
}

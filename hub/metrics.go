package hub

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus instrumentation for the Hub's single event loop, grounded on
// the per-event gauge/counter/histogram trio other chat servers in the
// retrieved pack expose for their registries.
var (
	ConnectedSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatd_hub_connected_sessions",
		Help: "Number of sessions currently tracked by the hub.",
	})

	ActiveRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatd_hub_active_rooms",
		Help: "Number of rooms currently open (non-empty).",
	})

	CommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatd_hub_commands_total",
		Help: "Commands processed by the hub, by command and outcome.",
	}, []string{"command", "outcome"})

	CommandDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatd_hub_command_duration_seconds",
		Help:    "Time spent processing one hub event.",
		Buckets: prometheus.DefBuckets,
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(ConnectedSessions, ActiveRooms, CommandsTotal, CommandDuration)
}

func observe(command, outcome string, start time.Time) {
	CommandsTotal.WithLabelValues(command, outcome).Inc()
	CommandDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
}

package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics of the coordination layer, scraped from the monitoring
// server when metrics are enabled.
var (
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "holomesh_active_rooms",
		Help: "The number of currently tracked rooms.",
	})
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "holomesh_active_connections",
		Help: "The number of peer connections in the connected state.",
	})
	TrackedConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "holomesh_tracked_connections",
		Help: "The number of peer connections in any live state.",
	})
	QueuedMessages = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "holomesh_queued_signaling_messages",
		Help: "The number of signaling messages waiting for delivery.",
	})
	RoomJoins = promauto.NewCounter(prometheus.CounterOpts{
		Name: "holomesh_room_joins_total",
		Help: "The total number of successful room joins.",
	})
	ConnectOk = promauto.NewCounter(prometheus.CounterOpts{
		Name: "holomesh_connection_success_total",
		Help: "The total number of connections that reached the connected state.",
	})
	ConnectFail = promauto.NewCounter(prometheus.CounterOpts{
		Name: "holomesh_connection_failure_total",
		Help: "The total number of connections that ended in the failed state.",
	})
	SignalsRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "holomesh_signals_relayed_total",
		Help: "The total number of relayed signaling messages by kind.",
	}, []string{"kind"})
	SignalsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "holomesh_signals_dropped_total",
		Help: "The total number of signaling messages dropped on queue overflow.",
	})
	SignalsPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "holomesh_signals_purged_total",
		Help: "The total number of signaling messages purged by max age.",
	})
)

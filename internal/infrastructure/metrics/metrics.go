package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors holds the process-wide collaboration metrics. A single instance
// is created in main and shared by the session hub.
type Collectors struct {
	registry *prometheus.Registry

	ConnectedUsers  prometheus.Gauge
	ActiveRooms     prometheus.Gauge
	ActiveShares    prometheus.Gauge
	PendingRequests prometheus.Gauge

	MessagesRelayed   *prometheus.CounterVec
	AdmissionOutcomes *prometheus.CounterVec
	SnapshotWrites    *prometheus.CounterVec
}

func New() *Collectors {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collectors{
		registry: registry,
		ConnectedUsers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "collabd_connected_users",
			Help: "Number of currently connected users across all rooms.",
		}),
		ActiveRooms: factory.NewGauge(prometheus.GaugeOpts{
			Name: "collabd_active_rooms",
			Help: "Number of rooms with at least one connected member.",
		}),
		ActiveShares: factory.NewGauge(prometheus.GaugeOpts{
			Name: "collabd_active_screen_shares",
			Help: "Number of rooms with an active screen share.",
		}),
		PendingRequests: factory.NewGauge(prometheus.GaugeOpts{
			Name: "collabd_pending_join_requests",
			Help: "Number of join requests awaiting an admin decision.",
		}),
		MessagesRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "collabd_messages_relayed_total",
			Help: "Messages relayed to room members, by event name.",
		}, []string{"event"}),
		AdmissionOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "collabd_admission_outcomes_total",
			Help: "Join request outcomes.",
		}, []string{"outcome"}),
		SnapshotWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "collabd_snapshot_writes_total",
			Help: "Workspace snapshot persistence attempts.",
		}, []string{"status"}),
	}
}

func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

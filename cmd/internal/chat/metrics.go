package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the chat subsystem's prometheus collectors.
// A nil *Metrics is valid and records nothing, which keeps tests quiet.
type Metrics struct {
	connectionsOpen   *prometheus.GaugeVec
	eventsTotal       *prometheus.CounterVec
	eventsDropped     *prometheus.CounterVec
	broadcastsDropped prometheus.Counter
	storeFailures     *prometheus.CounterVec
}

// NewMetrics registers the chat collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		connectionsOpen: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tienda",
			Subsystem: "chat",
			Name:      "connections_open",
			Help:      "Open websocket connections by role.",
		}, []string{"role"}),
		eventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tienda",
			Subsystem: "chat",
			Name:      "events_total",
			Help:      "Inbound chat events by type.",
		}, []string{"type"}),
		eventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tienda",
			Subsystem: "chat",
			Name:      "events_dropped_total",
			Help:      "Inbound events dropped without effect, by reason.",
		}, []string{"reason"}),
		broadcastsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "tienda",
			Subsystem: "chat",
			Name:      "broadcasts_dropped_total",
			Help:      "Per-member fanout drops under backpressure.",
		}),
		storeFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tienda",
			Subsystem: "chat",
			Name:      "store_failures_total",
			Help:      "Message store failures by operation.",
		}, []string{"op"}),
	}
}

func (m *Metrics) connOpened(role string) {
	if m == nil {
		return
	}
	m.connectionsOpen.WithLabelValues(role).Inc()
}

func (m *Metrics) connClosed(role string) {
	if m == nil {
		return
	}
	m.connectionsOpen.WithLabelValues(role).Dec()
}

func (m *Metrics) event(typ string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(typ).Inc()
}

func (m *Metrics) eventDropped(reason string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) broadcastDropped() {
	if m == nil {
		return
	}
	m.broadcastsDropped.Inc()
}

func (m *Metrics) storeFailure(op string) {
	if m == nil {
		return
	}
	m.storeFailures.WithLabelValues(op).Inc()
}

package projector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Event outcomes.
const (
	OutcomeApplied   = "applied"
	OutcomeSkipped   = "skipped"
	OutcomePermanent = "permanent_error"
	OutcomeTransient = "transient_error"
)

// Metrics provides observability for event projection.
type Metrics struct {
	// Events handled by circuit and outcome
	Events *prometheus.CounterVec

	// Entity rows by change kind
	Changes *prometheus.CounterVec

	// Notifications written by type, without the entity name
	Notifications *prometheus.CounterVec
}

// NewMetrics registers projector metrics with reg. A nil reg registers
// with the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gameroom_projector_events_total",
			Help: "State change events handled by circuit and outcome",
		}, []string{"circuit", "outcome"}),

		Changes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gameroom_projector_changes_total",
			Help: "Projected entity rows by change kind",
		}, []string{"kind"}), // kind: "created", "updated", "unchanged"

		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gameroom_projector_notifications_total",
			Help: "Notifications written by type",
		}, []string{"type"}),
	}
}

func (m *Metrics) event(circuit, outcome string) {
	if m != nil {
		m.Events.WithLabelValues(circuit, outcome).Inc()
	}
}

func (m *Metrics) change(kind string) {
	if m != nil {
		m.Changes.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) notification(typ string) {
	if m != nil {
		m.Notifications.WithLabelValues(typ).Inc()
	}
}

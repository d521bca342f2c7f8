// Package metrics exposes Prometheus instruments for the reservation engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cimillas/ticket-inventory/internal/domain"
)

const namespace = "ticket_inventory"

// Claim outcomes.
const (
	ClaimClaimed       = "claimed"
	ClaimExhausted     = "exhausted"
	ClaimOutsideWindow = "outside_window"
	ClaimError         = "error"
)

type Metrics struct {
	claims       *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	sweeps       *prometheus.CounterVec
	expired      prometheus.Counter
	units        *prometheus.GaugeVec
	notifyErrors prometheus.Counter
}

// New registers the engine's instruments with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		claims: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_total",
			Help:      "Inventory claim attempts by outcome",
		}, []string{"outcome"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registration_transitions_total",
			Help:      "Committed registration transitions",
		}, []string{"to", "reason"}),
		sweeps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaper_sweeps_total",
			Help:      "Expiry reaper sweeps by result",
		}, []string{"result"}),
		expired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaper_expired_total",
			Help:      "Registrations cancelled by the expiry reaper",
		}),
		units: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inventory_units",
			Help:      "Inventory units per ticket type and state, as of the last status query",
		}, []string{"ticket_type_id", "state"}),
		notifyErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_errors_total",
			Help:      "Failed inventory change notifications",
		}),
	}
}

func (m *Metrics) Claim(outcome string) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Transition(to domain.RegistrationStatus, reason domain.CancelReason) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(to), string(reason)).Inc()
}

func (m *Metrics) Sweep(expired int, failed bool) {
	if m == nil {
		return
	}
	result := "ok"
	if failed {
		result = "error"
	}
	m.sweeps.WithLabelValues(result).Inc()
	m.expired.Add(float64(expired))
}

func (m *Metrics) InventoryStatus(s domain.InventoryStatus) {
	if m == nil {
		return
	}
	counts := map[domain.UnitState]int{
		domain.UnitAvailable: s.Available,
		domain.UnitReserved:  s.Reserved,
		domain.UnitSold:      s.Sold,
		domain.UnitUsed:      s.Used,
		domain.UnitCancelled: s.Cancelled,
	}
	for state, n := range counts {
		m.units.WithLabelValues(s.TicketTypeID, string(state)).Set(float64(n))
	}
}

func (m *Metrics) NotifyError() {
	if m == nil {
		return
	}
	m.notifyErrors.Inc()
}

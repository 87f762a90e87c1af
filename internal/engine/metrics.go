package engine

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts what the match engine does.
type Metrics struct {
	Orders        *prometheus.CounterVec
	Rejects       *prometheus.CounterVec
	Fills         prometheus.Counter
	FilledQty     prometheus.Counter
	Cancels       prometheus.Counter
	SelfTrades    prometheus.Counter
	EventsDropped prometheus.Counter
}

// NewMetrics registers the engine counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Orders: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_orders_total",
				Help: "Orders accepted by the match engine.",
			},
			[]string{"side", "type", "tif"},
		),
		Rejects: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_orders_rejected_total",
				Help: "Orders rejected by the match engine, by reason.",
			},
			[]string{"reason"},
		),
		Fills: factory.NewCounter(prometheus.CounterOpts{
			Name: "engine_fills_total",
			Help: "Fills produced by the match engine.",
		}),
		FilledQty: factory.NewCounter(prometheus.CounterOpts{
			Name: "engine_filled_qty_total",
			Help: "Quantity traded across all fills.",
		}),
		Cancels: factory.NewCounter(prometheus.CounterOpts{
			Name: "engine_cancels_total",
			Help: "Resting orders canceled on request.",
		}),
		SelfTrades: factory.NewCounter(prometheus.CounterOpts{
			Name: "engine_self_trades_prevented_total",
			Help: "Matches skipped by self-trade prevention.",
		}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "engine_events_dropped_total",
			Help: "Events dropped because the event bus was full.",
		}),
	}
}

func (m *Metrics) order(o Order) {
	if m == nil {
		return
	}
	m.Orders.WithLabelValues(o.Side.String(), o.Type.String(), o.TIF.String()).Inc()
}

func (m *Metrics) reject(err error) {
	if m == nil {
		return
	}
	m.Rejects.WithLabelValues(rejectReason(err)).Inc()
}

func (m *Metrics) match(r MatchResult) {
	if m == nil {
		return
	}
	m.Fills.Add(float64(len(r.Fills)))
	m.FilledQty.Add(float64(r.FilledQty()))
	m.SelfTrades.Add(float64(len(r.STPCanceled)))
}

func (m *Metrics) cancel() {
	if m == nil {
		return
	}
	m.Cancels.Inc()
}

func (m *Metrics) dropped() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidQty):
		return "invalid_qty"
	case errors.Is(err, ErrInvalidPrice):
		return "invalid_price"
	case errors.Is(err, ErrDuplicateOrder):
		return "duplicate_id"
	case errors.Is(err, ErrUnknownOrder):
		return "unknown_order"
	case errors.Is(err, ErrNotOwner):
		return "not_owner"
	case errors.Is(err, ErrFOKUnfilled):
		return "fok_unfilled"
	}
	return "other"
}

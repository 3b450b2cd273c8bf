// Package metrics exposes Prometheus collectors for order placement,
// bracket outcomes and reconciliation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bracket_trader"

// Order outcomes recorded per attempt.
const (
	OutcomeAccepted  = "accepted"
	OutcomeTransport = "transport"
	OutcomeRejected  = "rejected"
	OutcomeNoOrderID = "no_order_id"
)

// OrderAttempts counts brokerage submissions by leg role and outcome.
var OrderAttempts = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "execution",
		Name:      "order_attempts_total",
		Help:      "Order submissions by leg role and outcome",
	},
	[]string{"role", "outcome"},
)

// MarketFallbacks counts entries re-sent as market orders after a restriction rejection.
var MarketFallbacks = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "execution",
		Name:      "market_fallbacks_total",
		Help:      "Entries re-sent as market orders after a restriction rejection",
	},
	[]string{"result"}, // accepted, failed
)

// Brackets counts bracket groups by the state placement left them in.
var Brackets = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "execution",
		Name:      "brackets_total",
		Help:      "Bracket groups by placement outcome",
	},
	[]string{"state"},
)

// Cancels counts sibling cancellations issued by the reconciler.
var Cancels = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "cancels_total",
		Help:      "Sibling cancellations by outcome",
	},
	[]string{"role", "result"},
)

// GroupsClosed counts groups closed by the reconciler, by reason.
var GroupsClosed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "groups_closed_total",
		Help:      "Bracket groups closed by reason",
	},
	[]string{"reason"},
)

// ReconcileCycles counts reconciliation passes.
var ReconcileCycles = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "cycles_total",
		Help:      "Reconciliation passes by result",
	},
	[]string{"result"}, // ok, snapshot_error
)

// LiveGroups is the number of bracket groups awaiting reconciliation.
var LiveGroups = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "live_groups",
		Help:      "Bracket groups awaiting reconciliation",
	},
)

// Signals counts breakout signals by side.
var Signals = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "strategy",
		Name:      "signals_total",
		Help:      "Breakout signals by side",
	},
	[]string{"side"},
)

// TradeCapital is the capital figure last used for sizing.
var TradeCapital = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "trade_capital_inr",
		Help:      "Capital last reported by the broker",
	},
)

package reconcile

import (
	"context"

	"github.com/rs/zerolog"

	"bracket-trader/internal/broker"
	"bracket-trader/internal/logging"
	"bracket-trader/internal/metrics"
	"bracket-trader/internal/models"
)

// Close reasons.
const (
	ReasonStopLossHit    = "stop-loss filled"
	ReasonTargetHit      = "target filled"
	ReasonBothFilled     = "both protective legs filled"
	ReasonExternalCancel = "protective legs cancelled or rejected"
)

// Report summarises one reconciliation pass.
type Report struct {
	Checked        int
	Cancelled      []string // order ids
	CancelFailures int
	Breaches       int
	Closed         []*models.BracketGroup
}

// Reconciler cancels the surviving protective leg once its sibling fills.
type Reconciler struct {
	broker broker.Broker
	logger zerolog.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(b broker.Broker, logger zerolog.Logger) *Reconciler {
	return &Reconciler{broker: b, logger: logging.WithComponent(logger, "reconciler")}
}

// Cycle fetches a fresh order book, reconciles every live group in book and
// drops the groups that turned terminal. On a snapshot error nothing changes.
func (r *Reconciler) Cycle(ctx context.Context, book *Book) (Report, error) {
	rows, err := r.broker.GetOrderBook(ctx)
	if err != nil {
		metrics.ReconcileCycles.WithLabelValues("snapshot_error").Inc()
		r.logger.Warn().Err(err).Msg("order book unavailable, skipping reconciliation")
		return Report{}, err
	}

	var report Report
	closed := book.update(func(groups []*models.BracketGroup) {
		report = r.Reconcile(ctx, groups, rows)
	})
	report.Closed = closed

	metrics.ReconcileCycles.WithLabelValues("ok").Inc()
	return report, nil
}

// Reconcile applies snapshot to groups. Rows are matched to legs strictly
// by order id. Terminal groups and groups without both protective legs are
// skipped, so reconciling the same snapshot twice cancels nothing new.
func (r *Reconciler) Reconcile(ctx context.Context, groups []*models.BracketGroup, snapshot []models.OrderRow) Report {
	byID := make(map[string]models.OrderRow, len(snapshot))
	for _, row := range snapshot {
		byID[row.OrderID] = row
	}

	var report Report
	for _, g := range groups {
		if g.Terminal() || !g.Protected() {
			continue
		}
		report.Checked++

		for _, leg := range []*models.OrderLeg{g.Entry, g.StopLoss, g.Target} {
			if leg == nil {
				continue
			}
			// A leg missing from this snapshot is unknown, not its last status.
			leg.Status = models.LegPending
			if row, ok := byID[leg.OrderID]; ok {
				leg.Status = row.LegStatus()
			}
		}

		r.reconcileGroup(ctx, g, &report)
		if g.Terminal() {
			report.Closed = append(report.Closed, g)
		}
	}

	return report
}

func (r *Reconciler) reconcileGroup(ctx context.Context, g *models.BracketGroup, report *Report) {
	log := logging.WithGroup(logging.WithSymbol(r.logger, g.Symbol), g.ID)
	sl, tg := g.StopLoss, g.Target

	switch {
	case sl.Status == models.LegFilled && tg.Status == models.LegFilled:
		report.Breaches++
		log.Error().
			Str("stoploss_order_id", sl.OrderID).
			Str("target_order_id", tg.OrderID).
			Msg("both protective legs filled, position may be reversed")
		r.close(log, g, ReasonBothFilled)

	case sl.Status == models.LegFilled:
		r.settle(ctx, log, g, tg, ReasonStopLossHit, report)

	case tg.Status == models.LegFilled:
		r.settle(ctx, log, g, sl, ReasonTargetHit, report)

	case sl.Status.Terminal() && tg.Status.Terminal():
		r.close(log, g, ReasonExternalCancel)
	}
}

// settle handles a filled leg: the sibling is cancelled if still open.
func (r *Reconciler) settle(ctx context.Context, log zerolog.Logger, g *models.BracketGroup, sibling *models.OrderLeg, reason string, report *Report) {
	switch sibling.Status {
	case models.LegOpen:
		legLog := logging.WithOrderID(log, sibling.OrderID)
		if err := r.broker.CancelOrder(ctx, sibling.OrderID); err != nil {
			report.CancelFailures++
			metrics.Cancels.WithLabelValues(string(sibling.Role), "failed").Inc()
			legLog.Warn().Err(err).
				Str("role", string(sibling.Role)).
				Msg("cancel failed, will retry next cycle")
			return
		}
		report.Cancelled = append(report.Cancelled, sibling.OrderID)
		metrics.Cancels.WithLabelValues(string(sibling.Role), "ok").Inc()
		legLog.Info().
			Str("role", string(sibling.Role)).
			Msg("cancelled sibling order")
		r.close(log, g, reason)

	case models.LegCancelled, models.LegRejected:
		r.close(log, g, reason)

	default:
		// Sibling not visible in the snapshot yet.
		log.Debug().Str("role", string(sibling.Role)).Str("status", string(sibling.Status)).Msg("waiting for sibling status")
	}
}

func (r *Reconciler) close(log zerolog.Logger, g *models.BracketGroup, reason string) {
	g.Close(reason)
	metrics.GroupsClosed.WithLabelValues(reason).Inc()
	logging.LogBracket(log, g.ID, g.Symbol, string(g.State), reason)
}

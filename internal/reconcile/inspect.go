package reconcile

import (
	"bracket-trader/internal/models"
)

// Action is what a reconciliation pass would do with a group.
type Action string

const (
	ActionNone           Action = "none"
	ActionCancelStopLoss Action = "cancel stop-loss"
	ActionCancelTarget   Action = "cancel target"
	ActionClose          Action = "close"
	ActionBreach         Action = "breach"
)

// Finding is the read-only reconciliation view of one group.
type Finding struct {
	GroupID  string
	Symbol   string
	Entry    models.LegStatus
	StopLoss models.LegStatus
	Target   models.LegStatus
	Action   Action
}

// Inspect reports what Reconcile would do for each group against snapshot
// without cancelling anything or changing the groups.
func Inspect(groups []models.BracketGroup, snapshot []models.OrderRow) []Finding {
	byID := make(map[string]models.OrderRow, len(snapshot))
	for _, row := range snapshot {
		byID[row.OrderID] = row
	}

	status := func(leg *models.OrderLeg) models.LegStatus {
		if leg == nil || leg.OrderID == "" {
			return models.LegPending
		}
		if row, ok := byID[leg.OrderID]; ok {
			return row.LegStatus()
		}
		return models.LegPending
	}

	findings := make([]Finding, 0, len(groups))
	for i := range groups {
		g := &groups[i]
		f := Finding{
			GroupID:  g.ID,
			Symbol:   g.Symbol,
			Entry:    status(g.Entry),
			StopLoss: status(g.StopLoss),
			Target:   status(g.Target),
			Action:   ActionNone,
		}

		if g.Protected() {
			f.Action = plan(f.StopLoss, f.Target)
		}
		findings = append(findings, f)
	}
	return findings
}

func plan(sl, tg models.LegStatus) Action {
	switch {
	case sl == models.LegFilled && tg == models.LegFilled:
		return ActionBreach
	case sl == models.LegFilled:
		return settleAction(tg, ActionCancelTarget)
	case tg == models.LegFilled:
		return settleAction(sl, ActionCancelStopLoss)
	case sl.Terminal() && tg.Terminal():
		return ActionClose
	}
	return ActionNone
}

func settleAction(sibling models.LegStatus, cancel Action) Action {
	switch sibling {
	case models.LegOpen:
		return cancel
	case models.LegCancelled, models.LegRejected:
		return ActionClose
	}
	return ActionNone
}

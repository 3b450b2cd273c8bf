package trading

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"bracket-trader/internal/models"
	"bracket-trader/internal/store"
	"bracket-trader/internal/strategy"
	"bracket-trader/pkg/utils"
)

// Journal event names.
const (
	EventSubmitted = "SUBMITTED"
	EventFailed    = "SUBMIT_FAILED"
	EventFallback  = "MARKET_FALLBACK"
	EventClosed    = "CLOSED"
)

// orderIDs joins the entry, stop-loss and target ids in that order. Legs
// without an id leave an empty slot.
func orderIDs(g *models.BracketGroup) string {
	ids := make([]string, 3)
	for i, leg := range []*models.OrderLeg{g.Entry, g.StopLoss, g.Target} {
		if leg != nil {
			ids[i] = leg.OrderID
		}
	}
	return strings.Join(ids, ",")
}

// recordPlacement journals a placement attempt. Journal failures are logged
// and never affect trading.
func (s *Session) recordPlacement(ctx context.Context, g *models.BracketGroup, sig strategy.Signal) {
	if s.journal == nil || g == nil {
		return
	}

	trade := &models.Trade{
		ID:         uuid.NewString(),
		GroupID:    g.ID,
		Timestamp:  s.now(),
		Symbol:     g.Symbol,
		Side:       g.Side,
		Quantity:   g.Quantity,
		EntryPrice: g.Levels.Entry,
		StopPrice:  g.Levels.Stop,
		Target:     g.Levels.Target,
		SignalPx:   sig.Close,
		State:      string(g.State),
		Reason:     g.Reason,
		OrderIDs:   orderIDs(g),
		IsPaper:    s.cfg.Paper,
	}
	if err := s.journal.LogTrade(ctx, trade); err != nil {
		s.logger.Error().Err(err).Str("group_id", g.ID).Msg("failed to journal trade")
	}

	for _, leg := range []*models.OrderLeg{g.Entry, g.StopLoss, g.Target} {
		if leg == nil {
			continue
		}
		event := EventSubmitted
		detail := ""
		switch {
		case !leg.Submitted():
			event = EventFailed
			detail = leg.LastError
		case leg.Fallback:
			event = EventFallback
		}
		s.event(ctx, g, event, leg.Role, leg.OrderID, detail)
	}
	s.event(ctx, g, string(g.State), "", "", g.Reason)
}

func (s *Session) recordClosed(ctx context.Context, g *models.BracketGroup) {
	s.event(ctx, g, EventClosed, "", "", g.Reason)
}

func (s *Session) event(ctx context.Context, g *models.BracketGroup, name string, role models.LegRole, orderID, detail string) {
	if s.journal == nil {
		return
	}
	err := s.journal.RecordEvent(ctx, &models.BracketEvent{
		GroupID:   g.ID,
		Timestamp: s.now(),
		Symbol:    g.Symbol,
		Event:     name,
		Role:      role,
		OrderID:   orderID,
		Detail:    detail,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("group_id", g.ID).Str("event", name).Msg("failed to journal event")
	}
}

// LogPnL records today's PnL for every position, including those already
// squared off.
func (s *Session) LogPnL(ctx context.Context) ([]models.DailyPnL, error) {
	positions, err := s.client.GetPositions(ctx)
	if err != nil {
		return nil, err
	}

	date := s.now().In(utils.IndiaLocation).Format("2006-01-02")
	rows := make([]models.DailyPnL, 0, len(positions))
	var total float64
	for _, p := range positions {
		rows = append(rows, models.DailyPnL{Date: date, Symbol: p.Symbol, Quantity: p.Quantity, PnL: p.PnL})
		total += p.PnL
		s.logger.Info().
			Str("symbol", p.Symbol).
			Int("quantity", p.Quantity).
			Str("pnl", utils.FormatPnL(p.PnL)).
			Msg("position pnl")
	}
	s.logger.Info().Str("total", utils.FormatPnL(total)).Int("positions", len(rows)).Msg("day pnl")

	if s.journal != nil && len(rows) > 0 {
		if err := s.journal.SaveDailyPnL(ctx, rows); err != nil {
			return rows, err
		}
	}
	return rows, nil
}

// LoadGroups rebuilds the brackets journaled on day for read-only
// inspection. The groups are not reconciled or tracked.
func LoadGroups(ctx context.Context, journal store.Journal, day time.Time) ([]models.BracketGroup, error) {
	from := utils.ClockTime{}.On(day)
	trades, err := journal.GetTrades(ctx, store.TradeFilter{StartDate: from, EndDate: from.AddDate(0, 0, 1)})
	if err != nil {
		return nil, err
	}

	groups := make([]models.BracketGroup, 0, len(trades))
	for _, t := range trades {
		ids := strings.Split(t.OrderIDs, ",")
		for len(ids) < 3 {
			ids = append(ids, "")
		}

		leg := func(role models.LegRole, side models.OrderSide, id string) *models.OrderLeg {
			l := &models.OrderLeg{Role: role, Side: side, Symbol: t.Symbol, Quantity: t.Quantity, OrderID: id, Status: models.LegPending, SubmitState: models.SubmitFailed}
			if id != "" {
				l.SubmitState = models.Submitted
			}
			return l
		}

		groups = append(groups, models.BracketGroup{
			ID:        t.GroupID,
			Symbol:    t.Symbol,
			Side:      t.Side,
			Quantity:  t.Quantity,
			Levels:    models.PriceLevels{Entry: t.EntryPrice, Stop: t.StopPrice, Target: t.Target},
			Entry:     leg(models.RoleEntry, t.Side, ids[0]),
			StopLoss:  leg(models.RoleStopLoss, t.Side.Opposite(), ids[1]),
			Target:    leg(models.RoleTarget, t.Side.Opposite(), ids[2]),
			State:     models.GroupState(t.State),
			Reason:    t.Reason,
			CreatedAt: t.Timestamp,
		})
	}
	return groups, nil
}

// Package store provides the trade journal.
package store

import (
	"context"
	"time"

	"bracket-trader/internal/models"
)

// Journal is an append-only audit trail of bracket placements, their state
// changes and end-of-day PnL. Live bracket state is never rebuilt from it.
type Journal interface {
	// Trades
	LogTrade(ctx context.Context, trade *models.Trade) error
	GetTrades(ctx context.Context, filter TradeFilter) ([]models.Trade, error)

	// Bracket events
	RecordEvent(ctx context.Context, event *models.BracketEvent) error
	GetEvents(ctx context.Context, groupID string) ([]models.BracketEvent, error)

	// Daily PnL
	SaveDailyPnL(ctx context.Context, rows []models.DailyPnL) error
	GetDailyPnL(ctx context.Context, date string) ([]models.DailyPnL, error)

	// Lifecycle
	Close() error
}

// TradeFilter represents filters for querying trades.
type TradeFilter struct {
	Symbol    string
	StartDate time.Time
	EndDate   time.Time
	Side      string
	IsPaper   *bool
	Limit     int
}

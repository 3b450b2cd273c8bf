// Package trading runs the intraday opening range breakout session.
package trading

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"bracket-trader/internal/broker"
	"bracket-trader/internal/execution"
	"bracket-trader/internal/logging"
	"bracket-trader/internal/metrics"
	"bracket-trader/internal/models"
	"bracket-trader/internal/reconcile"
	"bracket-trader/internal/risk"
	"bracket-trader/internal/store"
	"bracket-trader/internal/strategy"
	"bracket-trader/pkg/utils"
)

// ErrNotTradingDay is returned by Run on weekends.
var ErrNotTradingDay = errors.New("not a trading day")

// errTargetBelowZero marks a short bracket whose target sizes to zero or less.
var errTargetBelowZero = errors.New("target at or below zero")

// Skip reasons reported by a cycle.
const (
	SkipNoRange     = "no opening range"
	SkipTraded      = "already traded today"
	SkipLiveBracket = "live bracket"
	SkipBusy        = "position or open order"
	SkipNoTarget    = "target at or below zero"
)

// Config holds the session parameters.
type Config struct {
	Exchange        models.Exchange
	Tickers         []string
	Risk            models.RiskParameters
	RangeEnd        utils.ClockTime
	VolumeLookback  int
	EntryOffset     float64
	StopPct         float64
	Start           utils.ClockTime
	End             utils.ClockTime
	PollingInterval time.Duration
	Paper           bool
}

// DefaultConfig returns the 09:20 to 15:10 NSE session on 5-minute cycles.
func DefaultConfig() Config {
	return Config{
		Exchange:        models.NSE,
		Risk:            models.DefaultRiskParameters(),
		RangeEnd:        utils.ClockTime{Hour: 9, Minute: 19},
		VolumeLookback:  10,
		EntryOffset:     1.0,
		StopPct:         0.02,
		Start:           utils.ClockTime{Hour: 9, Minute: 20},
		End:             utils.ClockTime{Hour: 15, Minute: 10},
		PollingInterval: 5 * time.Minute,
	}
}

// CycleReport summarises one pass over the watch list.
type CycleReport struct {
	Reconcile reconcile.Report
	Signals   int
	Placed    []*models.BracketGroup
	Skipped   map[string]string
}

// priceRefresher is implemented by simulated brokers that need prices
// pushed into them for resting orders to fill.
type priceRefresher interface {
	RefreshPrices(ctx context.Context) error
}

// Session drives one trading day: opening ranges, breakout scans, bracket
// placement and OCO reconciliation on wall-clock aligned cycles.
type Session struct {
	client     broker.Client
	journal    store.Journal
	executor   *execution.Executor
	reconciler *reconcile.Reconciler
	fetcher    *strategy.Fetcher
	book       *reconcile.Book
	cfg        Config

	instruments models.InstrumentList
	ranges      map[string]strategy.Range
	traded      map[string]bool

	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	logger zerolog.Logger
}

// NewSession creates a session. journal may be nil.
func NewSession(client broker.Client, journal store.Journal, cfg Config, execCfg execution.Config, fetchCfg strategy.FetchConfig, logger zerolog.Logger) *Session {
	tickers := make([]string, 0, len(cfg.Tickers))
	seen := make(map[string]bool)
	for _, t := range cfg.Tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" && !seen[t] {
			seen[t] = true
			tickers = append(tickers, t)
		}
	}
	cfg.Tickers = tickers
	if cfg.PollingInterval <= 0 {
		cfg.PollingInterval = 5 * time.Minute
	}

	return &Session{
		client:     client,
		journal:    journal,
		executor:   execution.NewExecutor(client, execCfg, logger),
		reconciler: reconcile.NewReconciler(client, logger),
		fetcher:    strategy.NewFetcher(client, fetchCfg, logger),
		book:       reconcile.NewBook(),
		cfg:        cfg,
		ranges:     make(map[string]strategy.Range),
		traded:     make(map[string]bool),
		now:        time.Now,
		sleep:      utils.Sleep,
		logger:     logging.WithComponent(logger, "session"),
	}
}

// Book returns the live bracket groups.
func (s *Session) Book() *reconcile.Book {
	return s.book
}

// Ranges returns the opening ranges computed by Prepare.
func (s *Session) Ranges() map[string]strategy.Range {
	out := make(map[string]strategy.Range, len(s.ranges))
	for k, v := range s.ranges {
		out[k] = v
	}
	return out
}

// Run trades the day: it waits for the session start, computes opening
// ranges, runs a cycle on every polling boundary until the session end and
// finishes with a last reconciliation and the day's PnL. Cancelling ctx
// stops the loop between cycles.
func (s *Session) Run(ctx context.Context) error {
	now := s.now()
	if !utils.IsTradingDay(now) {
		return ErrNotTradingDay
	}

	end := s.cfg.End.On(now)
	if !now.Before(end) {
		return fmt.Errorf("session ended at %s", s.cfg.End)
	}

	if err := s.waitUntil(ctx, s.cfg.Start.On(now)); err != nil {
		return err
	}

	if err := s.Prepare(ctx); err != nil {
		return err
	}

	for ctx.Err() == nil {
		if _, err := s.Cycle(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("cycle incomplete")
		}

		next := utils.NextBoundary(s.now(), s.cfg.PollingInterval)
		if !next.Before(end) {
			break
		}
		if err := s.waitUntil(ctx, next); err != nil {
			break
		}
	}

	_, err := s.Finish(context.WithoutCancel(ctx))
	return err
}

// Prepare loads the instrument list and the opening range of every ticker.
func (s *Session) Prepare(ctx context.Context) error {
	log := logging.WithOperation(s.logger, "prepare")

	instruments, err := s.client.GetInstruments(ctx, s.cfg.Exchange)
	if err != nil {
		log.Warn().Err(err).Msg("instrument list unavailable, using default tick size")
	}
	s.instruments = models.NewInstrumentList(instruments)

	s.ranges = s.fetcher.OpeningRanges(ctx, s.cfg.Exchange, s.cfg.Tickers, s.now(), s.cfg.RangeEnd)
	if len(s.ranges) == 0 {
		return fmt.Errorf("no opening ranges for %d tickers", len(s.cfg.Tickers))
	}

	for symbol, r := range s.ranges {
		log.Info().
			Str("symbol", symbol).
			Float64("high", r.High).
			Float64("low", r.Low).
			Msg("opening range")
	}
	return nil
}

// Cycle reconciles live brackets and scans every eligible ticker once.
// Cancellation is honoured between tickers, never during a placement.
func (s *Session) Cycle(ctx context.Context) (CycleReport, error) {
	report := CycleReport{Skipped: make(map[string]string)}
	log := logging.WithOperation(s.logger, "cycle")

	if r, ok := s.client.(priceRefresher); ok {
		if err := r.RefreshPrices(ctx); err != nil {
			log.Warn().Err(err).Msg("price refresh failed")
		}
	}

	rec, err := s.reconciler.Cycle(ctx, s.book)
	if err == nil {
		report.Reconcile = rec
		for _, g := range rec.Closed {
			s.recordClosed(ctx, g)
		}
	}

	busy, err := s.busySymbols(ctx)
	if err != nil {
		return report, fmt.Errorf("checking positions: %w", err)
	}

	for _, symbol := range s.cfg.Tickers {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		rng, ok := s.ranges[symbol]
		switch {
		case !ok:
			report.Skipped[symbol] = SkipNoRange
			continue
		case s.traded[symbol]:
			report.Skipped[symbol] = SkipTraded
			continue
		case s.book.HasSymbol(symbol):
			report.Skipped[symbol] = SkipLiveBracket
			continue
		case busy[symbol]:
			report.Skipped[symbol] = SkipBusy
			continue
		}

		group, signalled, err := s.scan(ctx, symbol, rng)
		if signalled {
			report.Signals++
		}
		switch {
		case errors.Is(err, errTargetBelowZero):
			report.Skipped[symbol] = SkipNoTarget
		case err != nil:
			log.Warn().Err(err).Str("symbol", symbol).Msg("scan failed")
		}
		if group != nil {
			report.Placed = append(report.Placed, group)
		}
	}

	return report, nil
}

// busySymbols returns symbols with an open position or a working order.
func (s *Session) busySymbols(ctx context.Context) (map[string]bool, error) {
	busy := make(map[string]bool)

	positions, err := s.client.GetPositions(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range positions {
		if p.Quantity != 0 {
			busy[strings.ToUpper(p.Symbol)] = true
		}
	}

	rows, err := s.client.GetOrderBook(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		if r.LegStatus() == models.LegOpen || r.LegStatus() == models.LegPending {
			busy[strings.ToUpper(r.Symbol)] = true
		}
	}

	return busy, nil
}

// scan checks symbol for a breakout and places a bracket when one shows.
func (s *Session) scan(ctx context.Context, symbol string, rng strategy.Range) (*models.BracketGroup, bool, error) {
	log := logging.WithSymbol(s.logger, symbol)

	bars, err := s.fetcher.Bars(ctx, s.cfg.Exchange, symbol, s.now())
	if err != nil {
		return nil, false, err
	}

	sig, ok := strategy.Detect(bars, rng, s.cfg.VolumeLookback)
	if !ok {
		log.Debug().Msg("no trade")
		return nil, false, nil
	}
	metrics.Signals.WithLabelValues(string(sig.Side)).Inc()
	log.Info().
		Str("side", string(sig.Side)).
		Float64("close", sig.Close).
		Int64("volume", sig.Volume).
		Float64("avg_volume", sig.AvgVolume).
		Msg("breakout")

	ltp, ok, err := s.client.GetLastTradedPrice(ctx, s.cfg.Exchange, symbol)
	if err != nil {
		return nil, true, fmt.Errorf("ltp: %w", err)
	}
	if !ok {
		log.Warn().Msg("no last traded price, skipping")
		return nil, true, nil
	}

	capital, err := s.client.GetTradeCapital(ctx)
	if err != nil {
		return nil, true, fmt.Errorf("capital: %w", err)
	}
	metrics.TradeCapital.Set(capital)

	entry, stop := strategy.Levels(sig.Side, ltp, s.cfg.EntryOffset, s.cfg.StopPct)
	sizing, err := risk.Size(capital, entry, stop, s.cfg.Risk)
	if err != nil {
		return nil, true, fmt.Errorf("sizing: %w", err)
	}
	if sizing.Target <= 0 {
		log.Warn().
			Float64("entry", entry).
			Float64("stop", stop).
			Float64("target", sizing.Target).
			Msg("target at or below zero, not trading")
		return nil, true, errTargetBelowZero
	}
	if sizing.Skip() {
		log.Info().
			Float64("capital", capital).
			Float64("per_share_risk", sizing.PerShareRisk).
			Msg("risk budget below one share, not trading")
		return nil, true, nil
	}

	intent := models.PositionIntent{
		Symbol:   symbol,
		Side:     sig.Side,
		Quantity: sizing.Quantity,
		PriceLevels: models.PriceLevels{
			Entry:  entry,
			Stop:   stop,
			Target: sizing.Target,
		},
	}

	group, placeErr := s.executor.Place(ctx, intent, s.instrument(symbol))
	s.recordPlacement(ctx, group, sig)

	switch group.State {
	case models.GroupProtected:
		s.traded[symbol] = true
		s.book.Add(group)
		logging.LogTrade(log, symbol, string(sig.Side), group.Quantity, entry)
	case models.GroupDegraded:
		s.traded[symbol] = true
		log.Error().
			Str("group_id", group.ID).
			Str("reason", group.Reason).
			Msg("bracket degraded, manual attention needed")
	}

	return group, true, placeErr
}

func (s *Session) instrument(symbol string) models.Instrument {
	if inst, ok := s.instruments.Lookup(s.cfg.Exchange, symbol); ok {
		return inst
	}
	return models.Instrument{Symbol: symbol, Exchange: s.cfg.Exchange, TickSize: risk.DefaultTickSize}
}

// Finish runs a last reconciliation and records the day's PnL.
func (s *Session) Finish(ctx context.Context) ([]models.DailyPnL, error) {
	if rec, err := s.reconciler.Cycle(ctx, s.book); err == nil {
		for _, g := range rec.Closed {
			s.recordClosed(ctx, g)
		}
	}

	if n := s.book.Len(); n > 0 {
		s.logger.Warn().Int("live_groups", n).Msg("session ending with live brackets")
	}

	return s.LogPnL(ctx)
}

func (s *Session) waitUntil(ctx context.Context, t time.Time) error {
	d := t.Sub(s.now())
	if d <= 0 {
		return ctx.Err()
	}
	s.logger.Info().Time("until", t).Dur("wait", d).Msg("waiting")
	return s.sleep(ctx, d)
}

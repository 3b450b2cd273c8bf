package trading

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"bracket-trader/internal/broker"
	"bracket-trader/internal/execution"
	"bracket-trader/internal/models"
	"bracket-trader/internal/store"
	"bracket-trader/internal/strategy"
	"bracket-trader/pkg/utils"
)

// fakeClock is a manually advanced clock; sleeping advances it.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return ctx.Err()
}

// marketFeed serves bars and prices to the paper broker.
type marketFeed struct {
	mu   sync.Mutex
	bars map[string][]models.Candle
	ltp  map[string]float64
}

func (f *marketFeed) setLTP(symbol string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ltp[symbol] = price
}

func (f *marketFeed) GetCandles(ctx context.Context, req broker.CandleRequest) ([]models.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bars[req.Symbol], nil
}

func (f *marketFeed) GetLastTradedPrice(ctx context.Context, exchange models.Exchange, symbol string) (float64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.ltp[symbol]
	return p, ok, nil
}

func (f *marketFeed) GetInstruments(ctx context.Context, exchange models.Exchange) ([]models.Instrument, error) {
	return []models.Instrument{
		{Token: 408065, Symbol: "INFY", Exchange: models.NSE, TickSize: 0.05, LotSize: 1},
		{Token: 779521, Symbol: "SBIN", Exchange: models.NSE, TickSize: 0.05, LotSize: 1},
	}, nil
}

func (f *marketFeed) GetTradeCapital(ctx context.Context) (float64, error) { return 0, nil }
func (f *marketFeed) PlaceOrder(ctx context.Context, intent *models.OrderIntent) (*broker.OrderAck, error) {
	return nil, errors.New("feed does not trade")
}
func (f *marketFeed) GetOrderBook(ctx context.Context) ([]models.OrderRow, error) { return nil, nil }
func (f *marketFeed) CancelOrder(ctx context.Context, orderID string) error       { return nil }
func (f *marketFeed) GetPositions(ctx context.Context) ([]models.Position, error) { return nil, nil }

func ist(hour, minute int) time.Time {
	return time.Date(2024, 1, 15, hour, minute, 0, 0, utils.IndiaLocation) // Monday
}

// dayBars returns the 09:15 range bar, quiet bars to 09:55 and a last bar.
func dayBars(last models.Candle) []models.Candle {
	bars := []models.Candle{{Timestamp: ist(9, 15), Open: 100, High: 105, Low: 98, Close: 104, Volume: 100}}
	for m := 20; m < 60; m += 5 {
		bars = append(bars, models.Candle{Timestamp: ist(9, m), Open: 101, High: 104, Low: 99, Close: 101, Volume: 100})
	}
	last.Timestamp = ist(10, 0)
	return append(bars, last)
}

type harness struct {
	clock   *fakeClock
	feed    *marketFeed
	paper   *broker.PaperBroker
	journal *store.SQLiteStore
	session *Session
}

func newHarness(t *testing.T, start time.Time) *harness {
	t.Helper()
	clock := &fakeClock{now: start}
	feed := &marketFeed{
		bars: map[string][]models.Candle{
			"INFY": dayBars(models.Candle{Open: 104, High: 107, Low: 103, Close: 106, Volume: 500}),
			"SBIN": dayBars(models.Candle{Open: 101, High: 103, Low: 100, Close: 102, Volume: 500}),
		},
		ltp: map[string]float64{"INFY": 106, "SBIN": 102},
	}
	paper := broker.NewPaperBroker(broker.PaperBrokerConfig{Data: feed, InitialCapital: 1000000, Clock: clock.Now})

	journal, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { journal.Close() })

	cfg := DefaultConfig()
	cfg.Tickers = []string{"infy", "SBIN", "INFY"}
	cfg.VolumeLookback = 5
	cfg.Paper = true

	execCfg := execution.DefaultConfig()
	execCfg.RetryDelay = time.Millisecond

	fetchCfg := strategy.DefaultFetchConfig()
	fetchCfg.RetryDelay = time.Millisecond

	s := NewSession(paper, journal, cfg, execCfg, fetchCfg, zerolog.Nop())
	s.now = clock.Now
	s.sleep = clock.Sleep

	return &harness{clock: clock, feed: feed, paper: paper, journal: journal, session: s}
}

func TestSession_TickersNormalised(t *testing.T) {
	h := newHarness(t, ist(10, 0))
	if got := h.session.cfg.Tickers; len(got) != 2 || got[0] != "INFY" || got[1] != "SBIN" {
		t.Errorf("tickers = %v", got)
	}
}

func TestSession_PlacesAndReconcilesBracket(t *testing.T) {
	h := newHarness(t, ist(10, 0))
	ctx := context.Background()

	if err := h.session.Prepare(ctx); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if r := h.session.Ranges()["INFY"]; r.High != 105 || r.Low != 98 {
		t.Fatalf("INFY range = %+v", r)
	}

	report, err := h.session.Cycle(ctx)
	if err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if report.Signals != 1 || len(report.Placed) != 1 {
		t.Fatalf("signals=%d placed=%d, want 1/1", report.Signals, len(report.Placed))
	}

	group := report.Placed[0]
	if group.Symbol != "INFY" || group.Side != models.OrderSideBuy {
		t.Errorf("group = %s %s", group.Symbol, group.Side)
	}
	if group.State != models.GroupProtected {
		t.Fatalf("state = %s, reason %s", group.State, group.Reason)
	}
	if group.Quantity <= 0 {
		t.Errorf("quantity = %d", group.Quantity)
	}
	if h.session.Book().Len() != 1 {
		t.Fatalf("book len = %d", h.session.Book().Len())
	}

	trades, err := h.journal.GetTrades(ctx, store.TradeFilter{})
	if err != nil || len(trades) != 1 {
		t.Fatalf("journal trades = %d, err %v", len(trades), err)
	}
	if trades[0].State != string(models.GroupProtected) || !trades[0].IsPaper {
		t.Errorf("journaled trade = %+v", trades[0])
	}

	// Price runs through the target.
	h.feed.setLTP("INFY", 115)
	h.clock.Sleep(ctx, 5*time.Minute)

	report, err = h.session.Cycle(ctx)
	if err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if len(report.Reconcile.Cancelled) != 1 || report.Reconcile.Cancelled[0] != group.StopLoss.OrderID {
		t.Errorf("cancelled = %v, want stop-loss %s", report.Reconcile.Cancelled, group.StopLoss.OrderID)
	}
	if len(report.Reconcile.Closed) != 1 {
		t.Errorf("closed = %d", len(report.Reconcile.Closed))
	}
	if h.session.Book().Len() != 0 {
		t.Errorf("book should be empty, has %d", h.session.Book().Len())
	}
	if report.Skipped["INFY"] != SkipTraded {
		t.Errorf("INFY skip = %q", report.Skipped["INFY"])
	}
	if len(report.Placed) != 0 {
		t.Errorf("placed %d brackets on the second cycle", len(report.Placed))
	}

	events, err := h.journal.GetEvents(ctx, group.ID)
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}
	if last := events[len(events)-1]; last.Event != EventClosed {
		t.Errorf("last event = %s", last.Event)
	}

	pnl, err := h.session.Finish(ctx)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if len(pnl) != 1 || pnl[0].Quantity != 0 || pnl[0].PnL <= 0 {
		t.Errorf("pnl = %+v", pnl)
	}

	saved, err := h.journal.GetDailyPnL(ctx, "2024-01-15")
	if err != nil || len(saved) != 1 {
		t.Errorf("saved pnl = %+v, err %v", saved, err)
	}
}

func TestSession_SkipsSymbolsWithPositions(t *testing.T) {
	h := newHarness(t, ist(10, 0))
	ctx := context.Background()

	if err := h.session.Prepare(ctx); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	h.paper.UpdatePrice("INFY", 106)
	if _, err := h.paper.PlaceOrder(ctx, &models.OrderIntent{
		Symbol: "INFY", Exchange: models.NSE, Side: models.OrderSideBuy,
		Type: models.OrderTypeMarket, Product: models.ProductMIS, Quantity: 5,
	}); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	report, err := h.session.Cycle(ctx)
	if err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if report.Skipped["INFY"] != SkipBusy {
		t.Errorf("INFY skip = %q, want %q", report.Skipped["INFY"], SkipBusy)
	}
	if len(report.Placed) != 0 {
		t.Errorf("placed = %d", len(report.Placed))
	}
}

func TestSession_SkipsShortWithTargetBelowZero(t *testing.T) {
	h := newHarness(t, ist(10, 0))
	ctx := context.Background()

	// Breaks below the 98 range low on volume.
	h.feed.bars["SBIN"] = dayBars(models.Candle{Open: 99, High: 99, Low: 95, Close: 96, Volume: 500})
	h.feed.setLTP("SBIN", 96)
	// A 60% stop at 2:1 puts the short target below zero.
	h.session.cfg.StopPct = 0.6

	if err := h.session.Prepare(ctx); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	report, err := h.session.Cycle(ctx)
	if err != nil {
		t.Fatalf("Cycle: %v", err)
	}

	if report.Skipped["SBIN"] != SkipNoTarget {
		t.Errorf("SBIN skip = %q, want %q", report.Skipped["SBIN"], SkipNoTarget)
	}
	for _, g := range report.Placed {
		if g.Symbol == "SBIN" {
			t.Errorf("placed SBIN bracket %+v", g)
		}
	}
	if report.Signals != 2 {
		t.Errorf("signals = %d, want 2", report.Signals)
	}

	trades, err := h.journal.GetTrades(ctx, store.TradeFilter{Symbol: "SBIN"})
	if err != nil || len(trades) != 0 {
		t.Errorf("journaled SBIN trades = %d, err %v", len(trades), err)
	}
}

func TestSession_RestrictedEntryFallsBackToMarket(t *testing.T) {
	h := newHarness(t, ist(10, 0))
	ctx := context.Background()
	h.paper.RestrictSymbol("INFY")

	if err := h.session.Prepare(ctx); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	report, err := h.session.Cycle(ctx)
	if err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if len(report.Placed) != 1 {
		t.Fatalf("placed = %d", len(report.Placed))
	}

	g := report.Placed[0]
	if !g.Entry.Fallback || g.Entry.Type != models.OrderTypeMarket || !g.Entry.Submitted() {
		t.Errorf("entry should be a market fallback: %+v", g.Entry)
	}
	// Restricted instruments refuse the protective limit and stop orders too.
	if g.State != models.GroupDegraded {
		t.Errorf("state = %s", g.State)
	}
	if h.session.Book().Len() != 0 {
		t.Error("degraded brackets are not tracked")
	}

	events, err := h.journal.GetEvents(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}
	if events[0].Event != EventFallback {
		t.Errorf("first event = %s, want %s", events[0].Event, EventFallback)
	}

	groups, err := LoadGroups(ctx, h.journal, ist(0, 0))
	if err != nil || len(groups) != 1 {
		t.Fatalf("LoadGroups = %d, err %v", len(groups), err)
	}
	if groups[0].Entry.OrderID != g.Entry.OrderID || groups[0].StopLoss.Submitted() {
		t.Errorf("loaded group legs: entry %s, stop %+v", groups[0].Entry.OrderID, groups[0].StopLoss)
	}
}

func TestSession_RunFullDay(t *testing.T) {
	h := newHarness(t, ist(9, 0))

	if err := h.session.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if now := h.clock.Now(); now.Before(ist(15, 5)) || now.After(ist(15, 10)) {
		t.Errorf("run ended at %s", now.Format("15:04"))
	}

	trades, err := h.journal.GetTrades(context.Background(), store.TradeFilter{Symbol: "INFY"})
	if err != nil {
		t.Fatalf("GetTrades: %v", err)
	}
	if len(trades) != 1 {
		t.Errorf("INFY traded %d times, want once", len(trades))
	}
}

func TestSession_RunRefusesWeekend(t *testing.T) {
	h := newHarness(t, time.Date(2024, 1, 13, 10, 0, 0, 0, utils.IndiaLocation))

	if err := h.session.Run(context.Background()); !errors.Is(err, ErrNotTradingDay) {
		t.Errorf("got %v, want ErrNotTradingDay", err)
	}
}

func TestSession_CycleStopsOnCancel(t *testing.T) {
	h := newHarness(t, ist(10, 0))
	if err := h.session.Prepare(context.Background()); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := h.session.Cycle(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
	if len(report.Placed) != 0 {
		t.Error("cancelled cycle should not place")
	}
}

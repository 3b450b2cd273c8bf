package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"bracket-trader/internal/broker"
	"bracket-trader/internal/models"
	"bracket-trader/pkg/utils"
)

var errNoBars = errors.New("empty bar response")

// FetchConfig controls bar downloads.
type FetchConfig struct {
	Interval    string
	HistoryDays int
	Retries     int
	RetryDelay  time.Duration
	Concurrency int
}

// DefaultFetchConfig returns 5-minute bars over 5 days, 5 attempts with a
// 10s linear delay and 4 parallel downloads.
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		Interval:    "5minute",
		HistoryDays: 5,
		Retries:     5,
		RetryDelay:  10 * time.Second,
		Concurrency: 4,
	}
}

// Fetcher downloads intraday bars with its own retry loop.
type Fetcher struct {
	data   broker.MarketData
	cfg    FetchConfig
	logger zerolog.Logger
}

// NewFetcher creates a fetcher.
func NewFetcher(data broker.MarketData, cfg FetchConfig, logger zerolog.Logger) *Fetcher {
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.HistoryDays < 1 {
		cfg.HistoryDays = 1
	}
	return &Fetcher{
		data:   data,
		cfg:    cfg,
		logger: logger.With().Str("component", "bars").Logger(),
	}
}

// Bars fetches bars for symbol from HistoryDays ago up to until. An empty
// response counts as a failed attempt.
func (f *Fetcher) Bars(ctx context.Context, exchange models.Exchange, symbol string, until time.Time) ([]models.Candle, error) {
	req := broker.CandleRequest{
		Symbol:   symbol,
		Exchange: exchange,
		Interval: f.cfg.Interval,
		From:     until.AddDate(0, 0, -f.cfg.HistoryDays),
		To:       until,
	}

	retry := utils.LinearRetryConfig(f.cfg.Retries, f.cfg.RetryDelay)
	retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		f.logger.Warn().
			Err(err).
			Str("symbol", symbol).
			Int("attempt", attempt).
			Int("max_attempts", f.cfg.Retries).
			Dur("delay", delay).
			Msg("bar fetch failed, retrying")
	}

	candles, err := utils.RetryWithResult(ctx, retry, func() ([]models.Candle, error) {
		c, err := f.data.GetCandles(ctx, req)
		if err != nil {
			return nil, err
		}
		if len(c) == 0 {
			return nil, errNoBars
		}
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetching bars for %s after %d attempts: %w", symbol, f.cfg.Retries, err)
	}
	return candles, nil
}

type fetchResult struct {
	symbol  string
	candles []models.Candle
}

// All fetches bars for every symbol with bounded parallelism. Symbols whose
// fetch fails are logged and left out of the result.
func (f *Fetcher) All(ctx context.Context, exchange models.Exchange, symbols []string, until time.Time) map[string][]models.Candle {
	p := pool.NewWithResults[fetchResult]().WithMaxGoroutines(f.cfg.Concurrency)

	for _, symbol := range symbols {
		symbol := symbol
		p.Go(func() fetchResult {
			candles, err := f.Bars(ctx, exchange, symbol, until)
			if err != nil {
				f.logger.Error().Err(err).Str("symbol", symbol).Msg("giving up on bars")
				return fetchResult{symbol: symbol}
			}
			return fetchResult{symbol: symbol, candles: candles}
		})
	}

	out := make(map[string][]models.Candle, len(symbols))
	for _, r := range p.Wait() {
		if len(r.candles) > 0 {
			out[r.symbol] = r.candles
		}
	}
	return out
}

// OpeningRanges fetches bars up to the range end on day and computes each
// symbol's opening range.
func (f *Fetcher) OpeningRanges(ctx context.Context, exchange models.Exchange, symbols []string, day time.Time, end utils.ClockTime) map[string]Range {
	bars := f.All(ctx, exchange, symbols, end.On(day))

	ranges := make(map[string]Range, len(bars))
	for symbol, candles := range bars {
		rng, ok := OpeningRange(candles, day, end)
		if !ok || !rng.Valid() {
			f.logger.Warn().Str("symbol", symbol).Msg("no opening range bars")
			continue
		}
		ranges[symbol] = rng
	}
	return ranges
}

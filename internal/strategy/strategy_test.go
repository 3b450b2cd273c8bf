package strategy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"bracket-trader/internal/broker"
	"bracket-trader/internal/models"
	"bracket-trader/pkg/utils"
)

var day = time.Date(2024, 1, 15, 0, 0, 0, 0, utils.IndiaLocation)

func at(hour, minute int) time.Time {
	return time.Date(2024, 1, 15, hour, minute, 0, 0, utils.IndiaLocation)
}

func bar(ts time.Time, o, h, l, c float64, v int64) models.Candle {
	return models.Candle{Timestamp: ts, Open: o, High: h, Low: l, Close: c, Volume: v}
}

// flatBars returns n bars of volume v ending just before end.
func flatBars(n int, v int64, end time.Time) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		ts := end.Add(-time.Duration(n-i) * 5 * time.Minute)
		out[i] = bar(ts, 100, 101, 99, 100, v)
	}
	return out
}

func TestOpeningRange(t *testing.T) {
	candles := []models.Candle{
		bar(at(9, 15).AddDate(0, 0, -1), 90, 150, 50, 95, 10), // previous day
		bar(at(9, 15), 100, 105, 98, 104, 10),
		bar(at(9, 20), 104, 110, 97, 108, 10), // after range end
	}

	rng, ok := OpeningRange(candles, day, utils.ClockTime{Hour: 9, Minute: 19})
	if !ok {
		t.Fatal("expected a range")
	}
	if rng.High != 105 || rng.Low != 98 {
		t.Errorf("range = %+v, want 105/98", rng)
	}

	rng, ok = OpeningRange(candles, day, utils.ClockTime{Hour: 9, Minute: 20})
	if !ok || rng.High != 110 || rng.Low != 97 {
		t.Errorf("wider range = %+v", rng)
	}

	if _, ok := OpeningRange(candles[:1], day, utils.ClockTime{Hour: 9, Minute: 19}); ok {
		t.Error("previous day bars must not form today's range")
	}
}

func TestAverageVolume(t *testing.T) {
	candles := flatBars(10, 100, at(10, 0))
	candles = append(candles, bar(at(10, 0), 100, 101, 99, 100, 5000))

	avg, ok := AverageVolume(candles, 10)
	if !ok || avg != 100 {
		t.Errorf("avg = %v ok=%v, want 100", avg, ok)
	}

	if _, ok := AverageVolume(candles[:10], 10); ok {
		t.Error("ten bars cannot average ten previous bars")
	}
	if _, ok := AverageVolume(candles, 0); ok {
		t.Error("zero lookback should not average")
	}
}

func TestDetect(t *testing.T) {
	rng := Range{High: 105, Low: 98}
	history := flatBars(10, 100, at(10, 0))

	tests := []struct {
		name     string
		last     models.Candle
		wantOK   bool
		wantSide models.OrderSide
	}{
		{"buy breakout", bar(at(10, 0), 104, 107, 103, 106, 150), true, models.OrderSideBuy},
		{"buy at range high", bar(at(10, 0), 104, 106, 99, 105, 100), true, models.OrderSideBuy},
		{"sell breakdown", bar(at(10, 0), 99, 100, 95, 96, 150), true, models.OrderSideSell},
		{"low volume", bar(at(10, 0), 104, 107, 103, 106, 99), false, ""},
		{"inside range", bar(at(10, 0), 100, 104, 99, 101, 500), false, ""},
		{"buy close but low broke range", bar(at(10, 0), 100, 107, 97, 106, 500), false, ""},
		{"sell close but high broke range", bar(at(10, 0), 100, 106, 95, 96, 500), false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candles := append(append([]models.Candle{}, history...), tt.last)
			sig, ok := Detect(candles, rng, 10)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && sig.Side != tt.wantSide {
				t.Errorf("side = %s, want %s", sig.Side, tt.wantSide)
			}
			if ok && sig.AvgVolume != 100 {
				t.Errorf("avg volume = %v", sig.AvgVolume)
			}
		})
	}
}

func TestDetect_NotEnoughHistory(t *testing.T) {
	candles := append(flatBars(3, 100, at(10, 0)), bar(at(10, 0), 104, 107, 103, 106, 1000))
	if _, ok := Detect(candles, Range{High: 105, Low: 98}, 10); ok {
		t.Error("should not signal without a full lookback")
	}
}

func TestLevels(t *testing.T) {
	entry, stop := Levels(models.OrderSideBuy, 100, 1, 0.02)
	if entry != 101 || stop != 101*0.98 {
		t.Errorf("buy levels = %v/%v", entry, stop)
	}

	entry, stop = Levels(models.OrderSideSell, 100, 1, 0.02)
	if entry != 99 || stop != 99*1.02 {
		t.Errorf("sell levels = %v/%v", entry, stop)
	}
}

type flakyData struct {
	mu       sync.Mutex
	failures map[string]int // remaining failures per symbol
	empty    map[string]bool
	calls    map[string]int
	bars     []models.Candle
}

func (f *flakyData) GetCandles(ctx context.Context, req broker.CandleRequest) ([]models.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[req.Symbol]++
	if f.failures[req.Symbol] > 0 {
		f.failures[req.Symbol]--
		return nil, errors.New("timeout")
	}
	if f.empty[req.Symbol] {
		return nil, nil
	}
	return f.bars, nil
}

func (f *flakyData) GetPositions(ctx context.Context) ([]models.Position, error) { return nil, nil }

func (f *flakyData) GetInstruments(ctx context.Context, exchange models.Exchange) ([]models.Instrument, error) {
	return nil, nil
}

func newFlaky() *flakyData {
	return &flakyData{
		failures: map[string]int{},
		empty:    map[string]bool{},
		calls:    map[string]int{},
		bars:     []models.Candle{bar(at(9, 15), 100, 105, 98, 104, 10)},
	}
}

func testFetchConfig() FetchConfig {
	cfg := DefaultFetchConfig()
	cfg.RetryDelay = time.Millisecond
	return cfg
}

func TestFetcher_RetriesUntilSuccess(t *testing.T) {
	data := newFlaky()
	data.failures["INFY"] = 3
	f := NewFetcher(data, testFetchConfig(), zerolog.Nop())

	candles, err := f.Bars(context.Background(), models.NSE, "INFY", at(9, 19))
	if err != nil {
		t.Fatalf("Bars: %v", err)
	}
	if len(candles) != 1 || data.calls["INFY"] != 4 {
		t.Errorf("candles=%d calls=%d", len(candles), data.calls["INFY"])
	}
}

func TestFetcher_EmptyResponsesExhaustRetries(t *testing.T) {
	data := newFlaky()
	data.empty["TCS"] = true
	f := NewFetcher(data, testFetchConfig(), zerolog.Nop())

	_, err := f.Bars(context.Background(), models.NSE, "TCS", at(9, 19))
	if !errors.Is(err, errNoBars) {
		t.Fatalf("got %v, want errNoBars", err)
	}
	if data.calls["TCS"] != 5 {
		t.Errorf("calls = %d, want 5", data.calls["TCS"])
	}
}

func TestFetcher_OpeningRangesSkipsFailures(t *testing.T) {
	data := newFlaky()
	data.failures["SBIN"] = 100
	f := NewFetcher(data, testFetchConfig(), zerolog.Nop())

	ranges := f.OpeningRanges(context.Background(), models.NSE,
		[]string{"INFY", "TCS", "SBIN"}, day, utils.ClockTime{Hour: 9, Minute: 19})

	if len(ranges) != 2 {
		t.Fatalf("got %d ranges, want 2", len(ranges))
	}
	if _, ok := ranges["SBIN"]; ok {
		t.Error("failed symbol should be left out")
	}
	if r := ranges["INFY"]; r.High != 105 || r.Low != 98 {
		t.Errorf("INFY range = %+v", r)
	}
}

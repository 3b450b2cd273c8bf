// Package strategy detects opening range breakouts on intraday bars.
package strategy

import (
	"time"

	"bracket-trader/internal/models"
	"bracket-trader/pkg/utils"
)

// MarketOpen is the first bar of the trading day (IST).
var MarketOpen = utils.ClockTime{Hour: 9, Minute: 15}

// Range is the high and low of the opening bars.
type Range struct {
	High float64
	Low  float64
}

// Valid reports whether both bounds are set and ordered.
func (r Range) Valid() bool {
	return r.High > 0 && r.Low > 0 && r.High >= r.Low
}

// OpeningRange returns the high and low of the bars on day that start
// between the market open and end inclusive. ok is false when there are none.
func OpeningRange(candles []models.Candle, day time.Time, end utils.ClockTime) (Range, bool) {
	from := MarketOpen.On(day)
	to := end.On(day)

	var r Range
	found := false
	for _, c := range candles {
		ts := c.Timestamp.In(utils.IndiaLocation)
		if ts.Before(from) || ts.After(to) {
			continue
		}
		if !found {
			r = Range{High: c.High, Low: c.Low}
			found = true
			continue
		}
		if c.High > r.High {
			r.High = c.High
		}
		if c.Low < r.Low {
			r.Low = c.Low
		}
	}
	return r, found
}

// Signal is a confirmed breakout on the latest bar.
type Signal struct {
	Side      models.OrderSide
	Close     float64
	Volume    int64
	AvgVolume float64
	BarTime   time.Time
}

// AverageVolume is the mean volume of the lookback bars before the last one.
// ok is false when there are not enough bars.
func AverageVolume(candles []models.Candle, lookback int) (float64, bool) {
	if lookback < 1 || len(candles) < lookback+1 {
		return 0, false
	}
	window := candles[len(candles)-1-lookback : len(candles)-1]
	var sum int64
	for _, c := range window {
		sum += c.Volume
	}
	return float64(sum) / float64(lookback), true
}

// Detect checks the last bar for a volume-confirmed breakout of rng.
//
// The last volume must reach the average of the preceding lookback bars.
// A close at or above the range high with the low still at or above the
// range low is a BUY; a close at or below the range low with the high still
// at or below the range high is a SELL.
func Detect(candles []models.Candle, rng Range, lookback int) (Signal, bool) {
	avg, ok := AverageVolume(candles, lookback)
	if !ok || !rng.Valid() {
		return Signal{}, false
	}

	last := candles[len(candles)-1]
	if float64(last.Volume) < avg {
		return Signal{}, false
	}

	sig := Signal{Close: last.Close, Volume: last.Volume, AvgVolume: avg, BarTime: last.Timestamp}
	switch {
	case last.Close >= rng.High && last.Low >= rng.Low:
		sig.Side = models.OrderSideBuy
	case last.Close <= rng.Low && last.High <= rng.High:
		sig.Side = models.OrderSideSell
	default:
		return Signal{}, false
	}
	return sig, true
}

// Levels derives entry and stop from the last traded price. A BUY enters
// offset above ltp with the stop stopPct below entry; a SELL mirrors it.
func Levels(side models.OrderSide, ltp, offset, stopPct float64) (entry, stop float64) {
	if side == models.OrderSideSell {
		entry = ltp - offset
		return entry, entry * (1 + stopPct)
	}
	entry = ltp + offset
	return entry, entry * (1 - stopPct)
}

package orders

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"bracket-trader/internal/models"
)

var sbin = models.Instrument{Token: 3045, Symbol: "SBIN", Exchange: models.NSE, TickSize: 0.05}

func TestBuildLongBracket(t *testing.T) {
	intents := Build(sbin, models.OrderSideBuy, 1000, 100, 99, 102, DefaultOptions())

	if intents.Entry.Side != models.OrderSideBuy || intents.Entry.Type != models.OrderTypeLimit || intents.Entry.Price != 100 {
		t.Errorf("unexpected entry intent: %+v", intents.Entry)
	}
	if intents.StopLoss.Side != models.OrderSideSell || intents.StopLoss.Type != models.OrderTypeStopLossM || intents.StopLoss.TriggerPrice != 99 {
		t.Errorf("unexpected stop-loss intent: %+v", intents.StopLoss)
	}
	if intents.Target.Side != models.OrderSideSell || intents.Target.Type != models.OrderTypeLimit || intents.Target.Price != 102 {
		t.Errorf("unexpected target intent: %+v", intents.Target)
	}
	if intents.Entry.Role != models.RoleEntry || intents.StopLoss.Role != models.RoleStopLoss || intents.Target.Role != models.RoleTarget {
		t.Error("roles not assigned")
	}
}

func TestBuildMarketEntry(t *testing.T) {
	opts := DefaultOptions()
	opts.EntryType = models.OrderTypeMarket

	intents := Build(sbin, models.OrderSideSell, 10, 200, 204, 192, opts)
	if intents.Entry.Type != models.OrderTypeMarket || intents.Entry.Price != 0 {
		t.Errorf("expected unpriced market entry, got %+v", intents.Entry)
	}
	if intents.StopLoss.Side != models.OrderSideBuy || intents.Target.Side != models.OrderSideBuy {
		t.Error("short bracket must exit on the BUY side")
	}
}

func TestMarketFallback(t *testing.T) {
	intents := Build(sbin, models.OrderSideBuy, 25, 612.4, 600.15, 636.9, DefaultOptions())
	fallback := MarketFallback(intents.Entry)

	if fallback.Type != models.OrderTypeMarket || fallback.Price != 0 {
		t.Errorf("fallback should be an unpriced market order: %+v", fallback)
	}
	if fallback.Side != intents.Entry.Side || fallback.Quantity != intents.Entry.Quantity || fallback.Symbol != intents.Entry.Symbol {
		t.Error("fallback must keep side, quantity and symbol")
	}
	if intents.Entry.Type != models.OrderTypeLimit {
		t.Error("fallback must not mutate the original intent")
	}
}

// Property: protective legs sit on the opposite side, and all three intents
// share symbol and quantity.
func TestProperty_BracketSymmetry(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	symbols := []string{"SBIN", "WIPRO", "NTPC", "UPL", "HINDALCO", "COALINDIA"}

	properties.Property("stop.side == target.side == opposite(entry.side), shared quantity", prop.ForAll(
		func(symbolIdx int, side models.OrderSide, qty int, entry, offset float64, market bool) bool {
			inst := models.Instrument{Symbol: symbols[symbolIdx], Exchange: models.NSE, TickSize: 0.05}
			stop, target := entry-offset, entry+2*offset
			if side == models.OrderSideSell {
				stop, target = entry+offset, entry-2*offset
			}
			opts := DefaultOptions()
			if market {
				opts.EntryType = models.OrderTypeMarket
			}
			opts.Tag = "brk0001"

			in := Build(inst, side, qty, entry, stop, target, opts)

			if in.StopLoss.Side != in.Target.Side || in.StopLoss.Side != in.Entry.Side.Opposite() {
				return false
			}
			if in.Entry.Quantity != qty || in.StopLoss.Quantity != qty || in.Target.Quantity != qty {
				return false
			}
			for _, leg := range []models.OrderIntent{in.Entry, in.StopLoss, in.Target} {
				if leg.Symbol != inst.Symbol || leg.Exchange != inst.Exchange || leg.Tag != opts.Tag || leg.Product != opts.Product {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, len(symbols)-1),
		gen.OneConstOf(models.OrderSideBuy, models.OrderSideSell),
		gen.IntRange(1, 5000),
		gen.Float64Range(50, 5000),
		gen.Float64Range(0.5, 40),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

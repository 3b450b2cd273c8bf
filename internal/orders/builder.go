// Package orders maps a sized position into the three order intents of a bracket.
package orders

import (
	"bracket-trader/internal/models"
	"bracket-trader/internal/risk"
)

// Options controls how the entry intent is expressed.
type Options struct {
	EntryType models.OrderType // MARKET or LIMIT
	Product   models.ProductType
	Validity  string
	Tag       string
}

// DefaultOptions returns a limit entry on the intraday product.
func DefaultOptions() Options {
	return Options{
		EntryType: models.OrderTypeLimit,
		Product:   models.ProductMIS,
		Validity:  "DAY",
	}
}

// BracketIntents are the entry and both protective intents of a bracket.
type BracketIntents struct {
	Entry    models.OrderIntent
	StopLoss models.OrderIntent
	Target   models.OrderIntent
}

// Build creates the entry, stop-loss and target intents. All three share the
// instrument, product, quantity and tag; the protective legs sit on the
// opposite side of the entry.
func Build(inst models.Instrument, side models.OrderSide, qty int, entry, stop, target float64, opts Options) BracketIntents {
	tick := inst.TickSize
	if tick <= 0 {
		tick = risk.DefaultTickSize
	}
	if opts.Product == "" {
		opts.Product = models.ProductMIS
	}
	if opts.Validity == "" {
		opts.Validity = "DAY"
	}

	base := models.OrderIntent{
		Symbol:   inst.Symbol,
		Token:    inst.Token,
		Exchange: inst.Exchange,
		Product:  opts.Product,
		Quantity: qty,
		Validity: opts.Validity,
		Tag:      opts.Tag,
	}

	entryIntent := base
	entryIntent.Role = models.RoleEntry
	entryIntent.Side = side
	if opts.EntryType == models.OrderTypeMarket {
		entryIntent.Type = models.OrderTypeMarket
	} else {
		entryIntent.Type = models.OrderTypeLimit
		entryIntent.Price = risk.RoundToTick(entry, tick)
	}

	exit := side.Opposite()

	stopIntent := base
	stopIntent.Role = models.RoleStopLoss
	stopIntent.Side = exit
	stopIntent.Type = models.OrderTypeStopLossM
	stopIntent.TriggerPrice = risk.RoundToTick(stop, tick)

	targetIntent := base
	targetIntent.Role = models.RoleTarget
	targetIntent.Side = exit
	targetIntent.Type = models.OrderTypeLimit
	targetIntent.Price = risk.RoundToTick(target, tick)

	return BracketIntents{
		Entry:    entryIntent,
		StopLoss: stopIntent,
		Target:   targetIntent,
	}
}

// MarketFallback converts an entry intent into an unconditional market order
// for the same side and quantity. Used when the instrument is under a
// trading restriction that rejects price-banded orders.
func MarketFallback(entry models.OrderIntent) models.OrderIntent {
	fallback := entry
	fallback.Type = models.OrderTypeMarket
	fallback.Price = 0
	fallback.TriggerPrice = 0
	return fallback
}

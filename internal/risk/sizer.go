// Package risk provides risk-budget position sizing.
package risk

import (
	"github.com/shopspring/decimal"

	"bracket-trader/internal/errors"
	"bracket-trader/internal/models"
)

// DefaultTickSize is the NSE equity price tick.
const DefaultTickSize = 0.05

// Sizing is the result of sizing a trade.
type Sizing struct {
	Quantity     int
	Target       float64
	PerShareRisk float64
	RiskBudget   float64
}

// Skip reports whether the budget cannot buy a single share of risk.
func (s Sizing) Skip() bool {
	return s.Quantity == 0
}

// Size computes the tradable quantity and target price for a trade that
// risks at most capital*RiskFraction if the stop is hit.
//
// The quantity is rounded down. The target lies RewardToRisk stop-distances
// beyond the entry, above it when entry > stop and below it otherwise.
func Size(capital, entry, stop float64, params models.RiskParameters) (Sizing, error) {
	if err := validate(capital, entry, stop, params); err != nil {
		return Sizing{}, err
	}

	e := decimal.NewFromFloat(entry)
	s := decimal.NewFromFloat(stop)

	perShare := e.Sub(s).Abs()
	if perShare.IsZero() {
		return Sizing{}, &errors.ValidationError{
			Field:   "stop",
			Value:   stop,
			Message: "stop equals entry, per-share risk is zero",
			Err:     errors.ErrInvalidPriceLevels,
		}
	}

	budget := decimal.NewFromFloat(capital).Mul(decimal.NewFromFloat(params.RiskFraction))
	qty := budget.Div(perShare).Floor()

	direction := decimal.NewFromInt(1)
	if e.LessThan(s) {
		direction = decimal.NewFromInt(-1)
	}
	target := e.Add(direction.Mul(perShare).Mul(decimal.NewFromFloat(params.RewardToRisk)))

	return Sizing{
		Quantity:     int(qty.IntPart()),
		Target:       target.InexactFloat64(),
		PerShareRisk: perShare.InexactFloat64(),
		RiskBudget:   budget.InexactFloat64(),
	}, nil
}

func validate(capital, entry, stop float64, params models.RiskParameters) error {
	if capital < 0 {
		return errors.NewValidationError("capital", capital, "must not be negative")
	}
	if entry <= 0 {
		return &errors.ValidationError{Field: "entry", Value: entry, Message: "must be positive", Err: errors.ErrInvalidPriceLevels}
	}
	if stop <= 0 {
		return &errors.ValidationError{Field: "stop", Value: stop, Message: "must be positive", Err: errors.ErrInvalidPriceLevels}
	}
	if params.RiskFraction <= 0 || params.RiskFraction > 1 {
		return errors.NewValidationError("risk_fraction", params.RiskFraction, "must be in (0, 1]")
	}
	if params.RewardToRisk <= 0 {
		return errors.NewValidationError("reward_to_risk", params.RewardToRisk, "must be positive")
	}
	return nil
}

// RoundToTick rounds price to the nearest multiple of tick.
func RoundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	t := decimal.NewFromFloat(tick)
	return decimal.NewFromFloat(price).Div(t).Round(0).Mul(t).InexactFloat64()
}

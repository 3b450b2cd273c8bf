package models

import (
	"time"

	"github.com/google/uuid"
)

// RiskParameters are fixed per deployment.
type RiskParameters struct {
	RiskFraction float64
	RewardToRisk float64
}

// DefaultRiskParameters returns 1% risk per trade at 2:1 reward to risk.
func DefaultRiskParameters() RiskParameters {
	return RiskParameters{RiskFraction: 0.01, RewardToRisk: 2.0}
}

// PriceLevels holds the entry, stop and derived target of a trade.
type PriceLevels struct {
	Entry  float64
	Stop   float64
	Target float64
}

// PositionIntent is produced once per signal. A zero quantity means "do not trade".
type PositionIntent struct {
	Symbol   string
	Side     OrderSide
	Quantity int
	PriceLevels
}

// GroupState is the lifecycle state of a bracket group.
type GroupState string

const (
	GroupAwaitingEntry GroupState = "AWAITING_ENTRY"
	GroupEntryPlaced   GroupState = "ENTRY_PLACED"
	GroupProtected     GroupState = "PROTECTIVE_LEGS_PLACED"
	GroupDegraded      GroupState = "DEGRADED"
	GroupAborted       GroupState = "ABORTED"
	GroupClosed        GroupState = "CLOSED"
)

// BracketGroup is the entry, stop-loss and target legs of one signal.
type BracketGroup struct {
	ID        string
	Symbol    string
	Side      OrderSide
	Quantity  int
	Levels    PriceLevels
	Entry     *OrderLeg
	StopLoss  *OrderLeg
	Target    *OrderLeg
	State     GroupState
	Reason    string
	CreatedAt time.Time
	ClosedAt  time.Time
}

// NewBracketGroup creates a group awaiting its entry.
func NewBracketGroup(intent PositionIntent) *BracketGroup {
	return &BracketGroup{
		ID:        uuid.New().String(),
		Symbol:    intent.Symbol,
		Side:      intent.Side,
		Quantity:  intent.Quantity,
		Levels:    intent.PriceLevels,
		State:     GroupAwaitingEntry,
		CreatedAt: time.Now(),
	}
}

// Tag returns a short brokerage order tag shared by all legs of the group.
func (g *BracketGroup) Tag() string {
	if len(g.ID) < 8 {
		return g.ID
	}
	return "brk" + g.ID[:8]
}

// Protected reports whether both protective legs were acknowledged.
func (g *BracketGroup) Protected() bool {
	return g.StopLoss.Submitted() && g.Target.Submitted()
}

// Terminal reports whether the group needs no further reconciliation.
func (g *BracketGroup) Terminal() bool {
	return g.State == GroupAborted || g.State == GroupClosed
}

// Close marks the group terminal.
func (g *BracketGroup) Close(reason string) {
	g.State = GroupClosed
	g.Reason = reason
	g.ClosedAt = time.Now()
}

// Abort marks a group whose entry never succeeded.
func (g *BracketGroup) Abort(reason string) {
	g.State = GroupAborted
	g.Reason = reason
	g.ClosedAt = time.Now()
}

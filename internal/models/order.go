package models

import (
	"strings"
	"time"
)

// LegRole identifies a leg within a bracket.
type LegRole string

const (
	RoleEntry    LegRole = "ENTRY"
	RoleStopLoss LegRole = "STOPLOSS"
	RoleTarget   LegRole = "TARGET"
)

// LegStatus is the brokerage-side status of a leg as last seen in a snapshot.
type LegStatus string

const (
	LegPending   LegStatus = "PENDING"
	LegOpen      LegStatus = "OPEN"
	LegFilled    LegStatus = "FILLED"
	LegCancelled LegStatus = "CANCELLED"
	LegRejected  LegStatus = "REJECTED"
)

// Terminal reports whether no further fills can happen on a leg in this status.
func (s LegStatus) Terminal() bool {
	return s == LegFilled || s == LegCancelled || s == LegRejected
}

// ParseLegStatus normalises a raw brokerage order status.
func ParseLegStatus(raw string) LegStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "complete", "executed", "filled":
		return LegFilled
	case "open", "trigger pending", "open pending", "validation pending",
		"put order req received", "modify pending", "modified", "after market order req received":
		return LegOpen
	case "cancelled", "canceled":
		return LegCancelled
	case "rejected":
		return LegRejected
	default:
		return LegPending
	}
}

// SubmitState tracks the local submission progress of a leg.
type SubmitState string

const (
	NotSent      SubmitState = "NOT_SENT"
	Submitting   SubmitState = "SUBMITTING"
	Submitted    SubmitState = "SUBMITTED"
	SubmitFailed SubmitState = "SUBMIT_FAILED"
)

// OrderIntent is an order the system wants the brokerage to accept.
type OrderIntent struct {
	Role         LegRole
	Symbol       string
	Token        uint32
	Exchange     Exchange
	Side         OrderSide
	Type         OrderType
	Product      ProductType
	Quantity     int
	Price        float64
	TriggerPrice float64
	Validity     string // DAY, IOC
	Tag          string
}

// OrderRow is one row of the brokerage order book snapshot.
type OrderRow struct {
	OrderID  string
	Symbol   string
	Status   string
	Side     OrderSide
	Quantity int
	Price    float64
	PlacedAt time.Time
}

// LegStatus returns the normalised status of the row.
func (r OrderRow) LegStatus() LegStatus {
	return ParseLegStatus(r.Status)
}

// OrderLeg is one submitted (or attempted) order within a bracket group.
type OrderLeg struct {
	Role        LegRole
	OrderID     string
	Side        OrderSide
	Symbol      string
	Quantity    int
	Type        OrderType
	Price       float64
	Status      LegStatus
	SubmitState SubmitState
	Attempts    int
	Fallback    bool
	LastError   string
}

// NewLeg creates an unsent leg from an intent.
func NewLeg(intent OrderIntent) *OrderLeg {
	price := intent.Price
	if intent.Type == OrderTypeStopLoss || intent.Type == OrderTypeStopLossM {
		price = intent.TriggerPrice
	}
	return &OrderLeg{
		Role:        intent.Role,
		Side:        intent.Side,
		Symbol:      intent.Symbol,
		Quantity:    intent.Quantity,
		Type:        intent.Type,
		Price:       price,
		Status:      LegPending,
		SubmitState: NotSent,
	}
}

// Submitted reports whether the brokerage acknowledged the leg with an id.
func (l *OrderLeg) Submitted() bool {
	return l != nil && l.SubmitState == Submitted && l.OrderID != ""
}

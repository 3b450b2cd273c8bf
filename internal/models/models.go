// Package models provides domain models for the trading application.
package models

import (
	"strings"
	"time"
)

// Exchange represents a stock exchange.
type Exchange string

const (
	NSE Exchange = "NSE"
	BSE Exchange = "BSE"
)

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Opposite returns the side that closes a position opened on s.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideSell {
		return OrderSideBuy
	}
	return OrderSideSell
}

// Valid reports whether s is BUY or SELL.
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeMarket    OrderType = "MARKET"
	OrderTypeLimit     OrderType = "LIMIT"
	OrderTypeStopLoss  OrderType = "SL"
	OrderTypeStopLossM OrderType = "SL-M"
)

// ProductType represents the product type of an order.
type ProductType string

const (
	ProductMIS ProductType = "MIS" // Intraday
	ProductCNC ProductType = "CNC" // Delivery
)

// MarketStatus represents the current market status.
type MarketStatus string

const (
	MarketOpen    MarketStatus = "OPEN"
	MarketPreOpen MarketStatus = "PRE_OPEN"
	MarketClosed  MarketStatus = "CLOSED"
)

// Candle represents OHLCV data for a time period.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Instrument represents a tradeable instrument.
type Instrument struct {
	Token    uint32
	Symbol   string
	Name     string
	Exchange Exchange
	TickSize float64
	LotSize  int
}

// InstrumentList is the read-only set of instruments loaded once per session.
type InstrumentList struct {
	byKey map[string]Instrument
}

// NewInstrumentList indexes instruments by exchange and trading symbol.
func NewInstrumentList(instruments []Instrument) InstrumentList {
	byKey := make(map[string]Instrument, len(instruments))
	for _, inst := range instruments {
		byKey[instrumentKey(inst.Exchange, inst.Symbol)] = inst
	}
	return InstrumentList{byKey: byKey}
}

// Lookup finds the instrument for symbol on exchange.
func (l InstrumentList) Lookup(exchange Exchange, symbol string) (Instrument, bool) {
	inst, ok := l.byKey[instrumentKey(exchange, symbol)]
	return inst, ok
}

// Len returns the number of instruments.
func (l InstrumentList) Len() int {
	return len(l.byKey)
}

func instrumentKey(exchange Exchange, symbol string) string {
	return string(exchange) + ":" + strings.ToUpper(symbol)
}

// Position represents an open intraday position.
type Position struct {
	Symbol       string
	Exchange     Exchange
	Product      ProductType
	Quantity     int
	AveragePrice float64
	LTP          float64
	PnL          float64
}

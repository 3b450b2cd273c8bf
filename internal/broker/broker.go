// Package broker provides broker integration interfaces and implementations.
package broker

import (
	"context"
	"time"

	"bracket-trader/internal/models"
)

// Broker is the order surface the execution core depends on.
//
// PlaceOrder fails with *errors.TransportError for network trouble and
// *errors.BrokerageRejected when the brokerage refuses the order.
type Broker interface {
	// Account
	GetTradeCapital(ctx context.Context) (float64, error)

	// Orders
	PlaceOrder(ctx context.Context, intent *models.OrderIntent) (*OrderAck, error)
	GetOrderBook(ctx context.Context) ([]models.OrderRow, error)
	CancelOrder(ctx context.Context, orderID string) error

	// Market Data
	GetLastTradedPrice(ctx context.Context, exchange models.Exchange, symbol string) (float64, bool, error)
}

// MarketData is what the trading session needs beyond order handling.
type MarketData interface {
	GetCandles(ctx context.Context, req CandleRequest) ([]models.Candle, error)
	GetPositions(ctx context.Context) ([]models.Position, error)
	GetInstruments(ctx context.Context, exchange models.Exchange) ([]models.Instrument, error)
}

// Client is a full brokerage connection.
type Client interface {
	Broker
	MarketData
}

// CandleRequest represents a request for historical bars.
type CandleRequest struct {
	Token    uint32
	Symbol   string
	Exchange models.Exchange
	Interval string
	From     time.Time
	To       time.Time
}

// OrderAck is the brokerage acknowledgement of a submitted order. An ack
// says nothing about fills; status comes from the order book.
type OrderAck struct {
	OrderID string
	Message string
}

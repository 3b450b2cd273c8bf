package broker

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	apperrors "bracket-trader/internal/errors"
	"bracket-trader/internal/models"
)

// Order book statuses as Kite reports them.
const (
	StatusComplete       = "COMPLETE"
	StatusOpen           = "OPEN"
	StatusTriggerPending = "TRIGGER PENDING"
	StatusCancelled      = "CANCELLED"
	StatusRejected       = "REJECTED"
)

// PaperBroker simulates an intraday order book. Market orders fill at the
// cached LTP, limit and stop orders fill as UpdatePrice moves the price
// through them.
type PaperBroker struct {
	// Real connection for market data, may be nil
	data Client

	orders     map[string]*paperOrder
	orderSeq   []string
	positions  map[string]*paperPosition
	priceCache map[string]float64
	restricted map[string]bool

	initialCapital float64
	orderCounter   int
	now            func() time.Time

	mu sync.RWMutex
}

type paperOrder struct {
	row    models.OrderRow
	intent models.OrderIntent
}

type paperPosition struct {
	symbol   string
	exchange models.Exchange
	product  models.ProductType
	quantity int
	average  float64
	realised float64
}

// PaperBrokerConfig holds configuration for paper broker.
type PaperBrokerConfig struct {
	Data           Client
	InitialCapital float64
	Clock          func() time.Time
}

// NewPaperBroker creates a new paper trading broker.
func NewPaperBroker(cfg PaperBrokerConfig) *PaperBroker {
	capital := cfg.InitialCapital
	if capital == 0 {
		capital = 1000000 // 10 lakhs default
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	return &PaperBroker{
		data:           cfg.Data,
		orders:         make(map[string]*paperOrder),
		positions:      make(map[string]*paperPosition),
		priceCache:     make(map[string]float64),
		restricted:     make(map[string]bool),
		initialCapital: capital,
		now:            now,
	}
}

// RestrictSymbol makes non-market entries on symbol fail with the
// instrument-restricted rejection code.
func (p *PaperBroker) RestrictSymbol(symbol string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.restricted[strings.ToUpper(symbol)] = true
}

// GetTradeCapital returns the starting capital plus realised PnL less the
// value locked in open positions.
func (p *PaperBroker) GetTradeCapital(ctx context.Context) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	capital := p.initialCapital
	for _, pos := range p.positions {
		capital += pos.realised
		capital -= math.Abs(float64(pos.quantity)) * pos.average
	}
	return capital, nil
}

// PlaceOrder simulates order placement.
func (p *PaperBroker) PlaceOrder(ctx context.Context, intent *models.OrderIntent) (*OrderAck, error) {
	if intent.Quantity <= 0 {
		return nil, apperrors.NewBrokerageRejected("InputException", "quantity must be positive")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	symbol := strings.ToUpper(intent.Symbol)
	if p.restricted[symbol] && intent.Type != models.OrderTypeMarket {
		return nil, apperrors.NewBrokerageRejected(apperrors.CodeInstrumentRestricted,
			fmt.Sprintf("%s is in the cautionary list, only market orders allowed", symbol))
	}

	price := p.priceCache[symbol]
	if intent.Type == models.OrderTypeMarket && price == 0 {
		return nil, apperrors.NewBrokerageRejected("InputException", "no market price for "+symbol)
	}

	p.orderCounter++
	orderID := fmt.Sprintf("PAPER_%d_%d", p.now().Unix(), p.orderCounter)

	order := &paperOrder{
		intent: *intent,
		row: models.OrderRow{
			OrderID:  orderID,
			Symbol:   symbol,
			Side:     intent.Side,
			Quantity: intent.Quantity,
			Price:    intent.Price,
			PlacedAt: p.now(),
		},
	}
	order.intent.Symbol = symbol

	switch intent.Type {
	case models.OrderTypeStopLoss, models.OrderTypeStopLossM:
		order.row.Status = StatusTriggerPending
		order.row.Price = intent.TriggerPrice
	default:
		order.row.Status = StatusOpen
	}

	p.orders[orderID] = order
	p.orderSeq = append(p.orderSeq, orderID)

	if price > 0 {
		p.match(order, price)
	}

	return &OrderAck{OrderID: orderID, Message: "paper order placed"}, nil
}

// GetOrderBook returns all paper orders in placement order.
func (p *PaperBroker) GetOrderBook(ctx context.Context) ([]models.OrderRow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rows := make([]models.OrderRow, 0, len(p.orderSeq))
	for _, id := range p.orderSeq {
		rows = append(rows, p.orders[id].row)
	}
	return rows, nil
}

// CancelOrder simulates order cancellation.
func (p *PaperBroker) CancelOrder(ctx context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[orderID]
	if !ok {
		return apperrors.NewBrokerageRejected("InputException", "order not found: "+orderID)
	}
	if order.row.LegStatus() != models.LegOpen {
		return apperrors.NewBrokerageRejected("OrderException",
			fmt.Sprintf("cannot cancel order with status: %s", order.row.Status))
	}

	order.row.Status = StatusCancelled
	return nil
}

// GetLastTradedPrice asks the data connection for a fresh price, matching
// open orders against it, and falls back to the cached price without one.
func (p *PaperBroker) GetLastTradedPrice(ctx context.Context, exchange models.Exchange, symbol string) (float64, bool, error) {
	symbol = strings.ToUpper(symbol)

	if p.data == nil {
		p.mu.RLock()
		price, ok := p.priceCache[symbol]
		p.mu.RUnlock()
		return price, ok, nil
	}

	price, ok, err := p.data.GetLastTradedPrice(ctx, exchange, symbol)
	if err != nil || !ok {
		return 0, ok, err
	}
	p.UpdatePrice(symbol, price)
	return price, true, nil
}

// RefreshPrices re-reads the price of every symbol with an open order so
// resting limit and stop orders can fill.
func (p *PaperBroker) RefreshPrices(ctx context.Context) error {
	if p.data == nil {
		return nil
	}

	p.mu.RLock()
	pending := make(map[string]models.Exchange)
	for _, id := range p.orderSeq {
		o := p.orders[id]
		if o.row.LegStatus() == models.LegOpen {
			pending[o.intent.Symbol] = o.intent.Exchange
		}
	}
	p.mu.RUnlock()

	for symbol, exchange := range pending {
		if _, _, err := p.GetLastTradedPrice(ctx, exchange, symbol); err != nil {
			return fmt.Errorf("refreshing %s: %w", symbol, err)
		}
	}
	return nil
}

// GetCandles fetches historical bars from the data connection.
func (p *PaperBroker) GetCandles(ctx context.Context, req CandleRequest) ([]models.Candle, error) {
	if p.data != nil {
		return p.data.GetCandles(ctx, req)
	}
	return nil, fmt.Errorf("no data broker configured")
}

// GetInstruments fetches instruments from the data connection.
func (p *PaperBroker) GetInstruments(ctx context.Context, exchange models.Exchange) ([]models.Instrument, error) {
	if p.data != nil {
		return p.data.GetInstruments(ctx, exchange)
	}
	return nil, fmt.Errorf("no data broker configured")
}

// GetPositions returns simulated positions marked to the cached price.
func (p *PaperBroker) GetPositions(ctx context.Context) ([]models.Position, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	positions := make([]models.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		ltp := p.priceCache[pos.symbol]
		pnl := pos.realised
		if ltp > 0 {
			pnl += (ltp - pos.average) * float64(pos.quantity)
		}
		positions = append(positions, models.Position{
			Symbol:       pos.symbol,
			Exchange:     pos.exchange,
			Product:      pos.product,
			Quantity:     pos.quantity,
			AveragePrice: pos.average,
			LTP:          ltp,
			PnL:          pnl,
		})
	}
	return positions, nil
}

// UpdatePrice sets the price for symbol and fills any orders it crosses.
func (p *PaperBroker) UpdatePrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	symbol = strings.ToUpper(symbol)
	p.priceCache[symbol] = price

	for _, id := range p.orderSeq {
		order := p.orders[id]
		if order.row.Symbol == symbol {
			p.match(order, price)
		}
	}
}

// match fills order if price satisfies it. Caller holds the lock.
func (p *PaperBroker) match(order *paperOrder, price float64) {
	if order.row.LegStatus() != models.LegOpen {
		return
	}

	in := order.intent
	buy := in.Side == models.OrderSideBuy
	fill := false

	switch in.Type {
	case models.OrderTypeMarket:
		fill = true
	case models.OrderTypeLimit:
		fill = (buy && price <= in.Price) || (!buy && price >= in.Price)
		if fill {
			price = in.Price
		}
	case models.OrderTypeStopLoss, models.OrderTypeStopLossM:
		fill = (buy && price >= in.TriggerPrice) || (!buy && price <= in.TriggerPrice)
	}

	if !fill {
		return
	}

	order.row.Status = StatusComplete
	order.row.Price = price
	p.applyFill(in, price)
}

func (p *PaperBroker) applyFill(in models.OrderIntent, price float64) {
	key := fmt.Sprintf("%s:%s:%s", in.Exchange, in.Symbol, in.Product)
	pos, ok := p.positions[key]
	if !ok {
		pos = &paperPosition{symbol: in.Symbol, exchange: in.Exchange, product: in.Product}
		p.positions[key] = pos
	}

	signed := in.Quantity
	if in.Side == models.OrderSideSell {
		signed = -signed
	}

	// Opening or adding to the same side
	if pos.quantity == 0 || (pos.quantity > 0) == (signed > 0) {
		held := math.Abs(float64(pos.quantity))
		pos.average = (pos.average*held + price*float64(in.Quantity)) / (held + float64(in.Quantity))
		pos.quantity += signed
		return
	}

	closing := in.Quantity
	if held := abs(pos.quantity); held < closing {
		closing = held
	}
	if pos.quantity > 0 {
		pos.realised += (price - pos.average) * float64(closing)
	} else {
		pos.realised += (pos.average - price) * float64(closing)
	}

	before := pos.quantity
	pos.quantity += signed
	switch {
	case pos.quantity == 0:
		pos.average = 0
	case (before > 0) != (pos.quantity > 0):
		pos.average = price
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

var _ Client = (*PaperBroker)(nil)

package execution

import (
	"context"
	"fmt"
	"sync"

	"bracket-trader/internal/broker"
	apperrors "bracket-trader/internal/errors"
	"bracket-trader/internal/models"
)

// reply is one scripted PlaceOrder outcome.
type reply struct {
	id  string
	err error
}

var (
	transportFail = reply{err: apperrors.NewTransportError("place_order", fmt.Errorf("connection reset"))}
	restricted    = reply{err: apperrors.NewBrokerageRejected("AB4036", "cautionary listing")}
	marginReject  = reply{err: apperrors.NewBrokerageRejected("MarginException", "insufficient funds")}
	noOrderID     = reply{}
)

// scriptedBroker answers PlaceOrder from a per-role script and accepts
// anything past the end of it.
type scriptedBroker struct {
	mu     sync.Mutex
	script map[models.LegRole][]reply
	calls  []models.OrderIntent
	seq    int
}

func newScriptedBroker() *scriptedBroker {
	return &scriptedBroker{script: make(map[models.LegRole][]reply)}
}

func (b *scriptedBroker) on(role models.LegRole, replies ...reply) *scriptedBroker {
	b.script[role] = append(b.script[role], replies...)
	return b
}

func (b *scriptedBroker) PlaceOrder(ctx context.Context, intent *models.OrderIntent) (*broker.OrderAck, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls = append(b.calls, *intent)
	if queue := b.script[intent.Role]; len(queue) > 0 {
		r := queue[0]
		b.script[intent.Role] = queue[1:]
		if r.err != nil {
			return nil, r.err
		}
		return &broker.OrderAck{OrderID: r.id}, nil
	}

	b.seq++
	return &broker.OrderAck{OrderID: fmt.Sprintf("ord-%d", b.seq)}, nil
}

func (b *scriptedBroker) callsFor(role models.LegRole) []models.OrderIntent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []models.OrderIntent
	for _, c := range b.calls {
		if c.Role == role {
			out = append(out, c)
		}
	}
	return out
}

func (b *scriptedBroker) GetTradeCapital(ctx context.Context) (float64, error) { return 0, nil }

func (b *scriptedBroker) GetOrderBook(ctx context.Context) ([]models.OrderRow, error) {
	return nil, nil
}

func (b *scriptedBroker) CancelOrder(ctx context.Context, orderID string) error { return nil }

func (b *scriptedBroker) GetLastTradedPrice(ctx context.Context, exchange models.Exchange, symbol string) (float64, bool, error) {
	return 0, false, nil
}

var _ broker.Broker = (*scriptedBroker)(nil)

package broker

import (
	"context"
	"sync"
	"time"

	"bracket-trader/internal/models"
)

// RateLimiter is a token bucket.
type RateLimiter struct {
	rate       float64 // tokens per second
	burst      int     // max tokens
	tokens     float64
	lastUpdate time.Time
	now        func() time.Time
	mu         sync.Mutex
}

// NewRateLimiter creates a limiter that starts with a full bucket.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastUpdate: time.Now(),
		now:        time.Now,
	}
}

// reserve takes a token if one is available, otherwise returns how long
// until one will be.
func (r *RateLimiter) reserve() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	elapsed := now.Sub(r.lastUpdate).Seconds()
	r.lastUpdate = now

	r.tokens += elapsed * r.rate
	if r.tokens > float64(r.burst) {
		r.tokens = float64(r.burst)
	}

	if r.tokens >= 1 {
		r.tokens--
		return 0
	}
	if r.rate <= 0 {
		return time.Second
	}
	return time.Duration((1 - r.tokens) / r.rate * float64(time.Second))
}

// Allow takes a token without waiting.
func (r *RateLimiter) Allow() bool {
	return r.reserve() == 0
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		wait := r.reserve()
		if wait == 0 {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Paced wraps a Client so every brokerage call first waits on a shared
// rate limiter.
type Paced struct {
	next    Client
	limiter *RateLimiter
}

// NewPaced creates a paced client. rate is calls per second.
func NewPaced(next Client, rate float64, burst int) *Paced {
	return &Paced{next: next, limiter: NewRateLimiter(rate, burst)}
}

func (p *Paced) GetTradeCapital(ctx context.Context) (float64, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	return p.next.GetTradeCapital(ctx)
}

func (p *Paced) PlaceOrder(ctx context.Context, intent *models.OrderIntent) (*OrderAck, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return p.next.PlaceOrder(ctx, intent)
}

func (p *Paced) GetOrderBook(ctx context.Context) ([]models.OrderRow, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return p.next.GetOrderBook(ctx)
}

func (p *Paced) CancelOrder(ctx context.Context, orderID string) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	return p.next.CancelOrder(ctx, orderID)
}

func (p *Paced) GetLastTradedPrice(ctx context.Context, exchange models.Exchange, symbol string) (float64, bool, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return 0, false, err
	}
	return p.next.GetLastTradedPrice(ctx, exchange, symbol)
}

func (p *Paced) GetCandles(ctx context.Context, req CandleRequest) ([]models.Candle, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return p.next.GetCandles(ctx, req)
}

func (p *Paced) GetPositions(ctx context.Context) ([]models.Position, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return p.next.GetPositions(ctx)
}

func (p *Paced) GetInstruments(ctx context.Context, exchange models.Exchange) ([]models.Instrument, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return p.next.GetInstruments(ctx, exchange)
}

var _ Client = (*Paced)(nil)

package broker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	apperrors "bracket-trader/internal/errors"
	"bracket-trader/internal/logging"
	"bracket-trader/internal/models"
)

// Kite error types that indicate the request may succeed if repeated.
const (
	kiteNetworkException = "NetworkException"
	kiteGeneralException = "GeneralException"
)

// DefaultRestrictionHints are message fragments Kite uses when refusing an
// order on a restricted instrument (cautionary listing, price band).
var DefaultRestrictionHints = []string{"cautionary", "circuit", "price band"}

// KiteConfig holds configuration for the Kite Connect broker.
type KiteConfig struct {
	APIKey     string
	APISecret  string
	UserID     string
	Password   string
	TOTPSecret string
	TokenPath  string
	Timeout    time.Duration
	// RestrictionHints override DefaultRestrictionHints when set.
	RestrictionHints []string
}

// KiteBroker implements Client on top of Zerodha Kite Connect.
type KiteBroker struct {
	client        *kiteconnect.Client
	cfg           KiteConfig
	tokens        *TokenStore
	authenticated bool
	instruments   map[string]models.Instrument
	hints         []string
	logger        zerolog.Logger
	mu            sync.RWMutex
}

// NewKiteBroker creates a Kite broker. A saved session is picked up if one
// is still valid.
func NewKiteBroker(cfg KiteConfig, logger zerolog.Logger) *KiteBroker {
	client := kiteconnect.New(cfg.APIKey)
	if cfg.Timeout > 0 {
		client.SetHTTPClient(&http.Client{Timeout: cfg.Timeout})
	}

	hints := cfg.RestrictionHints
	if len(hints) == 0 {
		hints = DefaultRestrictionHints
	}

	kb := &KiteBroker{
		client:      client,
		cfg:         cfg,
		tokens:      NewTokenStore(cfg.TokenPath, cfg.APISecret),
		instruments: make(map[string]models.Instrument),
		hints:       hints,
		logger:      logging.WithComponent(logger, "kite"),
	}

	if token, err := kb.tokens.Load(time.Now()); err == nil {
		kb.setAccessToken(token)
	}

	return kb
}

// IsAuthenticated returns whether an access token is set.
func (k *KiteBroker) IsAuthenticated() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.authenticated
}

func (k *KiteBroker) setAccessToken(token string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.client.SetAccessToken(token)
	k.authenticated = token != ""
}

func (k *KiteBroker) requireAuth() error {
	if !k.IsAuthenticated() {
		return apperrors.ErrNotAuthenticated
	}
	return nil
}

// GetTradeCapital returns the available equity cash.
func (k *KiteBroker) GetTradeCapital(ctx context.Context) (float64, error) {
	if err := k.requireAuth(); err != nil {
		return 0, err
	}

	started := time.Now()
	margins, err := k.client.GetUserMargins()
	logging.LogAPICall(k.logger, "margins", started, err)
	if err != nil {
		return 0, k.classify("margins", err)
	}

	return margins.Equity.Available.Cash, nil
}

// PlaceOrder submits a single order.
func (k *KiteBroker) PlaceOrder(ctx context.Context, intent *models.OrderIntent) (*OrderAck, error) {
	if err := k.requireAuth(); err != nil {
		return nil, err
	}

	started := time.Now()
	resp, err := k.client.PlaceOrder(kiteconnect.VarietyRegular, orderParams(intent))
	logging.LogAPICall(k.logger, "place_order", started, err)
	if err != nil {
		return nil, k.classify("place_order", err)
	}

	return &OrderAck{OrderID: resp.OrderID}, nil
}

func orderParams(intent *models.OrderIntent) kiteconnect.OrderParams {
	params := kiteconnect.OrderParams{
		Exchange:        string(intent.Exchange),
		Tradingsymbol:   intent.Symbol,
		TransactionType: string(intent.Side),
		OrderType:       string(intent.Type),
		Product:         string(intent.Product),
		Quantity:        intent.Quantity,
		Validity:        intent.Validity,
		Tag:             intent.Tag,
	}

	switch intent.Type {
	case models.OrderTypeLimit:
		params.Price = intent.Price
	case models.OrderTypeStopLoss:
		params.Price = intent.Price
		params.TriggerPrice = intent.TriggerPrice
	case models.OrderTypeStopLossM:
		params.TriggerPrice = intent.TriggerPrice
	}

	if params.Validity == "" {
		params.Validity = kiteconnect.ValidityDay
	}

	return params
}

// GetOrderBook returns every order placed today with its current status.
func (k *KiteBroker) GetOrderBook(ctx context.Context) ([]models.OrderRow, error) {
	if err := k.requireAuth(); err != nil {
		return nil, err
	}

	started := time.Now()
	orders, err := k.client.GetOrders()
	logging.LogAPICall(k.logger, "orders", started, err)
	if err != nil {
		return nil, k.classify("orders", err)
	}

	return orderRows(orders), nil
}

func orderRows(orders kiteconnect.Orders) []models.OrderRow {
	rows := make([]models.OrderRow, len(orders))
	for i, o := range orders {
		rows[i] = models.OrderRow{
			OrderID:  o.OrderID,
			Symbol:   o.TradingSymbol,
			Status:   o.Status,
			Side:     models.OrderSide(o.TransactionType),
			Quantity: int(o.Quantity),
			Price:    o.Price,
			PlacedAt: o.OrderTimestamp.Time,
		}
	}
	return rows
}

// CancelOrder cancels an open order.
func (k *KiteBroker) CancelOrder(ctx context.Context, orderID string) error {
	if err := k.requireAuth(); err != nil {
		return err
	}

	started := time.Now()
	_, err := k.client.CancelOrder(kiteconnect.VarietyRegular, orderID, nil)
	logging.LogAPICall(logging.WithOrderID(k.logger, orderID), "cancel_order", started, err)
	if err != nil {
		return k.classify("cancel_order", err)
	}

	return nil
}

// GetLastTradedPrice returns the LTP. ok is false when Kite has no price
// for the instrument.
func (k *KiteBroker) GetLastTradedPrice(ctx context.Context, exchange models.Exchange, symbol string) (float64, bool, error) {
	if err := k.requireAuth(); err != nil {
		return 0, false, err
	}

	key := fmt.Sprintf("%s:%s", exchange, symbol)
	started := time.Now()
	ltp, err := k.client.GetLTP(key)
	logging.LogAPICall(k.logger, "ltp", started, err)
	if err != nil {
		return 0, false, k.classify("ltp", err)
	}

	q, ok := ltp[key]
	if !ok || q.LastPrice <= 0 {
		return 0, false, nil
	}

	return q.LastPrice, true, nil
}

// GetCandles fetches historical bars.
func (k *KiteBroker) GetCandles(ctx context.Context, req CandleRequest) ([]models.Candle, error) {
	if err := k.requireAuth(); err != nil {
		return nil, err
	}

	token := req.Token
	if token == 0 {
		t, err := k.getInstrumentToken(ctx, req.Symbol, req.Exchange)
		if err != nil {
			return nil, err
		}
		token = t
	}

	started := time.Now()
	data, err := k.client.GetHistoricalData(int(token), mapInterval(req.Interval), req.From, req.To, false, false)
	logging.LogAPICall(k.logger, "historical", started, err)
	if err != nil {
		return nil, k.classify("historical", err)
	}

	candles := make([]models.Candle, len(data))
	for i, d := range data {
		candles[i] = models.Candle{
			Timestamp: d.Date.Time,
			Open:      d.Open,
			High:      d.High,
			Low:       d.Low,
			Close:     d.Close,
			Volume:    int64(d.Volume),
		}
	}

	return candles, nil
}

// GetPositions returns today's positions, including those already squared off.
func (k *KiteBroker) GetPositions(ctx context.Context) ([]models.Position, error) {
	if err := k.requireAuth(); err != nil {
		return nil, err
	}

	started := time.Now()
	positions, err := k.client.GetPositions()
	logging.LogAPICall(k.logger, "positions", started, err)
	if err != nil {
		return nil, k.classify("positions", err)
	}

	result := make([]models.Position, 0, len(positions.Day))
	for _, p := range positions.Day {
		result = append(result, models.Position{
			Symbol:       p.Tradingsymbol,
			Exchange:     models.Exchange(p.Exchange),
			Product:      models.ProductType(p.Product),
			Quantity:     int(p.Quantity),
			AveragePrice: p.AveragePrice,
			LTP:          p.LastPrice,
			PnL:          p.PnL,
		})
	}

	return result, nil
}

// GetInstruments fetches all instruments for an exchange.
func (k *KiteBroker) GetInstruments(ctx context.Context, exchange models.Exchange) ([]models.Instrument, error) {
	if err := k.requireAuth(); err != nil {
		return nil, err
	}

	started := time.Now()
	instruments, err := k.client.GetInstrumentsByExchange(string(exchange))
	logging.LogAPICall(k.logger, "instruments", started, err)
	if err != nil {
		return nil, k.classify("instruments", err)
	}

	result := make([]models.Instrument, 0, len(instruments))
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, inst := range instruments {
		m := models.Instrument{
			Token:    uint32(inst.InstrumentToken),
			Symbol:   inst.Tradingsymbol,
			Name:     inst.Name,
			Exchange: models.Exchange(inst.Exchange),
			LotSize:  int(inst.LotSize),
			TickSize: inst.TickSize,
		}
		result = append(result, m)
		k.instruments[fmt.Sprintf("%s:%s", m.Exchange, m.Symbol)] = m
	}

	return result, nil
}

func (k *KiteBroker) getInstrumentToken(ctx context.Context, symbol string, exchange models.Exchange) (uint32, error) {
	key := fmt.Sprintf("%s:%s", exchange, symbol)

	k.mu.RLock()
	inst, ok := k.instruments[key]
	k.mu.RUnlock()
	if ok {
		return inst.Token, nil
	}

	if _, err := k.GetInstruments(ctx, exchange); err != nil {
		return 0, err
	}

	k.mu.RLock()
	inst, ok = k.instruments[key]
	k.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", apperrors.ErrSymbolNotFound, key)
	}

	return inst.Token, nil
}

// classify turns a Kite client error into a TransportError or a
// BrokerageRejected.
func (k *KiteBroker) classify(op string, err error) error {
	var kerr kiteconnect.Error
	if !errors.As(err, &kerr) {
		return apperrors.NewTransportError(op, err)
	}

	switch {
	case kerr.ErrorType == kiteNetworkException,
		kerr.Code == http.StatusTooManyRequests,
		kerr.ErrorType == kiteGeneralException && kerr.Code >= http.StatusInternalServerError:
		return apperrors.NewTransportError(op, err)
	}

	msg := strings.ToLower(kerr.Message)
	for _, hint := range k.hints {
		if strings.Contains(msg, strings.ToLower(hint)) {
			return apperrors.NewBrokerageRejected(apperrors.CodeInstrumentRestricted, kerr.Message)
		}
	}

	code := kerr.ErrorType
	if code == "" {
		code = fmt.Sprintf("HTTP%d", kerr.Code)
	}
	return apperrors.NewBrokerageRejected(code, kerr.Message)
}

func mapInterval(interval string) string {
	switch interval {
	case "1min", "1m":
		return "minute"
	case "3min", "3m":
		return "3minute"
	case "5min", "5m", "":
		return "5minute"
	case "15min", "15m":
		return "15minute"
	case "30min", "30m":
		return "30minute"
	case "1hour", "1h":
		return "60minute"
	case "1day", "1d":
		return "day"
	default:
		return interval
	}
}

// LoginURL returns the Kite login URL for the manual request-token flow.
func (k *KiteBroker) LoginURL() string {
	return k.client.GetLoginURL()
}

var _ Client = (*KiteBroker)(nil)

// Package execution places bracket orders: an entry followed by a stop-loss
// and a target on the opposite side.
package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"bracket-trader/internal/broker"
	apperrors "bracket-trader/internal/errors"
	"bracket-trader/internal/logging"
	"bracket-trader/internal/metrics"
	"bracket-trader/internal/models"
	"bracket-trader/internal/orders"
	"bracket-trader/pkg/utils"
)

// DefaultRestrictionCodes are rejection codes that send the entry to the
// market fallback. AB4036 is the cautionary-listing code of the original
// robo-order flow.
var DefaultRestrictionCodes = []string{"AB4036", apperrors.CodeInstrumentRestricted}

var errNoOrderID = errors.New("acknowledgement without order id")

// Config controls retries and how the entry is expressed.
type Config struct {
	RetryCount       int
	RetryDelay       time.Duration
	RestrictionCodes []string
	Orders           orders.Options
}

// DefaultConfig returns 3 attempts, 2s linear delay and a limit entry.
func DefaultConfig() Config {
	return Config{
		RetryCount:       3,
		RetryDelay:       2 * time.Second,
		RestrictionCodes: DefaultRestrictionCodes,
		Orders:           orders.DefaultOptions(),
	}
}

// Executor submits bracket groups to a broker.
type Executor struct {
	broker broker.Broker
	cfg    Config
	logger zerolog.Logger
}

// NewExecutor creates an executor.
func NewExecutor(b broker.Broker, cfg Config, logger zerolog.Logger) *Executor {
	if cfg.RetryCount < 1 {
		cfg.RetryCount = 1
	}
	if len(cfg.RestrictionCodes) == 0 {
		cfg.RestrictionCodes = DefaultRestrictionCodes
	}
	return &Executor{
		broker: b,
		cfg:    cfg,
		logger: logging.WithComponent(logger, "executor"),
	}
}

// Place submits the entry, then the stop-loss and target.
//
// The returned group is never nil. Its state is ABORTED when no entry order
// exists (nothing else was sent), DEGRADED when the entry exists but a
// protective leg could not be placed, and PROTECTIVE_LEGS_PLACED otherwise.
// Cancelling ctx does not interrupt a placement in progress.
func (e *Executor) Place(ctx context.Context, intent models.PositionIntent, inst models.Instrument) (*models.BracketGroup, error) {
	ctx = context.WithoutCancel(ctx)

	group := models.NewBracketGroup(intent)
	log := logging.WithGroup(logging.WithSymbol(e.logger, intent.Symbol), group.ID)

	if err := validateIntent(intent); err != nil {
		group.Abort(err.Error())
		e.finish(log, group)
		return group, err
	}

	opts := e.cfg.Orders
	opts.Tag = group.Tag()
	intents := orders.Build(inst, intent.Side, intent.Quantity, intent.Entry, intent.Stop, intent.Target, opts)

	group.Entry = models.NewLeg(intents.Entry)
	if err := e.placeEntry(ctx, log, group.Entry, intents.Entry); err != nil {
		group.Abort(err.Error())
		e.finish(log, group)
		return group, apperrors.NewOrderError("", intent.Symbol, string(models.RoleEntry), "entry not placed",
			fmt.Errorf("%w: %w", apperrors.ErrEntryPlacementFailed, err))
	}
	group.State = models.GroupEntryPlaced

	group.StopLoss = models.NewLeg(intents.StopLoss)
	group.Target = models.NewLeg(intents.Target)

	var failed *apperrors.PartialBracketFailure
	for _, p := range []struct {
		leg    *models.OrderLeg
		intent models.OrderIntent
	}{
		{group.StopLoss, intents.StopLoss},
		{group.Target, intents.Target},
	} {
		if err := e.submit(ctx, log, p.leg, p.intent); err != nil {
			if failed == nil {
				failed = &apperrors.PartialBracketFailure{GroupID: group.ID, Symbol: group.Symbol}
			}
			failed.Roles = append(failed.Roles, string(p.leg.Role))
			failed.Errs = append(failed.Errs, err)
		}
	}

	if failed != nil {
		group.State = models.GroupDegraded
		group.Reason = failed.Error()
		log.Warn().
			Strs("failed_roles", failed.Roles).
			Str("entry_order_id", group.Entry.OrderID).
			Msg("degraded bracket: position is open without full protection")
		e.finish(log, group)
		return group, failed
	}

	group.State = models.GroupProtected
	e.finish(log, group)
	return group, nil
}

// placeEntry submits the entry under the retry policy. A restriction
// rejection switches to a single market order; nothing is retried after it.
func (e *Executor) placeEntry(ctx context.Context, log zerolog.Logger, leg *models.OrderLeg, intent models.OrderIntent) error {
	err := e.submit(ctx, log, leg, intent)
	if err == nil {
		return nil
	}

	code, rejected := apperrors.RejectionCode(err)
	if !rejected || !e.isRestriction(code) {
		return err
	}

	fallback := orders.MarketFallback(intent)
	leg.Fallback = true
	leg.Type = fallback.Type
	leg.Price = 0

	log.Warn().Str("code", code).Msg("entry restricted, falling back to market order")

	id, ferr := e.send(ctx, leg, fallback)
	if ferr != nil {
		metrics.MarketFallbacks.WithLabelValues("failed").Inc()
		e.markFailed(log, leg, ferr)
		return fmt.Errorf("market fallback after %s: %w", code, ferr)
	}

	metrics.MarketFallbacks.WithLabelValues("accepted").Inc()
	e.markSubmitted(log, leg, id)
	return nil
}

// submit sends intent, retrying transport failures and acknowledgements
// without an order id with a linearly growing delay.
func (e *Executor) submit(ctx context.Context, log zerolog.Logger, leg *models.OrderLeg, intent models.OrderIntent) error {
	retry := utils.LinearRetryConfig(e.cfg.RetryCount, e.cfg.RetryDelay)
	retry.RetryIf = retryable
	retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.Warn().
			Err(err).
			Str("role", string(leg.Role)).
			Int("attempt", attempt).
			Int("max_attempts", e.cfg.RetryCount).
			Dur("retry_in", delay).
			Msg("order attempt failed")
	}

	id, err := utils.RetryWithResult(ctx, retry, func() (string, error) {
		return e.send(ctx, leg, intent)
	})
	if err != nil {
		e.markFailed(log, leg, err)
		return err
	}

	e.markSubmitted(log, leg, id)
	return nil
}

// send makes exactly one brokerage call.
func (e *Executor) send(ctx context.Context, leg *models.OrderLeg, intent models.OrderIntent) (string, error) {
	leg.Attempts++
	leg.SubmitState = models.Submitting

	ack, err := e.broker.PlaceOrder(ctx, &intent)
	switch {
	case err != nil && apperrors.IsTransport(err):
		metrics.OrderAttempts.WithLabelValues(string(leg.Role), metrics.OutcomeTransport).Inc()
		return "", err
	case err != nil:
		metrics.OrderAttempts.WithLabelValues(string(leg.Role), metrics.OutcomeRejected).Inc()
		return "", err
	case ack == nil || ack.OrderID == "":
		metrics.OrderAttempts.WithLabelValues(string(leg.Role), metrics.OutcomeNoOrderID).Inc()
		return "", errNoOrderID
	}

	metrics.OrderAttempts.WithLabelValues(string(leg.Role), metrics.OutcomeAccepted).Inc()
	return ack.OrderID, nil
}

func (e *Executor) markSubmitted(log zerolog.Logger, leg *models.OrderLeg, orderID string) {
	leg.OrderID = orderID
	leg.SubmitState = models.Submitted
	leg.LastError = ""
	logging.LogLeg(logging.WithOrderID(log, orderID), string(leg.Role), string(leg.Side), string(leg.Type), leg.Quantity, leg.Price)
}

func (e *Executor) markFailed(log zerolog.Logger, leg *models.OrderLeg, err error) {
	leg.SubmitState = models.SubmitFailed
	leg.LastError = err.Error()
	log.Warn().Err(err).Str("role", string(leg.Role)).Int("attempts", leg.Attempts).Msg("order not placed")
}

func (e *Executor) finish(log zerolog.Logger, group *models.BracketGroup) {
	metrics.Brackets.WithLabelValues(string(group.State)).Inc()
	logging.LogBracket(log, group.ID, group.Symbol, string(group.State), group.Reason)
}

func (e *Executor) isRestriction(code string) bool {
	for _, c := range e.cfg.RestrictionCodes {
		if strings.EqualFold(c, code) {
			return true
		}
	}
	return false
}

func retryable(err error) bool {
	return apperrors.IsTransport(err) || errors.Is(err, errNoOrderID)
}

// validateIntent rejects intents that must never reach the brokerage.
func validateIntent(intent models.PositionIntent) error {
	if intent.Quantity == 0 {
		return &apperrors.ValidationError{Field: "quantity", Value: 0, Message: "nothing to trade", Err: apperrors.ErrZeroQuantity}
	}
	if intent.Quantity < 0 {
		return apperrors.NewValidationError("quantity", intent.Quantity, "must not be negative")
	}
	if !intent.Side.Valid() {
		return apperrors.NewValidationError("side", intent.Side, "must be BUY or SELL")
	}

	invalid := func(msg string) error {
		return &apperrors.ValidationError{Field: "levels", Value: intent.PriceLevels, Message: msg, Err: apperrors.ErrInvalidPriceLevels}
	}
	if intent.Entry <= 0 || intent.Stop <= 0 || intent.Target <= 0 {
		return invalid("prices must be positive")
	}
	if intent.Side == models.OrderSideBuy && !(intent.Stop < intent.Entry && intent.Entry < intent.Target) {
		return invalid("buy bracket needs stop < entry < target")
	}
	if intent.Side == models.OrderSideSell && !(intent.Target < intent.Entry && intent.Entry < intent.Stop) {
		return invalid("sell bracket needs target < entry < stop")
	}
	return nil
}

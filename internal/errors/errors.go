// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors
var (
	ErrNotAuthenticated     = errors.New("not authenticated")
	ErrSessionExpired       = errors.New("session expired")
	ErrConfigInvalid        = errors.New("invalid configuration")
	ErrSymbolNotFound       = errors.New("symbol not found")
	ErrZeroQuantity         = errors.New("zero quantity")
	ErrInvalidPriceLevels   = errors.New("invalid price levels")
	ErrEntryPlacementFailed = errors.New("entry placement failed")
	ErrProtectiveLegFailed  = errors.New("protective leg failed")
	ErrNoPrice              = errors.New("no last traded price")
)

// CodeInstrumentRestricted is the rejection code brokers without a native
// cautionary-listing code are mapped to.
const CodeInstrumentRestricted = "INSTRUMENT_RESTRICTED"

// ValidationError represents a validation error. Validation failures are
// raised before any brokerage call is made.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// TransportError represents a network or timeout failure talking to the broker.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error [%s]: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a new TransportError.
func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

// BrokerageRejected represents a business-rule rejection by the brokerage.
type BrokerageRejected struct {
	Code    string
	Message string
}

func (e *BrokerageRejected) Error() string {
	return fmt.Sprintf("brokerage rejected [%s]: %s", e.Code, e.Message)
}

// NewBrokerageRejected creates a new BrokerageRejected.
func NewBrokerageRejected(code, message string) *BrokerageRejected {
	return &BrokerageRejected{Code: code, Message: message}
}

// OrderError represents an error related to a single order leg.
type OrderError struct {
	OrderID string
	Symbol  string
	Role    string
	Reason  string
	Err     error
}

func (e *OrderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order error [%s] %s %s: %s: %v", e.OrderID, e.Role, e.Symbol, e.Reason, e.Err)
	}
	return fmt.Sprintf("order error [%s] %s %s: %s", e.OrderID, e.Role, e.Symbol, e.Reason)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// NewOrderError creates a new OrderError.
func NewOrderError(orderID, symbol, role, reason string, err error) *OrderError {
	return &OrderError{
		OrderID: orderID,
		Symbol:  symbol,
		Role:    role,
		Reason:  reason,
		Err:     err,
	}
}

// PartialBracketFailure is returned when the entry was placed but one or
// both protective legs were not. The position is unprotected until someone
// intervenes.
type PartialBracketFailure struct {
	GroupID string
	Symbol  string
	Roles   []string
	Errs    []error
}

func (e *PartialBracketFailure) Error() string {
	return fmt.Sprintf("partial bracket [%s] %s: protective legs failed: %s",
		e.GroupID, e.Symbol, strings.Join(e.Roles, ","))
}

// Unwrap exposes ErrProtectiveLegFailed and the per-leg causes.
func (e *PartialBracketFailure) Unwrap() []error {
	return append([]error{ErrProtectiveLegFailed}, e.Errs...)
}

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// RejectionCode returns the brokerage rejection code carried by err, if any.
func RejectionCode(err error) (string, bool) {
	var br *BrokerageRejected
	if errors.As(err, &br) {
		return br.Code, true
	}
	return "", false
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}

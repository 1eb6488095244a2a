package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors surfaced by the order domain.
var (
	// ErrEmptyItems is returned when a draft order has no line items.
	ErrEmptyItems = errors.New("items required")
	// ErrNotFound is returned when the referenced order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrForbidden is returned on role or ownership violations.
	ErrForbidden = errors.New("access denied")
	// ErrStatusConflict is returned when an optimistic status update lost a
	// race: the persisted status no longer matches the one the caller read.
	ErrStatusConflict = errors.New("order status changed concurrently")
	// ErrNumberTaken is returned by the repository when the generated order
	// number already exists. The orchestrator regenerates and retries.
	ErrNumberTaken = errors.New("order number already exists")
	// ErrNumberExhausted is returned when order number generation keeps
	// colliding past the retry budget. This signals an operational problem.
	ErrNumberExhausted = errors.New("order number generation exhausted retries")
)

// ValidationError reports a missing or malformed field in a draft order.
// No state has been touched when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// InvalidItemError fails the whole pricing batch: the named product is
// missing, inactive, or lacks stock at pricing time.
type InvalidItemError struct {
	ProductID string
	Reason    string
}

func (e *InvalidItemError) Error() string {
	return fmt.Sprintf("invalid item %s: %s", e.ProductID, e.Reason)
}

// InvalidTransitionError reports a status change that violates the
// forward-only machine (e.g. processing -> delivered).
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

// StockConflictError is returned when a stock decrement failed after the
// order was persisted. Compensation has already run by the time the caller
// sees it: earlier decrements were restored and the order was cancelled.
type StockConflictError struct {
	OrderID   string
	ProductID string
	Err       error
}

func (e *StockConflictError) Error() string {
	return fmt.Sprintf("stock reservation failed for product %s on order %s: %v", e.ProductID, e.OrderID, e.Err)
}

func (e *StockConflictError) Unwrap() error { return e.Err }

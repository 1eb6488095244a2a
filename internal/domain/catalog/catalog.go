// Package catalog defines the contract with the external product catalog
// service: product lookup and conditional stock adjustment. The catalog is
// the single authority on stock levels; its decrement endpoint performs an
// atomic check-and-decrement, so callers never add their own locking.
package catalog

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrUnavailable is returned when the catalog service cannot be reached or
// times out. Callers must treat the affected step as failed rather than
// assuming either outcome.
var ErrUnavailable = errors.New("catalog service unavailable")

// NotFoundError indicates a requested product (or variant) does not exist.
type NotFoundError struct {
	ProductID string
	VariantID string
}

func (e *NotFoundError) Error() string {
	if e.VariantID != "" {
		return fmt.Sprintf("product %s variant %s not found", e.ProductID, e.VariantID)
	}
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InsufficientStockError indicates the catalog rejected a decrement because
// the available stock is below the requested quantity.
type InsufficientStockError struct {
	ProductID string
	VariantID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("product %s has %d in stock, requested %d", e.ProductID, e.Available, e.Requested)
}

// Variant is a purchasable variation of a product. Price is zero when the
// variant inherits the base product price.
type Variant struct {
	ID    string
	Name  string
	Color string
	Size  string
	Price decimal.Decimal
	Stock int
}

// BlindboxItem describes a possible reveal inside a blindbox product.
type BlindboxItem struct {
	Name   string
	Rarity string
	Image  string
}

// ProductSnapshot is the catalog's view of a product at fetch time. Order
// items copy the relevant fields so later catalog edits never alter placed
// orders.
type ProductSnapshot struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	Image    string
	Stock    int
	IsActive bool
	Variants []Variant
}

// FindVariant returns the variant with the given ID, or nil.
func (p *ProductSnapshot) FindVariant(variantID string) *Variant {
	for i := range p.Variants {
		if p.Variants[i].ID == variantID {
			return &p.Variants[i]
		}
	}
	return nil
}

// Client isolates all interaction with the product catalog service. It holds
// no local state between calls.
type Client interface {
	// FetchProduct returns the current snapshot for the given product.
	FetchProduct(ctx context.Context, productID string) (*ProductSnapshot, error)

	// DecreaseStock atomically checks and decrements stock for the product
	// (or the given variant). Returns *InsufficientStockError when stock is
	// below quantity, *NotFoundError when the product is gone.
	DecreaseStock(ctx context.Context, productID, variantID string, quantity int) error

	// IncreaseStock restores previously decremented stock. Used by the
	// compensation path after a partial reservation failure and on order
	// cancellation.
	IncreaseStock(ctx context.Context, productID, variantID string, quantity int) error
}

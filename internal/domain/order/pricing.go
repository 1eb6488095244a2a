package order

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/blindbox-shop/order-service/internal/domain/catalog"
)

// ItemRequest is one requested line of a draft order, before pricing.
// Blindbox optionally carries a reveal descriptor supplied by the caller
// (e.g. the cart service) that is snapshotted onto the order line verbatim.
type ItemRequest struct {
	ProductID string
	VariantID string
	Quantity  int
	Blindbox  *BlindboxSnapshot
}

// Quote is the fully priced result of a valid item set.
// Total = Subtotal + ShippingFee - Discount and is never negative.
type Quote struct {
	Items       []Item
	Subtotal    decimal.Decimal
	ShippingFee decimal.Decimal
	Discount    decimal.Decimal
	Total       decimal.Decimal
}

// DiscountStrategy computes the order-level discount from the priced items
// and their subtotal. Implementations must not mutate items.
type DiscountStrategy interface {
	Discount(items []Item, subtotal decimal.Decimal) decimal.Decimal
}

// NoDiscount is the default strategy: no promotion applies.
type NoDiscount struct{}

func (NoDiscount) Discount([]Item, decimal.Decimal) decimal.Decimal { return decimal.Zero }

var hundred = decimal.NewFromInt(100)

// PercentageDiscount takes Percent off the subtotal, optionally capped at
// MaxDiscount when MaxDiscount is positive.
type PercentageDiscount struct {
	Percent     decimal.Decimal
	MaxDiscount decimal.Decimal
}

func (d PercentageDiscount) Discount(_ []Item, subtotal decimal.Decimal) decimal.Decimal {
	amount := subtotal.Mul(d.Percent).Div(hundred)
	if d.MaxDiscount.IsPositive() {
		amount = decimal.Min(amount, d.MaxDiscount)
	}
	return floorAtZero(amount).Round(2)
}

// FixedDiscount takes a fixed amount off, capped at the subtotal.
type FixedDiscount struct {
	Amount decimal.Decimal
}

func (d FixedDiscount) Discount(_ []Item, subtotal decimal.Decimal) decimal.Decimal {
	return floorAtZero(decimal.Min(d.Amount, subtotal)).Round(2)
}

// Pricer turns requested item tuples into priced, validated order lines.
// The shipping fee is a flat configured amount; the discount strategy is
// pluggable so promotions can change without touching pricing logic.
type Pricer struct {
	catalog  catalog.Client
	shipping decimal.Decimal
	discount DiscountStrategy
}

// NewPricer creates a Pricer. A nil strategy means no discount.
func NewPricer(c catalog.Client, shippingFee decimal.Decimal, strategy DiscountStrategy) *Pricer {
	if strategy == nil {
		strategy = NoDiscount{}
	}
	return &Pricer{
		catalog:  c,
		shipping: shippingFee,
		discount: strategy,
	}
}

// Price validates and prices the requested items, failing fast on the first
// invalid one. No partial quote is ever returned.
func (p *Pricer) Price(ctx context.Context, reqs []ItemRequest) (*Quote, error) {
	if len(reqs) == 0 {
		return nil, ErrEmptyItems
	}

	items := make([]Item, 0, len(reqs))
	subtotal := decimal.Zero

	for _, req := range reqs {
		if req.Quantity <= 0 {
			return nil, &InvalidItemError{ProductID: req.ProductID, Reason: "quantity must be greater than 0"}
		}

		snap, err := p.catalog.FetchProduct(ctx, req.ProductID)
		if err != nil {
			var nf *catalog.NotFoundError
			if errors.As(err, &nf) {
				return nil, &InvalidItemError{ProductID: req.ProductID, Reason: "product not found"}
			}
			return nil, errors.Wrapf(err, "fetch product %s", req.ProductID)
		}
		if !snap.IsActive {
			return nil, &InvalidItemError{ProductID: req.ProductID, Reason: fmt.Sprintf("%s is no longer available", snap.Name)}
		}

		item, err := priceItem(snap, req)
		if err != nil {
			return nil, err
		}

		items = append(items, item)
		subtotal = subtotal.Add(item.Subtotal)
	}

	// Clamp so a misbehaving strategy can neither drive the total negative
	// nor inflate it.
	discount := floorAtZero(p.discount.Discount(items, subtotal))
	if limit := subtotal.Add(p.shipping); discount.GreaterThan(limit) {
		discount = limit
	}

	return &Quote{
		Items:       items,
		Subtotal:    subtotal,
		ShippingFee: p.shipping,
		Discount:    discount,
		Total:       subtotal.Add(p.shipping).Sub(discount),
	}, nil
}

// priceItem resolves variant, stock, and unit price for one request against
// the fetched snapshot and builds the order line with its product snapshot.
func priceItem(snap *catalog.ProductSnapshot, req ItemRequest) (Item, error) {
	price := snap.Price
	stock := snap.Stock
	var variant *VariantSnapshot

	if req.VariantID != "" {
		v := snap.FindVariant(req.VariantID)
		if v == nil {
			return Item{}, &InvalidItemError{ProductID: req.ProductID, Reason: fmt.Sprintf("variant %s not found", req.VariantID)}
		}
		stock = v.Stock
		// Variants with their own price override the base product price.
		if v.Price.IsPositive() {
			price = v.Price
		}
		variant = &VariantSnapshot{
			VariantID: v.ID,
			Name:      v.Name,
			Color:     v.Color,
			Size:      v.Size,
		}
	}

	if stock < req.Quantity {
		return Item{}, &InvalidItemError{
			ProductID: req.ProductID,
			Reason:    fmt.Sprintf("%s only has %d items in stock", snap.Name, stock),
		}
	}

	qty := decimal.NewFromInt(int64(req.Quantity))
	return Item{
		Product: ItemProduct{
			ProductID: snap.ID,
			Name:      snap.Name,
			Price:     price,
			Image:     snap.Image,
			Variant:   variant,
			Blindbox:  req.Blindbox,
		},
		Quantity: req.Quantity,
		Price:    price,
		Subtotal: price.Mul(qty),
	}, nil
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Package order implements the order aggregate, its status machine, pricing,
// and the creation orchestrator that coordinates the catalog and store
// collaborators with persistence.
package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the fulfillment state of an order.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusConfirmed  Status = "confirmed"
	StatusShipping   Status = "shipping"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusReturned   Status = "returned"
)

// PaymentStatus tracks whether the order has been paid for.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// PaymentMethodType enumerates the accepted payment methods.
type PaymentMethodType string

const (
	PaymentCOD     PaymentMethodType = "cod"
	PaymentCard    PaymentMethodType = "card"
	PaymentBanking PaymentMethodType = "banking"
	PaymentWallet  PaymentMethodType = "wallet"
)

// ValidPaymentMethod reports whether t is one of the accepted method types.
func ValidPaymentMethod(t PaymentMethodType) bool {
	switch t {
	case PaymentCOD, PaymentCard, PaymentBanking, PaymentWallet:
		return true
	}
	return false
}

// PaymentMethod is a tagged payment variant with opaque method-specific
// details (card token, bank reference, wallet id).
type PaymentMethod struct {
	Type    PaymentMethodType `json:"type"`
	Details map[string]any    `json:"details,omitempty"`
}

// Address is a structured postal address. State is the only optional field.
type Address struct {
	FullName      string `json:"fullName"`
	PhoneNumber   string `json:"phoneNumber"`
	StreetAddress string `json:"streetAddress"`
	City          string `json:"city"`
	State         string `json:"state,omitempty"`
	PostalCode    string `json:"postalCode"`
	Country       string `json:"country"`
}

// BuyerSnapshot is the buyer identity copied onto the order at creation.
// Later profile changes never alter placed orders.
type BuyerSnapshot struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

// StoreSnapshot is the seller identity copied onto the order at creation.
type StoreSnapshot struct {
	StoreID string `json:"storeId"`
	Name    string `json:"name"`
}

// VariantSnapshot records the chosen product variant at order time.
// VariantID is kept so stock can be restored to the right variant on
// cancellation or compensation.
type VariantSnapshot struct {
	VariantID string `json:"variantId,omitempty"`
	Name      string `json:"name,omitempty"`
	Color     string `json:"color,omitempty"`
	Size      string `json:"size,omitempty"`
}

// BlindboxSnapshot records a revealed blindbox item on the order line.
type BlindboxSnapshot struct {
	Name   string `json:"name,omitempty"`
	Rarity string `json:"rarity,omitempty"`
	Image  string `json:"image,omitempty"`
}

// ItemProduct is the product data snapshotted onto an order line.
type ItemProduct struct {
	ProductID string            `json:"productId"`
	Name      string            `json:"name"`
	Price     decimal.Decimal   `json:"price"`
	Image     string            `json:"image,omitempty"`
	Variant   *VariantSnapshot  `json:"variant,omitempty"`
	Blindbox  *BlindboxSnapshot `json:"blindboxItem,omitempty"`
}

// Item is a single order line. Subtotal is always Quantity x Price.
type Item struct {
	Product  ItemProduct     `json:"product"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// StatusChange is one append-only entry in the order's status history.
type StatusChange struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
}

// Order is the aggregate root. It is created once by the orchestrator and
// afterwards mutated only through status transitions; it is never deleted.
type Order struct {
	ID          string
	OrderNumber string

	Buyer BuyerSnapshot
	Store StoreSnapshot
	Items []Item

	ShippingAddress Address
	BillingAddress  Address

	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus

	Status        Status
	StatusHistory []StatusChange

	Subtotal    decimal.Decimal
	ShippingFee decimal.Decimal
	Discount    decimal.Decimal
	Total       decimal.Decimal

	Notes              string
	CancellationReason string
	ReturnReason       string

	EstimatedDeliveryDate *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ListFilter narrows and pages List results. Zero values mean "no filter".
type ListFilter struct {
	UserID  string
	StoreID string
	Status  Status
	From    time.Time
	To      time.Time
	Page    int
	Limit   int
}

// StatusCount is the per-status order count and revenue used by statistics.
type StatusCount struct {
	Status  Status
	Count   int
	Revenue decimal.Decimal
}

// DayRevenue is one calendar day's order count and revenue, excluding
// cancelled and returned orders.
type DayRevenue struct {
	Day     time.Time
	Orders  int
	Revenue decimal.Decimal
}

// Statistics summarises orders, optionally scoped to one store. DailyRevenue
// covers the 30 most recent days that saw orders, newest first.
type Statistics struct {
	TotalOrders  int
	ByStatus     []StatusCount
	DailyRevenue []DayRevenue
}

// StatusUpdate carries the fields written by an accepted status transition.
type StatusUpdate struct {
	Status             Status
	Change             StatusChange
	CancellationReason string
	ReturnReason       string
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create persists a new order. It returns ErrNumberTaken when the
	// order number collides with an existing one.
	Create(ctx context.Context, o *Order) error

	// GetByID returns the order or ErrNotFound.
	GetByID(ctx context.Context, id string) (*Order, error)

	// List returns the matching page of orders plus the total match count.
	List(ctx context.Context, f ListFilter) ([]Order, int, error)

	// UpdateStatus applies upd only if the persisted status still equals
	// expected, returning ErrStatusConflict on mismatch and ErrNotFound when
	// the order does not exist.
	UpdateStatus(ctx context.Context, id string, expected Status, upd StatusUpdate) error

	// Statistics aggregates order counts and revenue, optionally for one store.
	Statistics(ctx context.Context, storeID string) (*Statistics, error)
}

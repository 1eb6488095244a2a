package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blindbox-shop/order-service/internal/domain/auth"
	"github.com/blindbox-shop/order-service/internal/domain/catalog"
	"github.com/blindbox-shop/order-service/internal/domain/store"
)

// cancelReasonStockFailed is recorded when the system cancels an order after
// a failed stock reservation.
const cancelReasonStockFailed = "Stock reservation failed"

// defaultReason is recorded when a cancelling or returning caller gives none.
const defaultReason = "No reason provided"

// PlaceOrderRequest is a draft order as submitted by the buyer.
// BillingAddress defaults to ShippingAddress when nil.
type PlaceOrderRequest struct {
	StoreID         string
	Items           []ItemRequest
	ShippingAddress Address
	BillingAddress  *Address
	PaymentMethod   PaymentMethod
	Notes           string
}

// StatusUpdateRequest asks for one status transition on an existing order.
type StatusUpdateRequest struct {
	Status             Status
	Note               string
	CancellationReason string
	ReturnReason       string
}

// Service orchestrates order creation and lifecycle mutations across the
// catalog and store collaborators and the order repository.
type Service struct {
	catalog catalog.Client
	stores  store.Client
	orders  Repository
	pricer  *Pricer
	now     func() time.Time
}

// NewService creates an order Service with the required collaborators.
func NewService(
	cat catalog.Client,
	stores store.Client,
	orders Repository,
	pricer *Pricer,
) *Service {
	return &Service{
		catalog: cat,
		stores:  stores,
		orders:  orders,
		pricer:  pricer,
		now:     time.Now,
	}
}

// PlaceOrder turns a draft order into a persisted one:
//
//  1. validate required fields (nothing mutated on failure)
//  2. price all items against current catalog snapshots, fail-fast
//  3. fetch the store snapshot
//  4. persist the order as "processing" with its generated number,
//     regenerating on number collision up to the retry budget
//  5. decrement stock per item in submitted order; on any failure restore
//     already-decremented items in reverse order and cancel the order,
//     keeping it for audit
//
// Once step 5 starts the flow runs on a context detached from the caller so
// a client disconnect cannot strand partial reservations.
func (s *Service) PlaceOrder(ctx context.Context, caller *auth.Identity, req PlaceOrderRequest) (*Order, error) {
	if err := validateDraft(req); err != nil {
		return nil, err
	}

	quote, err := s.pricer.Price(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	storeSnap, err := s.stores.FetchStore(ctx, req.StoreID)
	if err != nil {
		return nil, err
	}

	billing := req.ShippingAddress
	if req.BillingAddress != nil {
		billing = *req.BillingAddress
	}

	now := s.now()
	o := &Order{
		ID: uuid.New().String(),
		Buyer: BuyerSnapshot{
			UserID: caller.ID,
			Name:   caller.DisplayName(),
			Email:  caller.Email,
		},
		Store: StoreSnapshot{
			StoreID: storeSnap.ID,
			Name:    storeSnap.Name,
		},
		Items:           quote.Items,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  billing,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   PaymentPending,
		Status:          StatusProcessing,
		StatusHistory: []StatusChange{{
			Status:    StatusProcessing,
			Timestamp: now,
			Note:      "Order created",
		}},
		Subtotal:    quote.Subtotal,
		ShippingFee: quote.ShippingFee,
		Discount:    quote.Discount,
		Total:       quote.Total,
		Notes:       req.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.persistWithNumber(ctx, o); err != nil {
		return nil, err
	}

	// From here on the order exists; run reservation to completion even if
	// the client goes away, so failures always end in a compensated state.
	resCtx := context.WithoutCancel(ctx)
	if err := s.reserveStock(resCtx, o); err != nil {
		return nil, err
	}

	return o, nil
}

// persistWithNumber assigns candidate order numbers and persists, retrying
// on uniqueness collision. The table's unique constraint is the backstop
// that turns a racing duplicate into ErrNumberTaken here.
func (s *Service) persistWithNumber(ctx context.Context, o *Order) error {
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		o.OrderNumber = NewOrderNumber(s.now())
		err := s.orders.Create(ctx, o)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNumberTaken) {
			continue
		}
		return errors.Wrap(err, "create order")
	}
	return ErrNumberExhausted
}

// reserveStock decrements stock for each line in submitted order. On the
// first failure it restores earlier decrements in reverse order, cancels the
// order with the stock-failure reason, and reports a StockConflictError.
func (s *Service) reserveStock(ctx context.Context, o *Order) error {
	for i, item := range o.Items {
		err := s.catalog.DecreaseStock(ctx, item.Product.ProductID, variantID(item), item.Quantity)
		if err == nil {
			continue
		}

		s.restoreStock(ctx, o.Items[:i])
		s.cancelAfterStockFailure(ctx, o)

		return &StockConflictError{
			OrderID:   o.ID,
			ProductID: item.Product.ProductID,
			Err:       err,
		}
	}
	return nil
}

// restoreStock issues compensating increments for the given items in
// reverse order. Failures are logged and left for reconciliation; silently
// double-adjusting would be worse than a flagged mismatch.
func (s *Service) restoreStock(ctx context.Context, decremented []Item) {
	lg := zctx.From(ctx)
	for i := len(decremented) - 1; i >= 0; i-- {
		item := decremented[i]
		if err := s.catalog.IncreaseStock(ctx, item.Product.ProductID, variantID(item), item.Quantity); err != nil {
			lg.Error("stock restore failed, manual reconciliation required",
				zap.String("product_id", item.Product.ProductID),
				zap.Int("quantity", item.Quantity),
				zap.Error(err),
			)
		}
	}
}

// cancelAfterStockFailure marks the order cancelled on the system's behalf,
// bypassing role gating. The order is kept as an audit trail rather than
// deleted.
func (s *Service) cancelAfterStockFailure(ctx context.Context, o *Order) {
	change := StatusChange{
		Status:    StatusCancelled,
		Timestamp: s.now(),
		Note:      cancelReasonStockFailed,
	}
	err := s.orders.UpdateStatus(ctx, o.ID, StatusProcessing, StatusUpdate{
		Status:             StatusCancelled,
		Change:             change,
		CancellationReason: cancelReasonStockFailed,
	})
	if err != nil {
		zctx.From(ctx).Error("failed to cancel order after stock failure",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
		return
	}
	o.Status = StatusCancelled
	o.StatusHistory = append(o.StatusHistory, change)
	o.CancellationReason = cancelReasonStockFailed
}

// UpdateStatus applies one role-gated, machine-checked status transition
// with an optimistic concurrency check against the persisted status.
func (s *Service) UpdateStatus(ctx context.Context, caller *auth.Identity, orderID string, req StatusUpdateRequest) (*Order, error) {
	if !ValidStatus(req.Status) {
		return nil, &ValidationError{Field: "status", Reason: "unknown status"}
	}

	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := authorizeTransition(caller, o, req.Status); err != nil {
		return nil, err
	}
	if !o.Status.CanTransition(req.Status) {
		return nil, &InvalidTransitionError{From: o.Status, To: req.Status}
	}

	note := req.Note
	if note == "" {
		note = defaultNote(req.Status)
	}
	change := StatusChange{
		Status:    req.Status,
		Timestamp: s.now(),
		Note:      note,
	}

	upd := StatusUpdate{Status: req.Status, Change: change}
	switch req.Status {
	case StatusCancelled:
		upd.CancellationReason = orDefault(req.CancellationReason)
	case StatusReturned:
		upd.ReturnReason = orDefault(req.ReturnReason)
	}

	if err := s.orders.UpdateStatus(ctx, orderID, o.Status, upd); err != nil {
		return nil, err
	}

	// Cancelling a processing order releases its reservation; the stock was
	// decremented at creation and nothing shipped yet.
	if req.Status == StatusCancelled && o.Status == StatusProcessing {
		s.restoreStock(context.WithoutCancel(ctx), o.Items)
	}

	o.Status = req.Status
	o.StatusHistory = append(o.StatusHistory, change)
	o.CancellationReason = firstNonEmpty(upd.CancellationReason, o.CancellationReason)
	o.ReturnReason = firstNonEmpty(upd.ReturnReason, o.ReturnReason)
	o.UpdatedAt = change.Timestamp
	return o, nil
}

// Get returns one order, enforcing role visibility.
func (s *Service) Get(ctx context.Context, caller *auth.Identity, orderID string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorizeRead(caller, o); err != nil {
		return nil, err
	}
	return o, nil
}

// List returns the caller-visible page of orders and the total match count.
// Users are pinned to their own orders and sellers to their store; admins
// may filter freely.
func (s *Service) List(ctx context.Context, caller *auth.Identity, f ListFilter) ([]Order, int, error) {
	switch caller.Role {
	case auth.RoleUser:
		f.UserID = caller.ID
	case auth.RoleSeller:
		f.StoreID = caller.StoreID
	case auth.RoleAdmin:
	default:
		return nil, 0, ErrForbidden
	}
	return s.orders.List(ctx, f)
}

// Stats aggregates counts and revenue. Sellers are pinned to their own
// store; only admins may look across stores.
func (s *Service) Stats(ctx context.Context, caller *auth.Identity, storeID string) (*Statistics, error) {
	switch caller.Role {
	case auth.RoleAdmin:
	case auth.RoleSeller:
		storeID = caller.StoreID
	default:
		return nil, ErrForbidden
	}
	return s.orders.Statistics(ctx, storeID)
}

func validateDraft(req PlaceOrderRequest) error {
	if len(req.Items) == 0 {
		return ErrEmptyItems
	}
	if req.StoreID == "" {
		return &ValidationError{Field: "storeId", Reason: "required"}
	}
	if !ValidPaymentMethod(req.PaymentMethod.Type) {
		return &ValidationError{Field: "paymentMethod.type", Reason: "must be one of cod, card, banking, wallet"}
	}
	if err := validateAddress("shippingAddress", req.ShippingAddress); err != nil {
		return err
	}
	if req.BillingAddress != nil {
		return validateAddress("billingAddress", *req.BillingAddress)
	}
	return nil
}

// validateAddress requires every field except State.
func validateAddress(field string, a Address) error {
	required := []struct{ name, value string }{
		{"fullName", a.FullName},
		{"phoneNumber", a.PhoneNumber},
		{"streetAddress", a.StreetAddress},
		{"city", a.City},
		{"postalCode", a.PostalCode},
		{"country", a.Country},
	}
	for _, r := range required {
		if r.value == "" {
			return &ValidationError{Field: field + "." + r.name, Reason: "required"}
		}
	}
	return nil
}

func variantID(item Item) string {
	if item.Product.Variant == nil {
		return ""
	}
	return item.Product.Variant.VariantID
}

func orDefault(reason string) string {
	if reason == "" {
		return defaultReason
	}
	return reason
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

package order

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/blindbox-shop/order-service/internal/domain/auth"
	"github.com/blindbox-shop/order-service/internal/domain/catalog"
	"github.com/blindbox-shop/order-service/internal/domain/store"
)

// memCatalog is an in-memory catalog with conditional stock adjustments and
// a call log, so tests can assert decrement/restore ordering.
type memCatalog struct {
	mu       sync.Mutex
	products map[string]*catalog.ProductSnapshot
	failDec  map[string]error
	calls    []string
}

func newMemCatalog(products ...*catalog.ProductSnapshot) *memCatalog {
	m := make(map[string]*catalog.ProductSnapshot, len(products))
	for _, p := range products {
		m[p.ID] = p
	}
	return &memCatalog{products: m, failDec: map[string]error{}}
}

func (c *memCatalog) FetchProduct(_ context.Context, id string) (*catalog.ProductSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return nil, &catalog.NotFoundError{ProductID: id}
	}
	cp := *p
	return &cp, nil
}

func (c *memCatalog) DecreaseStock(_ context.Context, productID, _ string, quantity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "dec:"+productID)
	if err := c.failDec[productID]; err != nil {
		return err
	}
	p, ok := c.products[productID]
	if !ok {
		return &catalog.NotFoundError{ProductID: productID}
	}
	if p.Stock < quantity {
		return &catalog.InsufficientStockError{ProductID: productID, Requested: quantity, Available: p.Stock}
	}
	p.Stock -= quantity
	return nil
}

func (c *memCatalog) IncreaseStock(_ context.Context, productID, _ string, quantity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "inc:"+productID)
	p, ok := c.products[productID]
	if !ok {
		return &catalog.NotFoundError{ProductID: productID}
	}
	p.Stock += quantity
	return nil
}

func (c *memCatalog) stock(productID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.products[productID].Stock
}

func (c *memCatalog) callLog() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

type memStores struct {
	snap *store.Snapshot
	err  error
}

func (s *memStores) FetchStore(context.Context, string) (*store.Snapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.snap, nil
}

// memRepo is an in-memory order repository enforcing the same number
// uniqueness and status compare-and-swap as the real one.
type memRepo struct {
	mu           sync.Mutex
	orders       map[string]*Order
	numbers      map[string]bool
	failCreates  int
	createCalls  int
	beforeUpdate func()
	statsStoreID string
}

func newMemRepo() *memRepo {
	return &memRepo{orders: map[string]*Order{}, numbers: map[string]bool{}}
}

func cloneOrder(o *Order) *Order {
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	cp.StatusHistory = append([]StatusChange(nil), o.StatusHistory...)
	return &cp
}

func (r *memRepo) Create(_ context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createCalls++
	if r.createCalls <= r.failCreates {
		return ErrNumberTaken
	}
	if r.numbers[o.OrderNumber] {
		return ErrNumberTaken
	}
	r.numbers[o.OrderNumber] = true
	r.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id string) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r *memRepo) List(_ context.Context, f ListFilter) ([]Order, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Order
	for _, o := range r.orders {
		if f.UserID != "" && o.Buyer.UserID != f.UserID {
			continue
		}
		if f.StoreID != "" && o.Store.StoreID != f.StoreID {
			continue
		}
		out = append(out, *cloneOrder(o))
	}
	return out, len(out), nil
}

func (r *memRepo) UpdateStatus(_ context.Context, id string, expected Status, upd StatusUpdate) error {
	if r.beforeUpdate != nil {
		r.beforeUpdate()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return ErrNotFound
	}
	if o.Status != expected {
		return ErrStatusConflict
	}
	o.Status = upd.Status
	o.StatusHistory = append(o.StatusHistory, upd.Change)
	if upd.CancellationReason != "" {
		o.CancellationReason = upd.CancellationReason
	}
	if upd.ReturnReason != "" {
		o.ReturnReason = upd.ReturnReason
	}
	o.UpdatedAt = upd.Change.Timestamp
	return nil
}

func (r *memRepo) Statistics(_ context.Context, storeID string) (*Statistics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statsStoreID = storeID
	return &Statistics{TotalOrders: len(r.orders)}, nil
}

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestService(cat *memCatalog, repo *memRepo) *Service {
	stores := &memStores{snap: &store.Snapshot{ID: "store-1", Name: "Mystery Corner"}}
	svc := NewService(cat, stores, repo, NewPricer(cat, decimal.NewFromInt(30000), nil))
	svc.now = func() time.Time { return testNow }
	return svc
}

func buyer() *auth.Identity {
	return &auth.Identity{
		ID:        "buyer-1",
		Role:      auth.RoleUser,
		FirstName: "An",
		LastName:  "Nguyen",
		Email:     "an@example.com",
	}
}

func validAddress() Address {
	return Address{
		FullName:      "An Nguyen",
		PhoneNumber:   "0900000000",
		StreetAddress: "12 Ly Thuong Kiet",
		City:          "Hanoi",
		PostalCode:    "100000",
		Country:       "VN",
	}
}

func draft(items ...ItemRequest) PlaceOrderRequest {
	return PlaceOrderRequest{
		StoreID:         "store-1",
		Items:           items,
		ShippingAddress: validAddress(),
		PaymentMethod:   PaymentMethod{Type: PaymentCOD},
	}
}

func TestPlaceOrder_Success(t *testing.T) {
	cat := newMemCatalog(
		snapshot("P1", "Fox Box", "10", 5),
		snapshot("P2", "Cat Box", "25", 5),
	)
	repo := newMemRepo()
	svc := newTestService(cat, repo)

	o, err := svc.PlaceOrder(context.Background(), buyer(), draft(
		ItemRequest{ProductID: "P1", Quantity: 2},
		ItemRequest{ProductID: "P2", Quantity: 1},
	))
	require.NoError(t, err)

	assert.Regexp(t, `^BB250615\d{4}$`, o.OrderNumber)
	assert.Equal(t, StatusProcessing, o.Status)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	require.Len(t, o.StatusHistory, 1)
	assert.Equal(t, StatusProcessing, o.StatusHistory[0].Status)
	assert.Equal(t, "Order created", o.StatusHistory[0].Note)

	assert.Equal(t, "buyer-1", o.Buyer.UserID)
	assert.Equal(t, "an@example.com", o.Buyer.Email)
	assert.Equal(t, "Mystery Corner", o.Store.Name)
	assert.Equal(t, o.ShippingAddress, o.BillingAddress)

	assert.True(t, decimal.NewFromInt(45).Equal(o.Subtotal))
	assert.True(t, decimal.NewFromInt(30045).Equal(o.Total))

	// Stock is reserved and the order is persisted.
	assert.Equal(t, 3, cat.stock("P1"))
	assert.Equal(t, 4, cat.stock("P2"))
	persisted, err := repo.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, persisted.Status)
}

func TestPlaceOrder_Validation(t *testing.T) {
	cat := newMemCatalog(snapshot("P1", "Fox Box", "10", 5))
	repo := newMemRepo()
	svc := newTestService(cat, repo)
	ctx := context.Background()

	_, err := svc.PlaceOrder(ctx, buyer(), PlaceOrderRequest{StoreID: "store-1"})
	require.ErrorIs(t, err, ErrEmptyItems)

	req := draft(ItemRequest{ProductID: "P1", Quantity: 1})
	req.StoreID = ""
	_, err = svc.PlaceOrder(ctx, buyer(), req)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "storeId", vErr.Field)

	req = draft(ItemRequest{ProductID: "P1", Quantity: 1})
	req.PaymentMethod.Type = "crypto"
	_, err = svc.PlaceOrder(ctx, buyer(), req)
	require.ErrorAs(t, err, &vErr)

	req = draft(ItemRequest{ProductID: "P1", Quantity: 1})
	req.ShippingAddress.City = ""
	_, err = svc.PlaceOrder(ctx, buyer(), req)
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "shippingAddress.city", vErr.Field)

	// Nothing was persisted and no stock moved.
	assert.Zero(t, repo.createCalls)
	assert.Empty(t, cat.callLog())
}

func TestPlaceOrder_StoreNotFound(t *testing.T) {
	cat := newMemCatalog(snapshot("P1", "Fox Box", "10", 5))
	repo := newMemRepo()
	svc := newTestService(cat, repo)
	svc.stores = &memStores{err: store.ErrNotFound}

	_, err := svc.PlaceOrder(context.Background(), buyer(), draft(ItemRequest{ProductID: "P1", Quantity: 1}))
	require.ErrorIs(t, err, store.ErrNotFound)
	assert.Zero(t, repo.createCalls)
}

func TestPlaceOrder_CompensatesOnStockFailure(t *testing.T) {
	cat := newMemCatalog(
		snapshot("P1", "Fox Box", "10", 5),
		snapshot("P2", "Cat Box", "20", 5),
		snapshot("P3", "Owl Box", "30", 5),
	)
	cat.failDec["P2"] = &catalog.InsufficientStockError{ProductID: "P2", Requested: 1, Available: 0}
	repo := newMemRepo()
	svc := newTestService(cat, repo)

	_, err := svc.PlaceOrder(context.Background(), buyer(), draft(
		ItemRequest{ProductID: "P1", Quantity: 2},
		ItemRequest{ProductID: "P2", Quantity: 1},
		ItemRequest{ProductID: "P3", Quantity: 1},
	))

	var sErr *StockConflictError
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, "P2", sErr.ProductID)
	var insErr *catalog.InsufficientStockError
	assert.ErrorAs(t, err, &insErr)

	// The first item was restored in compensation; the third was never touched.
	assert.Equal(t, []string{"dec:P1", "dec:P2", "inc:P1"}, cat.callLog())
	assert.Equal(t, 5, cat.stock("P1"))
	assert.Equal(t, 5, cat.stock("P3"))

	// The order is kept, cancelled by the system.
	require.Len(t, repo.orders, 1)
	for _, o := range repo.orders {
		assert.Equal(t, StatusCancelled, o.Status)
		assert.Equal(t, "Stock reservation failed", o.CancellationReason)
		require.Len(t, o.StatusHistory, 2)
		assert.Equal(t, StatusCancelled, o.StatusHistory[1].Status)
	}
}

func TestPlaceOrder_RetriesNumberCollision(t *testing.T) {
	cat := newMemCatalog(snapshot("P1", "Fox Box", "10", 5))
	repo := newMemRepo()
	repo.failCreates = 2
	svc := newTestService(cat, repo)

	o, err := svc.PlaceOrder(context.Background(), buyer(), draft(ItemRequest{ProductID: "P1", Quantity: 1}))
	require.NoError(t, err)
	assert.Equal(t, 3, repo.createCalls)
	assert.NotEmpty(t, o.OrderNumber)
}

func TestPlaceOrder_NumberExhausted(t *testing.T) {
	cat := newMemCatalog(snapshot("P1", "Fox Box", "10", 5))
	repo := newMemRepo()
	repo.failCreates = maxNumberAttempts
	svc := newTestService(cat, repo)

	_, err := svc.PlaceOrder(context.Background(), buyer(), draft(ItemRequest{ProductID: "P1", Quantity: 1}))
	require.ErrorIs(t, err, ErrNumberExhausted)
	assert.Equal(t, maxNumberAttempts, repo.createCalls)
	assert.Empty(t, cat.callLog(), "no stock moves before the order exists")
}

func TestPlaceOrder_ConcurrentLastUnit(t *testing.T) {
	cat := newMemCatalog(snapshot("P1", "Fox Box", "10", 1))
	repo := newMemRepo()
	svc := newTestService(cat, repo)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.PlaceOrder(context.Background(), buyer(), draft(ItemRequest{ProductID: "P1", Quantity: 1}))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var won, lost int
	for err := range errs {
		if err == nil {
			won++
			continue
		}
		// The loser fails either at the conditional decrement or already at
		// pricing, depending on when the winner's decrement lands.
		var sErr *StockConflictError
		var iErr *InvalidItemError
		if errors.As(err, &sErr) || errors.As(err, &iErr) {
			lost++
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)
	assert.Equal(t, 0, cat.stock("P1"))
}

func TestPersistWithNumber_NoDuplicateEscapes(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(newMemCatalog(), repo)

	const n = 10000
	var persisted atomic.Int64
	var g errgroup.Group
	g.SetLimit(128)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			o := &Order{ID: fmt.Sprintf("o-%d", i)}
			err := svc.persistWithNumber(context.Background(), o)
			if err == nil {
				persisted.Add(1)
				return nil
			}
			// Exhausting the 4-digit suffix space under this load is expected.
			if errors.Is(err, ErrNumberExhausted) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	seen := map[string]bool{}
	for _, o := range repo.orders {
		require.False(t, seen[o.OrderNumber], "duplicate number %s persisted", o.OrderNumber)
		seen[o.OrderNumber] = true
	}
	assert.Equal(t, int(persisted.Load()), len(seen))
}

func placed(t *testing.T, svc *Service, cat *memCatalog) *Order {
	t.Helper()
	o, err := svc.PlaceOrder(context.Background(), buyer(), draft(ItemRequest{ProductID: "P1", Quantity: 2}))
	require.NoError(t, err)
	cat.calls = nil
	return o
}

func TestUpdateStatus_SellerConfirms(t *testing.T) {
	cat := newMemCatalog(snapshot("P1", "Fox Box", "10", 5))
	repo := newMemRepo()
	svc := newTestService(cat, repo)
	o := placed(t, svc, cat)

	seller := &auth.Identity{ID: "s", Role: auth.RoleSeller, StoreID: "store-1"}
	got, err := svc.UpdateStatus(context.Background(), seller, o.ID, StatusUpdateRequest{Status: StatusConfirmed})
	require.NoError(t, err)

	assert.Equal(t, StatusConfirmed, got.Status)
	require.Len(t, got.StatusHistory, 2)
	assert.Equal(t, "Status updated to confirmed", got.StatusHistory[1].Note)
	assert.Empty(t, cat.callLog(), "confirming must not touch stock")
}

func TestUpdateStatus_BuyerCancelsProcessing(t *testing.T) {
	cat := newMemCatalog(snapshot("P1", "Fox Box", "10", 5))
	repo := newMemRepo()
	svc := newTestService(cat, repo)
	o := placed(t, svc, cat)
	require.Equal(t, 3, cat.stock("P1"))

	got, err := svc.UpdateStatus(context.Background(), buyer(), o.ID, StatusUpdateRequest{Status: StatusCancelled})
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, "No reason provided", got.CancellationReason)
	assert.Equal(t, 5, cat.stock("P1"), "cancellation releases the reservation")
}

func TestUpdateStatus_Gating(t *testing.T) {
	cat := newMemCatalog(snapshot("P1", "Fox Box", "10", 5))
	repo := newMemRepo()
	svc := newTestService(cat, repo)
	o := placed(t, svc, cat)
	ctx := context.Background()

	stranger := &auth.Identity{ID: "buyer-2", Role: auth.RoleUser}
	_, err := svc.UpdateStatus(ctx, stranger, o.ID, StatusUpdateRequest{Status: StatusCancelled})
	require.ErrorIs(t, err, ErrForbidden)

	otherSeller := &auth.Identity{ID: "s2", Role: auth.RoleSeller, StoreID: "store-9"}
	_, err = svc.UpdateStatus(ctx, otherSeller, o.ID, StatusUpdateRequest{Status: StatusConfirmed})
	require.ErrorIs(t, err, ErrForbidden)

	admin := &auth.Identity{ID: "a", Role: auth.RoleAdmin}
	_, err = svc.UpdateStatus(ctx, admin, o.ID, StatusUpdateRequest{Status: StatusDelivered})
	var tErr *InvalidTransitionError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, StatusProcessing, tErr.From)

	_, err = svc.UpdateStatus(ctx, admin, o.ID, StatusUpdateRequest{Status: "archived"})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)

	_, err = svc.UpdateStatus(ctx, admin, "missing", StatusUpdateRequest{Status: StatusConfirmed})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatus_OptimisticConflict(t *testing.T) {
	cat := newMemCatalog(snapshot("P1", "Fox Box", "10", 5))
	repo := newMemRepo()
	svc := newTestService(cat, repo)
	o := placed(t, svc, cat)
	admin := &auth.Identity{ID: "a", Role: auth.RoleAdmin}

	// A rival transition lands between the read and the write.
	fired := false
	repo.beforeUpdate = func() {
		if fired {
			return
		}
		fired = true
		repo.mu.Lock()
		repo.orders[o.ID].Status = StatusCancelled
		repo.mu.Unlock()
	}

	_, err := svc.UpdateStatus(context.Background(), admin, o.ID, StatusUpdateRequest{Status: StatusConfirmed})
	require.ErrorIs(t, err, ErrStatusConflict)
}

func TestGet_Visibility(t *testing.T) {
	cat := newMemCatalog(snapshot("P1", "Fox Box", "10", 5))
	repo := newMemRepo()
	svc := newTestService(cat, repo)
	o := placed(t, svc, cat)
	ctx := context.Background()

	got, err := svc.Get(ctx, buyer(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	_, err = svc.Get(ctx, &auth.Identity{ID: "buyer-2", Role: auth.RoleUser}, o.ID)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Get(ctx, buyer(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestList_PinsCallerScope(t *testing.T) {
	cat := newMemCatalog(snapshot("P1", "Fox Box", "10", 50))
	repo := newMemRepo()
	svc := newTestService(cat, repo)
	placed(t, svc, cat)

	// A user asking for someone else's orders still only sees their own.
	orders, total, err := svc.List(context.Background(), buyer(), ListFilter{UserID: "buyer-2"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, orders, 1)
	assert.Equal(t, "buyer-1", orders[0].Buyer.UserID)

	orders, _, err = svc.List(context.Background(), &auth.Identity{ID: "s2", Role: auth.RoleSeller, StoreID: "store-9"}, ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)

	_, _, err = svc.List(context.Background(), &auth.Identity{Role: auth.Role("ghost")}, ListFilter{})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestStats_RoleScope(t *testing.T) {
	cat := newMemCatalog(snapshot("P1", "Fox Box", "10", 5))
	repo := newMemRepo()
	svc := newTestService(cat, repo)
	ctx := context.Background()

	_, err := svc.Stats(ctx, buyer(), "")
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Stats(ctx, &auth.Identity{Role: auth.RoleSeller, StoreID: "store-7"}, "store-1")
	require.NoError(t, err)
	assert.Equal(t, "store-7", repo.statsStoreID, "sellers are pinned to their own store")

	_, err = svc.Stats(ctx, &auth.Identity{Role: auth.RoleAdmin}, "store-1")
	require.NoError(t, err)
	assert.Equal(t, "store-1", repo.statsStoreID)
}

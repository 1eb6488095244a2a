//go:build integration

package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/blindbox-shop/order-service/internal/domain/order"
)

// startPostgres runs a disposable Postgres container and returns a migrated
// pool against it.
func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "orders",
				"POSTGRES_PASSWORD": "orders",
				"POSTGRES_DB":       "orders",
			},
			WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	url := fmt.Sprintf("postgres://orders:orders@%s:%s/orders?sslmode=disable", host, port.Port())
	pool, err := NewPool(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool))
	return pool
}

func testOrder(number string) *order.Order {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &order.Order{
		ID:          uuid.New().String(),
		OrderNumber: number,
		Buyer:       order.BuyerSnapshot{UserID: "u1", Name: "Linh Tran", Email: "linh@example.com"},
		Store:       order.StoreSnapshot{StoreID: "s1", Name: "Blindbox Corner"},
		Items: []order.Item{{
			Product: order.ItemProduct{
				ProductID: "p1",
				Name:      "Mystery Fox",
				Price:     decimal.RequireFromString("150000"),
				Image:     "fox.jpg",
				Variant:   &order.VariantSnapshot{VariantID: "v1", Name: "Red", Color: "red"},
			},
			Quantity: 2,
			Price:    decimal.RequireFromString("150000"),
			Subtotal: decimal.RequireFromString("300000"),
		}},
		ShippingAddress: order.Address{
			FullName: "Linh Tran", PhoneNumber: "0900000000",
			StreetAddress: "1 Duong Le Loi", City: "Hue",
			PostalCode: "530000", Country: "Vietnam",
		},
		BillingAddress: order.Address{
			FullName: "Linh Tran", PhoneNumber: "0900000000",
			StreetAddress: "1 Duong Le Loi", City: "Hue",
			PostalCode: "530000", Country: "Vietnam",
		},
		PaymentMethod: order.PaymentMethod{Type: order.PaymentCOD},
		PaymentStatus: order.PaymentPending,
		Status:        order.StatusProcessing,
		StatusHistory: []order.StatusChange{{
			Status: order.StatusProcessing, Timestamp: now, Note: "Order created",
		}},
		Subtotal:    decimal.RequireFromString("300000"),
		ShippingFee: decimal.RequireFromString("30000"),
		Discount:    decimal.Zero,
		Total:       decimal.RequireFromString("330000"),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestOrderRepository_RoundTrip(t *testing.T) {
	pool := startPostgres(t)
	repo := NewOrderRepository(pool)
	ctx := context.Background()

	o := testOrder("BB2508310001")
	require.NoError(t, repo.Create(ctx, o))

	got, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)

	assert.Equal(t, o.OrderNumber, got.OrderNumber)
	assert.Equal(t, o.Buyer, got.Buyer)
	assert.Equal(t, o.Store, got.Store)
	assert.Equal(t, o.ShippingAddress, got.ShippingAddress)
	assert.Equal(t, o.PaymentMethod.Type, got.PaymentMethod.Type)
	assert.Equal(t, order.StatusProcessing, got.Status)
	require.Len(t, got.Items, 1)
	assert.Equal(t, o.Items[0].Product, got.Items[0].Product)
	assert.True(t, o.Total.Equal(got.Total))
	require.Len(t, got.StatusHistory, 1)
	assert.Equal(t, order.StatusProcessing, got.StatusHistory[0].Status)
}

func TestOrderRepository_DuplicateNumber(t *testing.T) {
	pool := startPostgres(t)
	repo := NewOrderRepository(pool)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testOrder("BB2508310002")))

	err := repo.Create(ctx, testOrder("BB2508310002"))
	require.ErrorIs(t, err, order.ErrNumberTaken)
}

func TestOrderRepository_UpdateStatus(t *testing.T) {
	pool := startPostgres(t)
	repo := NewOrderRepository(pool)
	ctx := context.Background()

	o := testOrder("BB2508310003")
	require.NoError(t, repo.Create(ctx, o))

	upd := order.StatusUpdate{
		Status: order.StatusConfirmed,
		Change: order.StatusChange{
			Status:    order.StatusConfirmed,
			Timestamp: time.Now().UTC(),
			Note:      "Status updated to confirmed",
		},
	}
	require.NoError(t, repo.UpdateStatus(ctx, o.ID, order.StatusProcessing, upd))

	got, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, got.Status)
	require.Len(t, got.StatusHistory, 2)
	assert.Equal(t, "Status updated to confirmed", got.StatusHistory[1].Note)

	// Stale expected status loses the optimistic check.
	err = repo.UpdateStatus(ctx, o.ID, order.StatusProcessing, upd)
	require.ErrorIs(t, err, order.ErrStatusConflict)

	err = repo.UpdateStatus(ctx, "missing", order.StatusProcessing, upd)
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestOrderRepository_ListAndStats(t *testing.T) {
	pool := startPostgres(t)
	repo := NewOrderRepository(pool)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		o := testOrder(fmt.Sprintf("BB25083101%02d", i))
		if i == 2 {
			o.Buyer.UserID = "u2"
		}
		require.NoError(t, repo.Create(ctx, o))
	}

	orders, total, err := repo.List(ctx, order.ListFilter{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, orders, 2)

	orders, total, err = repo.List(ctx, order.ListFilter{Status: order.StatusProcessing, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, orders, 2)

	stats, err := repo.Statistics(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalOrders)
	require.Len(t, stats.ByStatus, 1)
	assert.Equal(t, order.StatusProcessing, stats.ByStatus[0].Status)
	assert.Equal(t, 3, stats.ByStatus[0].Count)

	require.Len(t, stats.DailyRevenue, 1)
	assert.Equal(t, 3, stats.DailyRevenue[0].Orders)
	assert.True(t, decimal.RequireFromString("990000").Equal(stats.DailyRevenue[0].Revenue),
		"daily revenue = %s", stats.DailyRevenue[0].Revenue)

	// Cancelled orders still count toward totals but drop out of the
	// daily revenue aggregate.
	cancel := order.StatusUpdate{
		Status: order.StatusCancelled,
		Change: order.StatusChange{
			Status:    order.StatusCancelled,
			Timestamp: time.Now().UTC(),
			Note:      "Status updated to cancelled",
		},
		CancellationReason: "No reason provided",
	}
	require.NoError(t, repo.UpdateStatus(ctx, orders[0].ID, order.StatusProcessing, cancel))

	stats, err = repo.Statistics(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalOrders)
	require.Len(t, stats.DailyRevenue, 1)
	assert.Equal(t, 2, stats.DailyRevenue[0].Orders)
	assert.True(t, decimal.RequireFromString("660000").Equal(stats.DailyRevenue[0].Revenue))
}

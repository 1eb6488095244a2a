package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/blindbox-shop/order-service/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (
		id, order_number, buyer, store, items,
		shipping_address, billing_address, payment_method, payment_status,
		status, status_history, subtotal, shipping_fee, discount, total,
		notes, estimated_delivery_date, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	orderColumns = `id, order_number, buyer, store, items,
		shipping_address, billing_address, payment_method, payment_status,
		status, status_history, subtotal, shipping_fee, discount, total,
		notes, cancellation_reason, return_reason, estimated_delivery_date,
		created_at, updated_at`

	// The WHERE status clause is the optimistic concurrency check: a racing
	// transition makes this update match zero rows instead of overwriting.
	updateStatusSQL = `UPDATE orders SET
		status = $2,
		status_history = status_history || $3::jsonb,
		cancellation_reason = CASE WHEN $4 <> '' THEN $4 ELSE cancellation_reason END,
		return_reason = CASE WHEN $5 <> '' THEN $5 ELSE return_reason END,
		updated_at = now()
	WHERE id = $1 AND status = $6`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

	statsTotalSQL = `SELECT count(*) FROM orders WHERE ($1 = '' OR store ->> 'storeId' = $1)`

	statsByStatusSQL = `SELECT status, count(*), COALESCE(sum(total), 0)
		FROM orders
		WHERE ($1 = '' OR store ->> 'storeId' = $1)
		GROUP BY status
		ORDER BY status`

	statsDailySQL = `SELECT date_trunc('day', created_at) AS day, count(*), COALESCE(sum(total), 0)
		FROM orders
		WHERE ($1 = '' OR store ->> 'storeId' = $1)
			AND status NOT IN ('cancelled', 'returned')
		GROUP BY day
		ORDER BY day DESC
		LIMIT 30`
)

// uniqueViolation is the Postgres error code for unique constraint failures.
const uniqueViolation = "23505"

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. Snapshot fields are serialized to JSON for
// the JSONB columns. An order number collision is reported as
// order.ErrNumberTaken so the orchestrator can regenerate and retry.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	doc, err := marshalOrderDoc(o)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.OrderNumber, doc.buyer, doc.store, doc.items,
		doc.shipping, doc.billing, doc.payment, string(o.PaymentStatus),
		string(o.Status), doc.history, o.Subtotal, o.ShippingFee, o.Discount, o.Total,
		o.Notes, o.EstimatedDeliveryDate, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "orders_order_number_key" {
			return order.ErrNumberTaken
		}
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns a single order by its identifier.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// List returns the matching page of orders, newest first, plus the total
// match count for pagination.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) ([]order.Order, int, error) {
	where, args := listConditions(f)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}

	listSQL := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, (page-1)*limit)

	rows, err := r.pool.Query(ctx, listSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	return orders, total, nil
}

// UpdateStatus applies a status transition with the expected-status check.
// Zero affected rows means either a lost optimistic race or a missing order;
// the existence probe tells the two apart.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, expected order.Status, upd order.StatusUpdate) error {
	entry, err := json.Marshal([]order.StatusChange{upd.Change})
	if err != nil {
		return errors.Wrap(err, "marshal status change")
	}

	tag, err := r.pool.Exec(ctx, updateStatusSQL,
		id, string(upd.Status), entry,
		upd.CancellationReason, upd.ReturnReason,
		string(expected),
	)
	if err != nil {
		return fmt.Errorf("updating order %q status: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking order %q: %w", id, err)
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrStatusConflict
}

// Statistics aggregates order counts and revenue, optionally for one store.
func (r *OrderRepository) Statistics(ctx context.Context, storeID string) (*order.Statistics, error) {
	stats := &order.Statistics{}
	if err := r.pool.QueryRow(ctx, statsTotalSQL, storeID).Scan(&stats.TotalOrders); err != nil {
		return nil, fmt.Errorf("counting orders: %w", err)
	}

	rows, err := r.pool.Query(ctx, statsByStatusSQL, storeID)
	if err != nil {
		return nil, fmt.Errorf("aggregating orders: %w", err)
	}
	stats.ByStatus, err = pgx.CollectRows(rows, scanStatusCount)
	if err != nil {
		return nil, fmt.Errorf("aggregating orders: %w", err)
	}

	rows, err = r.pool.Query(ctx, statsDailySQL, storeID)
	if err != nil {
		return nil, fmt.Errorf("aggregating daily revenue: %w", err)
	}
	stats.DailyRevenue, err = pgx.CollectRows(rows, scanDayRevenue)
	if err != nil {
		return nil, fmt.Errorf("aggregating daily revenue: %w", err)
	}
	return stats, nil
}

// --- row mapping ---

type orderDoc struct {
	buyer, store, items, shipping, billing, payment, history []byte
}

func marshalOrderDoc(o *order.Order) (*orderDoc, error) {
	doc := &orderDoc{}
	for _, m := range []struct {
		name string
		v    any
		dst  *[]byte
	}{
		{"buyer", o.Buyer, &doc.buyer},
		{"store", o.Store, &doc.store},
		{"items", o.Items, &doc.items},
		{"shipping address", o.ShippingAddress, &doc.shipping},
		{"billing address", o.BillingAddress, &doc.billing},
		{"payment method", o.PaymentMethod, &doc.payment},
		{"status history", o.StatusHistory, &doc.history},
	} {
		b, err := json.Marshal(m.v)
		if err != nil {
			return nil, errors.Wrapf(err, "marshal order %s", m.name)
		}
		*m.dst = b
	}
	return doc, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                      order.Order
		buyer, storeDoc, items []byte
		shipping, billing      []byte
		payment, history       []byte
		paymentStatus, status  string
		estimated              *time.Time
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &buyer, &storeDoc, &items,
		&shipping, &billing, &payment, &paymentStatus,
		&status, &history, &o.Subtotal, &o.ShippingFee, &o.Discount, &o.Total,
		&o.Notes, &o.CancellationReason, &o.ReturnReason, &estimated,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}

	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	o.Status = order.Status(status)
	o.EstimatedDeliveryDate = estimated

	for _, u := range []struct {
		name string
		data []byte
		dst  any
	}{
		{"buyer", buyer, &o.Buyer},
		{"store", storeDoc, &o.Store},
		{"items", items, &o.Items},
		{"shipping address", shipping, &o.ShippingAddress},
		{"billing address", billing, &o.BillingAddress},
		{"payment method", payment, &o.PaymentMethod},
		{"status history", history, &o.StatusHistory},
	} {
		if err := json.Unmarshal(u.data, u.dst); err != nil {
			return o, errors.Wrapf(err, "unmarshal order %s", u.name)
		}
	}
	return o, nil
}

func scanStatusCount(row pgx.CollectableRow) (order.StatusCount, error) {
	var (
		sc      order.StatusCount
		status  string
		revenue decimal.Decimal
	)
	if err := row.Scan(&status, &sc.Count, &revenue); err != nil {
		return sc, err
	}
	sc.Status = order.Status(status)
	sc.Revenue = revenue
	return sc, nil
}

func scanDayRevenue(row pgx.CollectableRow) (order.DayRevenue, error) {
	var dr order.DayRevenue
	if err := row.Scan(&dr.Day, &dr.Orders, &dr.Revenue); err != nil {
		return dr, err
	}
	return dr, nil
}

// listConditions builds the WHERE clause and arguments for List.
func listConditions(f order.ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.UserID != "" {
		add(`buyer ->> 'userId' = $%d`, f.UserID)
	}
	if f.StoreID != "" {
		add(`store ->> 'storeId' = $%d`, f.StoreID)
	}
	if f.Status != "" {
		add(`status = $%d`, string(f.Status))
	}
	if !f.From.IsZero() {
		add(`created_at >= $%d`, f.From)
	}
	if !f.To.IsZero() {
		add(`created_at <= $%d`, f.To)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

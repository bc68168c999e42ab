package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pilldrop/commerce-api/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists an order and its items. Items are rows in order_items, not
// a serialized blob, so the billing run and reporting can join on them.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	q := querier(ctx, r.pool)

	_, err := q.Exec(ctx,
		`INSERT INTO orders (id, member_id, order_date, status, total_amount, payment_method)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		o.ID, o.MemberID, o.OrderDate, o.Status, o.TotalAmount, o.PaymentMethod)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	for _, it := range o.Items {
		_, err := q.Exec(ctx,
			`INSERT INTO order_items (id, order_id, product_id, order_price, count)
			 VALUES ($1, $2, $3, $4, $5)`,
			it.ID, it.OrderID, it.ProductID, it.OrderPrice, it.Count)
		if err != nil {
			return fmt.Errorf("creating order item %q: %w", it.ID, err)
		}
	}
	return nil
}

// UpdateStatus moves an order to the given status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, status order.Status) error {
	tag, err := querier(ctx, r.pool).Exec(ctx,
		`UPDATE orders SET status = $2 WHERE id = $1`, orderID, status)
	if err != nil {
		return fmt.Errorf("updating order %q status: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return errors.Errorf("order %q not found", orderID)
	}
	return nil
}

// GetByID loads an order with its items.
func (r *OrderRepository) GetByID(ctx context.Context, orderID string) (*order.Order, error) {
	q := querier(ctx, r.pool)

	var o order.Order
	err := q.QueryRow(ctx,
		`SELECT id, member_id, order_date, status, total_amount, payment_method
		 FROM orders WHERE id = $1`, orderID).
		Scan(&o.ID, &o.MemberID, &o.OrderDate, &o.Status, &o.TotalAmount, &o.PaymentMethod)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Errorf("order %q not found", orderID)
		}
		return nil, fmt.Errorf("finding order %q: %w", orderID, err)
	}

	rows, err := q.Query(ctx,
		`SELECT id, order_id, product_id, order_price, count
		 FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, fmt.Errorf("loading items for order %q: %w", orderID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var it order.Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.OrderPrice, &it.Count); err != nil {
			return nil, fmt.Errorf("scanning order item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading order items: %w", err)
	}
	return &o, nil
}

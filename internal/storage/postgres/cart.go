package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pilldrop/commerce-api/internal/domain/cart"
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// FindByMember looks up the member's cart. Returns cart.ErrNotFound when the
// member has none.
func (r *CartRepository) FindByMember(ctx context.Context, memberID string) (*cart.Cart, error) {
	var c cart.Cart
	err := querier(ctx, r.pool).QueryRow(ctx,
		`SELECT id, member_id, created_at FROM carts WHERE member_id = $1`, memberID).
		Scan(&c.ID, &c.MemberID, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("finding cart for member %q: %w", memberID, err)
	}
	return &c, nil
}

// FindItems returns the cart's line items.
func (r *CartRepository) FindItems(ctx context.Context, cartID string) ([]cart.Item, error) {
	rows, err := querier(ctx, r.pool).Query(ctx,
		`SELECT id, cart_id, product_id, quantity FROM cart_items
		 WHERE cart_id = $1 ORDER BY created_at`, cartID)
	if err != nil {
		return nil, fmt.Errorf("loading cart items for cart %q: %w", cartID, err)
	}
	defer rows.Close()

	var items []cart.Item
	for rows.Next() {
		var it cart.Item
		if err := rows.Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scanning cart item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading cart items: %w", err)
	}
	return items, nil
}

// Clear removes every item from the cart. The cart row itself stays.
func (r *CartRepository) Clear(ctx context.Context, cartID string) error {
	_, err := querier(ctx, r.pool).Exec(ctx,
		`DELETE FROM cart_items WHERE cart_id = $1`, cartID)
	if err != nil {
		return fmt.Errorf("clearing cart %q: %w", cartID, err)
	}
	return nil
}

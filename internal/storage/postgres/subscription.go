package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pilldrop/commerce-api/internal/domain/subscription"
)

var _ subscription.Repository = (*SubscriptionRepository)(nil)

// SubscriptionRepository implements subscription.Repository backed by
// PostgreSQL.
type SubscriptionRepository struct {
	pool *pgxpool.Pool
}

// NewSubscriptionRepository returns a SubscriptionRepository that uses the
// given pool.
func NewSubscriptionRepository(pool *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{pool: pool}
}

const subscriptionColumns = `id, member_id, status, start_date, last_billing_date,
	next_billing_date, current_cycle, payment_method, postal_code, road_address,
	detail_address, cancel_at_cycle_end`

// FindActiveByMember returns the member's ACTIVE subscription with the
// highest cycle, or subscription.ErrNotFound.
func (r *SubscriptionRepository) FindActiveByMember(ctx context.Context, memberID string) (*subscription.Subscription, error) {
	row := querier(ctx, r.pool).QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE member_id = $1 AND status = $2
		 ORDER BY current_cycle DESC LIMIT 1`,
		memberID, subscription.StatusActive)
	return scanSubscription(row, memberID)
}

// GetByID loads a subscription by ID, any status.
func (r *SubscriptionRepository) GetByID(ctx context.Context, id string) (*subscription.Subscription, error) {
	row := querier(ctx, r.pool).QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id)
	return scanSubscription(row, id)
}

// Create persists a new subscription. The partial unique index on
// (member_id) WHERE status='ACTIVE' turns a concurrent duplicate into
// subscription.ErrActiveConflict.
func (r *SubscriptionRepository) Create(ctx context.Context, s *subscription.Subscription) error {
	_, err := querier(ctx, r.pool).Exec(ctx,
		`INSERT INTO subscriptions (id, member_id, status, start_date, last_billing_date,
		                            next_billing_date, current_cycle, payment_method,
		                            postal_code, road_address, detail_address, cancel_at_cycle_end)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		s.ID, s.MemberID, s.Status, s.StartDate, s.LastBillingDate,
		s.NextBillingDate, s.CurrentCycle, s.PaymentMethod,
		s.PostalCode, s.RoadAddress, s.DetailAddress, s.CancelAtCycleEnd)
	if err != nil {
		if isUniqueViolation(err, "subscriptions_one_active_per_member") {
			return subscription.ErrActiveConflict
		}
		return fmt.Errorf("creating subscription %q: %w", s.ID, err)
	}
	return nil
}

// Update writes the subscription's mutable fields.
func (r *SubscriptionRepository) Update(ctx context.Context, s *subscription.Subscription) error {
	tag, err := querier(ctx, r.pool).Exec(ctx,
		`UPDATE subscriptions
		 SET status = $2, last_billing_date = $3, next_billing_date = $4,
		     current_cycle = $5, payment_method = $6, cancel_at_cycle_end = $7
		 WHERE id = $1`,
		s.ID, s.Status, s.LastBillingDate, s.NextBillingDate,
		s.CurrentCycle, s.PaymentMethod, s.CancelAtCycleEnd)
	if err != nil {
		return fmt.Errorf("updating subscription %q: %w", s.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return subscription.ErrNotFound
	}
	return nil
}

// AppendNextItems stages next-cycle rows. Append-only; the billing run
// consumes and clears them.
func (r *SubscriptionRepository) AppendNextItems(ctx context.Context, items []subscription.NextItem) error {
	q := querier(ctx, r.pool)
	for _, it := range items {
		_, err := q.Exec(ctx,
			`INSERT INTO subscription_next_items
			     (id, subscription_id, product_id, next_month_quantity, next_month_price)
			 VALUES ($1, $2, $3, $4, $5)`,
			it.ID, it.SubscriptionID, it.ProductID, it.NextMonthQuantity, it.NextMonthPrice)
		if err != nil {
			return fmt.Errorf("staging next item %q: %w", it.ID, err)
		}
	}
	return nil
}

// FindNextItems returns the staged next-cycle rows for a subscription.
func (r *SubscriptionRepository) FindNextItems(ctx context.Context, subscriptionID string) ([]subscription.NextItem, error) {
	rows, err := querier(ctx, r.pool).Query(ctx,
		`SELECT id, subscription_id, product_id, next_month_quantity, next_month_price
		 FROM subscription_next_items WHERE subscription_id = $1 ORDER BY created_at`,
		subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("loading next items for subscription %q: %w", subscriptionID, err)
	}
	defer rows.Close()

	var items []subscription.NextItem
	for rows.Next() {
		var it subscription.NextItem
		if err := rows.Scan(&it.ID, &it.SubscriptionID, &it.ProductID,
			&it.NextMonthQuantity, &it.NextMonthPrice); err != nil {
			return nil, fmt.Errorf("scanning next item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading next items: %w", err)
	}
	return items, nil
}

func scanSubscription(row pgx.Row, key string) (*subscription.Subscription, error) {
	var s subscription.Subscription
	err := row.Scan(&s.ID, &s.MemberID, &s.Status, &s.StartDate, &s.LastBillingDate,
		&s.NextBillingDate, &s.CurrentCycle, &s.PaymentMethod, &s.PostalCode,
		&s.RoadAddress, &s.DetailAddress, &s.CancelAtCycleEnd)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, subscription.ErrNotFound
		}
		return nil, fmt.Errorf("finding subscription %q: %w", key, err)
	}
	return &s, nil
}

package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pilldrop/commerce-api/internal/domain/payment"
)

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository implements payment.Repository backed by PostgreSQL.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository returns a PaymentRepository that uses the given pool.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// Create persists a payment. Unique violations on the gateway reference or
// the order map to payment.ErrDuplicatePayment, which is how a concurrent
// checkout carrying the same gateway reference loses the race.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	_, err := querier(ctx, r.pool).Exec(ctx,
		`INSERT INTO payments (id, order_id, gateway_txn_ref, amount, payment_method, status,
		                       buyer_email, buyer_name, buyer_tel, buyer_addr, buyer_postcode, paid_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.OrderID, p.GatewayTxnRef, p.Amount, p.PaymentMethod, p.Status,
		p.BuyerEmail, p.BuyerName, p.BuyerTel, p.BuyerAddr, p.BuyerPostcode, p.PaidAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return payment.ErrDuplicatePayment
		}
		return fmt.Errorf("creating payment %q: %w", p.ID, err)
	}
	return nil
}

// FindByGatewayRef returns the payment recorded for a gateway transaction
// reference, or nil when none exists.
func (r *PaymentRepository) FindByGatewayRef(ctx context.Context, txnRef string) (*payment.Payment, error) {
	var p payment.Payment
	err := querier(ctx, r.pool).QueryRow(ctx,
		`SELECT id, order_id, gateway_txn_ref, amount, payment_method, status,
		        buyer_email, buyer_name, buyer_tel, buyer_addr, buyer_postcode, paid_at
		 FROM payments WHERE gateway_txn_ref = $1`, txnRef).
		Scan(&p.ID, &p.OrderID, &p.GatewayTxnRef, &p.Amount, &p.PaymentMethod, &p.Status,
			&p.BuyerEmail, &p.BuyerName, &p.BuyerTel, &p.BuyerAddr, &p.BuyerPostcode, &p.PaidAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding payment by gateway ref %q: %w", txnRef, err)
	}
	return &p, nil
}

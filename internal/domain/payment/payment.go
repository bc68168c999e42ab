package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for payment verification and recording.
var (
	// ErrGatewayUnreachable covers any transport or protocol failure while
	// talking to the payment gateway. The checkout may be retried with the
	// same gateway reference.
	ErrGatewayUnreachable = errors.New("payment gateway unreachable")
	// ErrPaymentNotFound is returned when the gateway has no record for the
	// given transaction reference.
	ErrPaymentNotFound = errors.New("payment not found at gateway")
	// ErrDuplicatePayment is returned when a payment for the same gateway
	// transaction reference (or the same order) already exists.
	ErrDuplicatePayment = errors.New("payment already recorded for this transaction")
)

// Payment is the persisted financial record linked 1:1 to an order. Amount is
// always the gateway-confirmed amount, never the client-submitted one.
type Payment struct {
	ID            string
	OrderID       string
	GatewayTxnRef string
	Amount        decimal.Decimal
	PaymentMethod string
	Status        string
	BuyerEmail    string
	BuyerName     string
	BuyerTel      string
	BuyerAddr     string
	BuyerPostcode string
	PaidAt        time.Time
}

// BuyerInfo carries the buyer contact fields submitted with a checkout.
type BuyerInfo struct {
	Email    string
	Name     string
	Tel      string
	Addr     string
	Postcode string
}

// GatewayTransaction is the gateway's canonical view of a settled payment
// attempt.
type GatewayTransaction struct {
	TxnRef    string
	Amount    decimal.Decimal
	Method    string
	SettledAt time.Time
}

// Gateway is the opaque boundary to the external payment provider. Given a
// transaction reference it returns the verified transaction or an error:
// ErrPaymentNotFound when no record exists, ErrGatewayUnreachable for any
// transport or protocol failure.
type Gateway interface {
	VerifyTransaction(ctx context.Context, txnRef string) (*GatewayTransaction, error)
}

// Repository defines persistence operations for payments. Create maps
// storage-level uniqueness violations on the gateway reference or the order
// to ErrDuplicatePayment.
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	FindByGatewayRef(ctx context.Context, txnRef string) (*Payment, error)
}

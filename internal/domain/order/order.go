package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order.
type Status string

const (
	// StatusOrdered marks an assembled order that has not yet been paid.
	StatusOrdered Status = "ORDERED"
	// StatusPaymentCompleted marks an order whose payment was verified and
	// recorded in the same atomic step.
	StatusPaymentCompleted Status = "PAYMENT_COMPLETED"
	// StatusCancelled marks an abandoned or cancelled order.
	StatusCancelled Status = "CANCELLED"
)

// Order is an immutable record of a completed checkout attempt. TotalAmount
// is the authoritative sum of OrderPrice*Count over Items, fixed at assembly
// time; it is never recomputed from catalog state.
type Order struct {
	ID            string
	MemberID      string
	OrderDate     time.Time
	Status        Status
	TotalAmount   decimal.Decimal
	PaymentMethod string
	Items         []Item
}

// Item is a single order line. OrderPrice is the per-unit price captured at
// checkout time, owned exclusively by its order.
type Item struct {
	ID         string
	OrderID    string
	ProductID  string
	OrderPrice decimal.Decimal
	Count      int
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	UpdateStatus(ctx context.Context, orderID string, status Status) error
	GetByID(ctx context.Context, orderID string) (*Order, error)
}

package subscription

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a subscription.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCancelled Status = "CANCELLED"
)

// Sentinel errors for subscription operations.
var (
	// ErrNotFound is returned when no subscription matches the lookup.
	ErrNotFound = errors.New("subscription not found")
	// ErrInvalidState is returned when mutating a subscription that is not
	// ACTIVE.
	ErrInvalidState = errors.New("subscription is not active")
	// ErrActiveConflict is returned when creating a second ACTIVE
	// subscription for the same member. Raised by the storage layer's
	// uniqueness constraint, so concurrent creators lose deterministically.
	ErrActiveConflict = errors.New("member already has an active subscription")
)

// Subscription is a member's recurring purchase. CurrentCycle increments only
// on successful renewal billing, which is performed by the external billing
// run, not by this package.
type Subscription struct {
	ID               string
	MemberID         string
	Status           Status
	StartDate        time.Time
	LastBillingDate  time.Time
	NextBillingDate  time.Time
	CurrentCycle     int
	PaymentMethod    string
	PostalCode       string
	RoadAddress      string
	DetailAddress    string
	CancelAtCycleEnd bool
}

// NextItem is a staged change to what the subscription will be billed on its
// next cycle. Rows are append-only here; the billing run consumes them.
type NextItem struct {
	ID                string
	SubscriptionID    string
	ProductID         string
	NextMonthQuantity int
	NextMonthPrice    decimal.Decimal
}

// ShippingInfo carries the delivery address captured with a subscription
// checkout.
type ShippingInfo struct {
	PostalCode    string
	RoadAddress   string
	DetailAddress string
}

// Repository defines persistence operations for subscriptions and their
// staged next-cycle items.
type Repository interface {
	// FindActiveByMember returns the member's ACTIVE subscription with the
	// highest cycle, or ErrNotFound.
	FindActiveByMember(ctx context.Context, memberID string) (*Subscription, error)
	GetByID(ctx context.Context, id string) (*Subscription, error)
	// Create persists a new subscription. Returns ErrActiveConflict when the
	// member already has an ACTIVE one.
	Create(ctx context.Context, s *Subscription) error
	Update(ctx context.Context, s *Subscription) error
	AppendNextItems(ctx context.Context, items []NextItem) error
	FindNextItems(ctx context.Context, subscriptionID string) ([]NextItem, error)
}

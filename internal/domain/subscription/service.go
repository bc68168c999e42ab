package subscription

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pilldrop/commerce-api/internal/domain/order"
)

// Outcome reports what Reconcile did for a subscription checkout.
type Outcome struct {
	Subscription *Subscription
	// Renewed is true when an existing ACTIVE subscription was found and
	// next-cycle items were staged; false when a new subscription was created.
	Renewed bool
	// StagedItems holds the next-cycle rows appended on the renewal path.
	StagedItems []NextItem
}

// Service implements the subscription state machine:
//
//	(none) --create--> ACTIVE --cancel(immediate)--> CANCELLED
//	        ACTIVE --cancel(at cycle end)--> ACTIVE[pending cancel]
//	        ACTIVE --renewal payment--> ACTIVE (items staged for next cycle)
//
// Cycle and billing-date advancement on renewal belong to the external
// billing run.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a subscription Service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Reconcile decides between the new-subscriber and renewal paths for a
// completed subscription order.
//
// Renewal: one NextItem per order item is staged, carrying the order's
// captured quantity and price. Billing dates and cycle are untouched.
//
// New subscriber: a cycle-1 ACTIVE subscription starts today with the next
// billing one month out, payment method from the order and address from the
// request.
func (s *Service) Reconcile(ctx context.Context, memberID string, o *order.Order, shipping ShippingInfo) (*Outcome, error) {
	lg := zctx.From(ctx)

	existing, err := s.repo.FindActiveByMember(ctx, memberID)
	switch {
	case err == nil:
		staged := make([]NextItem, len(o.Items))
		for i, item := range o.Items {
			staged[i] = NextItem{
				ID:                uuid.New().String(),
				SubscriptionID:    existing.ID,
				ProductID:         item.ProductID,
				NextMonthQuantity: item.Count,
				NextMonthPrice:    item.OrderPrice,
			}
		}
		if err := s.repo.AppendNextItems(ctx, staged); err != nil {
			return nil, err
		}
		lg.Info("staged next-cycle items for renewing subscriber",
			zap.String("subscription_id", existing.ID),
			zap.Int("items", len(staged)))
		return &Outcome{Subscription: existing, Renewed: true, StagedItems: staged}, nil

	case errors.Is(err, ErrNotFound):
		today := s.today()
		sub := &Subscription{
			ID:              uuid.New().String(),
			MemberID:        memberID,
			Status:          StatusActive,
			StartDate:       today,
			LastBillingDate: today,
			NextBillingDate: today.AddDate(0, 1, 0),
			CurrentCycle:    1,
			PaymentMethod:   o.PaymentMethod,
			PostalCode:      shipping.PostalCode,
			RoadAddress:     shipping.RoadAddress,
			DetailAddress:   shipping.DetailAddress,
		}
		if err := s.repo.Create(ctx, sub); err != nil {
			return nil, err
		}
		lg.Info("created subscription for new subscriber",
			zap.String("subscription_id", sub.ID),
			zap.Time("next_billing_date", sub.NextBillingDate))
		return &Outcome{Subscription: sub}, nil

	default:
		return nil, err
	}
}

// Get returns the member's ACTIVE subscription with its staged next-cycle
// items populated into the returned slice.
func (s *Service) Get(ctx context.Context, memberID string) (*Subscription, []NextItem, error) {
	sub, err := s.repo.FindActiveByMember(ctx, memberID)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.repo.FindNextItems(ctx, sub.ID)
	if err != nil {
		return nil, nil, err
	}
	return sub, items, nil
}

// UpdateBillingDate moves the next billing date of an ACTIVE subscription.
func (s *Service) UpdateBillingDate(ctx context.Context, subscriptionID string, newDate time.Time) error {
	sub, err := s.mutableByID(ctx, subscriptionID)
	if err != nil {
		return err
	}
	sub.NextBillingDate = newDate
	return s.repo.Update(ctx, sub)
}

// UpdatePaymentMethod changes the payment method of an ACTIVE subscription.
func (s *Service) UpdatePaymentMethod(ctx context.Context, subscriptionID, method string) error {
	sub, err := s.mutableByID(ctx, subscriptionID)
	if err != nil {
		return err
	}
	sub.PaymentMethod = method
	return s.repo.Update(ctx, sub)
}

// Cancel ends a subscription. With immediately set the status flips to
// CANCELLED now; otherwise the subscription stays ACTIVE and is flagged for
// the billing run to stop at the next cycle boundary.
func (s *Service) Cancel(ctx context.Context, subscriptionID string, immediately bool) error {
	sub, err := s.mutableByID(ctx, subscriptionID)
	if err != nil {
		return err
	}

	if immediately {
		sub.Status = StatusCancelled
	} else {
		sub.CancelAtCycleEnd = true
	}
	if err := s.repo.Update(ctx, sub); err != nil {
		return err
	}

	zctx.From(ctx).Info("subscription cancelled",
		zap.String("subscription_id", sub.ID),
		zap.Bool("immediately", immediately))
	return nil
}

// mutableByID loads a subscription and enforces the ACTIVE-only mutation
// guard shared by all state changes.
func (s *Service) mutableByID(ctx context.Context, id string) (*Subscription, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != StatusActive {
		return nil, ErrInvalidState
	}
	return sub, nil
}

// today truncates the clock to a date in UTC.
func (s *Service) today() time.Time {
	y, m, d := s.now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

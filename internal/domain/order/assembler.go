package order

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pilldrop/commerce-api/internal/domain/cart"
)

// PriceDeclaration is a client-declared "what I expect to pay" entry,
// matched to a cart item by the cart item's identity.
type PriceDeclaration struct {
	CartItemID string
	Price      decimal.Decimal
}

// DeclarationMismatchError indicates a cart item has no matching client price
// declaration. The client omitted or relabeled an item between viewing the
// cart and submitting the checkout.
type DeclarationMismatchError struct {
	CartItemID string
}

func (e *DeclarationMismatchError) Error() string {
	return fmt.Sprintf("price declaration not found for cart item %s", e.CartItemID)
}

// InvalidLineItemError indicates a cart item that cannot become an order
// line: its product reference is missing or its declared price is invalid.
type InvalidLineItemError struct {
	CartItemID string
	Reason     string
}

func (e *InvalidLineItemError) Error() string {
	return fmt.Sprintf("invalid line item %s: %s", e.CartItemID, e.Reason)
}

// AssembleOrder converts a cart snapshot plus client price declarations into
// an immutable Order graph. It is a pure computation over the supplied data:
// no store or gateway calls, no persistence. The returned order has status
// ORDERED and is not yet linked to any payment.
//
// Every cart item must have a declaration matched by cart item ID, and every
// declared price must be positive. The total is the exact decimal sum of
// declaredPrice*quantity over all items.
func AssembleOrder(items []cart.Item, declarations []PriceDeclaration, memberID, paymentMethod string, now time.Time) (*Order, error) {
	if len(items) == 0 {
		return nil, cart.ErrEmpty
	}

	declared := make(map[string]decimal.Decimal, len(declarations))
	for _, d := range declarations {
		declared[d.CartItemID] = d.Price
	}

	orderID := uuid.New().String()
	total := decimal.Zero
	lines := make([]Item, 0, len(items))

	for _, ci := range items {
		price, ok := declared[ci.ID]
		if !ok {
			return nil, &DeclarationMismatchError{CartItemID: ci.ID}
		}
		if ci.ProductID == "" {
			return nil, &InvalidLineItemError{CartItemID: ci.ID, Reason: "product reference missing"}
		}
		if ci.Quantity <= 0 {
			return nil, &InvalidLineItemError{CartItemID: ci.ID, Reason: "quantity must be greater than 0"}
		}
		if !price.IsPositive() {
			return nil, &InvalidLineItemError{CartItemID: ci.ID, Reason: "declared price must be greater than 0"}
		}

		lines = append(lines, Item{
			ID:         uuid.New().String(),
			OrderID:    orderID,
			ProductID:  ci.ProductID,
			OrderPrice: price,
			Count:      ci.Quantity,
		})
		total = total.Add(price.Mul(decimal.NewFromInt(int64(ci.Quantity))))
	}

	return &Order{
		ID:            orderID,
		MemberID:      memberID,
		OrderDate:     now,
		Status:        StatusOrdered,
		TotalAmount:   total,
		PaymentMethod: paymentMethod,
		Items:         lines,
	}, nil
}

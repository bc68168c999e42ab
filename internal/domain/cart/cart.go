package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Sentinel errors for cart lookups.
var (
	ErrNotFound = errors.New("cart not found")
	ErrEmpty    = errors.New("cart is empty")
)

// Cart is the per-member container of items staged for checkout. A member
// owns at most one cart.
type Cart struct {
	ID        string
	MemberID  string
	CreatedAt time.Time
}

// Item is a single cart line: a product reference and a quantity. Prices are
// not stored on the cart; they are declared by the client at checkout and
// reconciled against the cart contents.
type Item struct {
	ID        string
	CartID    string
	ProductID string
	Quantity  int
}

// Repository defines persistence operations for carts. Clear removes all
// items from the cart; it is only called inside a committed checkout.
type Repository interface {
	FindByMember(ctx context.Context, memberID string) (*Cart, error)
	FindItems(ctx context.Context, cartID string) ([]Item, error)
	Clear(ctx context.Context, cartID string) error
}

package member

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when no member matches the given identity.
var ErrNotFound = errors.New("member not found")

// Member is an account holder. Immutable from the point of view of the
// checkout subsystem.
type Member struct {
	ID        string
	Email     string
	Name      string
	Phone     string
	CreatedAt time.Time
}

// Repository defines read operations for members.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Member, error)
	GetByEmail(ctx context.Context, email string) (*Member, error)
}

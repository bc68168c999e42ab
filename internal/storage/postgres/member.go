package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pilldrop/commerce-api/internal/domain/member"
)

var _ member.Repository = (*MemberRepository)(nil)

// MemberRepository implements member.Repository backed by PostgreSQL.
type MemberRepository struct {
	pool *pgxpool.Pool
}

// NewMemberRepository returns a MemberRepository that uses the given pool.
func NewMemberRepository(pool *pgxpool.Pool) *MemberRepository {
	return &MemberRepository{pool: pool}
}

const memberColumns = `id, email, name, phone, created_at`

// GetByID looks up a member by ID. Returns member.ErrNotFound when no row
// exists.
func (r *MemberRepository) GetByID(ctx context.Context, id string) (*member.Member, error) {
	row := querier(ctx, r.pool).QueryRow(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = $1`, id)
	return scanMember(row, id)
}

// GetByEmail looks up a member by email. Returns member.ErrNotFound when no
// row exists.
func (r *MemberRepository) GetByEmail(ctx context.Context, email string) (*member.Member, error) {
	row := querier(ctx, r.pool).QueryRow(ctx,
		`SELECT `+memberColumns+` FROM members WHERE email = $1`, email)
	return scanMember(row, email)
}

func scanMember(row pgx.Row, key string) (*member.Member, error) {
	var m member.Member
	err := row.Scan(&m.ID, &m.Email, &m.Name, &m.Phone, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, member.ErrNotFound
		}
		return nil, fmt.Errorf("finding member %q: %w", key, err)
	}
	return &m, nil
}

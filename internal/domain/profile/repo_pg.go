package profile

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthplix/healthplix/internal/platform/apperr"
	"github.com/healthplix/healthplix/internal/platform/db"
)

type profileRepoPG struct{ pool *pgxpool.Pool }

func NewProfileRepoPG(pool *pgxpool.Pool) ProfileRepository {
	return &profileRepoPG{pool: pool}
}

func (r *profileRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const profileCols = `email, name, age, address, role, created_at`

func (r *profileRepoPG) scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.Email, &p.Name, &p.Age, &p.Address, &p.Role, &p.CreatedAt)
	return &p, err
}

func (r *profileRepoPG) Create(ctx context.Context, p *Profile) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO profiles (email, name, age, address, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		p.Email, p.Name, p.Age, p.Address, p.Role).Scan(&p.CreatedAt)
	if db.IsUniqueViolation(err, "profiles_pkey") {
		return ErrDuplicateProfile.WithErr(err)
	}
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

func (r *profileRepoPG) GetByEmail(ctx context.Context, email string) (*Profile, error) {
	p, err := r.scanProfile(r.conn(ctx).QueryRow(ctx,
		`SELECT `+profileCols+` FROM profiles WHERE email = $1`, email))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("profile %s not found", email)
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (r *profileRepoPG) ListByEmails(ctx context.Context, emails []string) ([]*Profile, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+profileCols+` FROM profiles WHERE email = ANY($1)`, emails)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var items []*Profile
	for rows.Next() {
		p, err := r.scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

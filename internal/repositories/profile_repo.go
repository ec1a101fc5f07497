package repositories

import (
	"context"
	"errors"

	"github.com/darehouse/backend/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ProfileRepo struct {
	pool *pgxpool.Pool
}

func NewProfileRepo(pool *pgxpool.Pool) *ProfileRepo {
	return &ProfileRepo{pool: pool}
}

// Get returns nil without error for an address never looked up.
func (r *ProfileRepo) Get(ctx context.Context, address string) (*models.Profile, error) {
	var p models.Profile
	err := r.pool.QueryRow(ctx, `
		SELECT address, username, display_name, avatar_url, fetched_at FROM profiles WHERE address = $1
	`, address).Scan(&p.Address, &p.Username, &p.DisplayName, &p.AvatarURL, &p.FetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProfileRepo) Upsert(ctx context.Context, p *models.Profile) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO profiles (address, username, display_name, avatar_url, fetched_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (address) DO UPDATE SET
			username = COALESCE(EXCLUDED.username, profiles.username),
			display_name = COALESCE(EXCLUDED.display_name, profiles.display_name),
			avatar_url = COALESCE(EXCLUDED.avatar_url, profiles.avatar_url),
			fetched_at = now()
		RETURNING fetched_at
	`, p.Address, p.Username, p.DisplayName, p.AvatarURL).Scan(&p.FetchedAt)
}

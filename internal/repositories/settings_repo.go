package repositories

import (
	"context"
	"strings"

	"github.com/darehouse/backend/internal/escrow"
	"github.com/darehouse/backend/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SettingsRepo stores the house fee configuration and the token allow-list.
type SettingsRepo struct {
	pool *pgxpool.Pool
}

func NewSettingsRepo(pool *pgxpool.Pool) *SettingsRepo {
	return &SettingsRepo{pool: pool}
}

// EnsureDefaults seeds settings and tokens on first start. Existing rows are
// left alone so admin changes survive restarts.
func (r *SettingsRepo) EnsureDefaults(ctx context.Context, feeBps int, recipient string, tokens []string) error {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO house_settings (id, fee_bps, fee_recipient) VALUES (true, $1, $2)
		ON CONFLICT (id) DO NOTHING
	`, feeBps, recipient); err != nil {
		return err
	}
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, err := r.pool.Exec(ctx, `
			INSERT INTO supported_tokens (symbol) VALUES ($1) ON CONFLICT (symbol) DO NOTHING
		`, t); err != nil {
			return err
		}
	}
	return nil
}

// CurrentFees reads the fee configuration inside tx, sharing its snapshot.
func (r *SettingsRepo) CurrentFees(ctx context.Context, tx pgx.Tx) (escrow.Fees, error) {
	var f escrow.Fees
	err := tx.QueryRow(ctx, `SELECT fee_bps, fee_recipient FROM house_settings WHERE id`).Scan(&f.Bps, &f.Recipient)
	return f, err
}

func (r *SettingsRepo) Get(ctx context.Context) (*models.HouseSettings, error) {
	var s models.HouseSettings
	err := r.pool.QueryRow(ctx, `
		SELECT fee_bps, fee_recipient, updated_by, updated_at FROM house_settings WHERE id
	`).Scan(&s.FeeBps, &s.FeeRecipient, &s.UpdatedBy, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SettingsRepo) SetFees(ctx context.Context, bps int, actor string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE house_settings SET fee_bps = $1, updated_by = $2, updated_at = now() WHERE id
	`, bps, actor)
	return err
}

func (r *SettingsRepo) SetFeeRecipient(ctx context.Context, recipient, actor string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE house_settings SET fee_recipient = $1, updated_by = $2, updated_at = now() WHERE id
	`, recipient, actor)
	return err
}

// IsTokenSupported checks the allow-list inside tx.
func (r *SettingsRepo) IsTokenSupported(ctx context.Context, tx pgx.Tx, token string) (bool, error) {
	var ok bool
	err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM supported_tokens WHERE symbol = $1)`, token).Scan(&ok)
	return ok, err
}

func (r *SettingsRepo) ListTokens(ctx context.Context) ([]models.SupportedToken, error) {
	rows, err := r.pool.Query(ctx, `SELECT symbol, added_by, added_at FROM supported_tokens ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[models.SupportedToken])
}

func (r *SettingsRepo) AddToken(ctx context.Context, symbol, actor string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO supported_tokens (symbol, added_by) VALUES ($1, $2) ON CONFLICT (symbol) DO NOTHING
	`, symbol, actor)
	return err
}

// RemoveToken only affects future bets; existing bets keep their token.
func (r *SettingsRepo) RemoveToken(ctx context.Context, symbol string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM supported_tokens WHERE symbol = $1`, symbol)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

package repositories

import (
	"context"
	"math/big"

	"github.com/darehouse/backend/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BalanceRepo struct {
	pool *pgxpool.Pool
}

func NewBalanceRepo(pool *pgxpool.Pool) *BalanceRepo {
	return &BalanceRepo{pool: pool}
}

// GetForUpdate makes sure the row exists, then locks it.
func (r *BalanceRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, owner, token string) (*big.Int, error) {
	if _, err := tx.Exec(ctx, `
		INSERT INTO balances (owner, token) VALUES ($1, $2)
		ON CONFLICT (owner, token) DO NOTHING
	`, owner, token); err != nil {
		return nil, err
	}

	var amount string
	if err := tx.QueryRow(ctx, `
		SELECT amount::text FROM balances WHERE owner = $1 AND token = $2 FOR UPDATE
	`, owner, token).Scan(&amount); err != nil {
		return nil, err
	}
	return parseAmount(amount)
}

func (r *BalanceRepo) Add(ctx context.Context, tx pgx.Tx, owner, token string, delta *big.Int) (*big.Int, error) {
	var amount string
	err := tx.QueryRow(ctx, `
		INSERT INTO balances (owner, token, amount) VALUES ($1, $2, CAST($3::text AS NUMERIC))
		ON CONFLICT (owner, token) DO UPDATE
		SET amount = balances.amount + EXCLUDED.amount, updated_at = now()
		RETURNING amount::text
	`, owner, token, amountArg(delta)).Scan(&amount)
	if err != nil {
		return nil, err
	}
	return parseAmount(amount)
}

func (r *BalanceRepo) ListByOwner(ctx context.Context, owner string) ([]models.Balance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT owner, token, amount::text, updated_at FROM balances WHERE owner = $1 ORDER BY token
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Balance
	for rows.Next() {
		var b models.Balance
		var amount string
		if err := rows.Scan(&b.Owner, &b.Token, &amount, &b.UpdatedAt); err != nil {
			return nil, err
		}
		if b.Amount, err = parseAmount(amount); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type LedgerEntryRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerEntryRepo(pool *pgxpool.Pool) *LedgerEntryRepo {
	return &LedgerEntryRepo{pool: pool}
}

func (r *LedgerEntryRepo) CreateTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error {
	return tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (id, owner, token, bet_id, kind, amount, balance_after, tx_ref)
		VALUES ($1, $2, $3, $4, $5, CAST($6::text AS NUMERIC), CAST($7::text AS NUMERIC), $8)
		RETURNING created_at
	`, e.ID, e.Owner, e.Token, e.BetID, e.Kind, amountArg(e.Amount), amountArg(e.BalanceAfter), e.TxRef,
	).Scan(&e.CreatedAt)
}

// DepositSeen reports whether a deposit with this external reference was
// already credited.
func (r *LedgerEntryRepo) DepositSeen(ctx context.Context, tx pgx.Tx, txRef string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM ledger_entries WHERE kind = 'deposit' AND tx_ref = $1)
	`, txRef).Scan(&exists)
	return exists, err
}

func (r *LedgerEntryRepo) ListByOwner(ctx context.Context, owner string, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, owner, token, bet_id, kind, amount::text, balance_after::text, tx_ref, created_at
		FROM ledger_entries WHERE owner = $1
		ORDER BY created_at DESC LIMIT $2
	`, owner, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		var amount, after string
		if err := rows.Scan(&e.ID, &e.Owner, &e.Token, &e.BetID, &e.Kind, &amount, &after, &e.TxRef, &e.CreatedAt); err != nil {
			return nil, err
		}
		if e.Amount, err = parseAmount(amount); err != nil {
			return nil, err
		}
		if e.BalanceAfter, err = parseAmount(after); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

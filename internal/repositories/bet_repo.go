package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/darehouse/backend/internal/betstate"
	"github.com/darehouse/backend/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BetRepo struct {
	pool *pgxpool.Pool
}

func NewBetRepo(pool *pgxpool.Pool) *BetRepo {
	return &BetRepo{pool: pool}
}

const betColumns = `
	id, challenger, challengee, mediator, condition, amount::text, token,
	fee_bps, amount_after_fees::text, acceptance_deadline, proof_submission_deadline,
	proof_acceptance_deadline, mediation_deadline, proof, status, is_closed,
	created_tx_ref, created_at, updated_at`

// scanBetInto reads betColumns, plus any trailing extra destinations.
func scanBetInto(row pgx.Row, b *models.Bet, extra ...any) error {
	var amount, status string
	var net *string
	dest := []any{
		&b.ID, &b.Challenger, &b.Challengee, &b.Mediator, &b.Condition, &amount, &b.Token,
		&b.FeeBps, &net, &b.AcceptanceDeadline, &b.ProofSubmissionDeadline,
		&b.ProofAcceptanceDeadline, &b.MediationDeadline, &b.Proof, &status, &b.IsClosed,
		&b.CreatedTxRef, &b.CreatedAt, &b.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return betstate.ErrBetNotFound
		}
		return err
	}

	var err error
	if b.Amount, err = parseAmount(amount); err != nil {
		return err
	}
	if b.AmountAfterFees, err = parseOptionalAmount(net); err != nil {
		return err
	}
	b.Status, err = betstate.ParseStatus(status)
	return err
}

func (r *BetRepo) CreateTx(ctx context.Context, tx pgx.Tx, b *models.Bet) error {
	return tx.QueryRow(ctx, `
		INSERT INTO bets (challenger, challengee, mediator, condition, amount, token,
		                  acceptance_deadline, status, is_closed, created_tx_ref)
		VALUES ($1, $2, $3, $4, CAST($5::text AS NUMERIC), $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`, b.Challenger, b.Challengee, b.Mediator, b.Condition, amountArg(b.Amount), b.Token,
		b.AcceptanceDeadline, b.Status.String(), b.IsClosed, b.CreatedTxRef,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
}

// GetForUpdate loads a bet and holds its row lock until tx ends. All
// mutations of one bet serialize on this lock.
func (r *BetRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.Bet, error) {
	var b models.Bet
	if err := scanBetInto(tx.QueryRow(ctx, `SELECT `+betColumns+` FROM bets WHERE id = $1 FOR UPDATE`, id), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdateTx writes the fields a transition may change.
func (r *BetRepo) UpdateTx(ctx context.Context, tx pgx.Tx, b *models.Bet) error {
	return tx.QueryRow(ctx, `
		UPDATE bets SET
			fee_bps = $2,
			amount_after_fees = CAST($3::text AS NUMERIC),
			proof_submission_deadline = $4,
			proof_acceptance_deadline = $5,
			mediation_deadline = $6,
			proof = $7,
			status = $8,
			is_closed = $9,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, b.ID, b.FeeBps, amountArg(b.AmountAfterFees), b.ProofSubmissionDeadline,
		b.ProofAcceptanceDeadline, b.MediationDeadline, b.Proof, b.Status.String(), b.IsClosed,
	).Scan(&b.UpdatedAt)
}

func (r *BetRepo) GetByID(ctx context.Context, id int64) (*models.Bet, error) {
	var b models.Bet
	if err := scanBetInto(r.pool.QueryRow(ctx, `SELECT `+betColumns+` FROM bets WHERE id = $1`, id), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BetRepo) List(ctx context.Context, f models.BetFilter) ([]models.Bet, error) {
	query := `SELECT ` + betColumns + ` FROM bets`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.Participant != "" {
		where = append(where, fmt.Sprintf("(challenger = $%d OR challengee = $%d OR mediator = $%d)", argIdx, argIdx, argIdx))
		args = append(args, f.Participant)
		argIdx++
	}
	if f.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, f.Status.String())
		argIdx++
	}
	if f.OpenOnly {
		where = append(where, "NOT is_closed")
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bets []models.Bet
	for rows.Next() {
		var b models.Bet
		if err := scanBetInto(rows, &b); err != nil {
			return nil, err
		}
		bets = append(bets, b)
	}
	return bets, rows.Err()
}

// ListClaimable returns ids of open bets whose running phase deadline has
// passed at now, oldest first.
func (r *BetRepo) ListClaimable(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM bets
		WHERE NOT is_closed AND (
			(status = 'OPEN' AND acceptance_deadline < $1) OR
			(status = 'ACCEPTED' AND proof_submission_deadline < $1) OR
			(status = 'PROOF_SUBMITTED' AND proof_acceptance_deadline < $1) OR
			(status = 'PROOF_DISPUTED' AND mediator <> '' AND mediation_deadline < $1)
		)
		ORDER BY id
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// CountOpen reports the number of bets not yet closed, by stored status.
func (r *BetRepo) CountOpen(ctx context.Context) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, count(*) FROM bets WHERE NOT is_closed GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

package repositories

import (
	"context"
	"errors"

	"github.com/darehouse/backend/internal/betstate"
	"github.com/darehouse/backend/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SnapshotRepo is the projector's read model: bet_snapshots plus the
// mirrored snapshot_events history.
type SnapshotRepo struct {
	pool *pgxpool.Pool
}

func NewSnapshotRepo(pool *pgxpool.Pool) *SnapshotRepo {
	return &SnapshotRepo{pool: pool}
}

func (r *SnapshotRepo) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const snapshotExtraColumns = `,
	challenger_name, challenger_avatar, challengee_name, challengee_avatar,
	mediator_name, mediator_avatar, last_seq, projected_at`

func scanSnapshot(row pgx.Row) (*models.BetSnapshot, error) {
	var s models.BetSnapshot
	err := scanBetInto(row, &s.Bet,
		&s.ChallengerName, &s.ChallengerAvatar, &s.ChallengeeName, &s.ChallengeeAvatar,
		&s.MediatorName, &s.MediatorAvatar, &s.LastSeq, &s.ProjectedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// InsertEventTx records e in the mirror history. It reports false when the
// (tx_ref, log_index) pair was already applied.
func (r *SnapshotRepo) InsertEventTx(ctx context.Context, tx pgx.Tx, e *models.BetEvent) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO snapshot_events (tx_ref, log_index, seq, bet_id, name, actor, block_time, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tx_ref, log_index) DO NOTHING
	`, e.TxRef, e.LogIndex, e.Seq, e.BetID, e.Name, e.Actor, e.BlockTime, e.Details)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// GetForUpdate returns nil without error when the bet has no snapshot yet.
func (r *SnapshotRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, betID int64) (*models.BetSnapshot, error) {
	s, err := scanSnapshot(tx.QueryRow(ctx, `
		SELECT `+betColumns+snapshotExtraColumns+` FROM bet_snapshots WHERE id = $1 FOR UPDATE
	`, betID))
	if errors.Is(err, betstate.ErrBetNotFound) {
		return nil, nil
	}
	return s, err
}

func (r *SnapshotRepo) SaveTx(ctx context.Context, tx pgx.Tx, s *models.BetSnapshot) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO bet_snapshots (
			id, challenger, challengee, mediator, condition, amount, token,
			fee_bps, amount_after_fees, acceptance_deadline, proof_submission_deadline,
			proof_acceptance_deadline, mediation_deadline, proof, status, is_closed,
			created_tx_ref, created_at, updated_at,
			challenger_name, challenger_avatar, challengee_name, challengee_avatar,
			mediator_name, mediator_avatar, last_seq, projected_at)
		VALUES ($1, $2, $3, $4, $5, CAST($6::text AS NUMERIC), $7,
			$8, CAST($9::text AS NUMERIC), $10, $11,
			$12, $13, $14, $15, $16,
			$17, $18, $19,
			$20, $21, $22, $23,
			$24, $25, $26, now())
		ON CONFLICT (id) DO UPDATE SET
			fee_bps = EXCLUDED.fee_bps,
			amount_after_fees = EXCLUDED.amount_after_fees,
			proof_submission_deadline = EXCLUDED.proof_submission_deadline,
			proof_acceptance_deadline = EXCLUDED.proof_acceptance_deadline,
			mediation_deadline = EXCLUDED.mediation_deadline,
			proof = EXCLUDED.proof,
			status = EXCLUDED.status,
			is_closed = EXCLUDED.is_closed,
			updated_at = EXCLUDED.updated_at,
			challenger_name = COALESCE(EXCLUDED.challenger_name, bet_snapshots.challenger_name),
			challenger_avatar = COALESCE(EXCLUDED.challenger_avatar, bet_snapshots.challenger_avatar),
			challengee_name = COALESCE(EXCLUDED.challengee_name, bet_snapshots.challengee_name),
			challengee_avatar = COALESCE(EXCLUDED.challengee_avatar, bet_snapshots.challengee_avatar),
			mediator_name = COALESCE(EXCLUDED.mediator_name, bet_snapshots.mediator_name),
			mediator_avatar = COALESCE(EXCLUDED.mediator_avatar, bet_snapshots.mediator_avatar),
			last_seq = EXCLUDED.last_seq,
			projected_at = now()
	`, s.ID, s.Challenger, s.Challengee, s.Mediator, s.Condition, amountArg(s.Amount), s.Token,
		s.FeeBps, amountArg(s.AmountAfterFees), s.AcceptanceDeadline, s.ProofSubmissionDeadline,
		s.ProofAcceptanceDeadline, s.MediationDeadline, s.Proof, s.Status.String(), s.IsClosed,
		s.CreatedTxRef, s.CreatedAt, s.UpdatedAt,
		s.ChallengerName, s.ChallengerAvatar, s.ChallengeeName, s.ChallengeeAvatar,
		s.MediatorName, s.MediatorAvatar, s.LastSeq)
	return err
}

func (r *SnapshotRepo) Get(ctx context.Context, betID int64) (*models.BetSnapshot, error) {
	return scanSnapshot(r.pool.QueryRow(ctx, `
		SELECT `+betColumns+snapshotExtraColumns+` FROM bet_snapshots WHERE id = $1
	`, betID))
}

func (r *SnapshotRepo) ListEvents(ctx context.Context, betID int64) ([]models.BetEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT seq, tx_ref, log_index, bet_id, name, actor, block_time, details
		FROM snapshot_events WHERE bet_id = $1 ORDER BY seq
	`, betID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.BetEvent
	for rows.Next() {
		var e models.BetEvent
		if err := scanEvent(rows, &e); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// LastSeq is the highest event seq mirrored so far, used to resume replay.
func (r *SnapshotRepo) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM snapshot_events`).Scan(&seq)
	return seq, err
}

// SetIdentity fills in identity fields for one address wherever it appears.
func (r *SnapshotRepo) SetIdentity(ctx context.Context, address string, name, avatar *string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE bet_snapshots SET
			challenger_name = CASE WHEN challenger = $1 THEN COALESCE($2, challenger_name) ELSE challenger_name END,
			challenger_avatar = CASE WHEN challenger = $1 THEN COALESCE($3, challenger_avatar) ELSE challenger_avatar END,
			challengee_name = CASE WHEN challengee = $1 THEN COALESCE($2, challengee_name) ELSE challengee_name END,
			challengee_avatar = CASE WHEN challengee = $1 THEN COALESCE($3, challengee_avatar) ELSE challengee_avatar END,
			mediator_name = CASE WHEN mediator = $1 THEN COALESCE($2, mediator_name) ELSE mediator_name END,
			mediator_avatar = CASE WHEN mediator = $1 THEN COALESCE($3, mediator_avatar) ELSE mediator_avatar END
		WHERE challenger = $1 OR challengee = $1 OR mediator = $1
	`, address, name, avatar)
	return err
}

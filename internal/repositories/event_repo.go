package repositories

import (
	"context"

	"github.com/darehouse/backend/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventRepo is the append-only bet event log. It doubles as the outbox the
// projector replays from.
type EventRepo struct {
	pool *pgxpool.Pool
}

func NewEventRepo(pool *pgxpool.Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

const eventColumns = `seq, tx_ref, log_index, bet_id, name, actor, block_time, details`

func scanEvent(row pgx.Row, e *models.BetEvent) error {
	return row.Scan(&e.Seq, &e.TxRef, &e.LogIndex, &e.BetID, &e.Name, &e.Actor, &e.BlockTime, &e.Details)
}

func (r *EventRepo) AppendTx(ctx context.Context, tx pgx.Tx, e *models.BetEvent) error {
	return tx.QueryRow(ctx, `
		INSERT INTO bet_events (tx_ref, log_index, bet_id, name, actor, block_time, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING seq
	`, e.TxRef, e.LogIndex, e.BetID, e.Name, e.Actor, e.BlockTime, e.Details).Scan(&e.Seq)
}

func (r *EventRepo) ListByBet(ctx context.Context, betID int64) ([]models.BetEvent, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+eventColumns+` FROM bet_events WHERE bet_id = $1 ORDER BY seq`, betID)
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

// ListAfter returns up to limit events with seq > after, in seq order.
func (r *EventRepo) ListAfter(ctx context.Context, after int64, limit int) ([]models.BetEvent, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+eventColumns+` FROM bet_events WHERE seq > $1 ORDER BY seq LIMIT $2`, after, limit)
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

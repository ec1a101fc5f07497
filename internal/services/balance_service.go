package services

import (
	"context"
	"fmt"
	"math/big"

	"github.com/darehouse/backend/internal/betstate"
	"github.com/darehouse/backend/internal/escrow"
	"github.com/darehouse/backend/internal/events"
	"github.com/darehouse/backend/internal/metrics"
	"github.com/darehouse/backend/internal/models"
	"github.com/darehouse/backend/internal/ton"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type BalanceStore interface {
	ListByOwner(ctx context.Context, owner string) ([]models.Balance, error)
}

type EntryStore interface {
	DepositSeen(ctx context.Context, tx pgx.Tx, txRef string) (bool, error)
	ListByOwner(ctx context.Context, owner string, limit int) ([]models.LedgerEntry, error)
}

// BalanceService exposes internal balances and credits chain deposits.
type BalanceService struct {
	db        TxBeginner
	balances  BalanceStore
	entries   EntryStore
	ledger    *escrow.Ledger
	publisher events.Publisher
	metrics   *metrics.Metrics
	log       *zap.Logger
}

func NewBalanceService(
	db TxBeginner,
	balances BalanceStore,
	entries EntryStore,
	ledger *escrow.Ledger,
	publisher events.Publisher,
	m *metrics.Metrics,
	log *zap.Logger,
) *BalanceService {
	return &BalanceService{
		db:        db,
		balances:  balances,
		entries:   entries,
		ledger:    ledger,
		publisher: publisher,
		metrics:   m,
		log:       log,
	}
}

func (s *BalanceService) Balances(ctx context.Context, owner string) ([]models.Balance, error) {
	o, err := ton.NormalizeAddress(owner)
	if err != nil || o == "" {
		return nil, betstate.ErrInvalidAddress
	}
	return s.balances.ListByOwner(ctx, o)
}

func (s *BalanceService) Entries(ctx context.Context, owner string, limit int) ([]models.LedgerEntry, error) {
	o, err := ton.NormalizeAddress(owner)
	if err != nil || o == "" {
		return nil, betstate.ErrInvalidAddress
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.entries.ListByOwner(ctx, o, limit)
}

// Deposit credits amount of token to owner once per txRef. A repeated
// txRef returns credited=false and no error.
func (s *BalanceService) Deposit(ctx context.Context, owner, token string, amount *big.Int, txRef string) (credited bool, err error) {
	o, err := ton.NormalizeAddress(owner)
	if err != nil || o == "" {
		s.metrics.Deposit("invalid")
		return false, betstate.ErrInvalidAddress
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	seen, err := s.entries.DepositSeen(ctx, tx, txRef)
	if err != nil {
		return false, fmt.Errorf("check deposit %s: %w", txRef, err)
	}
	if seen {
		s.metrics.Deposit("duplicate")
		return false, nil
	}

	after, err := s.ledger.Deposit(ctx, tx, o, token, amount, txRef)
	if err != nil {
		s.metrics.Deposit("invalid")
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}

	s.metrics.Deposit("credited")
	s.log.Info("deposit credited",
		zap.String("owner", o),
		zap.String("token", token),
		zap.String("amount", amount.String()),
		zap.String("balance", after.String()),
		zap.String("tx_ref", txRef),
	)
	if s.publisher != nil {
		ev := events.Event{
			Type: events.EventDepositCredited,
			Payload: map[string]any{
				"owner":   o,
				"token":   token,
				"amount":  amount.String(),
				"balance": after.String(),
				"tx_ref":  txRef,
			},
		}
		if err := s.publisher.Publish(ctx, events.StreamBet, ev); err != nil {
			s.log.Warn("failed to publish deposit", zap.String("tx_ref", txRef), zap.Error(err))
		}
	}
	return true, nil
}

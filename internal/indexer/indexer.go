// Package indexer credits incoming transfers to the house wallet as
// internal balances.
package indexer

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/darehouse/backend/internal/betstate"
	"github.com/darehouse/backend/internal/ton"
	"github.com/xssnick/tonutils-go/tlb"
	"go.uber.org/zap"
)

type TxSource interface {
	Head(ctx context.Context) (ton.Head, error)
	Since(ctx context.Context, head ton.Head, cursorLT uint64) ([]*tlb.Transaction, error)
}

// Cursor persists the last fully processed transaction.
type Cursor interface {
	Load(ctx context.Context) (lt uint64, ok bool, err error)
	Save(ctx context.Context, head ton.Head) error
}

type Crediter interface {
	Deposit(ctx context.Context, owner, token string, amount *big.Int, txRef string) (bool, error)
}

type Indexer struct {
	source TxSource
	cursor Cursor
	credit Crediter
	log    *zap.Logger
}

func New(source TxSource, cursor Cursor, credit Crediter, log *zap.Logger) *Indexer {
	return &Indexer{source: source, cursor: cursor, credit: credit, log: log}
}

// Init places a missing cursor at the wallet's current head so history
// before the first start is not credited.
func (ix *Indexer) Init(ctx context.Context) error {
	lt, ok, err := ix.cursor.Load(ctx)
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}
	if ok {
		ix.log.Info("resuming from saved cursor", zap.Uint64("lt", lt))
		return nil
	}

	head, err := ix.source.Head(ctx)
	if err != nil {
		return err
	}
	if err := ix.cursor.Save(ctx, head); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	ix.log.Info("cursor initialized at current head", zap.Uint64("lt", head.LT), zap.String("hash", head.HashHex()))
	return nil
}

// Poll credits every transfer newer than the cursor, then advances it.
// A credit failure leaves the cursor in place; deposits are keyed by
// transaction so the retry does not double-credit.
func (ix *Indexer) Poll(ctx context.Context) (int, error) {
	cursorLT, _, err := ix.cursor.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load cursor: %w", err)
	}

	head, err := ix.source.Head(ctx)
	if err != nil {
		return 0, err
	}
	if head.LT == 0 || head.LT <= cursorLT {
		return 0, nil
	}

	txs, err := ix.source.Since(ctx, head, cursorLT)
	if err != nil {
		return 0, fmt.Errorf("fetch transactions: %w", err)
	}

	credited := 0
	for _, tx := range txs {
		dep, ok := ton.ParseDeposit(tx)
		if !ok {
			continue
		}
		fresh, err := ix.credit.Deposit(ctx, dep.Beneficiary, dep.Token, dep.Amount, dep.TxRef)
		switch {
		case err == nil && fresh:
			credited++
			ix.log.Info("deposit detected",
				zap.Uint64("lt", dep.LT),
				zap.String("from", dep.From),
				zap.String("beneficiary", dep.Beneficiary),
				zap.String("amount", dep.Amount.String()),
			)
		case err == nil:
			ix.log.Debug("deposit already credited", zap.String("tx_ref", dep.TxRef))
		case betstate.KindOf(err) == betstate.KindValidation:
			ix.log.Warn("deposit rejected", zap.String("tx_ref", dep.TxRef), zap.Error(err))
		default:
			return credited, fmt.Errorf("credit %s: %w", dep.TxRef, err)
		}
	}

	if err := ix.cursor.Save(ctx, head); err != nil {
		return credited, fmt.Errorf("save cursor: %w", err)
	}
	return credited, nil
}

// Run polls every interval until ctx is done.
func (ix *Indexer) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := ix.Poll(ctx); err != nil {
				ix.log.Error("poll cycle failed", zap.Error(err))
			}
		}
	}
}

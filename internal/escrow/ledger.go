package escrow

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/darehouse/backend/internal/betstate"
	"github.com/darehouse/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNoFeeRecipient is returned when a non-zero fee has nowhere to go.
var ErrNoFeeRecipient = errors.New("fee recipient not configured")

// Fees is the fee configuration in force at one moment.
type Fees struct {
	Bps       int
	Recipient string
}

// FeeSchedule supplies the current fee configuration inside a transaction.
type FeeSchedule interface {
	CurrentFees(ctx context.Context, tx pgx.Tx) (Fees, error)
}

// Accounts is the balance storage the ledger needs.
type Accounts interface {
	// GetForUpdate locks the balance row, returning zero for a missing row.
	GetForUpdate(ctx context.Context, tx pgx.Tx, owner, token string) (*big.Int, error)
	// Add applies delta and returns the new balance.
	Add(ctx context.Context, tx pgx.Tx, owner, token string, delta *big.Int) (*big.Int, error)
}

// Entries persists ledger entries.
type Entries interface {
	CreateTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error
}

// Ledger performs custody moves for bets. Every method runs inside the
// caller's transaction and must be called after the bet row is locked.
type Ledger struct {
	Accounts Accounts
	Entries  Entries
	Fees     FeeSchedule
}

func NewLedger(accounts Accounts, entries Entries, fees FeeSchedule) *Ledger {
	return &Ledger{Accounts: accounts, Entries: entries, Fees: fees}
}

// Acceptance is what the ledger computed when escrow became mutual.
type Acceptance struct {
	FeeBps          int
	FeeRecipient    string
	FeePerSide      *big.Int
	TotalFees       *big.Int
	AmountAfterFees *big.Int
}

// Lock debits the challenger's stake into escrow at create.
func (l *Ledger) Lock(ctx context.Context, tx pgx.Tx, betID int64, owner, token string, stake *big.Int) error {
	return l.debit(ctx, tx, betID, owner, token, stake)
}

// Collect debits the challengee's stake and pays both sides' fees to the
// fee recipient using the fee rate in force now.
func (l *Ledger) Collect(ctx context.Context, tx pgx.Tx, bet *models.Bet) (*Acceptance, error) {
	if bet.IsClosed {
		return nil, betstate.ErrBetClosed
	}
	fees, err := l.Fees.CurrentFees(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("load fees: %w", err)
	}
	if err := ValidateFeeBps(fees.Bps); err != nil {
		return nil, err
	}

	perSide := FeePerSide(bet.Amount, fees.Bps)
	total := double(perSide)
	if total.Sign() > 0 && fees.Recipient == "" {
		return nil, ErrNoFeeRecipient
	}

	if err := l.lockOrdered(ctx, tx, bet.Token, bet.Challengee, fees.Recipient); err != nil {
		return nil, err
	}
	if err := l.debit(ctx, tx, bet.ID, bet.Challengee, bet.Token, bet.Amount); err != nil {
		return nil, err
	}
	if total.Sign() > 0 {
		if err := l.credit(ctx, tx, bet.ID, fees.Recipient, bet.Token, total, models.EntryFee); err != nil {
			return nil, err
		}
	}

	return &Acceptance{
		FeeBps:          fees.Bps,
		FeeRecipient:    fees.Recipient,
		FeePerSide:      perSide,
		TotalFees:       total,
		AmountAfterFees: new(big.Int).Sub(bet.Amount, perSide),
	}, nil
}

// Settle pays out a bet that is about to close in status final. It refuses
// a bet already marked closed so no bet is settled twice.
func (l *Ledger) Settle(ctx context.Context, tx pgx.Tx, bet *models.Bet, final betstate.Status) ([]Transfer, error) {
	if bet.IsClosed {
		return nil, betstate.ErrBetClosed
	}
	transfers, err := Settlement(final, bet.Parties(), bet.Amount, bet.AmountAfterFees)
	if err != nil {
		return nil, err
	}

	owners := make([]string, 0, len(transfers))
	for _, t := range transfers {
		owners = append(owners, t.To)
	}
	if err := l.lockOrdered(ctx, tx, bet.Token, owners...); err != nil {
		return nil, err
	}
	for _, t := range transfers {
		if err := l.credit(ctx, tx, bet.ID, t.To, bet.Token, t.Amount, t.Kind); err != nil {
			return nil, err
		}
	}
	return transfers, nil
}

// Deposit credits an external transfer identified by txRef.
func (l *Ledger) Deposit(ctx context.Context, tx pgx.Tx, owner, token string, amount *big.Int, txRef string) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, betstate.ErrAmountNotPositive
	}
	if _, err := l.Accounts.GetForUpdate(ctx, tx, owner, token); err != nil {
		return nil, err
	}
	after, err := l.Accounts.Add(ctx, tx, owner, token, amount)
	if err != nil {
		return nil, err
	}
	if err := l.Entries.CreateTx(ctx, tx, &models.LedgerEntry{
		ID: uuid.New(), Owner: owner, Token: token,
		Kind: models.EntryDeposit, Amount: new(big.Int).Set(amount), BalanceAfter: after, TxRef: &txRef,
	}); err != nil {
		return nil, err
	}
	return after, nil
}

// lockOrdered takes balance row locks in a fixed order to avoid deadlocks
// between bets touching the same addresses.
func (l *Ledger) lockOrdered(ctx context.Context, tx pgx.Tx, token string, owners ...string) error {
	seen := make(map[string]bool, len(owners))
	ordered := make([]string, 0, len(owners))
	for _, o := range owners {
		if o == "" || seen[o] {
			continue
		}
		seen[o] = true
		ordered = append(ordered, o)
	}
	sort.Strings(ordered)
	for _, o := range ordered {
		if _, err := l.Accounts.GetForUpdate(ctx, tx, o, token); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) debit(ctx context.Context, tx pgx.Tx, betID int64, owner, token string, amount *big.Int) error {
	bal, err := l.Accounts.GetForUpdate(ctx, tx, owner, token)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return betstate.ErrInsufficientBalance
	}
	after, err := l.Accounts.Add(ctx, tx, owner, token, new(big.Int).Neg(amount))
	if err != nil {
		return err
	}
	id := betID
	return l.Entries.CreateTx(ctx, tx, &models.LedgerEntry{
		ID: uuid.New(), Owner: owner, Token: token, BetID: &id,
		Kind: models.EntryStakeLock, Amount: new(big.Int).Set(amount), BalanceAfter: after,
	})
}

func (l *Ledger) credit(ctx context.Context, tx pgx.Tx, betID int64, owner, token string, amount *big.Int, kind string) error {
	if amount.Sign() == 0 {
		return nil
	}
	after, err := l.Accounts.Add(ctx, tx, owner, token, amount)
	if err != nil {
		return err
	}
	id := betID
	return l.Entries.CreateTx(ctx, tx, &models.LedgerEntry{
		ID: uuid.New(), Owner: owner, Token: token, BetID: &id,
		Kind: kind, Amount: new(big.Int).Set(amount), BalanceAfter: after,
	})
}

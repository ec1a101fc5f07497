package models

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Ledger entry kinds
const (
	EntryDeposit   = "deposit"
	EntryStakeLock = "stake_lock"
	EntryFee       = "fee"
	EntryPayout    = "payout"
	EntryRefund    = "refund"
)

// Balance is the spendable amount an address holds for one token.
type Balance struct {
	Owner     string    `json:"owner"`
	Token     string    `json:"token"`
	Amount    *big.Int  `json:"amount"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LedgerEntry records one balance movement. Amount is always positive;
// stake_lock debits, every other kind credits.
type LedgerEntry struct {
	ID           uuid.UUID `json:"id"`
	Owner        string    `json:"owner"`
	Token        string    `json:"token"`
	BetID        *int64    `json:"bet_id,omitempty"`
	Kind         string    `json:"kind"`
	Amount       *big.Int  `json:"amount"`
	BalanceAfter *big.Int  `json:"balance_after"`
	TxRef        *string   `json:"tx_ref,omitempty"` // external reference for deposits
	CreatedAt    time.Time `json:"created_at"`
}

// Signed returns the balance delta the entry represents.
func (e *LedgerEntry) Signed() *big.Int {
	if e.Kind == EntryStakeLock {
		return new(big.Int).Neg(e.Amount)
	}
	return new(big.Int).Set(e.Amount)
}

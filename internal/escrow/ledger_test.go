package escrow

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/darehouse/backend/internal/betstate"
	"github.com/darehouse/backend/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// In-memory Accounts and Entries so the ledger runs without a database.

type mockAccounts struct {
	mu       sync.Mutex
	balances map[string]*big.Int
	locked   []string
}

func newMockAccounts() *mockAccounts {
	return &mockAccounts{balances: make(map[string]*big.Int)}
}

func key(owner, token string) string { return owner + "|" + token }

func (m *mockAccounts) GetForUpdate(_ context.Context, _ pgx.Tx, owner, token string) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locked = append(m.locked, owner)
	if b, ok := m.balances[key(owner, token)]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (m *mockAccounts) Add(_ context.Context, _ pgx.Tx, owner, token string, delta *big.Int) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[key(owner, token)]
	if !ok {
		b = new(big.Int)
		m.balances[key(owner, token)] = b
	}
	b.Add(b, delta)
	return new(big.Int).Set(b), nil
}

func (m *mockAccounts) set(owner string, amount int64) {
	m.balances[key(owner, "TON")] = big.NewInt(amount)
}

func (m *mockAccounts) balance(owner string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.balances[key(owner, "TON")]; ok {
		return b.Int64()
	}
	return 0
}

type mockEntries struct {
	mu      sync.Mutex
	entries []*models.LedgerEntry
}

func (m *mockEntries) CreateTx(_ context.Context, _ pgx.Tx, e *models.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *mockEntries) byKind(kind string) []*models.LedgerEntry {
	var out []*models.LedgerEntry
	for _, e := range m.entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type staticFees Fees

func (f staticFees) CurrentFees(context.Context, pgx.Tx) (Fees, error) { return Fees(f), nil }

const (
	challenger = "EQchallenger"
	challengee = "EQchallengee"
	mediator   = "EQmediator"
	house      = "EQhouse"
)

func newBet(stake int64) *models.Bet {
	return &models.Bet{
		ID:         7,
		Challenger: challenger,
		Challengee: challengee,
		Amount:     big.NewInt(stake),
		Token:      "TON",
		Status:     betstate.StatusOpen,
	}
}

func TestFeePerSide(t *testing.T) {
	tests := []struct {
		stake, bps, fee, net int64
	}{
		{1000, 100, 10, 990},
		{999, 100, 9, 990},
		{1, 9999, 0, 1},
		{1000, 10000, 1000, 0},
		{1000, 0, 0, 1000},
		{123456789, 250, 3086419, 120370370},
	}
	for _, tt := range tests {
		stake := big.NewInt(tt.stake)
		assert.Equal(t, tt.fee, FeePerSide(stake, int(tt.bps)).Int64(), "fee for %d @ %d", tt.stake, tt.bps)
		assert.Equal(t, tt.net, AmountAfterFees(stake, int(tt.bps)).Int64(), "net for %d @ %d", tt.stake, tt.bps)
	}
}

func TestValidateFeeBps(t *testing.T) {
	assert.NoError(t, ValidateFeeBps(0))
	assert.NoError(t, ValidateFeeBps(10000))
	assert.ErrorIs(t, ValidateFeeBps(10001), betstate.ErrFeesTooHigh)
	assert.ErrorIs(t, ValidateFeeBps(-1), betstate.ErrFeesTooHigh)
}

func TestSettlement(t *testing.T) {
	p := betstate.Parties{Challenger: challenger, Challengee: challengee, Mediator: mediator}
	stake, net := big.NewInt(1000), big.NewInt(990)

	tests := []struct {
		status betstate.Status
		want   map[string]int64
	}{
		{betstate.StatusCancelled, map[string]int64{challenger: 1000}},
		{betstate.StatusRejected, map[string]int64{challenger: 1000}},
		{betstate.StatusBetNotAcceptedInTime, map[string]int64{challenger: 1000}},
		{betstate.StatusCompletedByChallengee, map[string]int64{challengee: 1980}},
		{betstate.StatusProofNotAcceptedInTime, map[string]int64{challengee: 1980}},
		{betstate.StatusCompletedByChallenger, map[string]int64{challenger: 1980}},
		{betstate.StatusForfeitedByChallengee, map[string]int64{challenger: 1980}},
		{betstate.StatusProofNotSubmittedInTime, map[string]int64{challenger: 1980}},
		{betstate.StatusDraw, map[string]int64{challenger: 990, challengee: 990}},
		{betstate.StatusBetNotMediatedInTime, map[string]int64{challenger: 990, challengee: 990}},
		{betstate.StatusProofDisputed, map[string]int64{challenger: 990, challengee: 990}},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			transfers, err := Settlement(tt.status, p, stake, net)
			require.NoError(t, err)
			got := make(map[string]int64)
			for _, tr := range transfers {
				got[tr.To] += tr.Amount.Int64()
			}
			assert.Equal(t, tt.want, got)
		})
	}

	for _, st := range []betstate.Status{betstate.StatusOpen, betstate.StatusAccepted, betstate.StatusProofSubmitted} {
		_, err := Settlement(st, p, stake, net)
		assert.Error(t, err, st.String())
	}

	_, err := Settlement(betstate.StatusDraw, p, stake, nil)
	assert.Error(t, err)
}

func TestLedgerSingleWinnerScenario(t *testing.T) {
	ctx := context.Background()
	accounts := newMockAccounts()
	accounts.set(challenger, 1000)
	accounts.set(challengee, 1000)
	entries := &mockEntries{}
	l := NewLedger(accounts, entries, staticFees{Bps: 100, Recipient: house})

	bet := newBet(1000)
	require.NoError(t, l.Lock(ctx, nil, bet.ID, challenger, "TON", bet.Amount))
	assert.Equal(t, int64(0), accounts.balance(challenger))

	acc, err := l.Collect(ctx, nil, bet)
	require.NoError(t, err)
	assert.Equal(t, 100, acc.FeeBps)
	assert.Equal(t, int64(10), acc.FeePerSide.Int64())
	assert.Equal(t, int64(20), acc.TotalFees.Int64())
	assert.Equal(t, int64(990), acc.AmountAfterFees.Int64())
	assert.Equal(t, int64(0), accounts.balance(challengee))
	assert.Equal(t, int64(20), accounts.balance(house))

	bet.AmountAfterFees = acc.AmountAfterFees
	transfers, err := l.Settle(ctx, nil, bet, betstate.StatusCompletedByChallengee)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, int64(1980), accounts.balance(challengee))
	assert.Equal(t, int64(0), accounts.balance(challenger))

	total := accounts.balance(challenger) + accounts.balance(challengee) + accounts.balance(house)
	assert.Equal(t, int64(2000), total, "funds must be conserved")

	assert.Len(t, entries.byKind(models.EntryStakeLock), 2)
	assert.Len(t, entries.byKind(models.EntryFee), 1)
	assert.Len(t, entries.byKind(models.EntryPayout), 1)
}

func TestLedgerRefundBeforeAccept(t *testing.T) {
	ctx := context.Background()
	accounts := newMockAccounts()
	accounts.set(challenger, 500)
	l := NewLedger(accounts, &mockEntries{}, staticFees{Bps: 100, Recipient: house})

	bet := newBet(500)
	require.NoError(t, l.Lock(ctx, nil, bet.ID, challenger, "TON", bet.Amount))
	_, err := l.Settle(ctx, nil, bet, betstate.StatusBetNotAcceptedInTime)
	require.NoError(t, err)

	assert.Equal(t, int64(500), accounts.balance(challenger))
	assert.Equal(t, int64(0), accounts.balance(house), "no fee before acceptance")
}

func TestLedgerDrawSplitsNet(t *testing.T) {
	ctx := context.Background()
	accounts := newMockAccounts()
	accounts.set(challenger, 1000)
	accounts.set(challengee, 1000)
	l := NewLedger(accounts, &mockEntries{}, staticFees{Bps: 100, Recipient: house})

	bet := newBet(1000)
	bet.Mediator = mediator
	require.NoError(t, l.Lock(ctx, nil, bet.ID, challenger, "TON", bet.Amount))
	acc, err := l.Collect(ctx, nil, bet)
	require.NoError(t, err)
	bet.AmountAfterFees = acc.AmountAfterFees

	_, err = l.Settle(ctx, nil, bet, betstate.StatusDraw)
	require.NoError(t, err)
	assert.Equal(t, int64(990), accounts.balance(challenger))
	assert.Equal(t, int64(990), accounts.balance(challengee))
	assert.Equal(t, int64(0), accounts.balance(mediator))
}

func TestLedgerInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	accounts := newMockAccounts()
	accounts.set(challenger, 10)
	entries := &mockEntries{}
	l := NewLedger(accounts, entries, staticFees{Bps: 100, Recipient: house})

	err := l.Lock(ctx, nil, 1, challenger, "TON", big.NewInt(11))
	assert.ErrorIs(t, err, betstate.ErrInsufficientBalance)
	assert.Equal(t, int64(10), accounts.balance(challenger))
	assert.Empty(t, entries.entries)
}

func TestLedgerSettleClosedBet(t *testing.T) {
	l := NewLedger(newMockAccounts(), &mockEntries{}, staticFees{})
	bet := newBet(100)
	bet.IsClosed = true

	_, err := l.Settle(context.Background(), nil, bet, betstate.StatusCancelled)
	assert.ErrorIs(t, err, betstate.ErrBetClosed)
}

func TestLedgerCollectNeedsRecipient(t *testing.T) {
	accounts := newMockAccounts()
	accounts.set(challengee, 1000)
	l := NewLedger(accounts, &mockEntries{}, staticFees{Bps: 100})

	_, err := l.Collect(context.Background(), nil, newBet(1000))
	assert.ErrorIs(t, err, ErrNoFeeRecipient)
	assert.Equal(t, int64(1000), accounts.balance(challengee))
}

func TestLedgerCollectZeroFee(t *testing.T) {
	accounts := newMockAccounts()
	accounts.set(challengee, 1000)
	entries := &mockEntries{}
	l := NewLedger(accounts, entries, staticFees{Bps: 0})

	acc, err := l.Collect(context.Background(), nil, newBet(1000))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), acc.AmountAfterFees.Int64())
	assert.Empty(t, entries.byKind(models.EntryFee))
}

func TestLedgerDeposit(t *testing.T) {
	accounts := newMockAccounts()
	entries := &mockEntries{}
	l := NewLedger(accounts, entries, staticFees{})

	after, err := l.Deposit(context.Background(), nil, challenger, "TON", big.NewInt(250), "lt:42")
	require.NoError(t, err)
	assert.Equal(t, int64(250), after.Int64())
	require.Len(t, entries.entries, 1)
	assert.Equal(t, "lt:42", *entries.entries[0].TxRef)

	_, err = l.Deposit(context.Background(), nil, challenger, "TON", big.NewInt(0), "lt:43")
	assert.ErrorIs(t, err, betstate.ErrAmountNotPositive)
}

package services

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/darehouse/backend/internal/betstate"
	"github.com/darehouse/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xssnick/tonutils-go/address"
)

func TestSingleWinnerPath(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.w.fund(alice, 1000)
	h.w.fund(bob, 1000)

	bet, err := h.create("", 1000)
	require.NoError(t, err)
	assert.Equal(t, betstate.StatusOpen, bet.Status)
	assert.Equal(t, int64(0), h.w.balance(alice))

	bet, err = h.bets.Accept(ctx, bet.ID, bob)
	require.NoError(t, err)
	require.NotNil(t, bet.FeeBps)
	assert.Equal(t, 100, *bet.FeeBps)
	assert.Equal(t, "990", bet.AmountAfterFees.String())
	assert.Equal(t, int64(20), h.w.balance(house))
	assert.Equal(t, int64(0), h.w.balance(bob))

	bet, err = h.bets.SubmitProof(ctx, bet.ID, bob, "  https://example.org/strava/123 ")
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/strava/123", bet.Proof)
	require.NotNil(t, bet.ProofAcceptanceDeadline)

	bet, err = h.bets.AcceptProof(ctx, bet.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, betstate.StatusCompletedByChallengee, bet.Status)
	assert.True(t, bet.IsClosed)

	assert.Equal(t, int64(1980), h.w.balance(bob))
	assert.Equal(t, int64(20), h.w.balance(house))
	assert.Equal(t, int64(2000), h.w.total())
	assert.Equal(t, []string{
		models.EventBetCreated,
		models.EventBetAccepted,
		models.EventProofSubmitted,
		models.EventProofAccepted,
	}, h.w.eventNames(bet.ID))
	assert.Equal(t, 4, h.pub.count())
}

func TestCreateRejectionsPersistNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.w.fund(alice, 10)

	_, err := h.create("", 0)
	require.ErrorIs(t, err, betstate.ErrAmountNotPositive)

	_, err = h.create("", 1000)
	require.ErrorIs(t, err, betstate.ErrInsufficientBalance)

	_, err = h.bets.Create(ctx, CreateBetInput{
		Challenger: alice, Challengee: bob, Amount: big.NewInt(5),
		Deadline: t0.Add(time.Hour), Token: "USDT",
	})
	require.ErrorIs(t, err, betstate.ErrTokenNotSupported)

	_, err = h.create(alice, 5)
	require.ErrorIs(t, err, betstate.ErrMediatorIsParty)

	_, err = h.bets.Create(ctx, CreateBetInput{
		Challenger: alice, Challengee: "not an address", Amount: big.NewInt(5),
		Deadline: t0.Add(time.Hour), Token: "TON",
	})
	require.ErrorIs(t, err, betstate.ErrInvalidAddress)

	zero := "0:" + strings.Repeat("0", 64)
	for _, challengee := range []string{zero, address.MustParseRawAddr(zero).String()} {
		_, err = h.bets.Create(ctx, CreateBetInput{
			Challenger: alice, Challengee: challengee, Amount: big.NewInt(5),
			Deadline: t0.Add(time.Hour), Token: "TON",
		})
		require.ErrorIs(t, err, betstate.ErrChallengeeZero, challengee)
	}

	_, err = h.create(zero, 5)
	require.ErrorIs(t, err, betstate.ErrInvalidAddress)

	// Stake is checked before addresses are parsed.
	_, err = h.bets.Create(ctx, CreateBetInput{
		Challenger: alice, Challengee: "not an address", Amount: big.NewInt(0),
		Deadline: t0.Add(time.Hour), Token: "TON",
	})
	require.ErrorIs(t, err, betstate.ErrAmountNotPositive)

	assert.Empty(t, h.w.bets)
	assert.Empty(t, h.w.events)
	assert.Empty(t, h.w.entries)
	assert.Equal(t, int64(10), h.w.balance(alice))
	assert.Zero(t, h.pub.count())
}

func TestAcceptanceTimeoutClaim(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.w.fund(alice, 1000)

	bet, err := h.create("", 1000)
	require.NoError(t, err)

	_, err = h.bets.Claim(ctx, bet.ID, "watcher")
	require.ErrorIs(t, err, betstate.ErrNotClaimable)

	h.clock.Advance(2 * time.Hour)
	got, err := h.bets.GetBet(ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, betstate.StatusOpen, got.Status)
	assert.Equal(t, betstate.StatusBetNotAcceptedInTime, got.State.Status)

	_, err = h.bets.Accept(ctx, bet.ID, bob)
	require.ErrorIs(t, err, betstate.ErrInvalidStatus)

	bet, err = h.bets.Claim(ctx, bet.ID, "watcher")
	require.NoError(t, err)
	assert.Equal(t, betstate.StatusBetNotAcceptedInTime, bet.Status)
	assert.True(t, bet.IsClosed)
	assert.Equal(t, int64(1000), h.w.balance(alice))

	_, err = h.bets.Claim(ctx, bet.ID, "watcher")
	require.ErrorIs(t, err, betstate.ErrBetClosed)
	assert.Equal(t, int64(1000), h.w.balance(alice))

	evs, err := h.bets.ListEvents(ctx, bet.ID)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, "watcher", evs[1].Actor)
}

func TestMediatedDraw(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.w.fund(alice, 1000)
	h.w.fund(bob, 1000)

	bet, err := h.create(carol, 1000)
	require.NoError(t, err)
	_, err = h.bets.Accept(ctx, bet.ID, bob)
	require.NoError(t, err)
	_, err = h.bets.SubmitProof(ctx, bet.ID, bob, "photo")
	require.NoError(t, err)

	bet, err = h.bets.DisputeProof(ctx, bet.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, betstate.StatusProofDisputed, bet.Status)
	assert.False(t, bet.IsClosed)
	require.NotNil(t, bet.MediationDeadline)

	_, err = h.bets.SubmitMediation(ctx, bet.ID, carol, "coin flip")
	require.ErrorIs(t, err, betstate.ErrInvalidOutcome)
	_, err = h.bets.SubmitMediation(ctx, bet.ID, alice, "challenger")
	require.ErrorIs(t, err, betstate.ErrOnlyMediator)

	bet, err = h.bets.SubmitMediation(ctx, bet.ID, carol, "Draw")
	require.NoError(t, err)
	assert.Equal(t, betstate.StatusDraw, bet.Status)
	assert.True(t, bet.IsClosed)
	assert.Equal(t, int64(990), h.w.balance(alice))
	assert.Equal(t, int64(990), h.w.balance(bob))
	assert.Equal(t, int64(2000), h.w.total())
}

func TestMediatorVerdicts(t *testing.T) {
	tests := []struct {
		verdict string
		want    betstate.Status
		winner  *string
	}{
		{"challenger", betstate.StatusCompletedByChallenger, &alice},
		{"challengee", betstate.StatusCompletedByChallengee, &bob},
	}

	for _, tt := range tests {
		t.Run(tt.verdict, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness()
			h.w.fund(alice, 1000)
			h.w.fund(bob, 1000)

			bet, err := h.create(carol, 1000)
			require.NoError(t, err)
			_, err = h.bets.Accept(ctx, bet.ID, bob)
			require.NoError(t, err)
			_, err = h.bets.SubmitProof(ctx, bet.ID, bob, "photo")
			require.NoError(t, err)
			_, err = h.bets.DisputeProof(ctx, bet.ID, alice)
			require.NoError(t, err)

			bet, err = h.bets.SubmitMediation(ctx, bet.ID, carol, tt.verdict)
			require.NoError(t, err)
			assert.Equal(t, tt.want, bet.Status)
			assert.Equal(t, int64(1980), h.w.balance(*tt.winner))
		})
	}
}

func TestDisputeWithoutMediatorSplits(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.w.fund(alice, 1000)
	h.w.fund(bob, 1000)

	bet, err := h.create("", 1000)
	require.NoError(t, err)
	_, err = h.bets.Accept(ctx, bet.ID, bob)
	require.NoError(t, err)
	_, err = h.bets.SubmitProof(ctx, bet.ID, bob, "photo")
	require.NoError(t, err)

	bet, err = h.bets.DisputeProof(ctx, bet.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, betstate.StatusProofDisputed, bet.Status)
	assert.True(t, bet.IsClosed)
	assert.Nil(t, bet.MediationDeadline)
	assert.Equal(t, int64(990), h.w.balance(alice))
	assert.Equal(t, int64(990), h.w.balance(bob))
}

func TestTimeoutClaims(t *testing.T) {
	tests := []struct {
		name    string
		through func(t *testing.T, h *harness, id int64)
		wait    time.Duration
		want    betstate.Status
		alice   int64
		bob     int64
	}{
		{
			name:    "proof not submitted",
			through: func(t *testing.T, h *harness, id int64) {},
			wait:    25 * time.Hour,
			want:    betstate.StatusProofNotSubmittedInTime,
			alice:   1980,
			bob:     0,
		},
		{
			name: "proof not reviewed",
			through: func(t *testing.T, h *harness, id int64) {
				_, err := h.bets.SubmitProof(context.Background(), id, bob, "photo")
				require.NoError(t, err)
			},
			wait:  25 * time.Hour,
			want:  betstate.StatusProofNotAcceptedInTime,
			alice: 0,
			bob:   1980,
		},
		{
			name: "not mediated",
			through: func(t *testing.T, h *harness, id int64) {
				_, err := h.bets.SubmitProof(context.Background(), id, bob, "photo")
				require.NoError(t, err)
				_, err = h.bets.DisputeProof(context.Background(), id, alice)
				require.NoError(t, err)
			},
			wait:  25 * time.Hour,
			want:  betstate.StatusBetNotMediatedInTime,
			alice: 990,
			bob:   990,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness()
			h.w.fund(alice, 1000)
			h.w.fund(bob, 1000)

			bet, err := h.create(carol, 1000)
			require.NoError(t, err)
			_, err = h.bets.Accept(ctx, bet.ID, bob)
			require.NoError(t, err)
			tt.through(t, h, bet.ID)

			h.clock.Advance(tt.wait)
			bet, err = h.bets.Claim(ctx, bet.ID, carol)
			require.NoError(t, err)
			assert.Equal(t, tt.want, bet.Status)
			assert.Equal(t, tt.alice, h.w.balance(alice))
			assert.Equal(t, tt.bob, h.w.balance(bob))
			assert.Equal(t, int64(2000), h.w.total())
		})
	}
}

func TestForfeit(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.w.fund(alice, 1000)
	h.w.fund(bob, 1000)

	bet, err := h.create("", 1000)
	require.NoError(t, err)
	_, err = h.bets.Accept(ctx, bet.ID, bob)
	require.NoError(t, err)

	_, err = h.bets.Forfeit(ctx, bet.ID, alice)
	require.ErrorIs(t, err, betstate.ErrOnlyChallengee)

	bet, err = h.bets.Forfeit(ctx, bet.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, betstate.StatusForfeitedByChallengee, bet.Status)
	assert.Equal(t, int64(1980), h.w.balance(alice))
}

func TestCancelAndReject(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.w.fund(alice, 2000)

	first, err := h.create("", 1000)
	require.NoError(t, err)
	second, err := h.create("", 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(0), h.w.balance(alice))

	_, err = h.bets.Cancel(ctx, first.ID, bob)
	require.ErrorIs(t, err, betstate.ErrOnlyChallenger)
	_, err = h.bets.Reject(ctx, second.ID, alice)
	require.ErrorIs(t, err, betstate.ErrOnlyChallengee)

	first, err = h.bets.Cancel(ctx, first.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, betstate.StatusCancelled, first.Status)

	second, err = h.bets.Reject(ctx, second.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, betstate.StatusRejected, second.Status)

	assert.Equal(t, int64(2000), h.w.balance(alice))
	assert.Equal(t, int64(0), h.w.balance(house))
}

func TestTransitionErrors(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.w.fund(alice, 1000)

	bet, err := h.create("", 1000)
	require.NoError(t, err)

	_, err = h.bets.AcceptProof(ctx, bet.ID, alice)
	require.ErrorIs(t, err, betstate.ErrInvalidStatus)

	_, err = h.bets.Accept(ctx, 999, bob)
	require.ErrorIs(t, err, betstate.ErrBetNotFound)

	_, err = h.bets.SubmitProof(ctx, bet.ID, bob, "   ")
	require.ErrorIs(t, err, betstate.ErrEmptyProof)

	// bob has no funds to match
	_, err = h.bets.Accept(ctx, bet.ID, bob)
	require.ErrorIs(t, err, betstate.ErrInsufficientBalance)

	got, err := h.bets.GetBet(ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, betstate.StatusOpen, got.Status)
	assert.Nil(t, got.FeeBps)
	assert.Equal(t, int64(0), h.w.balance(house))
	assert.Equal(t, []string{models.EventBetCreated}, h.w.eventNames(bet.ID))
}

func TestFeeCapturedAtAccept(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.w.fund(alice, 1000)
	h.w.fund(bob, 1000)

	bet, err := h.create("", 1000)
	require.NoError(t, err)
	_, err = h.bets.Accept(ctx, bet.ID, bob)
	require.NoError(t, err)

	h.w.mu.Lock()
	h.w.fees.Bps = 5000
	h.w.mu.Unlock()

	_, err = h.bets.Forfeit(ctx, bet.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(1980), h.w.balance(alice))
	assert.Equal(t, int64(20), h.w.balance(house))
}

func TestConcurrentClaimsSettleOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.w.fund(alice, 1000)

	bet, err := h.create("", 1000)
	require.NoError(t, err)
	h.clock.Advance(2 * time.Hour)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.bets.Claim(ctx, bet.ID, "watcher")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, betstate.IsBenign(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, int64(1000), h.w.balance(alice))
	assert.Equal(t, []string{models.EventBetCreated, models.EventBetClaimed}, h.w.eventNames(bet.ID))
}

func TestListBets(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.w.fund(alice, 3000)

	for i := 0; i < 3; i++ {
		_, err := h.create("", 1000)
		require.NoError(t, err)
	}
	_, err := h.bets.Cancel(ctx, 1, alice)
	require.NoError(t, err)

	all, err := h.bets.ListBets(ctx, models.BetFilter{Participant: bob})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	open, err := h.bets.ListBets(ctx, models.BetFilter{Participant: bob, OpenOnly: true})
	require.NoError(t, err)
	assert.Len(t, open, 2)

	none, err := h.bets.ListBets(ctx, models.BetFilter{Participant: carol})
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = h.bets.ListBets(ctx, models.BetFilter{Participant: "garbage"})
	require.ErrorIs(t, err, betstate.ErrInvalidAddress)
}

// Package escrow moves staked funds between internal balances and decides how
// a closing bet is paid out.
package escrow

import (
	"fmt"
	"math/big"

	"github.com/darehouse/backend/internal/betstate"
	"github.com/darehouse/backend/internal/models"
)

// MaxFeeBps is 100%.
const MaxFeeBps = 10000

var bpsDenominator = big.NewInt(MaxFeeBps)

// ValidateFeeBps rejects rates outside [0, 10000].
func ValidateFeeBps(bps int) error {
	if bps < 0 || bps > MaxFeeBps {
		return betstate.ErrFeesTooHigh
	}
	return nil
}

// FeePerSide is floor(stake * bps / 10000) for a non-negative stake.
func FeePerSide(stake *big.Int, bps int) *big.Int {
	fee := new(big.Int).Mul(stake, big.NewInt(int64(bps)))
	return fee.Quo(fee, bpsDenominator)
}

// AmountAfterFees is what one side has left in escrow once its fee is taken.
func AmountAfterFees(stake *big.Int, bps int) *big.Int {
	return new(big.Int).Sub(stake, FeePerSide(stake, bps))
}

// Transfer is one credit made when a bet closes.
type Transfer struct {
	To     string
	Amount *big.Int
	Kind   string
}

// Settlement returns the transfers that close a bet in status final. stake is
// the per-side stake and net the per-side amount after fees; net is ignored
// for outcomes reached before acceptance.
func Settlement(final betstate.Status, p betstate.Parties, stake, net *big.Int) ([]Transfer, error) {
	switch final {
	case betstate.StatusCancelled, betstate.StatusRejected, betstate.StatusBetNotAcceptedInTime:
		return []Transfer{{To: p.Challenger, Amount: new(big.Int).Set(stake), Kind: models.EntryRefund}}, nil

	case betstate.StatusCompletedByChallengee, betstate.StatusProofNotAcceptedInTime:
		if net == nil {
			return nil, fmt.Errorf("settle %s: amount after fees not set", final)
		}
		return []Transfer{{To: p.Challengee, Amount: double(net), Kind: models.EntryPayout}}, nil

	case betstate.StatusCompletedByChallenger, betstate.StatusForfeitedByChallengee, betstate.StatusProofNotSubmittedInTime:
		if net == nil {
			return nil, fmt.Errorf("settle %s: amount after fees not set", final)
		}
		return []Transfer{{To: p.Challenger, Amount: double(net), Kind: models.EntryPayout}}, nil

	case betstate.StatusDraw, betstate.StatusBetNotMediatedInTime, betstate.StatusProofDisputed:
		if net == nil {
			return nil, fmt.Errorf("settle %s: amount after fees not set", final)
		}
		return []Transfer{
			{To: p.Challenger, Amount: new(big.Int).Set(net), Kind: models.EntryRefund},
			{To: p.Challengee, Amount: new(big.Int).Set(net), Kind: models.EntryRefund},
		}, nil
	}
	return nil, fmt.Errorf("settle: %s is not a closing status", final)
}

func double(x *big.Int) *big.Int {
	return new(big.Int).Lsh(x, 1)
}

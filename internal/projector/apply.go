package projector

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/darehouse/backend/internal/betstate"
	"github.com/darehouse/backend/internal/models"
)

// applyEvent folds e into snap. snap is nil only for BetCreated.
func applyEvent(snap *models.BetSnapshot, e models.BetEvent) (*models.BetSnapshot, error) {
	if e.Name == models.EventBetCreated {
		if snap != nil {
			return nil, fmt.Errorf("bet %d already created", e.BetID)
		}
		return created(e)
	}
	if snap == nil {
		return nil, ErrUnknownBet
	}

	switch e.Name {
	case models.EventBetAccepted:
		var d models.BetAcceptedDetails
		if err := decode(e, &d); err != nil {
			return nil, err
		}
		net, err := parseAmount(d.AmountAfterFees)
		if err != nil {
			return nil, err
		}
		bps := d.FeeBps
		deadline := d.ProofSubmissionDeadline
		snap.FeeBps = &bps
		snap.AmountAfterFees = net
		snap.ProofSubmissionDeadline = &deadline
		snap.Status = betstate.StatusAccepted

	case models.EventProofSubmitted:
		var d models.ProofSubmittedDetails
		if err := decode(e, &d); err != nil {
			return nil, err
		}
		deadline := d.ProofAcceptanceDeadline
		snap.Proof = d.Proof
		snap.ProofAcceptanceDeadline = &deadline
		snap.Status = betstate.StatusProofSubmitted

	case models.EventProofDisputed:
		var d models.ProofDisputedDetails
		if err := decode(e, &d); err != nil {
			return nil, err
		}
		snap.Status = betstate.StatusProofDisputed
		if d.IsMediating {
			snap.MediationDeadline = d.MediationDeadline
		} else {
			snap.IsClosed = true
		}

	case models.EventMediationSubmitted:
		var d models.MediationSubmittedDetails
		if err := decode(e, &d); err != nil {
			return nil, err
		}
		if err := closeAs(snap, d.ResultingStatus); err != nil {
			return nil, err
		}

	case models.EventBetClaimed:
		var d models.BetClaimedDetails
		if err := decode(e, &d); err != nil {
			return nil, err
		}
		if err := closeAs(snap, d.ResultingStatus); err != nil {
			return nil, err
		}

	case models.EventBetCancelled, models.EventBetRejected, models.EventProofAccepted, models.EventBetForfeited:
		var d models.ClosingDetails
		if err := decode(e, &d); err != nil {
			return nil, err
		}
		if err := closeAs(snap, d.ResultingStatus); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unknown event %q", e.Name)
	}

	snap.UpdatedAt = e.BlockTime
	snap.LastSeq = e.Seq
	return snap, nil
}

func created(e models.BetEvent) (*models.BetSnapshot, error) {
	var d models.BetCreatedDetails
	if err := decode(e, &d); err != nil {
		return nil, err
	}
	amount, err := parseAmount(d.Amount)
	if err != nil {
		return nil, err
	}
	return &models.BetSnapshot{
		Bet: models.Bet{
			ID:                 e.BetID,
			Challenger:         d.Challenger,
			Challengee:         d.Challengee,
			Mediator:           d.Mediator,
			Condition:          d.Condition,
			Amount:             amount,
			Token:              d.Token,
			AcceptanceDeadline: d.AcceptanceDeadline,
			Status:             betstate.StatusOpen,
			CreatedTxRef:       e.TxRef,
			CreatedAt:          e.BlockTime,
			UpdatedAt:          e.BlockTime,
		},
		LastSeq:     e.Seq,
		ProjectedAt: time.Now().UTC(),
	}, nil
}

func closeAs(snap *models.BetSnapshot, status string) error {
	st, err := betstate.ParseStatus(status)
	if err != nil {
		return err
	}
	snap.Status = st
	snap.IsClosed = true
	return nil
}

func decode(e models.BetEvent, v any) error {
	if err := json.Unmarshal(e.Details, v); err != nil {
		return fmt.Errorf("decode %s details (seq %d): %w", e.Name, e.Seq, err)
	}
	return nil
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

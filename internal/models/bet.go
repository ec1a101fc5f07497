package models

import (
	"math/big"
	"time"

	"github.com/darehouse/backend/internal/betstate"
	"github.com/google/uuid"
)

// Bet is the escrowed two-party wager as stored by the lifecycle service.
// Amounts are token units; deadlines stay nil until the phase that sets them.
type Bet struct {
	ID                      int64           `json:"id"`
	Challenger              string          `json:"challenger"`
	Challengee              string          `json:"challengee"`
	Mediator                string          `json:"mediator"` // "" = no mediation
	Condition               string          `json:"condition"`
	Amount                  *big.Int        `json:"amount"`
	Token                   string          `json:"token"`
	FeeBps                  *int            `json:"fee_bps,omitempty"` // captured at accept
	AmountAfterFees         *big.Int        `json:"amount_after_fees,omitempty"`
	AcceptanceDeadline      time.Time       `json:"acceptance_deadline"`
	ProofSubmissionDeadline *time.Time      `json:"proof_submission_deadline,omitempty"`
	ProofAcceptanceDeadline *time.Time      `json:"proof_acceptance_deadline,omitempty"`
	MediationDeadline       *time.Time      `json:"mediation_deadline,omitempty"`
	Proof                   string          `json:"proof"`
	Status                  betstate.Status `json:"status"`
	IsClosed                bool            `json:"is_closed"`
	CreatedTxRef            uuid.UUID       `json:"created_tx_ref"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
}

// HasMediator reports whether a dispute on this bet goes to a mediator.
func (b *Bet) HasMediator() bool {
	return b.Mediator != ""
}

// Snapshot extracts the stored facts status derivation works from.
func (b *Bet) Snapshot() betstate.Snapshot {
	return betstate.Snapshot{
		StoredStatus:            b.Status,
		Closed:                  b.IsClosed,
		HasMediator:             b.HasMediator(),
		AcceptanceDeadline:      b.AcceptanceDeadline,
		ProofSubmissionDeadline: deref(b.ProofSubmissionDeadline),
		ProofAcceptanceDeadline: deref(b.ProofAcceptanceDeadline),
		MediationDeadline:       deref(b.MediationDeadline),
	}
}

func (b *Bet) Parties() betstate.Parties {
	return betstate.Parties{Challenger: b.Challenger, Challengee: b.Challengee, Mediator: b.Mediator}
}

// BetWithState pairs a stored bet with its effective status at read time.
type BetWithState struct {
	Bet
	State betstate.State `json:"state"`
}

// BetFilter narrows bet listings. Zero values mean "any".
type BetFilter struct {
	Participant string
	Status      *betstate.Status
	OpenOnly    bool
	Limit       int
	Offset      int
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Bet event names
const (
	EventBetCreated         = "BetCreated"
	EventBetCancelled       = "BetCancelled"
	EventBetRejected        = "BetRejected"
	EventBetAccepted        = "BetAccepted"
	EventProofSubmitted     = "ProofSubmitted"
	EventProofAccepted      = "ProofAccepted"
	EventProofDisputed      = "ProofDisputed"
	EventMediationSubmitted = "MediationSubmitted"
	EventBetForfeited       = "BetForfeited"
	EventBetClaimed         = "BetClaimed"
)

// BetEvent is one append-only audit record. (TxRef, LogIndex) is unique and
// Seq gives the global emission order.
type BetEvent struct {
	Seq       int64           `json:"seq"`
	TxRef     uuid.UUID       `json:"tx_ref"`
	LogIndex  int             `json:"log_index"`
	BetID     int64           `json:"bet_id"`
	Name      string          `json:"name"`
	Actor     string          `json:"actor"`
	BlockTime time.Time       `json:"block_time"`
	Details   json.RawMessage `json:"details"`
}

// Payloads carried in BetEvent.Details. Amounts are decimal strings.

type BetCreatedDetails struct {
	Challenger         string    `json:"challenger"`
	Challengee         string    `json:"challengee"`
	Mediator           string    `json:"mediator"`
	Condition          string    `json:"condition"`
	Amount             string    `json:"amount"`
	Token              string    `json:"token"`
	AcceptanceDeadline time.Time `json:"acceptanceDeadline"`
}

type BetAcceptedDetails struct {
	FeeBps                  int       `json:"feeBps"`
	FeePerSide              string    `json:"feePerSide"`
	TotalFees               string    `json:"totalFees"`
	AmountAfterFees         string    `json:"amountAfterFees"`
	FeeRecipient            string    `json:"feeRecipient"`
	ProofSubmissionDeadline time.Time `json:"proofSubmissionDeadline"`
}

type ProofSubmittedDetails struct {
	Proof                   string    `json:"proof"`
	ProofAcceptanceDeadline time.Time `json:"proofAcceptanceDeadline"`
}

type ProofDisputedDetails struct {
	IsMediating       bool       `json:"isMediating"`
	MediationDeadline *time.Time `json:"mediationDeadline,omitempty"`
	Payouts           []Payout   `json:"payouts,omitempty"`
}

type MediationSubmittedDetails struct {
	Outcome         string   `json:"outcome"`
	ResultingStatus string   `json:"resultingStatus"`
	Payouts         []Payout `json:"payouts"`
}

type BetClaimedDetails struct {
	Claimer         string   `json:"claimer"`
	ResultingStatus string   `json:"resultingStatus"`
	Payouts         []Payout `json:"payouts"`
}

// Payout is a settlement transfer recorded on every closing event.
type Payout struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
	Kind   string `json:"kind"`
}

type ClosingDetails struct {
	ResultingStatus string   `json:"resultingStatus"`
	Payouts         []Payout `json:"payouts"`
}

package dto

import "time"

// Amounts travel as decimal strings in token base units.

type CreateBetRequest struct {
	Challengee         string    `json:"challengee"`
	Mediator           string    `json:"mediator,omitempty"` // empty = no mediation
	Condition          string    `json:"condition"`
	Amount             string    `json:"amount"`
	Token              string    `json:"token"`
	AcceptanceDeadline time.Time `json:"acceptance_deadline"`
}

type SubmitProofRequest struct {
	Proof string `json:"proof"`
}

// SubmitMediationRequest carries the verdict: challenger, challengee or draw.
type SubmitMediationRequest struct {
	Outcome string `json:"outcome"`
}

type SetFeesRequest struct {
	FeeBps *int `json:"fee_bps"`
}

type SetFeeRecipientRequest struct {
	Recipient string `json:"recipient"`
}

type AddTokenRequest struct {
	Symbol string `json:"symbol"`
}

package dto

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/darehouse/backend/internal/betstate"
	"github.com/darehouse/backend/internal/models"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

// BetResponse is the API view of a bet. Status is the stored status;
// EffectiveStatus accounts for deadlines that passed since.
type BetResponse struct {
	ID                      int64      `json:"id"`
	Challenger              string     `json:"challenger"`
	Challengee              string     `json:"challengee"`
	Mediator                string     `json:"mediator,omitempty"`
	Condition               string     `json:"condition"`
	Amount                  string     `json:"amount"`
	Token                   string     `json:"token"`
	FeeBps                  *int       `json:"fee_bps,omitempty"`
	AmountAfterFees         string     `json:"amount_after_fees,omitempty"`
	AcceptanceDeadline      time.Time  `json:"acceptance_deadline"`
	ProofSubmissionDeadline *time.Time `json:"proof_submission_deadline,omitempty"`
	ProofAcceptanceDeadline *time.Time `json:"proof_acceptance_deadline,omitempty"`
	MediationDeadline       *time.Time `json:"mediation_deadline,omitempty"`
	Proof                   string     `json:"proof,omitempty"`
	Status                  string     `json:"status"`
	IsClosed                bool       `json:"is_closed"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`

	EffectiveStatus string     `json:"effective_status,omitempty"`
	Deadline        *time.Time `json:"deadline,omitempty"`
	Remaining       string     `json:"remaining,omitempty"`
}

type BetEventResponse struct {
	Seq       int64           `json:"seq"`
	TxRef     string          `json:"tx_ref"`
	LogIndex  int             `json:"log_index"`
	BetID     int64           `json:"bet_id"`
	Name      string          `json:"name"`
	Actor     string          `json:"actor"`
	BlockTime time.Time       `json:"block_time"`
	Details   json.RawMessage `json:"details,omitempty"`
}

type PartyIdentity struct {
	Address string  `json:"address"`
	Name    *string `json:"name,omitempty"`
	Avatar  *string `json:"avatar,omitempty"`
}

// SnapshotResponse is the mirror view: the bet as rebuilt from events plus
// whatever identity metadata was found for its parties.
type SnapshotResponse struct {
	BetResponse
	Parties     []PartyIdentity `json:"parties"`
	LastSeq     int64           `json:"last_seq"`
	ProjectedAt time.Time       `json:"projected_at"`
}

type BalanceResponse struct {
	Token     string    `json:"token"`
	Amount    string    `json:"amount"`
	UpdatedAt time.Time `json:"updated_at"`
}

type LedgerEntryResponse struct {
	ID           string    `json:"id"`
	Token        string    `json:"token"`
	BetID        *int64    `json:"bet_id,omitempty"`
	Kind         string    `json:"kind"`
	Amount       string    `json:"amount"`
	BalanceAfter string    `json:"balance_after"`
	TxRef        *string   `json:"tx_ref,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type SettingsResponse struct {
	FeeBps       int       `json:"fee_bps"`
	FeeRecipient string    `json:"fee_recipient"`
	UpdatedBy    string    `json:"updated_by,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
	Tokens       []string  `json:"tokens"`
}

func amountString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

// NewBetResponse renders a stored bet without a derived state.
func NewBetResponse(b *models.Bet) BetResponse {
	return BetResponse{
		ID:                      b.ID,
		Challenger:              b.Challenger,
		Challengee:              b.Challengee,
		Mediator:                b.Mediator,
		Condition:               b.Condition,
		Amount:                  amountString(b.Amount),
		Token:                   b.Token,
		FeeBps:                  b.FeeBps,
		AmountAfterFees:         amountString(b.AmountAfterFees),
		AcceptanceDeadline:      b.AcceptanceDeadline,
		ProofSubmissionDeadline: b.ProofSubmissionDeadline,
		ProofAcceptanceDeadline: b.ProofAcceptanceDeadline,
		MediationDeadline:       b.MediationDeadline,
		Proof:                   b.Proof,
		Status:                  b.Status.String(),
		IsClosed:                b.IsClosed,
		CreatedAt:               b.CreatedAt,
		UpdatedAt:               b.UpdatedAt,
	}
}

func NewBetWithStateResponse(b *models.BetWithState) BetResponse {
	resp := NewBetResponse(&b.Bet)
	resp.SetState(b.State)
	return resp
}

// SetState fills the derived countdown fields.
func (r *BetResponse) SetState(st betstate.State) {
	r.EffectiveStatus = st.Status.String()
	r.Deadline, r.Remaining = nil, ""
	if !st.Deadline.IsZero() {
		deadline := st.Deadline
		r.Deadline = &deadline
		r.Remaining = betstate.FormatRemaining(st.Remaining)
	}
}

func NewBetEventResponse(e models.BetEvent) BetEventResponse {
	return BetEventResponse{
		Seq:       e.Seq,
		TxRef:     e.TxRef.String(),
		LogIndex:  e.LogIndex,
		BetID:     e.BetID,
		Name:      e.Name,
		Actor:     e.Actor,
		BlockTime: e.BlockTime,
		Details:   e.Details,
	}
}

func NewBetEventsResponse(events []models.BetEvent) []BetEventResponse {
	out := make([]BetEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, NewBetEventResponse(e))
	}
	return out
}

func NewSnapshotResponse(s *models.BetSnapshot) SnapshotResponse {
	parties := []PartyIdentity{
		{Address: s.Challenger, Name: s.ChallengerName, Avatar: s.ChallengerAvatar},
		{Address: s.Challengee, Name: s.ChallengeeName, Avatar: s.ChallengeeAvatar},
	}
	if s.HasMediator() {
		parties = append(parties, PartyIdentity{Address: s.Mediator, Name: s.MediatorName, Avatar: s.MediatorAvatar})
	}
	return SnapshotResponse{
		BetResponse: NewBetResponse(&s.Bet),
		Parties:     parties,
		LastSeq:     s.LastSeq,
		ProjectedAt: s.ProjectedAt,
	}
}

func NewBalancesResponse(balances []models.Balance) []BalanceResponse {
	out := make([]BalanceResponse, 0, len(balances))
	for _, b := range balances {
		out = append(out, BalanceResponse{Token: b.Token, Amount: amountString(b.Amount), UpdatedAt: b.UpdatedAt})
	}
	return out
}

func NewLedgerEntriesResponse(entries []models.LedgerEntry) []LedgerEntryResponse {
	out := make([]LedgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, LedgerEntryResponse{
			ID:           e.ID.String(),
			Token:        e.Token,
			BetID:        e.BetID,
			Kind:         e.Kind,
			Amount:       amountString(e.Amount),
			BalanceAfter: amountString(e.BalanceAfter),
			TxRef:        e.TxRef,
			CreatedAt:    e.CreatedAt,
		})
	}
	return out
}

func NewSettingsResponse(s *models.HouseSettings, tokens []models.SupportedToken) SettingsResponse {
	symbols := make([]string, 0, len(tokens))
	for _, t := range tokens {
		symbols = append(symbols, t.Symbol)
	}
	return SettingsResponse{
		FeeBps:       s.FeeBps,
		FeeRecipient: s.FeeRecipient,
		UpdatedBy:    s.UpdatedBy,
		UpdatedAt:    s.UpdatedAt,
		Tokens:       symbols,
	}
}

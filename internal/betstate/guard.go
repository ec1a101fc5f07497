package betstate

import (
	"math/big"
	"strings"
	"time"
)

// Action is one externally callable lifecycle operation.
type Action uint8

const (
	ActionCreate Action = iota
	ActionCancel
	ActionReject
	ActionAccept
	ActionSubmitProof
	ActionAcceptProof
	ActionDisputeProof
	ActionSubmitMediation
	ActionForfeit
	ActionClaim
)

var actionNames = [...]string{
	ActionCreate:          "create",
	ActionCancel:          "cancel",
	ActionReject:          "reject",
	ActionAccept:          "accept",
	ActionSubmitProof:     "submitProof",
	ActionAcceptProof:     "acceptProof",
	ActionDisputeProof:    "disputeProof",
	ActionSubmitMediation: "submitMediation",
	ActionForfeit:         "forfeit",
	ActionClaim:           "claim",
}

func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return "unknown"
}

// Role is the party an action must be invoked by.
type Role uint8

const (
	RoleAnyone Role = iota
	RoleChallenger
	RoleChallengee
	RoleMediator
)

// Rule declares where an action may run from and who may run it. An empty
// From means "any timeout status".
type Rule struct {
	From   []Status
	Caller Role
}

// Rules is the transition table for every action on an existing wager.
var Rules = map[Action]Rule{
	ActionCancel:          {From: []Status{StatusOpen}, Caller: RoleChallenger},
	ActionReject:          {From: []Status{StatusOpen}, Caller: RoleChallengee},
	ActionAccept:          {From: []Status{StatusOpen}, Caller: RoleChallengee},
	ActionSubmitProof:     {From: []Status{StatusAccepted}, Caller: RoleChallengee},
	ActionAcceptProof:     {From: []Status{StatusProofSubmitted}, Caller: RoleChallenger},
	ActionDisputeProof:    {From: []Status{StatusProofSubmitted}, Caller: RoleChallenger},
	ActionSubmitMediation: {From: []Status{StatusProofDisputed}, Caller: RoleMediator},
	ActionForfeit:         {From: []Status{StatusAccepted, StatusProofSubmitted}, Caller: RoleChallengee},
	ActionClaim:           {Caller: RoleAnyone},
}

// Parties identifies who is who on a wager. Mediator is empty when the wager
// has no mediation.
type Parties struct {
	Challenger string
	Challengee string
	Mediator   string
}

// Authorize checks action against the effective status at now and the
// caller's role. It returns the effective status it decided on.
func Authorize(s Snapshot, p Parties, action Action, caller string, now time.Time) (Status, error) {
	rule, ok := Rules[action]
	if !ok {
		return 0, ErrInvalidStatus
	}
	if s.Closed {
		return s.StoredStatus, ErrBetClosed
	}

	switch rule.Caller {
	case RoleChallenger:
		if caller != p.Challenger {
			return 0, ErrOnlyChallenger
		}
	case RoleChallengee:
		if caller != p.Challengee {
			return 0, ErrOnlyChallengee
		}
	case RoleMediator:
		if p.Mediator == "" || caller != p.Mediator {
			return 0, ErrOnlyMediator
		}
	}

	effective := Effective(s, now)
	if len(rule.From) == 0 {
		if !effective.IsTimeout() {
			return effective, ErrNotClaimable
		}
		return effective, nil
	}
	for _, st := range rule.From {
		if st == effective {
			return effective, nil
		}
	}
	return effective, ErrInvalidStatus
}

// Verdict is the mediator's decision on a disputed wager.
type Verdict string

const (
	VerdictDraw       Verdict = "draw"
	VerdictChallenger Verdict = "challenger"
	VerdictChallengee Verdict = "challengee"
)

// ParseVerdict accepts the three mediation outcomes.
func ParseVerdict(s string) (Verdict, error) {
	switch v := Verdict(s); v {
	case VerdictDraw, VerdictChallenger, VerdictChallengee:
		return v, nil
	}
	return "", ErrInvalidOutcome
}

// Next returns the stored status an authorized action writes and whether it
// closes the wager. effective is the status Authorize returned.
func Next(action Action, effective Status, hasMediator bool, verdict Verdict) (Status, bool) {
	switch action {
	case ActionCreate:
		return StatusOpen, false
	case ActionCancel:
		return StatusCancelled, true
	case ActionReject:
		return StatusRejected, true
	case ActionAccept:
		return StatusAccepted, false
	case ActionSubmitProof:
		return StatusProofSubmitted, false
	case ActionAcceptProof:
		return StatusCompletedByChallengee, true
	case ActionDisputeProof:
		return StatusProofDisputed, !hasMediator
	case ActionSubmitMediation:
		switch verdict {
		case VerdictChallenger:
			return StatusCompletedByChallenger, true
		case VerdictChallengee:
			return StatusCompletedByChallengee, true
		default:
			return StatusDraw, true
		}
	case ActionForfeit:
		return StatusForfeitedByChallengee, true
	case ActionClaim:
		return effective, true
	}
	return effective, false
}

// CreateInput is the caller-supplied part of a new wager, with addresses
// already normalised. Mediator is empty for no mediation.
type CreateInput struct {
	Challenger string
	Challengee string
	Mediator   string
	Amount     *big.Int
	Deadline   time.Time
	Token      string
}

// ValidateTerms checks stake and deadline. They are checked before any
// address so rejections come in a fixed order.
func ValidateTerms(amount *big.Int, deadline, now time.Time) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrAmountNotPositive
	}
	if !deadline.After(now) {
		return ErrDeadlineInPast
	}
	return nil
}

// IsNullAddress reports whether a normalised "wc:hex" address is the null
// identity: empty, or an all-zero account hash on any workchain.
func IsNullAddress(addr string) bool {
	hash := addr[strings.IndexByte(addr, ':')+1:]
	return strings.Trim(hash, "0") == ""
}

// ValidateCreate checks a new wager before anything is persisted.
func ValidateCreate(in CreateInput, now time.Time, supported func(token string) bool) error {
	if err := ValidateTerms(in.Amount, in.Deadline, now); err != nil {
		return err
	}
	if IsNullAddress(in.Challenger) {
		return ErrInvalidAddress
	}
	if IsNullAddress(in.Challengee) {
		return ErrChallengeeZero
	}
	if in.Mediator != "" && IsNullAddress(in.Mediator) {
		return ErrInvalidAddress
	}
	if in.Challengee == in.Challenger {
		return ErrSelfChallenge
	}
	if in.Mediator != "" && (in.Mediator == in.Challenger || in.Mediator == in.Challengee) {
		return ErrMediatorIsParty
	}
	if in.Token == "" || supported == nil || !supported(in.Token) {
		return ErrTokenNotSupported
	}
	return nil
}

package betstate

import "errors"

// Kind classifies a rejection so callers can decide how to surface it.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindState         Kind = "state"
	KindNotFound      Kind = "not_found"
)

// Error is a rejection with a stable, user-presentable reason.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string { return e.Reason }

func reject(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

var (
	ErrAmountNotPositive   = reject(KindValidation, "Amount must be greater than 0")
	ErrDeadlineInPast      = reject(KindValidation, "Deadline must be in the future")
	ErrChallengeeZero      = reject(KindValidation, "Challengee cannot be the zero address")
	ErrSelfChallenge       = reject(KindValidation, "Challenger and challengee cannot be the same")
	ErrTokenNotSupported   = reject(KindValidation, "Token is not supported")
	ErrInvalidAddress      = reject(KindValidation, "Invalid address")
	ErrMediatorIsParty     = reject(KindValidation, "Mediator cannot be a party to the bet")
	ErrInsufficientBalance = reject(KindValidation, "Insufficient balance")
	ErrFeesTooHigh         = reject(KindValidation, "Fees must be less than or equal to 100%")
	ErrEmptyProof          = reject(KindValidation, "Proof cannot be empty")
	ErrInvalidOutcome      = reject(KindValidation, "Invalid mediation outcome")
	ErrOnlyChallenger      = reject(KindAuthorization, "Only challenger can perform this action")
	ErrOnlyChallengee      = reject(KindAuthorization, "Only challengee can perform this action")
	ErrOnlyMediator        = reject(KindAuthorization, "Only mediator can perform this action")
	ErrOnlyAdmin           = reject(KindAuthorization, "Only admin can perform this action")
	ErrBetClosed           = reject(KindState, "Bet is closed")
	ErrInvalidStatus       = reject(KindState, "Bet is in invalid status")
	ErrNotClaimable        = reject(KindState, "Bet is not in a claimable status")
	ErrBetNotFound         = reject(KindNotFound, "Bet not found")
)

// KindOf returns the rejection kind of err, or "" for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsBenign reports whether err is an expected contention outcome, such as
// losing a claim race, rather than a fault.
func IsBenign(err error) bool {
	return KindOf(err) == KindState
}

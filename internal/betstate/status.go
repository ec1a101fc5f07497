// Package betstate holds the rules that decide what state a wager is in and
// who may move it forward. It depends on nothing but the standard library so
// the ledger-owning services and the read-only mirror link the same code.
package betstate

import "fmt"

// Status is the lifecycle position of a wager. The numeric order matches the
// ledger encoding and must not be reshuffled.
type Status uint8

const (
	StatusOpen Status = iota
	StatusCancelled
	StatusAccepted
	StatusRejected
	StatusProofSubmitted
	StatusProofDisputed
	StatusCompletedByChallengee
	StatusCompletedByChallenger
	StatusForfeitedByChallengee
	StatusBetNotAcceptedInTime
	StatusProofNotSubmittedInTime
	StatusProofNotAcceptedInTime
	StatusBetNotMediatedInTime
	StatusDraw
)

var statusNames = [...]string{
	StatusOpen:                    "OPEN",
	StatusCancelled:               "CANCELLED",
	StatusAccepted:                "ACCEPTED",
	StatusRejected:                "REJECTED",
	StatusProofSubmitted:          "PROOF_SUBMITTED",
	StatusProofDisputed:           "PROOF_DISPUTED",
	StatusCompletedByChallengee:   "COMPLETED_BY_CHALLENGEE",
	StatusCompletedByChallenger:   "COMPLETED_BY_CHALLENGER",
	StatusForfeitedByChallengee:   "FORFEITED_BY_CHALLENGEE",
	StatusBetNotAcceptedInTime:    "BET_NOT_ACCEPTED_IN_TIME",
	StatusProofNotSubmittedInTime: "PROOF_NOT_SUBMITTED_IN_TIME",
	StatusProofNotAcceptedInTime:  "PROOF_NOT_ACCEPTED_IN_TIME",
	StatusBetNotMediatedInTime:    "BET_NOT_MEDIATED_IN_TIME",
	StatusDraw:                    "DRAW",
}

// AllStatuses lists every status in ledger order.
func AllStatuses() []Status {
	out := make([]Status, len(statusNames))
	for i := range statusNames {
		out[i] = Status(i)
	}
	return out
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return int(s) < len(statusNames)
}

// ParseStatus maps the upper-case name back to a Status.
func ParseStatus(name string) (Status, error) {
	for i, n := range statusNames {
		if n == name {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("unknown bet status %q", name)
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown bet status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// IsTimeout reports whether s is one of the *_NOT_*_IN_TIME statuses that
// only exist as derived values until someone claims them.
func (s Status) IsTimeout() bool {
	switch s {
	case StatusBetNotAcceptedInTime, StatusProofNotSubmittedInTime,
		StatusProofNotAcceptedInTime, StatusBetNotMediatedInTime:
		return true
	}
	return false
}

// IsLive reports whether s is a phase that still has a running deadline.
func (s Status) IsLive() bool {
	switch s {
	case StatusOpen, StatusAccepted, StatusProofSubmitted, StatusProofDisputed:
		return true
	}
	return false
}

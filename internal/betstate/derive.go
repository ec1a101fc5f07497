package betstate

import (
	"fmt"
	"time"
)

// Snapshot is the minimal set of stored facts the derivation needs. A zero
// deadline means "not set yet".
type Snapshot struct {
	StoredStatus            Status
	Closed                  bool
	HasMediator             bool
	AcceptanceDeadline      time.Time
	ProofSubmissionDeadline time.Time
	ProofAcceptanceDeadline time.Time
	MediationDeadline       time.Time
}

// Effective computes the status of a wager at now from stored facts only.
// Time passing can only move a live phase to its matching timeout status.
func Effective(s Snapshot, now time.Time) Status {
	st, _ := derive(s, now)
	return st
}

// State is the derived view used for countdowns.
type State struct {
	Status    Status        `json:"status"`
	Deadline  time.Time     `json:"deadline"`
	Remaining time.Duration `json:"remaining"`
}

// Current returns the effective status together with the deadline governing
// the live phase. Deadline is zero once the wager is closed, expired or has no
// running clock.
func Current(s Snapshot, now time.Time) State {
	st, deadline := derive(s, now)
	if deadline.IsZero() {
		return State{Status: st}
	}
	remaining := deadline.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return State{Status: st, Deadline: deadline, Remaining: remaining}
}

func derive(s Snapshot, now time.Time) (Status, time.Time) {
	if s.Closed {
		return s.StoredStatus, time.Time{}
	}

	switch s.StoredStatus {
	case StatusOpen:
		return phase(now, s.AcceptanceDeadline, StatusOpen, StatusBetNotAcceptedInTime)
	case StatusAccepted:
		return phase(now, s.ProofSubmissionDeadline, StatusAccepted, StatusProofNotSubmittedInTime)
	case StatusProofSubmitted:
		return phase(now, s.ProofAcceptanceDeadline, StatusProofSubmitted, StatusProofNotAcceptedInTime)
	case StatusProofDisputed:
		if s.HasMediator && !s.MediationDeadline.IsZero() {
			return phase(now, s.MediationDeadline, StatusProofDisputed, StatusBetNotMediatedInTime)
		}
		return StatusProofDisputed, time.Time{}
	}
	return s.StoredStatus, time.Time{}
}

func phase(now, deadline time.Time, live, expired Status) (Status, time.Time) {
	if now.After(deadline) {
		return expired, time.Time{}
	}
	return live, deadline
}

// UnmediatedDispute reports the open PROOF_DISPUTED-without-mediator shape.
// Disputes on unmediated wagers close immediately, so seeing one open means
// the stored facts are inconsistent.
func UnmediatedDispute(s Snapshot) bool {
	return !s.Closed && s.StoredStatus == StatusProofDisputed && (!s.HasMediator || s.MediationDeadline.IsZero())
}

// FormatRemaining renders a countdown the way the app shows it.
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "Expired"
	}
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	minutes := int(d % time.Hour / time.Minute)

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm", minutes)
	default:
		return "< 1m"
	}
}

package domain

import "time"

// ResolutionOutcome enumerates terminal dispositions.
type ResolutionOutcome string

const (
	OutcomeResolved          ResolutionOutcome = "RESOLVED"
	OutcomePartiallyResolved ResolutionOutcome = "PARTIALLY_RESOLVED"
	OutcomeUnresolved        ResolutionOutcome = "UNRESOLVED"
	OutcomeDuplicate         ResolutionOutcome = "DUPLICATE"
	OutcomeInvalid           ResolutionOutcome = "INVALID"
	OutcomeNoActionNeeded    ResolutionOutcome = "NO_ACTION_NEEDED"
)

// Valid reports whether the outcome is a known disposition.
func (o ResolutionOutcome) Valid() bool {
	switch o {
	case OutcomeResolved, OutcomePartiallyResolved, OutcomeUnresolved,
		OutcomeDuplicate, OutcomeInvalid, OutcomeNoActionNeeded:
		return true
	}
	return false
}

// SystemResolver is the sentinel resolver id used when an escalation is
// closed without a handoff (auto-resolved or duplicate-detected cases).
const SystemResolver = "system"

// Resolution is the terminal outcome of an escalation. Outcome holds the
// original decision and is never overwritten; corrections are appended as
// amendments so the original decision stays reconstructable.
type Resolution struct {
	ID               string
	EscalationID     string
	TenantID         string
	Outcome          ResolutionOutcome
	Method           string
	Summary          string
	Notes            string
	ResolvedBy       string
	ResolvedAt       time.Time
	TimeToResolution time.Duration
	Amendments       []Amendment
}

// FinalOutcome returns the outcome after applying the amendment history.
func (r *Resolution) FinalOutcome() ResolutionOutcome {
	if len(r.Amendments) == 0 {
		return r.Outcome
	}
	return r.Amendments[len(r.Amendments)-1].NewOutcome
}

// Amendment is an audited correction to a resolution's outcome.
type Amendment struct {
	ID                 string
	ResolutionID       string
	AmendedAt          time.Time
	AmendedBy          string
	PreviousOutcome    ResolutionOutcome
	NewOutcome         ResolutionOutcome
	Reason             string
	SupervisorOverride bool
}

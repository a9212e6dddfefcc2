package domain

import "time"

// Handoff records the assignment of an escalation to an operator. An
// escalation has at most one active handoff; superseded handoffs are
// retained for audit and metrics.
type Handoff struct {
	ID            string
	EscalationID  string
	OperatorID    string
	AssignedAt    time.Time
	ReleasedAt    *time.Time
	ReleaseReason *string
}

// Active reports whether the handoff still holds the escalation.
func (h *Handoff) Active() bool {
	return h.ReleasedAt == nil
}

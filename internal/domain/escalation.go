package domain

import "time"

// EscalationStatus enumerates lifecycle states for escalations.
type EscalationStatus string

const (
	EscalationStatusPending  EscalationStatus = "PENDING"
	EscalationStatusAssigned EscalationStatus = "ASSIGNED"
	EscalationStatusResolved EscalationStatus = "RESOLVED"
	EscalationStatusExpired  EscalationStatus = "EXPIRED"
)

// Priority enumerates escalation urgency tiers.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Rank maps a priority to its ordering weight; higher means more urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether the priority is a known tier.
func (p Priority) Valid() bool {
	return p.Rank() > 0
}

// MaxPriority returns the more urgent of two priorities.
func MaxPriority(a, b Priority) Priority {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Escalation is the aggregate for a conversation flagged as requiring
// human attention.
type Escalation struct {
	ID         string
	TenantID   string
	ThreadRef  string
	Priority   Priority
	Triggers   []Trigger
	Status     EscalationStatus
	AssignedTo *string
	AssignedAt *time.Time
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Assignable reports whether the escalation can currently be handed to
// an operator. Only unassigned pending escalations qualify.
func (e *Escalation) Assignable() bool {
	return e.Status == EscalationStatusPending && e.AssignedTo == nil
}

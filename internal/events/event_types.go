package events

import (
	"time"

	"github.com/spec-kit/escalation-engine/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventEscalationCreated  EventType = "escalation_created"
	EventEscalationAssigned EventType = "escalation_assigned"
	EventEscalationReleased EventType = "escalation_released"
	EventPriorityEscalated  EventType = "priority_escalated"
	EventEscalationResolved EventType = "escalation_resolved"
	EventResolutionAmended  EventType = "resolution_amended"
	EventSLABreach          EventType = "sla_breach"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID           string      `json:"id"`
	Type         EventType   `json:"type"`
	EscalationID string      `json:"escalation_id"`
	TenantID     string      `json:"tenant_id"`
	Timestamp    time.Time   `json:"timestamp"`
	Payload      interface{} `json:"payload"`
}

// EscalationCreatedPayload payload.
type EscalationCreatedPayload struct {
	ThreadRef  string                   `json:"thread_ref"`
	Priority   domain.Priority          `json:"priority"`
	Categories []domain.TriggerCategory `json:"categories"`
}

// EscalationAssignedPayload payload.
type EscalationAssignedPayload struct {
	OperatorID string          `json:"operator_id"`
	Priority   domain.Priority `json:"priority"`
}

// EscalationReleasedPayload payload.
type EscalationReleasedPayload struct {
	OperatorID string `json:"operator_id"`
	Reason     string `json:"reason,omitempty"`
}

// PriorityEscalatedPayload payload.
type PriorityEscalatedPayload struct {
	OldPriority domain.Priority `json:"old_priority"`
	NewPriority domain.Priority `json:"new_priority"`
	Reason      string          `json:"reason,omitempty"`
}

// EscalationResolvedPayload payload.
type EscalationResolvedPayload struct {
	ResolutionID string                   `json:"resolution_id"`
	Outcome      domain.ResolutionOutcome `json:"outcome"`
	ResolvedBy   string                   `json:"resolved_by"`
}

// ResolutionAmendedPayload payload.
type ResolutionAmendedPayload struct {
	ResolutionID       string                   `json:"resolution_id"`
	PreviousOutcome    domain.ResolutionOutcome `json:"previous_outcome"`
	NewOutcome         domain.ResolutionOutcome `json:"new_outcome"`
	SupervisorOverride bool                     `json:"supervisor_override"`
}

// SLABreachPayload payload.
type SLABreachPayload struct {
	Priority domain.Priority `json:"priority"`
	Age      time.Duration   `json:"age"`
	Target   time.Duration   `json:"target"`
}

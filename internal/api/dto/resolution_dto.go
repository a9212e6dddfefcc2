package dto

import (
	"time"

	"github.com/spec-kit/escalation-engine/internal/domain"
)

// ResolveRequest payload.
type ResolveRequest struct {
	Outcome    domain.ResolutionOutcome `json:"outcome"`
	Method     string                   `json:"method"`
	Summary    string                   `json:"summary"`
	Notes      string                   `json:"notes"`
	ResolvedBy *string                  `json:"resolved_by"`
}

// AmendRequest payload.
type AmendRequest struct {
	NewOutcome         domain.ResolutionOutcome `json:"new_outcome"`
	Reason             string                   `json:"reason"`
	SupervisorOverride bool                     `json:"supervisor_override"`
}

// FeedbackRequest payload.
type FeedbackRequest struct {
	Source         domain.FeedbackSource `json:"source"`
	Rating         *int                  `json:"rating"`
	SelfAssessment *string               `json:"self_assessment"`
	Method         string                `json:"method"`
}

// AmendmentResponse is one entry in a resolution's correction history.
type AmendmentResponse struct {
	ID                 string                   `json:"id"`
	AmendedAt          time.Time                `json:"amended_at"`
	AmendedBy          string                   `json:"amended_by"`
	PreviousOutcome    domain.ResolutionOutcome `json:"previous_outcome"`
	NewOutcome         domain.ResolutionOutcome `json:"new_outcome"`
	Reason             string                   `json:"reason"`
	SupervisorOverride bool                     `json:"supervisor_override"`
}

// ResolutionResponse payload.
type ResolutionResponse struct {
	ID                 string                   `json:"id"`
	EscalationID       string                   `json:"escalation_id"`
	TenantID           string                   `json:"tenant_id"`
	Outcome            domain.ResolutionOutcome `json:"outcome"`
	FinalOutcome       domain.ResolutionOutcome `json:"final_outcome"`
	Method             string                   `json:"method"`
	Summary            string                   `json:"summary"`
	Notes              string                   `json:"notes,omitempty"`
	ResolvedBy         string                   `json:"resolved_by"`
	ResolvedAt         time.Time                `json:"resolved_at"`
	TimeToResolutionMs int64                    `json:"time_to_resolution_ms"`
	Amendments         []AmendmentResponse      `json:"amendments"`
}

// FeedbackResponse payload.
type FeedbackResponse struct {
	ID             string                `json:"id"`
	ResolutionID   string                `json:"resolution_id"`
	Source         domain.FeedbackSource `json:"source"`
	Rating         *int                  `json:"rating,omitempty"`
	SelfAssessment *string               `json:"self_assessment,omitempty"`
	Method         string                `json:"method,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
}

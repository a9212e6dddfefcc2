package dto

import (
	"time"

	"github.com/spec-kit/escalation-engine/internal/domain"
)

// MessagePayload is one conversation message submitted for evaluation.
type MessagePayload struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ParticipantPayload carries classifier outputs about the participant.
type ParticipantPayload struct {
	VIP              bool     `json:"vip"`
	FollowerCount    int      `json:"follower_count"`
	PriorEscalations int      `json:"prior_escalations"`
	RecentComplaints int      `json:"recent_complaints"`
	SentimentScore   *float64 `json:"sentiment_score"`
}

// AdmitRequest payload.
type AdmitRequest struct {
	TenantID    string              `json:"tenant_id"`
	ThreadRef   string              `json:"thread_ref"`
	Messages    []MessagePayload    `json:"messages"`
	Participant *ParticipantPayload `json:"participant"`
}

// TriggerResponse is one matched trigger on an escalation.
type TriggerResponse struct {
	Category       domain.TriggerCategory `json:"category"`
	MessageID      string                 `json:"message_id"`
	MatchedKeyword *string                `json:"matched_keyword,omitempty"`
	Confidence     *float64               `json:"confidence,omitempty"`
}

// EscalationResponse payload.
type EscalationResponse struct {
	ID         string                  `json:"id"`
	TenantID   string                  `json:"tenant_id"`
	ThreadRef  string                  `json:"thread_ref"`
	Priority   domain.Priority         `json:"priority"`
	Status     domain.EscalationStatus `json:"status"`
	Triggers   []TriggerResponse       `json:"triggers"`
	AssignedTo *string                 `json:"assigned_to,omitempty"`
	AssignedAt *time.Time              `json:"assigned_at,omitempty"`
	CreatedAt  time.Time               `json:"created_at"`
	UpdatedAt  time.Time               `json:"updated_at"`
}

// AssignRequest payload.
type AssignRequest struct {
	OperatorID string `json:"operator_id"`
}

// ReleaseRequest payload.
type ReleaseRequest struct {
	Reason string `json:"reason"`
}

// EscalatePriorityRequest payload.
type EscalatePriorityRequest struct {
	Priority domain.Priority `json:"priority"`
	Reason   string          `json:"reason"`
}

// HandoffResponse is one assignment interval on an escalation.
type HandoffResponse struct {
	ID            string     `json:"id"`
	EscalationID  string     `json:"escalation_id"`
	OperatorID    string     `json:"operator_id"`
	AssignedAt    time.Time  `json:"assigned_at"`
	ReleasedAt    *time.Time `json:"released_at,omitempty"`
	ReleaseReason *string    `json:"release_reason,omitempty"`
}

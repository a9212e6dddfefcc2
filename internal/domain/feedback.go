package domain

import "time"

// FeedbackSource identifies who supplied post-resolution feedback.
type FeedbackSource string

const (
	FeedbackSourceCustomer   FeedbackSource = "CUSTOMER"
	FeedbackSourceOperator   FeedbackSource = "OPERATOR"
	FeedbackSourceSupervisor FeedbackSource = "SUPERVISOR"
	FeedbackSourceAutomated  FeedbackSource = "AUTOMATED"
)

// Valid reports whether the source is a known origin.
func (s FeedbackSource) Valid() bool {
	switch s {
	case FeedbackSourceCustomer, FeedbackSourceOperator,
		FeedbackSourceSupervisor, FeedbackSourceAutomated:
		return true
	}
	return false
}

// Feedback is an optional post-resolution signal attached to a resolution.
type Feedback struct {
	ID             string
	ResolutionID   string
	TenantID       string
	Source         FeedbackSource
	Rating         *int
	SelfAssessment *string
	Method         string
	CreatedAt      time.Time
}

package domain

// TriggerCategory classifies the evidence behind an escalation.
type TriggerCategory string

const (
	CategoryLegal          TriggerCategory = "LEGAL"
	CategorySafety         TriggerCategory = "SAFETY"
	CategoryDiscrimination TriggerCategory = "DISCRIMINATION"
	CategoryMediaPR        TriggerCategory = "MEDIA_PR"
	CategoryVIP            TriggerCategory = "VIP"
	CategoryRepeatIssue    TriggerCategory = "REPEAT_ISSUE"
	CategorySentiment      TriggerCategory = "SENTIMENT"
	CategoryFinancial      TriggerCategory = "FINANCIAL"
	CategoryChurn          TriggerCategory = "CHURN"
	CategoryCustom         TriggerCategory = "CUSTOM"
)

// DefaultPriorityFor maps a trigger category to its default priority tier.
func DefaultPriorityFor(category TriggerCategory) Priority {
	switch category {
	case CategoryLegal, CategorySafety, CategoryDiscrimination:
		return PriorityUrgent
	case CategoryMediaPR, CategoryVIP, CategoryRepeatIssue:
		return PriorityHigh
	case CategorySentiment, CategoryFinancial, CategoryChurn:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Trigger is an immutable evidence record owned by the escalation that
// produced it.
type Trigger struct {
	Category       TriggerCategory
	MessageID      string
	MatchedKeyword *string
	Confidence     *float64
}

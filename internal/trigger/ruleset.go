package trigger

import "github.com/spec-kit/escalation-engine/internal/domain"

// Rule maps a tenant-supplied keyword to a category and priority.
type Rule struct {
	Keyword  string
	Category domain.TriggerCategory
	Priority domain.Priority
}

// RuleSet is the explicit, versioned evaluation configuration for one
// tenant. Disabling a category is a property of this value, not a hidden
// side effect, so tenants can be evaluated in parallel without
// interference.
type RuleSet struct {
	Version                   int
	DisabledCategories        map[domain.TriggerCategory]bool
	CustomRules               []Rule
	VIPFollowerThreshold      int
	RepeatEscalationThreshold int
	RecentComplaintThreshold  int
	SentimentThreshold        float64
}

// Enabled reports whether a category participates in evaluation.
func (rs RuleSet) Enabled(category domain.TriggerCategory) bool {
	return !rs.DisabledCategories[category]
}

// WithDisabled returns a copy of the rule set with the given categories
// switched off and the version bumped.
func (rs RuleSet) WithDisabled(categories ...domain.TriggerCategory) RuleSet {
	disabled := make(map[domain.TriggerCategory]bool, len(rs.DisabledCategories)+len(categories))
	for cat, off := range rs.DisabledCategories {
		disabled[cat] = off
	}
	for _, cat := range categories {
		disabled[cat] = true
	}
	out := rs
	out.DisabledCategories = disabled
	out.Version = rs.Version + 1
	return out
}

// DefaultRuleSet returns the baseline configuration applied when a tenant
// has no overrides.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		Version:                   1,
		VIPFollowerThreshold:      10000,
		RepeatEscalationThreshold: 2,
		RecentComplaintThreshold:  3,
		SentimentThreshold:        -0.5,
		CustomRules: []Rule{
			{Keyword: "speak to a manager", Category: domain.CategoryCustom, Priority: domain.PriorityHigh},
			{Keyword: "talk to a manager", Category: domain.CategoryCustom, Priority: domain.PriorityHigh},
			{Keyword: "speak to your manager", Category: domain.CategoryCustom, Priority: domain.PriorityHigh},
			{Keyword: "speak to a supervisor", Category: domain.CategoryCustom, Priority: domain.PriorityHigh},
			{Keyword: "escalate this", Category: domain.CategoryCustom, Priority: domain.PriorityHigh},
		},
	}
}

// builtinOrder fixes the scan order so evaluation output is
// deterministic for identical input.
var builtinOrder = []domain.TriggerCategory{
	domain.CategoryLegal,
	domain.CategorySafety,
	domain.CategoryDiscrimination,
	domain.CategoryMediaPR,
}

// builtinSignals are the category specific keyword sets scanned against
// message text. Matching is case insensitive substring.
var builtinSignals = map[domain.TriggerCategory][]string{
	domain.CategoryLegal: {
		"lawyer", "attorney", "lawsuit", "legal action", "sue you",
		"suing", "small claims", "court", "litigation",
	},
	domain.CategorySafety: {
		"unsafe", "injury", "injured", "dangerous", "hazard",
		"caught fire", "electric shock", "choking",
	},
	domain.CategoryDiscrimination: {
		"discriminat", "racist", "racism", "sexist", "sexism",
		"harassment", "harassed",
	},
	domain.CategoryMediaPR: {
		"journalist", "reporter", "the press", "news story",
		"going viral", "media inquiry", "front page",
	},
}

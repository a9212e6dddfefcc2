package trigger

import (
	"strings"

	"github.com/spec-kit/escalation-engine/internal/domain"
)

// Message is one piece of conversation content supplied by the ingestion
// pipeline.
type Message struct {
	ID   string
	Text string
}

// ParticipantContext carries classifier outputs about the conversation
// participant. The evaluator never fetches these itself.
type ParticipantContext struct {
	VIP              bool
	FollowerCount    int
	PriorEscalations int
	RecentComplaints int
	SentimentScore   *float64
}

// Evaluation is the evaluator output: the matched evidence and the
// overall priority across it.
type Evaluation struct {
	Triggers []domain.Trigger
	Priority domain.Priority
}

// Matched reports whether anything fired. An empty trigger list means no
// escalation is needed; it is not an error.
func (e Evaluation) Matched() bool {
	return len(e.Triggers) > 0
}

// Evaluate scans conversation content and participant context against the
// rule set. Pure and side effect free: identical inputs always yield
// identical output. Overall priority is the maximum across matched
// triggers, never an average.
func Evaluate(messages []Message, pctx *ParticipantContext, rules RuleSet) Evaluation {
	var triggers []domain.Trigger
	priority := domain.PriorityLow

	for _, msg := range messages {
		text := strings.ToLower(msg.Text)
		for _, category := range builtinOrder {
			if !rules.Enabled(category) {
				continue
			}
			for _, signal := range builtinSignals[category] {
				if strings.Contains(text, signal) {
					triggers = append(triggers, keywordTrigger(category, msg.ID, signal))
					priority = domain.MaxPriority(priority, domain.DefaultPriorityFor(category))
					break
				}
			}
		}
		for _, rule := range rules.CustomRules {
			if rule.Keyword == "" || !rules.Enabled(rule.Category) {
				continue
			}
			if strings.Contains(text, strings.ToLower(rule.Keyword)) {
				triggers = append(triggers, keywordTrigger(rule.Category, msg.ID, rule.Keyword))
				rulePriority := rule.Priority
				if !rulePriority.Valid() {
					rulePriority = domain.DefaultPriorityFor(rule.Category)
				}
				priority = domain.MaxPriority(priority, rulePriority)
			}
		}
	}

	if pctx != nil {
		contextTriggers, contextPriority := evaluateParticipant(pctx, rules)
		triggers = append(triggers, contextTriggers...)
		priority = domain.MaxPriority(priority, contextPriority)
	}

	if len(triggers) == 0 {
		return Evaluation{Priority: domain.PriorityLow}
	}
	return Evaluation{Triggers: triggers, Priority: priority}
}

func evaluateParticipant(pctx *ParticipantContext, rules RuleSet) ([]domain.Trigger, domain.Priority) {
	var triggers []domain.Trigger
	priority := domain.PriorityLow

	if rules.Enabled(domain.CategoryVIP) {
		if pctx.VIP {
			triggers = append(triggers, contextTrigger(domain.CategoryVIP, "vip_flag"))
			priority = domain.MaxPriority(priority, domain.DefaultPriorityFor(domain.CategoryVIP))
		} else if rules.VIPFollowerThreshold > 0 && pctx.FollowerCount >= rules.VIPFollowerThreshold {
			triggers = append(triggers, contextTrigger(domain.CategoryVIP, "follower_count"))
			priority = domain.MaxPriority(priority, domain.DefaultPriorityFor(domain.CategoryVIP))
		}
	}

	if rules.Enabled(domain.CategoryRepeatIssue) {
		repeat := rules.RepeatEscalationThreshold > 0 && pctx.PriorEscalations >= rules.RepeatEscalationThreshold
		complaints := rules.RecentComplaintThreshold > 0 && pctx.RecentComplaints >= rules.RecentComplaintThreshold
		if repeat || complaints {
			signal := "prior_escalations"
			if !repeat {
				signal = "recent_complaints"
			}
			triggers = append(triggers, contextTrigger(domain.CategoryRepeatIssue, signal))
			priority = domain.MaxPriority(priority, domain.DefaultPriorityFor(domain.CategoryRepeatIssue))
		}
	}

	if rules.Enabled(domain.CategorySentiment) && pctx.SentimentScore != nil && *pctx.SentimentScore <= rules.SentimentThreshold {
		confidence := *pctx.SentimentScore
		if confidence < 0 {
			confidence = -confidence
		}
		trig := contextTrigger(domain.CategorySentiment, "thread_sentiment")
		trig.Confidence = &confidence
		triggers = append(triggers, trig)
		priority = domain.MaxPriority(priority, domain.DefaultPriorityFor(domain.CategorySentiment))
	}

	return triggers, priority
}

func keywordTrigger(category domain.TriggerCategory, messageID, keyword string) domain.Trigger {
	kw := keyword
	return domain.Trigger{Category: category, MessageID: messageID, MatchedKeyword: &kw}
}

func contextTrigger(category domain.TriggerCategory, signal string) domain.Trigger {
	sig := signal
	return domain.Trigger{Category: category, MatchedKeyword: &sig}
}

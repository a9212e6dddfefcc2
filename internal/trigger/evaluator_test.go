package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/escalation-engine/internal/domain"
)

func TestEvaluate_KeywordCategories(t *testing.T) {
	cases := []struct {
		name     string
		text     string
		category domain.TriggerCategory
		priority domain.Priority
	}{
		{"legal", "I will contact my lawyer about this", domain.CategoryLegal, domain.PriorityUrgent},
		{"safety", "the charger caught fire last night", domain.CategorySafety, domain.PriorityUrgent},
		{"discrimination", "your agent was racist to me", domain.CategoryDiscrimination, domain.PriorityUrgent},
		{"media", "I am a journalist writing a news story", domain.CategoryMediaPR, domain.PriorityHigh},
		{"manager request", "let me speak to a manager now", domain.CategoryCustom, domain.PriorityHigh},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := Evaluate([]Message{{ID: "m1", Text: tc.text}}, nil, DefaultRuleSet())
			require.True(t, result.Matched())
			assert.Equal(t, tc.priority, result.Priority)
			found := false
			for _, trig := range result.Triggers {
				if trig.Category == tc.category {
					found = true
					assert.Equal(t, "m1", trig.MessageID)
					require.NotNil(t, trig.MatchedKeyword)
				}
			}
			assert.True(t, found, "expected a %s trigger", tc.category)
		})
	}
}

func TestEvaluate_NoMatchIsNotAnError(t *testing.T) {
	result := Evaluate([]Message{{ID: "m1", Text: "thanks, everything works great"}}, nil, DefaultRuleSet())

	assert.False(t, result.Matched())
	assert.Empty(t, result.Triggers)
}

func TestEvaluate_PriorityIsMaxNotAverage(t *testing.T) {
	messages := []Message{
		{ID: "m1", Text: "I am a reporter"},
		{ID: "m2", Text: "and I will start a lawsuit"},
	}

	result := Evaluate(messages, nil, DefaultRuleSet())

	require.True(t, result.Matched())
	assert.Equal(t, domain.PriorityUrgent, result.Priority)
	assert.Len(t, result.Triggers, 2)
}

func TestEvaluate_DisabledCategoryIsSkipped(t *testing.T) {
	rules := DefaultRuleSet().WithDisabled(domain.CategoryLegal)

	result := Evaluate([]Message{{ID: "m1", Text: "talk to my attorney"}}, nil, rules)

	assert.False(t, result.Matched())
	assert.Equal(t, 2, rules.Version)
}

func TestEvaluate_TenantCustomRules(t *testing.T) {
	rules := DefaultRuleSet()
	rules.CustomRules = append(rules.CustomRules, Rule{
		Keyword:  "refund denied",
		Category: domain.CategoryFinancial,
		Priority: domain.PriorityHigh,
	})

	result := Evaluate([]Message{{ID: "m1", Text: "my refund denied twice"}}, nil, rules)

	require.True(t, result.Matched())
	assert.Equal(t, domain.PriorityHigh, result.Priority)
	assert.Equal(t, domain.CategoryFinancial, result.Triggers[0].Category)
}

func TestEvaluate_ParticipantContext(t *testing.T) {
	sentiment := -0.8

	t.Run("vip flag", func(t *testing.T) {
		result := Evaluate(nil, &ParticipantContext{VIP: true}, DefaultRuleSet())
		require.True(t, result.Matched())
		assert.Equal(t, domain.PriorityHigh, result.Priority)
		assert.Equal(t, domain.CategoryVIP, result.Triggers[0].Category)
	})

	t.Run("follower count", func(t *testing.T) {
		result := Evaluate(nil, &ParticipantContext{FollowerCount: 50000}, DefaultRuleSet())
		require.True(t, result.Matched())
		assert.Equal(t, domain.CategoryVIP, result.Triggers[0].Category)
	})

	t.Run("repeat escalations", func(t *testing.T) {
		result := Evaluate(nil, &ParticipantContext{PriorEscalations: 3}, DefaultRuleSet())
		require.True(t, result.Matched())
		assert.Equal(t, domain.CategoryRepeatIssue, result.Triggers[0].Category)
		assert.Equal(t, domain.PriorityHigh, result.Priority)
	})

	t.Run("negative sentiment", func(t *testing.T) {
		result := Evaluate(nil, &ParticipantContext{SentimentScore: &sentiment}, DefaultRuleSet())
		require.True(t, result.Matched())
		assert.Equal(t, domain.CategorySentiment, result.Triggers[0].Category)
		assert.Equal(t, domain.PriorityMedium, result.Priority)
		require.NotNil(t, result.Triggers[0].Confidence)
		assert.InDelta(t, 0.8, *result.Triggers[0].Confidence, 0.0001)
	})

	t.Run("mild sentiment below threshold", func(t *testing.T) {
		mild := -0.2
		result := Evaluate(nil, &ParticipantContext{SentimentScore: &mild}, DefaultRuleSet())
		assert.False(t, result.Matched())
	})
}

func TestEvaluate_Deterministic(t *testing.T) {
	messages := []Message{
		{ID: "m1", Text: "unsafe product, calling my lawyer, I'm a reporter"},
	}
	first := Evaluate(messages, nil, DefaultRuleSet())

	for i := 0; i < 20; i++ {
		again := Evaluate(messages, nil, DefaultRuleSet())
		assert.Equal(t, first, again)
	}
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/escalation-engine/internal/domain"
	"github.com/spec-kit/escalation-engine/internal/queue"
	apperrors "github.com/spec-kit/escalation-engine/pkg/util/errorutil"
)

func TestRecordResolution_TTRFromCreation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedEscalation(t, "esc-1", "t1", domain.PriorityHigh)
	env.seedOperator(t, "op-1")

	// assignment five minutes in must not reset the TTR baseline
	env.clk.Advance(5 * time.Minute)
	_, err := env.handoffs.Assign(ctx, "esc-1", "op-1")
	require.NoError(t, err)

	env.clk.Advance(15 * time.Minute)
	resolution, err := env.resolutions.RecordResolution(ctx, "esc-1", ResolutionInput{
		Outcome: domain.OutcomeResolved,
		Method:  "manual",
		Summary: "refund issued",
	})
	require.NoError(t, err)

	assert.Equal(t, 20*time.Minute, resolution.TimeToResolution)
	assert.EqualValues(t, 1200000, resolution.TimeToResolution.Milliseconds())
	assert.Equal(t, "op-1", resolution.ResolvedBy)

	escalation, err := env.store.GetByID(ctx, "esc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.EscalationStatusResolved, escalation.Status)

	handoff, err := env.store.ListByEscalation(ctx, "esc-1")
	require.NoError(t, err)
	require.Len(t, handoff, 1)
	assert.NotNil(t, handoff[0].ReleasedAt)
}

func TestRecordResolution_SystemSentinelWithoutHandoff(t *testing.T) {
	env := newTestEnv(t)
	env.seedEscalation(t, "esc-1", "t1", domain.PriorityLow)

	resolution, err := env.resolutions.RecordResolution(context.Background(), "esc-1", ResolutionInput{
		Outcome: domain.OutcomeDuplicate,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SystemResolver, resolution.ResolvedBy)
	assert.Nil(t, env.queue.PeekNext(queue.Filter{}))
}

func TestRecordResolution_ExplicitResolverOverride(t *testing.T) {
	env := newTestEnv(t)
	env.seedEscalation(t, "esc-1", "t1", domain.PriorityLow)

	resolver := "automation-bot"
	resolution, err := env.resolutions.RecordResolution(context.Background(), "esc-1", ResolutionInput{
		Outcome:    domain.OutcomeNoActionNeeded,
		ResolvedBy: &resolver,
	})
	require.NoError(t, err)
	assert.Equal(t, "automation-bot", resolution.ResolvedBy)
}

func TestRecordResolution_AlreadyResolved(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedEscalation(t, "esc-1", "t1", domain.PriorityLow)

	_, err := env.resolutions.RecordResolution(ctx, "esc-1", ResolutionInput{Outcome: domain.OutcomeResolved})
	require.NoError(t, err)

	_, err = env.resolutions.RecordResolution(ctx, "esc-1", ResolutionInput{Outcome: domain.OutcomeUnresolved})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "CONFLICT"))
}

func TestRecordResolution_UnknownOutcome(t *testing.T) {
	env := newTestEnv(t)
	env.seedEscalation(t, "esc-1", "t1", domain.PriorityLow)

	_, err := env.resolutions.RecordResolution(context.Background(), "esc-1", ResolutionInput{Outcome: "SHRUG"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
}

func TestAmendResolution_WithinWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedEscalation(t, "esc-1", "t1", domain.PriorityLow)

	resolution, err := env.resolutions.RecordResolution(ctx, "esc-1", ResolutionInput{Outcome: domain.OutcomeResolved})
	require.NoError(t, err)

	env.clk.Advance(3 * time.Hour)
	amended, err := env.resolutions.AmendResolution(ctx, resolution.ID, AmendmentInput{
		NewOutcome: domain.OutcomeUnresolved,
		Reason:     "customer reopened",
		AmendedBy:  "op-1",
	})
	require.NoError(t, err)

	// the original outcome is preserved; corrections are layered on top
	assert.Equal(t, domain.OutcomeResolved, amended.Outcome)
	assert.Equal(t, domain.OutcomeUnresolved, amended.FinalOutcome())
	require.Len(t, amended.Amendments, 1)
	assert.Equal(t, domain.OutcomeResolved, amended.Amendments[0].PreviousOutcome)
}

func TestAmendResolution_WindowExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedEscalation(t, "esc-1", "t1", domain.PriorityLow)

	resolution, err := env.resolutions.RecordResolution(ctx, "esc-1", ResolutionInput{Outcome: domain.OutcomeResolved})
	require.NoError(t, err)

	env.clk.Advance(5 * time.Hour)
	_, err = env.resolutions.AmendResolution(ctx, resolution.ID, AmendmentInput{
		NewOutcome: domain.OutcomePartiallyResolved,
		Reason:     "late correction",
		AmendedBy:  "op-1",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "AMENDMENT_WINDOW_EXPIRED"))

	// same request with supervisor override goes through
	amended, err := env.resolutions.AmendResolution(ctx, resolution.ID, AmendmentInput{
		NewOutcome:         domain.OutcomePartiallyResolved,
		Reason:             "late correction",
		AmendedBy:          "sup-1",
		SupervisorOverride: true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomePartiallyResolved, amended.FinalOutcome())
	assert.True(t, amended.Amendments[0].SupervisorOverride)
}

func TestAmendResolution_AppendOnlyChain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedEscalation(t, "esc-1", "t1", domain.PriorityLow)

	resolution, err := env.resolutions.RecordResolution(ctx, "esc-1", ResolutionInput{Outcome: domain.OutcomeResolved})
	require.NoError(t, err)

	_, err = env.resolutions.AmendResolution(ctx, resolution.ID, AmendmentInput{
		NewOutcome: domain.OutcomeUnresolved, Reason: "reopened", AmendedBy: "op-1",
	})
	require.NoError(t, err)
	env.clk.Advance(time.Hour)
	amended, err := env.resolutions.AmendResolution(ctx, resolution.ID, AmendmentInput{
		NewOutcome: domain.OutcomeResolved, Reason: "fixed for good", AmendedBy: "op-1",
	})
	require.NoError(t, err)

	require.Len(t, amended.Amendments, 2)
	assert.Equal(t, domain.OutcomeUnresolved, amended.Amendments[1].PreviousOutcome)
	assert.Equal(t, domain.OutcomeResolved, amended.FinalOutcome())

	stored, err := env.resolutions.GetResolution(ctx, resolution.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Amendments, 2)
}

func TestRecordFeedback_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedEscalation(t, "esc-1", "t1", domain.PriorityLow)
	resolution, err := env.resolutions.RecordResolution(ctx, "esc-1", ResolutionInput{Outcome: domain.OutcomeResolved})
	require.NoError(t, err)

	_, err = env.resolutions.RecordFeedback(ctx, resolution.ID, FeedbackInput{Source: domain.FeedbackSourceCustomer})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))

	bad := 6
	_, err = env.resolutions.RecordFeedback(ctx, resolution.ID, FeedbackInput{
		Source: domain.FeedbackSourceCustomer,
		Rating: &bad,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))

	rating := 4
	feedback, err := env.resolutions.RecordFeedback(ctx, resolution.ID, FeedbackInput{
		Source: domain.FeedbackSourceCustomer,
		Rating: &rating,
		Method: "survey",
	})
	require.NoError(t, err)
	assert.Equal(t, "t1", feedback.TenantID)

	listed, err := env.resolutions.ListFeedback(ctx, resolution.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestRecordResolution_ClearsAssignment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedEscalation(t, "esc-1", "t1", domain.PriorityHigh)
	env.seedOperator(t, "op-1")

	_, err := env.handoffs.Assign(ctx, "esc-1", "op-1")
	require.NoError(t, err)

	_, err = env.resolutions.RecordResolution(ctx, "esc-1", ResolutionInput{
		Outcome: domain.OutcomeResolved,
		Method:  "manual",
		Summary: "handled",
	})
	require.NoError(t, err)

	// assigned-to is only non-null while ASSIGNED; the handoff record
	// keeps the audit trail of who handled it
	escalation, err := env.store.GetByID(ctx, "esc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.EscalationStatusResolved, escalation.Status)
	assert.Nil(t, escalation.AssignedTo)
	assert.Nil(t, escalation.AssignedAt)

	handoffs, err := env.store.ListByEscalation(ctx, "esc-1")
	require.NoError(t, err)
	require.Len(t, handoffs, 1)
	assert.Equal(t, "op-1", handoffs[0].OperatorID)
}

package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/escalation-engine/internal/cache"
	"github.com/spec-kit/escalation-engine/internal/clock"
	"github.com/spec-kit/escalation-engine/internal/config"
	"github.com/spec-kit/escalation-engine/internal/domain"
	"github.com/spec-kit/escalation-engine/internal/events"
	"github.com/spec-kit/escalation-engine/internal/queue"
	"github.com/spec-kit/escalation-engine/internal/repository"
	apperrors "github.com/spec-kit/escalation-engine/pkg/util/errorutil"
)

type testEnv struct {
	store       *repository.MemoryStore
	queue       *queue.Queue
	clk         *clock.Fake
	dispatcher  events.Dispatcher
	engine      config.EngineConfig
	handoffs    *HandoffService
	resolutions *ResolutionService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC))
	store := repository.NewMemoryStore()
	workQueue := queue.New()
	dispatcher := events.NewInMemoryDispatcher()
	engine := config.EngineConfig{
		AmendmentWindowMinutes: 240,
		SLATargetsMillis: map[domain.Priority]int64{
			domain.PriorityUrgent: 900000,
			domain.PriorityHigh:   3600000,
			domain.PriorityMedium: 14400000,
			domain.PriorityLow:    86400000,
		},
		RankingVolumeCeiling: 50,
	}

	env := &testEnv{
		store:      store,
		queue:      workQueue,
		clk:        clk,
		dispatcher: dispatcher,
		engine:     engine,
	}
	env.handoffs = NewHandoffService(HandoffDependencies{
		EscalationRepo: store,
		HandoffRepo:    store.Handoffs(),
		OperatorRepo:   store.Operators(),
		Queue:          workQueue,
		Dispatcher:     dispatcher,
		Clock:          clk,
	})
	env.resolutions = NewResolutionService(ResolutionDependencies{
		EscalationRepo: store,
		HandoffRepo:    store.Handoffs(),
		ResolutionRepo: store.Resolutions(),
		FeedbackRepo:   store.FeedbackRepo(),
		Queue:          workQueue,
		Dispatcher:     dispatcher,
		Clock:          clk,
		MetricsCache:   cache.NewMemoryCache(clk),
		Engine:         engine,
	})
	return env
}

func (env *testEnv) seedEscalation(t *testing.T, id, tenant string, priority domain.Priority) *domain.Escalation {
	t.Helper()
	now := env.clk.Now()
	escalation := &domain.Escalation{
		ID:        id,
		TenantID:  tenant,
		ThreadRef: "thread-" + id,
		Priority:  priority,
		Status:    domain.EscalationStatusPending,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, env.store.Create(context.Background(), escalation))
	env.queue.Enqueue(escalation)
	return escalation
}

func (env *testEnv) seedOperator(t *testing.T, id string) *domain.Operator {
	t.Helper()
	operator := &domain.Operator{
		ID:        id,
		Email:     id + "@example.com",
		Name:      id,
		Role:      domain.RoleOperator,
		Active:    true,
		CreatedAt: env.clk.Now(),
	}
	require.NoError(t, env.store.CreateOperator(context.Background(), operator))
	return operator
}

func TestAssign_ClaimsEscalation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedEscalation(t, "esc-1", "t1", domain.PriorityHigh)
	env.seedOperator(t, "op-1")

	escalation, err := env.handoffs.Assign(ctx, "esc-1", "op-1")
	require.NoError(t, err)
	assert.Equal(t, domain.EscalationStatusAssigned, escalation.Status)
	require.NotNil(t, escalation.AssignedTo)
	assert.Equal(t, "op-1", *escalation.AssignedTo)

	// claimed work leaves the queue
	assert.Nil(t, env.queue.PeekNext(queue.Filter{}))

	handoff, err := env.store.GetActiveByEscalation(ctx, "esc-1")
	require.NoError(t, err)
	assert.Equal(t, "op-1", handoff.OperatorID)
}

func TestAssign_ConcurrentExactlyOneWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedEscalation(t, "esc-1", "t1", domain.PriorityUrgent)

	const contenders = 24
	operatorIDs := make([]string, contenders)
	for i := range operatorIDs {
		operatorIDs[i] = "op-" + string(rune('a'+i))
		env.seedOperator(t, operatorIDs[i])
	}

	var wg sync.WaitGroup
	results := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = env.handoffs.Assign(ctx, "esc-1", operatorIDs[i])
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
		} else {
			assert.True(t, apperrors.IsCode(err, "CONFLICT"), "loser should see a conflict, got %v", err)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestAssign_UnknownOperator(t *testing.T) {
	env := newTestEnv(t)
	env.seedEscalation(t, "esc-1", "t1", domain.PriorityLow)

	_, err := env.handoffs.Assign(context.Background(), "esc-1", "ghost")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))
}

func TestAssign_InactiveOperator(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedEscalation(t, "esc-1", "t1", domain.PriorityLow)
	operator := env.seedOperator(t, "op-1")
	operator.Active = false
	require.NoError(t, env.store.CreateOperator(ctx, operator))

	_, err := env.handoffs.Assign(ctx, "esc-1", "op-1")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "CONFLICT"))
}

func TestRelease_ReturnsToPendingAndRequeues(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedEscalation(t, "esc-1", "t1", domain.PriorityHigh)
	env.seedOperator(t, "op-1")

	_, err := env.handoffs.Assign(ctx, "esc-1", "op-1")
	require.NoError(t, err)

	env.clk.Advance(10 * time.Minute)
	escalation, err := env.handoffs.Release(ctx, "esc-1", "shift ended")
	require.NoError(t, err)
	assert.Equal(t, domain.EscalationStatusPending, escalation.Status)
	assert.Nil(t, escalation.AssignedTo)
	assert.Equal(t, domain.PriorityHigh, escalation.Priority)

	next := env.queue.PeekNext(queue.Filter{})
	require.NotNil(t, next)
	assert.Equal(t, "esc-1", next.ID)

	// superseded handoff survives with the release recorded
	history, err := env.store.ListByEscalation(ctx, "esc-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].ReleasedAt)
	require.NotNil(t, history[0].ReleaseReason)
	assert.Equal(t, "shift ended", *history[0].ReleaseReason)
}

func TestRelease_NotAssigned(t *testing.T) {
	env := newTestEnv(t)
	env.seedEscalation(t, "esc-1", "t1", domain.PriorityLow)

	_, err := env.handoffs.Release(context.Background(), "esc-1", "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "CONFLICT"))
}

func TestRelease_ThenReassignable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedEscalation(t, "esc-1", "t1", domain.PriorityMedium)
	env.seedOperator(t, "op-1")
	env.seedOperator(t, "op-2")

	_, err := env.handoffs.Assign(ctx, "esc-1", "op-1")
	require.NoError(t, err)
	_, err = env.handoffs.Release(ctx, "esc-1", "")
	require.NoError(t, err)

	escalation, err := env.handoffs.Assign(ctx, "esc-1", "op-2")
	require.NoError(t, err)
	assert.Equal(t, "op-2", *escalation.AssignedTo)

	history, err := env.store.ListByEscalation(ctx, "esc-1")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestEscalatePriority_RaisesAndReorders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedEscalation(t, "esc-low", "t1", domain.PriorityMedium)
	env.clk.Advance(time.Minute)
	env.seedEscalation(t, "esc-high", "t1", domain.PriorityHigh)

	escalation, err := env.handoffs.EscalatePriority(ctx, "esc-low", domain.PriorityUrgent, "legal got involved")
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityUrgent, escalation.Priority)
	assert.Equal(t, domain.EscalationStatusPending, escalation.Status)

	next := env.queue.PeekNext(queue.Filter{})
	require.NotNil(t, next)
	assert.Equal(t, "esc-low", next.ID)
}

func TestEscalatePriority_Monotonic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedEscalation(t, "esc-1", "t1", domain.PriorityHigh)

	_, err := env.handoffs.EscalatePriority(ctx, "esc-1", domain.PriorityMedium, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))

	// same tier is also not a raise
	_, err = env.handoffs.EscalatePriority(ctx, "esc-1", domain.PriorityHigh, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
}

func TestEscalatePriority_ResolvedRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedEscalation(t, "esc-1", "t1", domain.PriorityLow)

	_, err := env.resolutions.RecordResolution(ctx, "esc-1", ResolutionInput{Outcome: domain.OutcomeResolved})
	require.NoError(t, err)

	_, err = env.handoffs.EscalatePriority(ctx, "esc-1", domain.PriorityUrgent, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "CONFLICT"))
}

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/escalation-engine/internal/domain"
)

func seedPending(t *testing.T, store *MemoryStore, id string, priority domain.Priority) {
	t.Helper()
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.Create(context.Background(), &domain.Escalation{
		ID:        id,
		TenantID:  "t1",
		ThreadRef: "thread-" + id,
		Priority:  priority,
		Status:    domain.EscalationStatusPending,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}))
}

func TestMarkResolved_ClearsAssignment(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedPending(t, store, "esc-1", domain.PriorityHigh)

	at := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	ok, err := store.TryAssign(ctx, "esc-1", "op-1", at)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.MarkResolved(ctx, "esc-1", at.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, ok)

	escalation, err := store.GetByID(ctx, "esc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.EscalationStatusResolved, escalation.Status)
	assert.Nil(t, escalation.AssignedTo)
	assert.Nil(t, escalation.AssignedAt)
}

func TestUpdatePriority_StaleVersionLoses(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedPending(t, store, "esc-1", domain.PriorityMedium)

	// two raises read version 1; the second write carries a stale
	// version and must not downgrade the committed URGENT
	ok, err := store.UpdatePriority(ctx, "esc-1", domain.PriorityUrgent, 1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.UpdatePriority(ctx, "esc-1", domain.PriorityHigh, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	escalation, err := store.GetByID(ctx, "esc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityUrgent, escalation.Priority)
	assert.EqualValues(t, 2, escalation.Version)
}

func TestUpdatePriority_ResolvedRejected(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedPending(t, store, "esc-1", domain.PriorityMedium)

	ok, err := store.MarkResolved(ctx, "esc-1", time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, ok)

	escalation, err := store.GetByID(ctx, "esc-1")
	require.NoError(t, err)

	ok, err = store.UpdatePriority(ctx, "esc-1", domain.PriorityUrgent, escalation.Version)
	require.NoError(t, err)
	assert.False(t, ok)

	escalation, err = store.GetByID(ctx, "esc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityMedium, escalation.Priority)
}

func TestUpdatePriority_UnknownEscalation(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.UpdatePriority(context.Background(), "missing", domain.PriorityHigh, 1)
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

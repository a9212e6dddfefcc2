package queue

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/escalation-engine/internal/domain"
)

func pendingEscalation(id, tenant string, priority domain.Priority, created time.Time) *domain.Escalation {
	return &domain.Escalation{
		ID:        id,
		TenantID:  tenant,
		Priority:  priority,
		Status:    domain.EscalationStatusPending,
		CreatedAt: created,
	}
}

func TestQueue_PriorityTiersBeforeAge(t *testing.T) {
	q := New()
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	q.Enqueue(pendingEscalation("low-old", "t1", domain.PriorityLow, base))
	q.Enqueue(pendingEscalation("urgent-new", "t1", domain.PriorityUrgent, base.Add(time.Hour)))
	q.Enqueue(pendingEscalation("high-mid", "t1", domain.PriorityHigh, base.Add(30*time.Minute)))

	next := q.PeekNext(Filter{})
	require.NotNil(t, next)
	assert.Equal(t, "urgent-new", next.ID)
}

func TestQueue_FIFOWithinTier(t *testing.T) {
	q := New()
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	q.Enqueue(pendingEscalation("second", "t1", domain.PriorityHigh, base.Add(time.Minute)))
	q.Enqueue(pendingEscalation("first", "t1", domain.PriorityHigh, base))
	q.Enqueue(pendingEscalation("third", "t1", domain.PriorityHigh, base.Add(2*time.Minute)))

	snapshot := q.Snapshot(Filter{})
	require.Len(t, snapshot, 3)
	assert.Equal(t, "first", snapshot[0].ID)
	assert.Equal(t, "second", snapshot[1].ID)
	assert.Equal(t, "third", snapshot[2].ID)
}

func TestQueue_FilterByTenantAndPriority(t *testing.T) {
	q := New()
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	tenantA := "tenant-a"

	q.Enqueue(pendingEscalation("a-urgent", tenantA, domain.PriorityUrgent, base))
	q.Enqueue(pendingEscalation("b-urgent", "tenant-b", domain.PriorityUrgent, base))
	q.Enqueue(pendingEscalation("a-low", tenantA, domain.PriorityLow, base))

	next := q.PeekNext(Filter{TenantID: &tenantA, Priorities: []domain.Priority{domain.PriorityLow}})
	require.NotNil(t, next)
	assert.Equal(t, "a-low", next.ID)

	assert.Nil(t, q.PeekNext(Filter{Priorities: []domain.Priority{domain.PriorityMedium}}))
}

func TestQueue_UpdatePriorityReslots(t *testing.T) {
	q := New()
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	q.Enqueue(pendingEscalation("older-high", "t1", domain.PriorityHigh, base))
	q.Enqueue(pendingEscalation("bumped", "t1", domain.PriorityLow, base.Add(time.Minute)))

	q.UpdatePriority("bumped", domain.PriorityUrgent)

	next := q.PeekNext(Filter{})
	require.NotNil(t, next)
	assert.Equal(t, "bumped", next.ID)
	assert.Equal(t, domain.PriorityUrgent, next.Priority)
}

func TestQueue_RemoveAndRebuild(t *testing.T) {
	q := New()
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	q.Enqueue(pendingEscalation("e1", "t1", domain.PriorityHigh, base))
	q.Enqueue(pendingEscalation("e2", "t1", domain.PriorityLow, base))
	q.Remove("e1")
	assert.Equal(t, 1, q.Len())

	q.Rebuild([]domain.Escalation{
		*pendingEscalation("r1", "t1", domain.PriorityLow, base),
		*pendingEscalation("r2", "t1", domain.PriorityUrgent, base),
	})
	assert.Equal(t, 2, q.Len())
	next := q.PeekNext(Filter{})
	require.NotNil(t, next)
	assert.Equal(t, "r2", next.ID)
}

func TestQueue_ConcurrentEnqueueKeepsOrder(t *testing.T) {
	q := New()
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	priorities := []domain.Priority{domain.PriorityLow, domain.PriorityMedium, domain.PriorityHigh, domain.PriorityUrgent}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q.Enqueue(pendingEscalation(
				fmt.Sprintf("e%03d", i), "t1",
				priorities[i%len(priorities)],
				base.Add(time.Duration(i)*time.Second),
			))
		}(i)
	}
	wg.Wait()

	require.Equal(t, 100, q.Len())
	snapshot := q.Snapshot(Filter{})
	for i := 1; i < len(snapshot); i++ {
		prev, cur := snapshot[i-1], snapshot[i]
		if prev.Priority.Rank() == cur.Priority.Rank() {
			assert.False(t, cur.CreatedAt.Before(prev.CreatedAt))
		} else {
			assert.Greater(t, prev.Priority.Rank(), cur.Priority.Rank())
		}
	}
}

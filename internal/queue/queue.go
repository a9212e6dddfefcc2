package queue

import (
	"sort"
	"sync"

	"github.com/spec-kit/escalation-engine/internal/domain"
)

// Filter narrows PeekNext and Snapshot results.
type Filter struct {
	TenantID   *string
	Priorities []domain.Priority
}

func (f Filter) matches(e *domain.Escalation) bool {
	if f.TenantID != nil && e.TenantID != *f.TenantID {
		return false
	}
	if len(f.Priorities) > 0 {
		ok := false
		for _, p := range f.Priorities {
			if e.Priority == p {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// Queue is the priority ordered admission view over pending escalations.
// It is derived state: the store stays the authority, and the queue can be
// rebuilt from it at any time. Ordering is strict priority tiers, FIFO by
// creation time within a tier, so no tier can starve an older entry of the
// same tier.
type Queue struct {
	mu    sync.RWMutex
	items []*domain.Escalation
	index map[string]*domain.Escalation
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{index: make(map[string]*domain.Escalation)}
}

func less(a, b *domain.Escalation) bool {
	if a.Priority.Rank() != b.Priority.Rank() {
		return a.Priority.Rank() > b.Priority.Rank()
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Enqueue admits a pending escalation. Re-enqueueing an id already in the
// queue refreshes its entry.
func (q *Queue) Enqueue(e *domain.Escalation) {
	if e == nil {
		return
	}
	copied := *e
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.index[copied.ID]; exists {
		q.removeLocked(copied.ID)
	}
	q.index[copied.ID] = &copied
	pos := sort.Search(len(q.items), func(i int) bool {
		return less(&copied, q.items[i])
	})
	q.items = append(q.items, nil)
	copy(q.items[pos+1:], q.items[pos:])
	q.items[pos] = &copied
}

// PeekNext returns a copy of the highest priority, oldest matching entry
// without removing it, or nil when nothing matches.
func (q *Queue) PeekNext(filter Filter) *domain.Escalation {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for _, item := range q.items {
		if filter.matches(item) {
			copied := *item
			return &copied
		}
	}
	return nil
}

// Remove drops an entry, typically after assignment or resolution.
func (q *Queue) Remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeLocked(id)
}

func (q *Queue) removeLocked(id string) {
	if _, exists := q.index[id]; !exists {
		return
	}
	delete(q.index, id)
	for i, item := range q.items {
		if item.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return
		}
	}
}

// UpdatePriority re-slots an entry after a priority escalation. Unknown
// ids are ignored; the store remains the authority.
func (q *Queue) UpdatePriority(id string, priority domain.Priority) {
	q.mu.Lock()
	entry, exists := q.index[id]
	if !exists {
		q.mu.Unlock()
		return
	}
	updated := *entry
	updated.Priority = priority
	q.removeLocked(id)
	q.mu.Unlock()
	q.Enqueue(&updated)
}

// Rebuild replaces the queue contents from store state, e.g. after a
// restart.
func (q *Queue) Rebuild(pending []domain.Escalation) {
	q.mu.Lock()
	q.items = nil
	q.index = make(map[string]*domain.Escalation, len(pending))
	q.mu.Unlock()
	for i := range pending {
		q.Enqueue(&pending[i])
	}
}

// Snapshot returns ordered copies of every matching entry.
func (q *Queue) Snapshot(filter Filter) []domain.Escalation {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]domain.Escalation, 0, len(q.items))
	for _, item := range q.items {
		if filter.matches(item) {
			out = append(out, *item)
		}
	}
	return out
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

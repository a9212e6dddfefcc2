package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/escalation-engine/internal/domain"
)

// MemoryStore implements every repository interface in memory. It backs
// tests and the degraded no-DSN mode; the compare-and-swap semantics
// mirror the postgres implementation, with pgx.ErrNoRows as the shared
// not-found sentinel.
type MemoryStore struct {
	mu          sync.Mutex
	escalations map[string]*domain.Escalation
	handoffs    []*domain.Handoff
	resolutions map[string]*domain.Resolution
	feedback    []*domain.Feedback
	operators   map[string]*domain.Operator
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		escalations: make(map[string]*domain.Escalation),
		resolutions: make(map[string]*domain.Resolution),
		operators:   make(map[string]*domain.Operator),
	}
}

func copyEscalation(e *domain.Escalation) *domain.Escalation {
	copied := *e
	copied.Triggers = append([]domain.Trigger(nil), e.Triggers...)
	return &copied
}

func copyResolution(r *domain.Resolution) *domain.Resolution {
	copied := *r
	copied.Amendments = append([]domain.Amendment(nil), r.Amendments...)
	return &copied
}

// --- EscalationRepository ---

func (s *MemoryStore) Create(ctx context.Context, escalation *domain.Escalation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.escalations[escalation.ID] = copyEscalation(escalation)
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (*domain.Escalation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	escalation, ok := s.escalations[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return copyEscalation(escalation), nil
}

func (s *MemoryStore) ListWithFilter(ctx context.Context, filter EscalationFilter) ([]domain.Escalation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.Escalation
	for _, escalation := range s.escalations {
		if !matchesFilter(escalation, filter) {
			continue
		}
		result = append(result, *copyEscalation(escalation))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func matchesFilter(e *domain.Escalation, filter EscalationFilter) bool {
	if filter.TenantID != nil && e.TenantID != *filter.TenantID {
		return false
	}
	if filter.AssignedTo != nil && (e.AssignedTo == nil || *e.AssignedTo != *filter.AssignedTo) {
		return false
	}
	if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, e.Status) {
		return false
	}
	if len(filter.Priorities) > 0 && !containsPriority(filter.Priorities, e.Priority) {
		return false
	}
	if filter.CreatedFrom != nil && e.CreatedAt.Before(*filter.CreatedFrom) {
		return false
	}
	if filter.CreatedTo != nil && e.CreatedAt.After(*filter.CreatedTo) {
		return false
	}
	return true
}

func containsStatus(list []domain.EscalationStatus, status domain.EscalationStatus) bool {
	for _, candidate := range list {
		if candidate == status {
			return true
		}
	}
	return false
}

func containsPriority(list []domain.Priority, priority domain.Priority) bool {
	for _, candidate := range list {
		if candidate == priority {
			return true
		}
	}
	return false
}

func (s *MemoryStore) ListPending(ctx context.Context) ([]domain.Escalation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.Escalation
	for _, escalation := range s.escalations {
		if escalation.Status == domain.EscalationStatusPending {
			result = append(result, *copyEscalation(escalation))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) TryAssign(ctx context.Context, id, operatorID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	escalation, ok := s.escalations[id]
	if !ok {
		return false, pgx.ErrNoRows
	}
	if escalation.Status != domain.EscalationStatusPending || escalation.AssignedTo != nil {
		return false, nil
	}
	operator := operatorID
	escalation.Status = domain.EscalationStatusAssigned
	escalation.AssignedTo = &operator
	assignedAt := at
	escalation.AssignedAt = &assignedAt
	escalation.Version++
	escalation.UpdatedAt = at
	return true, nil
}

func (s *MemoryStore) Release(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	escalation, ok := s.escalations[id]
	if !ok {
		return false, pgx.ErrNoRows
	}
	if escalation.Status != domain.EscalationStatusAssigned {
		return false, nil
	}
	escalation.Status = domain.EscalationStatusPending
	escalation.AssignedTo = nil
	escalation.AssignedAt = nil
	escalation.Version++
	return true, nil
}

func (s *MemoryStore) UpdatePriority(ctx context.Context, id string, priority domain.Priority, version int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	escalation, ok := s.escalations[id]
	if !ok {
		return false, pgx.ErrNoRows
	}
	if escalation.Version != version {
		return false, nil
	}
	if escalation.Status != domain.EscalationStatusPending && escalation.Status != domain.EscalationStatusAssigned {
		return false, nil
	}
	escalation.Priority = priority
	escalation.Version++
	return true, nil
}

func (s *MemoryStore) MarkResolved(ctx context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	escalation, ok := s.escalations[id]
	if !ok {
		return false, pgx.ErrNoRows
	}
	if escalation.Status != domain.EscalationStatusPending && escalation.Status != domain.EscalationStatusAssigned {
		return false, nil
	}
	escalation.Status = domain.EscalationStatusResolved
	escalation.AssignedTo = nil
	escalation.AssignedAt = nil
	escalation.Version++
	escalation.UpdatedAt = at
	return true, nil
}

// --- HandoffRepository ---

func (s *MemoryStore) CreateHandoff(ctx context.Context, handoff *domain.Handoff) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *handoff
	s.handoffs = append(s.handoffs, &copied)
	return nil
}

func (s *MemoryStore) GetActiveByEscalation(ctx context.Context, escalationID string) (*domain.Handoff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.handoffs) - 1; i >= 0; i-- {
		handoff := s.handoffs[i]
		if handoff.EscalationID == escalationID && handoff.ReleasedAt == nil {
			copied := *handoff
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *MemoryStore) CloseActive(ctx context.Context, escalationID string, releasedAt time.Time, reason *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, handoff := range s.handoffs {
		if handoff.EscalationID == escalationID && handoff.ReleasedAt == nil {
			released := releasedAt
			handoff.ReleasedAt = &released
			handoff.ReleaseReason = reason
		}
	}
	return nil
}

func (s *MemoryStore) ListByEscalation(ctx context.Context, escalationID string) ([]domain.Handoff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.Handoff
	for _, handoff := range s.handoffs {
		if handoff.EscalationID == escalationID {
			result = append(result, *handoff)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].AssignedAt.Before(result[j].AssignedAt)
	})
	return result, nil
}

// --- ResolutionRepository ---

func (s *MemoryStore) CreateResolution(ctx context.Context, resolution *domain.Resolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolutions[resolution.ID] = copyResolution(resolution)
	return nil
}

func (s *MemoryStore) GetResolutionByID(ctx context.Context, id string) (*domain.Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resolution, ok := s.resolutions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return copyResolution(resolution), nil
}

func (s *MemoryStore) GetByEscalation(ctx context.Context, escalationID string) (*domain.Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, resolution := range s.resolutions {
		if resolution.EscalationID == escalationID {
			return copyResolution(resolution), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *MemoryStore) AppendAmendment(ctx context.Context, amendment *domain.Amendment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	resolution, ok := s.resolutions[amendment.ResolutionID]
	if !ok {
		return pgx.ErrNoRows
	}
	resolution.Amendments = append(resolution.Amendments, *amendment)
	return nil
}

// --- FeedbackRepository ---

func (s *MemoryStore) CreateFeedback(ctx context.Context, feedback *domain.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *feedback
	s.feedback = append(s.feedback, &copied)
	return nil
}

func (s *MemoryStore) ListByResolution(ctx context.Context, resolutionID string) ([]domain.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.Feedback
	for _, feedback := range s.feedback {
		if feedback.ResolutionID == resolutionID {
			result = append(result, *feedback)
		}
	}
	return result, nil
}

// --- OperatorRepository ---

func (s *MemoryStore) CreateOperator(ctx context.Context, operator *domain.Operator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *operator
	s.operators[operator.ID] = &copied
	return nil
}

func (s *MemoryStore) GetOperatorByID(ctx context.Context, id string) (*domain.Operator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	operator, ok := s.operators[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *operator
	return &copied, nil
}

func (s *MemoryStore) GetOperatorByEmail(ctx context.Context, email string) (*domain.Operator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, operator := range s.operators {
		if strings.EqualFold(operator.Email, email) {
			copied := *operator
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

// --- MetricsRepository ---

func (s *MemoryStore) StatusCounts(ctx context.Context, tenantID string, from, to time.Time) (map[domain.EscalationStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[domain.EscalationStatus]int)
	for _, escalation := range s.escalations {
		if inWindow(escalation.TenantID, escalation.CreatedAt, tenantID, from, to) {
			counts[escalation.Status]++
		}
	}
	return counts, nil
}

func (s *MemoryStore) CategoryCounts(ctx context.Context, tenantID string, from, to time.Time) (map[domain.TriggerCategory]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[domain.TriggerCategory]int)
	for _, escalation := range s.escalations {
		if !inWindow(escalation.TenantID, escalation.CreatedAt, tenantID, from, to) {
			continue
		}
		for _, trig := range escalation.Triggers {
			counts[trig.Category]++
		}
	}
	return counts, nil
}

func (s *MemoryStore) LatencySamples(ctx context.Context, tenantID string, from, to time.Time) ([]LatencySample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var samples []LatencySample
	for _, resolution := range s.resolutions {
		if !inWindow(resolution.TenantID, resolution.ResolvedAt, tenantID, from, to) {
			continue
		}
		priority := domain.PriorityLow
		if escalation, ok := s.escalations[resolution.EscalationID]; ok {
			priority = escalation.Priority
		}
		samples = append(samples, LatencySample{
			Priority:         priority,
			TimeToResolution: resolution.TimeToResolution,
		})
	}
	return samples, nil
}

func (s *MemoryStore) OperatorRollups(ctx context.Context, tenantID string, from, to time.Time) ([]OperatorRollup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type acc struct {
		total     int
		resolved  int
		ttrSum    time.Duration
		ratingSum int
		ratings   int
	}
	byOperator := make(map[string]*acc)
	resolutionOperator := make(map[string]string)

	for _, resolution := range s.resolutions {
		if !inWindow(resolution.TenantID, resolution.ResolvedAt, tenantID, from, to) {
			continue
		}
		if resolution.ResolvedBy == domain.SystemResolver {
			continue
		}
		entry := byOperator[resolution.ResolvedBy]
		if entry == nil {
			entry = &acc{}
			byOperator[resolution.ResolvedBy] = entry
		}
		entry.total++
		if resolution.FinalOutcome() == domain.OutcomeResolved {
			entry.resolved++
		}
		entry.ttrSum += resolution.TimeToResolution
		resolutionOperator[resolution.ID] = resolution.ResolvedBy
	}

	for _, feedback := range s.feedback {
		operatorID, ok := resolutionOperator[feedback.ResolutionID]
		if !ok || feedback.Rating == nil {
			continue
		}
		entry := byOperator[operatorID]
		entry.ratingSum += *feedback.Rating
		entry.ratings++
	}

	rollups := make([]OperatorRollup, 0, len(byOperator))
	for operatorID, entry := range byOperator {
		rollup := OperatorRollup{
			OperatorID:  operatorID,
			Resolutions: entry.total,
			Resolved:    entry.resolved,
			AvgTTR:      entry.ttrSum / time.Duration(entry.total),
			RatingCount: entry.ratings,
		}
		if entry.ratings > 0 {
			rollup.AvgRating = float64(entry.ratingSum) / float64(entry.ratings)
		}
		rollups = append(rollups, rollup)
	}
	sort.Slice(rollups, func(i, j int) bool {
		return rollups[i].OperatorID < rollups[j].OperatorID
	})
	return rollups, nil
}

func (s *MemoryStore) SeriesBuckets(ctx context.Context, tenantID string, metric SeriesMetric, from, to time.Time, granularity Granularity) ([]SeriesPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sums := make(map[time.Time]float64)
	counts := make(map[time.Time]int)

	switch metric {
	case SeriesVolume:
		for _, escalation := range s.escalations {
			if inWindow(escalation.TenantID, escalation.CreatedAt, tenantID, from, to) {
				sums[granularity.Truncate(escalation.CreatedAt)]++
			}
		}
	case SeriesResolutionTime:
		for _, resolution := range s.resolutions {
			if inWindow(resolution.TenantID, resolution.ResolvedAt, tenantID, from, to) {
				bucket := granularity.Truncate(resolution.ResolvedAt)
				sums[bucket] += float64(resolution.TimeToResolution.Milliseconds())
				counts[bucket]++
			}
		}
	default:
		return nil, pgx.ErrNoRows
	}

	points := make([]SeriesPoint, 0, len(sums))
	for bucket, sum := range sums {
		value := sum
		if count := counts[bucket]; count > 0 {
			value = sum / float64(count)
		}
		points = append(points, SeriesPoint{Timestamp: bucket, Value: value})
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
	return points, nil
}

func inWindow(tenantID string, at time.Time, wantTenant string, from, to time.Time) bool {
	if tenantID != wantTenant {
		return false
	}
	return !at.Before(from) && at.Before(to)
}

// Adapter views so MemoryStore satisfies the repository interfaces whose
// method names collide across entities.

// Handoffs returns the store as a HandoffRepository.
func (s *MemoryStore) Handoffs() HandoffRepository { return memoryHandoffs{s} }

// Resolutions returns the store as a ResolutionRepository.
func (s *MemoryStore) Resolutions() ResolutionRepository { return memoryResolutions{s} }

// FeedbackRepo returns the store as a FeedbackRepository.
func (s *MemoryStore) FeedbackRepo() FeedbackRepository { return memoryFeedback{s} }

// Operators returns the store as an OperatorRepository.
func (s *MemoryStore) Operators() OperatorRepository { return memoryOperators{s} }

type memoryHandoffs struct{ store *MemoryStore }

func (m memoryHandoffs) Create(ctx context.Context, handoff *domain.Handoff) error {
	return m.store.CreateHandoff(ctx, handoff)
}

func (m memoryHandoffs) GetActiveByEscalation(ctx context.Context, escalationID string) (*domain.Handoff, error) {
	return m.store.GetActiveByEscalation(ctx, escalationID)
}

func (m memoryHandoffs) CloseActive(ctx context.Context, escalationID string, releasedAt time.Time, reason *string) error {
	return m.store.CloseActive(ctx, escalationID, releasedAt, reason)
}

func (m memoryHandoffs) ListByEscalation(ctx context.Context, escalationID string) ([]domain.Handoff, error) {
	return m.store.ListByEscalation(ctx, escalationID)
}

type memoryResolutions struct{ store *MemoryStore }

func (m memoryResolutions) Create(ctx context.Context, resolution *domain.Resolution) error {
	return m.store.CreateResolution(ctx, resolution)
}

func (m memoryResolutions) GetByID(ctx context.Context, id string) (*domain.Resolution, error) {
	return m.store.GetResolutionByID(ctx, id)
}

func (m memoryResolutions) GetByEscalation(ctx context.Context, escalationID string) (*domain.Resolution, error) {
	return m.store.GetByEscalation(ctx, escalationID)
}

func (m memoryResolutions) AppendAmendment(ctx context.Context, amendment *domain.Amendment) error {
	return m.store.AppendAmendment(ctx, amendment)
}

type memoryFeedback struct{ store *MemoryStore }

func (m memoryFeedback) Create(ctx context.Context, feedback *domain.Feedback) error {
	return m.store.CreateFeedback(ctx, feedback)
}

func (m memoryFeedback) ListByResolution(ctx context.Context, resolutionID string) ([]domain.Feedback, error) {
	return m.store.ListByResolution(ctx, resolutionID)
}

type memoryOperators struct{ store *MemoryStore }

func (m memoryOperators) Create(ctx context.Context, operator *domain.Operator) error {
	return m.store.CreateOperator(ctx, operator)
}

func (m memoryOperators) GetByID(ctx context.Context, id string) (*domain.Operator, error) {
	return m.store.GetOperatorByID(ctx, id)
}

func (m memoryOperators) GetByEmail(ctx context.Context, email string) (*domain.Operator, error) {
	return m.store.GetOperatorByEmail(ctx, email)
}

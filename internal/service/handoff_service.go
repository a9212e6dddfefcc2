package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/escalation-engine/internal/clock"
	"github.com/spec-kit/escalation-engine/internal/domain"
	"github.com/spec-kit/escalation-engine/internal/events"
	"github.com/spec-kit/escalation-engine/internal/queue"
	"github.com/spec-kit/escalation-engine/internal/repository"
	apperrors "github.com/spec-kit/escalation-engine/pkg/util/errorutil"
)

// HandoffService coordinates assignment of escalations to operators. The
// only legal transitions are pending→assigned, assigned→pending (release)
// and pending/assigned→resolved; priority escalation never changes status.
type HandoffService struct {
	escalations repository.EscalationRepository
	handoffs    repository.HandoffRepository
	operators   repository.OperatorRepository
	queue       *queue.Queue
	dispatcher  events.Dispatcher
	clk         clock.Clock
}

// HandoffDependencies bundles collaborators.
type HandoffDependencies struct {
	EscalationRepo repository.EscalationRepository
	HandoffRepo    repository.HandoffRepository
	OperatorRepo   repository.OperatorRepository
	Queue          *queue.Queue
	Dispatcher     events.Dispatcher
	Clock          clock.Clock
}

// NewHandoffService constructs the service.
func NewHandoffService(deps HandoffDependencies) *HandoffService {
	return &HandoffService{
		escalations: deps.EscalationRepo,
		handoffs:    deps.HandoffRepo,
		operators:   deps.OperatorRepo,
		queue:       deps.Queue,
		dispatcher:  deps.Dispatcher,
		clk:         deps.Clock,
	}
}

// PeekNext returns the next escalation the queue would hand out, without
// claiming it.
func (s *HandoffService) PeekNext(filter queue.Filter) *domain.Escalation {
	return s.queue.PeekNext(filter)
}

// Assign claims an escalation for an operator. The store-level
// compare-and-swap guarantees at most one winner under contention; losing
// is reported as a conflict naming the current holder, never as a fault.
func (s *HandoffService) Assign(ctx context.Context, escalationID, operatorID string) (*domain.Escalation, error) {
	operator, err := s.operators.GetByID(ctx, operatorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("operator", map[string]any{"operator_id": operatorID})
		}
		return nil, apperrors.MapError(err)
	}
	if !operator.Active {
		return nil, apperrors.NewConflict("operator inactive", map[string]any{"operator_id": operatorID})
	}

	escalation, err := s.escalations.GetByID(ctx, escalationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("escalation", map[string]any{"escalation_id": escalationID})
		}
		return nil, apperrors.MapError(err)
	}
	if escalation.Status == domain.EscalationStatusResolved {
		return nil, apperrors.NewConflict("escalation already resolved", map[string]any{"escalation_id": escalationID})
	}

	now := s.clk.Now()
	ok, err := s.escalations.TryAssign(ctx, escalationID, operatorID, now)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !ok {
		return nil, s.assignConflict(ctx, escalationID)
	}

	if err := s.handoffs.Create(ctx, &domain.Handoff{
		ID:           uuid.NewString(),
		EscalationID: escalationID,
		OperatorID:   operatorID,
		AssignedAt:   now,
	}); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.queue.Remove(escalationID)

	escalation, err = s.escalations.GetByID(ctx, escalationID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:         events.EventEscalationAssigned,
		EscalationID: escalation.ID,
		TenantID:     escalation.TenantID,
		Payload: events.EscalationAssignedPayload{
			OperatorID: operatorID,
			Priority:   escalation.Priority,
		},
	})
	return escalation, nil
}

func (s *HandoffService) assignConflict(ctx context.Context, escalationID string) error {
	details := map[string]any{"escalation_id": escalationID}
	message := "escalation not assignable"
	if current, err := s.escalations.GetByID(ctx, escalationID); err == nil && current.AssignedTo != nil {
		details["assigned_to"] = *current.AssignedTo
		message = "already assigned to operator " + *current.AssignedTo
	}
	return apperrors.NewConflict(message, details)
}

// Release returns an assigned escalation to pending without altering its
// priority or triggers. The superseded handoff is kept for audit.
func (s *HandoffService) Release(ctx context.Context, escalationID, reason string) (*domain.Escalation, error) {
	escalation, err := s.escalations.GetByID(ctx, escalationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("escalation", map[string]any{"escalation_id": escalationID})
		}
		return nil, apperrors.MapError(err)
	}
	if escalation.Status != domain.EscalationStatusAssigned || escalation.AssignedTo == nil {
		return nil, apperrors.NewConflict("escalation not assigned", map[string]any{
			"escalation_id": escalationID,
			"status":        escalation.Status,
		})
	}
	operatorID := *escalation.AssignedTo

	ok, err := s.escalations.Release(ctx, escalationID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !ok {
		return nil, apperrors.NewConflict("escalation not assigned", map[string]any{"escalation_id": escalationID})
	}

	now := s.clk.Now()
	var releaseReason *string
	if trimmed := strings.TrimSpace(reason); trimmed != "" {
		releaseReason = &trimmed
	}
	if err := s.handoffs.CloseActive(ctx, escalationID, now, releaseReason); err != nil {
		return nil, apperrors.MapError(err)
	}

	escalation, err = s.escalations.GetByID(ctx, escalationID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.queue.Enqueue(escalation)
	s.publishEvent(ctx, events.Event{
		Type:         events.EventEscalationReleased,
		EscalationID: escalation.ID,
		TenantID:     escalation.TenantID,
		Payload: events.EscalationReleasedPayload{
			OperatorID: operatorID,
			Reason:     reason,
		},
	})
	return escalation, nil
}

// EscalatePriority raises an escalation's priority. Priority is
// monotonic: lowering attempts are rejected. Status is never changed.
func (s *HandoffService) EscalatePriority(ctx context.Context, escalationID string, newPriority domain.Priority, reason string) (*domain.Escalation, error) {
	if !newPriority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": newPriority})
	}
	escalation, err := s.escalations.GetByID(ctx, escalationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("escalation", map[string]any{"escalation_id": escalationID})
		}
		return nil, apperrors.MapError(err)
	}
	if escalation.Status == domain.EscalationStatusResolved {
		return nil, apperrors.NewConflict("escalation already resolved", map[string]any{"escalation_id": escalationID})
	}
	if newPriority.Rank() <= escalation.Priority.Rank() {
		return nil, apperrors.NewValidationError("priority can only be raised", map[string]any{
			"current_priority":   escalation.Priority,
			"requested_priority": newPriority,
		})
	}
	oldPriority := escalation.Priority

	ok, err := s.escalations.UpdatePriority(ctx, escalationID, newPriority, escalation.Version)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !ok {
		return nil, apperrors.NewConflict("escalation changed concurrently", map[string]any{
			"escalation_id": escalationID,
		})
	}
	s.queue.UpdatePriority(escalationID, newPriority)

	escalation, err = s.escalations.GetByID(ctx, escalationID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:         events.EventPriorityEscalated,
		EscalationID: escalation.ID,
		TenantID:     escalation.TenantID,
		Payload: events.PriorityEscalatedPayload{
			OldPriority: oldPriority,
			NewPriority: newPriority,
			Reason:      reason,
		},
	})
	return escalation, nil
}

func (s *HandoffService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = s.clk.Now()
	_ = s.dispatcher.Publish(ctx, event)
}

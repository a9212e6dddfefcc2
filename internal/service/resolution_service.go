package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/escalation-engine/internal/cache"
	"github.com/spec-kit/escalation-engine/internal/clock"
	"github.com/spec-kit/escalation-engine/internal/config"
	"github.com/spec-kit/escalation-engine/internal/domain"
	"github.com/spec-kit/escalation-engine/internal/events"
	"github.com/spec-kit/escalation-engine/internal/queue"
	"github.com/spec-kit/escalation-engine/internal/repository"
	apperrors "github.com/spec-kit/escalation-engine/pkg/util/errorutil"
)

// ResolutionService closes escalations and manages the bounded
// post-resolution amendment window.
type ResolutionService struct {
	escalations repository.EscalationRepository
	handoffs    repository.HandoffRepository
	resolutions repository.ResolutionRepository
	feedback    repository.FeedbackRepository
	queue       *queue.Queue
	dispatcher  events.Dispatcher
	clk         clock.Clock
	metricsCch  cache.MetricsCache
	engine      config.EngineConfig
}

// ResolutionDependencies bundles collaborators.
type ResolutionDependencies struct {
	EscalationRepo repository.EscalationRepository
	HandoffRepo    repository.HandoffRepository
	ResolutionRepo repository.ResolutionRepository
	FeedbackRepo   repository.FeedbackRepository
	Queue          *queue.Queue
	Dispatcher     events.Dispatcher
	Clock          clock.Clock
	MetricsCache   cache.MetricsCache
	Engine         config.EngineConfig
}

// NewResolutionService constructs the service.
func NewResolutionService(deps ResolutionDependencies) *ResolutionService {
	return &ResolutionService{
		escalations: deps.EscalationRepo,
		handoffs:    deps.HandoffRepo,
		resolutions: deps.ResolutionRepo,
		feedback:    deps.FeedbackRepo,
		queue:       deps.Queue,
		dispatcher:  deps.Dispatcher,
		clk:         deps.Clock,
		metricsCch:  deps.MetricsCache,
		engine:      deps.Engine,
	}
}

// ResolutionInput describes a close request.
type ResolutionInput struct {
	Outcome    domain.ResolutionOutcome
	Method     string
	Summary    string
	Notes      string
	ResolvedBy *string
}

// RecordResolution closes an escalation. Time to resolution is measured
// from the escalation's creation, not the handoff, so it captures the
// full customer-facing latency. Without a handoff the resolver is the
// "system" sentinel.
func (s *ResolutionService) RecordResolution(ctx context.Context, escalationID string, input ResolutionInput) (*domain.Resolution, error) {
	if !input.Outcome.Valid() {
		return nil, apperrors.NewValidationError("unknown outcome", map[string]any{"outcome": input.Outcome})
	}

	escalation, err := s.escalations.GetByID(ctx, escalationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("escalation", map[string]any{"escalation_id": escalationID})
		}
		return nil, apperrors.MapError(err)
	}
	if _, err := s.resolutions.GetByEscalation(ctx, escalationID); err == nil {
		return nil, apperrors.NewConflict("escalation already resolved", map[string]any{"escalation_id": escalationID})
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}

	now := s.clk.Now()
	ok, err := s.escalations.MarkResolved(ctx, escalationID, now)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !ok {
		return nil, apperrors.NewConflict("escalation already resolved", map[string]any{"escalation_id": escalationID})
	}

	resolvedBy := domain.SystemResolver
	if handoff, err := s.handoffs.GetActiveByEscalation(ctx, escalationID); err == nil {
		resolvedBy = handoff.OperatorID
		reason := "resolved"
		if err := s.handoffs.CloseActive(ctx, escalationID, now, &reason); err != nil {
			return nil, apperrors.MapError(err)
		}
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}
	if input.ResolvedBy != nil && strings.TrimSpace(*input.ResolvedBy) != "" {
		resolvedBy = *input.ResolvedBy
	}

	resolution := &domain.Resolution{
		ID:               uuid.NewString(),
		EscalationID:     escalationID,
		TenantID:         escalation.TenantID,
		Outcome:          input.Outcome,
		Method:           input.Method,
		Summary:          input.Summary,
		Notes:            input.Notes,
		ResolvedBy:       resolvedBy,
		ResolvedAt:       now,
		TimeToResolution: now.Sub(escalation.CreatedAt),
	}
	if err := s.resolutions.Create(ctx, resolution); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.queue.Remove(escalationID)
	s.invalidateMetrics(ctx, escalation.TenantID)

	s.publishEvent(ctx, events.Event{
		Type:         events.EventEscalationResolved,
		EscalationID: escalationID,
		TenantID:     escalation.TenantID,
		Payload: events.EscalationResolvedPayload{
			ResolutionID: resolution.ID,
			Outcome:      resolution.Outcome,
			ResolvedBy:   resolution.ResolvedBy,
		},
	})
	return resolution, nil
}

// GetResolution returns a resolution with its amendment history.
func (s *ResolutionService) GetResolution(ctx context.Context, id string) (*domain.Resolution, error) {
	resolution, err := s.resolutions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("resolution", map[string]any{"resolution_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	return resolution, nil
}

// AmendmentInput describes an outcome correction.
type AmendmentInput struct {
	NewOutcome         domain.ResolutionOutcome
	Reason             string
	AmendedBy          string
	SupervisorOverride bool
}

// AmendResolution appends an outcome correction. Outside the amendment
// window a non-overridden request fails with AMENDMENT_WINDOW_EXPIRED,
// which is recoverable by resubmitting with supervisor override. History
// is append-only; nothing is ever overwritten.
func (s *ResolutionService) AmendResolution(ctx context.Context, resolutionID string, input AmendmentInput) (*domain.Resolution, error) {
	if !input.NewOutcome.Valid() {
		return nil, apperrors.NewValidationError("unknown outcome", map[string]any{"outcome": input.NewOutcome})
	}
	if strings.TrimSpace(input.AmendedBy) == "" {
		return nil, apperrors.NewValidationError("amended_by required", nil)
	}

	resolution, err := s.GetResolution(ctx, resolutionID)
	if err != nil {
		return nil, err
	}

	now := s.clk.Now()
	window := s.engine.AmendmentWindow()
	if !input.SupervisorOverride && now.Sub(resolution.ResolvedAt) > window {
		return nil, apperrors.NewWindowExpired("amendment window expired", map[string]any{
			"resolution_id": resolutionID,
			"resolved_at":   resolution.ResolvedAt,
			"window":        window.String(),
		})
	}

	amendment := &domain.Amendment{
		ID:                 uuid.NewString(),
		ResolutionID:       resolutionID,
		AmendedAt:          now,
		AmendedBy:          input.AmendedBy,
		PreviousOutcome:    resolution.FinalOutcome(),
		NewOutcome:         input.NewOutcome,
		Reason:             input.Reason,
		SupervisorOverride: input.SupervisorOverride,
	}
	if err := s.resolutions.AppendAmendment(ctx, amendment); err != nil {
		return nil, apperrors.MapError(err)
	}
	resolution.Amendments = append(resolution.Amendments, *amendment)
	s.invalidateMetrics(ctx, resolution.TenantID)

	s.publishEvent(ctx, events.Event{
		Type:         events.EventResolutionAmended,
		EscalationID: resolution.EscalationID,
		TenantID:     resolution.TenantID,
		Payload: events.ResolutionAmendedPayload{
			ResolutionID:       resolutionID,
			PreviousOutcome:    amendment.PreviousOutcome,
			NewOutcome:         amendment.NewOutcome,
			SupervisorOverride: amendment.SupervisorOverride,
		},
	})
	return resolution, nil
}

// FeedbackInput describes a post-resolution signal.
type FeedbackInput struct {
	Source         domain.FeedbackSource
	Rating         *int
	SelfAssessment *string
	Method         string
}

// RecordFeedback validates and stores post-resolution feedback.
func (s *ResolutionService) RecordFeedback(ctx context.Context, resolutionID string, input FeedbackInput) (*domain.Feedback, error) {
	if !input.Source.Valid() {
		return nil, apperrors.NewValidationError("unknown feedback source", map[string]any{"source": input.Source})
	}
	if input.Rating == nil && input.SelfAssessment == nil {
		return nil, apperrors.NewValidationError("rating or self_assessment required", nil)
	}
	if input.Rating != nil && (*input.Rating < 1 || *input.Rating > 5) {
		return nil, apperrors.NewValidationError("rating must be between 1 and 5", map[string]any{"rating": *input.Rating})
	}

	resolution, err := s.GetResolution(ctx, resolutionID)
	if err != nil {
		return nil, err
	}

	feedback := &domain.Feedback{
		ID:             uuid.NewString(),
		ResolutionID:   resolutionID,
		TenantID:       resolution.TenantID,
		Source:         input.Source,
		Rating:         input.Rating,
		SelfAssessment: input.SelfAssessment,
		Method:         input.Method,
		CreatedAt:      s.clk.Now(),
	}
	if err := s.feedback.Create(ctx, feedback); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.invalidateMetrics(ctx, resolution.TenantID)
	return feedback, nil
}

// ListFeedback returns the feedback recorded for a resolution.
func (s *ResolutionService) ListFeedback(ctx context.Context, resolutionID string) ([]domain.Feedback, error) {
	if _, err := s.GetResolution(ctx, resolutionID); err != nil {
		return nil, err
	}
	result, err := s.feedback.ListByResolution(ctx, resolutionID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return result, nil
}

func (s *ResolutionService) invalidateMetrics(ctx context.Context, tenantID string) {
	if s.metricsCch == nil {
		return
	}
	_ = s.metricsCch.InvalidateTenant(ctx, tenantID)
}

func (s *ResolutionService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = s.clk.Now()
	_ = s.dispatcher.Publish(ctx, event)
}

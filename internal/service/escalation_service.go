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
	"github.com/spec-kit/escalation-engine/internal/trigger"
	apperrors "github.com/spec-kit/escalation-engine/pkg/util/errorutil"
)

// RuleSetProvider supplies the evaluation rule set for a tenant.
type RuleSetProvider interface {
	RulesFor(tenantID string) trigger.RuleSet
}

// StaticRuleSetProvider serves a default rule set with optional per-tenant
// overrides. Rule sets are values, so tenants never interfere.
type StaticRuleSetProvider struct {
	Default   trigger.RuleSet
	Overrides map[string]trigger.RuleSet
}

// RulesFor returns the tenant's rule set or the default.
func (p StaticRuleSetProvider) RulesFor(tenantID string) trigger.RuleSet {
	if rules, ok := p.Overrides[tenantID]; ok {
		return rules
	}
	return p.Default
}

// EscalationService owns admission: evaluating conversation content and
// creating escalations in the store and queue.
type EscalationService struct {
	escalations repository.EscalationRepository
	handoffs    repository.HandoffRepository
	queue       *queue.Queue
	rules       RuleSetProvider
	dispatcher  events.Dispatcher
	clk         clock.Clock
}

// EscalationDependencies bundles collaborators.
type EscalationDependencies struct {
	EscalationRepo repository.EscalationRepository
	HandoffRepo    repository.HandoffRepository
	Queue          *queue.Queue
	Rules          RuleSetProvider
	Dispatcher     events.Dispatcher
	Clock          clock.Clock
}

// NewEscalationService constructs the service.
func NewEscalationService(deps EscalationDependencies) *EscalationService {
	return &EscalationService{
		escalations: deps.EscalationRepo,
		handoffs:    deps.HandoffRepo,
		queue:       deps.Queue,
		rules:       deps.Rules,
		dispatcher:  deps.Dispatcher,
		clk:         deps.Clock,
	}
}

// AdmitInput describes an admission request.
type AdmitInput struct {
	TenantID    string
	ThreadRef   string
	Messages    []trigger.Message
	Participant *trigger.ParticipantContext
}

// Admit evaluates the conversation and creates an escalation when any
// trigger fires. A nil escalation with nil error means nothing matched,
// which is a normal outcome, not a fault.
func (s *EscalationService) Admit(ctx context.Context, input AdmitInput) (*domain.Escalation, error) {
	if strings.TrimSpace(input.TenantID) == "" {
		return nil, apperrors.NewValidationError("tenant_id required", nil)
	}
	if strings.TrimSpace(input.ThreadRef) == "" {
		return nil, apperrors.NewValidationError("thread_ref required", nil)
	}

	evaluation := trigger.Evaluate(input.Messages, input.Participant, s.rules.RulesFor(input.TenantID))
	if !evaluation.Matched() {
		return nil, nil
	}

	now := s.clk.Now()
	escalation := &domain.Escalation{
		ID:        uuid.NewString(),
		TenantID:  input.TenantID,
		ThreadRef: input.ThreadRef,
		Priority:  evaluation.Priority,
		Triggers:  evaluation.Triggers,
		Status:    domain.EscalationStatusPending,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.escalations.Create(ctx, escalation); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.queue.Enqueue(escalation)

	categories := make([]domain.TriggerCategory, 0, len(escalation.Triggers))
	for _, trig := range escalation.Triggers {
		categories = append(categories, trig.Category)
	}
	s.publishEvent(ctx, events.Event{
		Type:         events.EventEscalationCreated,
		EscalationID: escalation.ID,
		TenantID:     escalation.TenantID,
		Payload: events.EscalationCreatedPayload{
			ThreadRef:  escalation.ThreadRef,
			Priority:   escalation.Priority,
			Categories: categories,
		},
	})
	return escalation, nil
}

// Get returns one escalation.
func (s *EscalationService) Get(ctx context.Context, id string) (*domain.Escalation, error) {
	escalation, err := s.escalations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("escalation", map[string]any{"escalation_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	return escalation, nil
}

// List returns escalations matching the filter.
func (s *EscalationService) List(ctx context.Context, filter repository.EscalationFilter) ([]domain.Escalation, error) {
	result, err := s.escalations.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return result, nil
}

// ListHandoffs returns the full handoff history of an escalation.
func (s *EscalationService) ListHandoffs(ctx context.Context, escalationID string) ([]domain.Handoff, error) {
	if _, err := s.Get(ctx, escalationID); err != nil {
		return nil, err
	}
	handoffs, err := s.handoffs.ListByEscalation(ctx, escalationID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return handoffs, nil
}

// RebuildQueue reloads the admission view from the store. The store is
// the authority; the queue is recomputable after a crash.
func (s *EscalationService) RebuildQueue(ctx context.Context) error {
	pending, err := s.escalations.ListPending(ctx)
	if err != nil {
		return apperrors.MapError(err)
	}
	s.queue.Rebuild(pending)
	return nil
}

func (s *EscalationService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = s.clk.Now()
	_ = s.dispatcher.Publish(ctx, event)
}

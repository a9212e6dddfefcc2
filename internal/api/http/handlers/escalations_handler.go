package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/escalation-engine/internal/api/dto"
	"github.com/spec-kit/escalation-engine/internal/domain"
	"github.com/spec-kit/escalation-engine/internal/queue"
	"github.com/spec-kit/escalation-engine/internal/repository"
	"github.com/spec-kit/escalation-engine/internal/service"
	"github.com/spec-kit/escalation-engine/internal/trigger"
	apperrors "github.com/spec-kit/escalation-engine/pkg/util/errorutil"
)

// EscalationsHandler manages escalation lifecycle endpoints.
type EscalationsHandler struct {
	escalations *service.EscalationService
	handoffs    *service.HandoffService
}

// NewEscalationsHandler constructs handler.
func NewEscalationsHandler(escalations *service.EscalationService, handoffs *service.HandoffService) *EscalationsHandler {
	return &EscalationsHandler{escalations: escalations, handoffs: handoffs}
}

// Admit POST /escalations/admit.
func (h *EscalationsHandler) Admit(c *fiber.Ctx) error {
	var req dto.AdmitRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if len(req.Messages) == 0 {
		return apperrors.NewValidationError("messages required", nil)
	}

	messages := make([]trigger.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, trigger.Message{ID: m.ID, Text: m.Text})
	}
	input := service.AdmitInput{
		TenantID:  req.TenantID,
		ThreadRef: req.ThreadRef,
		Messages:  messages,
	}
	if req.Participant != nil {
		input.Participant = &trigger.ParticipantContext{
			VIP:              req.Participant.VIP,
			FollowerCount:    req.Participant.FollowerCount,
			PriorEscalations: req.Participant.PriorEscalations,
			RecentComplaints: req.Participant.RecentComplaints,
			SentimentScore:   req.Participant.SentimentScore,
		}
	}

	escalation, err := h.escalations.Admit(c.Context(), input)
	if err != nil {
		return err
	}
	if escalation == nil {
		return c.JSON(fiber.Map{"data": nil, "escalated": false})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": escalationResponse(escalation), "escalated": true})
}

// List GET /escalations.
func (h *EscalationsHandler) List(c *fiber.Ctx) error {
	filter := parseEscalationQuery(c)
	escalations, err := h.escalations.List(c.Context(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.EscalationResponse, 0, len(escalations))
	for i := range escalations {
		items = append(items, escalationResponse(&escalations[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /escalations/:id.
func (h *EscalationsHandler) Get(c *fiber.Ctx) error {
	escalation, err := h.escalations.Get(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": escalationResponse(escalation)})
}

// Next GET /escalations/next returns the head of the work queue without
// claiming it.
func (h *EscalationsHandler) Next(c *fiber.Ctx) error {
	filter := queue.Filter{}
	if tenant := c.Query("tenant_id"); tenant != "" {
		filter.TenantID = &tenant
	}
	for _, part := range splitCSV(c.Query("priority")) {
		filter.Priorities = append(filter.Priorities, domain.Priority(part))
	}

	escalation := h.handoffs.PeekNext(filter)
	if escalation == nil {
		return c.JSON(fiber.Map{"data": nil})
	}
	return c.JSON(fiber.Map{"data": escalationResponse(escalation)})
}

// Assign POST /escalations/:id/assign.
func (h *EscalationsHandler) Assign(c *fiber.Ctx) error {
	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.OperatorID) == "" {
		return apperrors.NewValidationError("operator_id required", nil)
	}
	escalation, err := h.handoffs.Assign(c.Context(), c.Params("id"), req.OperatorID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": escalationResponse(escalation)})
}

// Release POST /escalations/:id/release.
func (h *EscalationsHandler) Release(c *fiber.Ctx) error {
	var req dto.ReleaseRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	escalation, err := h.handoffs.Release(c.Context(), c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": escalationResponse(escalation)})
}

// EscalatePriority POST /escalations/:id/priority.
func (h *EscalationsHandler) EscalatePriority(c *fiber.Ctx) error {
	var req dto.EscalatePriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	escalation, err := h.handoffs.EscalatePriority(c.Context(), c.Params("id"), req.Priority, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": escalationResponse(escalation)})
}

// ListHandoffs GET /escalations/:id/handoffs.
func (h *EscalationsHandler) ListHandoffs(c *fiber.Ctx) error {
	handoffs, err := h.escalations.ListHandoffs(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.HandoffResponse, 0, len(handoffs))
	for i := range handoffs {
		items = append(items, handoffResponse(&handoffs[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func parseEscalationQuery(c *fiber.Ctx) repository.EscalationFilter {
	filter := repository.EscalationFilter{}
	if tenant := c.Query("tenant_id"); tenant != "" {
		filter.TenantID = &tenant
	}
	for _, part := range splitCSV(c.Query("status")) {
		filter.Statuses = append(filter.Statuses, domain.EscalationStatus(part))
	}
	for _, part := range splitCSV(c.Query("priority")) {
		filter.Priorities = append(filter.Priorities, domain.Priority(part))
	}
	if assignee := c.Query("assigned_to"); assignee != "" {
		filter.AssignedTo = &assignee
	}
	if from := parseTime(c.Query("created_from")); from != nil {
		filter.CreatedFrom = from
	}
	if to := parseTime(c.Query("created_to")); to != nil {
		filter.CreatedTo = to
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func splitCSV(val string) []string {
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func escalationResponse(escalation *domain.Escalation) dto.EscalationResponse {
	triggers := make([]dto.TriggerResponse, 0, len(escalation.Triggers))
	for _, t := range escalation.Triggers {
		triggers = append(triggers, dto.TriggerResponse{
			Category:       t.Category,
			MessageID:      t.MessageID,
			MatchedKeyword: t.MatchedKeyword,
			Confidence:     t.Confidence,
		})
	}
	return dto.EscalationResponse{
		ID:         escalation.ID,
		TenantID:   escalation.TenantID,
		ThreadRef:  escalation.ThreadRef,
		Priority:   escalation.Priority,
		Status:     escalation.Status,
		Triggers:   triggers,
		AssignedTo: escalation.AssignedTo,
		AssignedAt: escalation.AssignedAt,
		CreatedAt:  escalation.CreatedAt,
		UpdatedAt:  escalation.UpdatedAt,
	}
}

func handoffResponse(handoff *domain.Handoff) dto.HandoffResponse {
	return dto.HandoffResponse{
		ID:            handoff.ID,
		EscalationID:  handoff.EscalationID,
		OperatorID:    handoff.OperatorID,
		AssignedAt:    handoff.AssignedAt,
		ReleasedAt:    handoff.ReleasedAt,
		ReleaseReason: handoff.ReleaseReason,
	}
}

package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/escalation-engine/internal/api/dto"
	"github.com/spec-kit/escalation-engine/internal/auth"
	"github.com/spec-kit/escalation-engine/internal/domain"
	"github.com/spec-kit/escalation-engine/internal/service"
	apperrors "github.com/spec-kit/escalation-engine/pkg/util/errorutil"
)

// ResolutionsHandler manages resolution and amendment endpoints.
type ResolutionsHandler struct {
	service *service.ResolutionService
}

// NewResolutionsHandler constructs handler.
func NewResolutionsHandler(resolutionService *service.ResolutionService) *ResolutionsHandler {
	return &ResolutionsHandler{service: resolutionService}
}

// Resolve POST /escalations/:id/resolve.
func (h *ResolutionsHandler) Resolve(c *fiber.Ctx) error {
	var req dto.ResolveRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	resolution, err := h.service.RecordResolution(c.Context(), c.Params("id"), service.ResolutionInput{
		Outcome:    req.Outcome,
		Method:     req.Method,
		Summary:    req.Summary,
		Notes:      req.Notes,
		ResolvedBy: req.ResolvedBy,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": resolutionResponse(resolution)})
}

// Get GET /resolutions/:id.
func (h *ResolutionsHandler) Get(c *fiber.Ctx) error {
	resolution, err := h.service.GetResolution(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": resolutionResponse(resolution)})
}

// Amend POST /resolutions/:id/amendments. The amender is the
// authenticated operator; an override request additionally needs a
// supervisor or admin role.
func (h *ResolutionsHandler) Amend(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Operator == nil {
		return apperrors.NewUnauthorized("operator required")
	}
	var req dto.AmendRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.SupervisorOverride && !principal.Operator.CanOverrideAmendments() {
		return apperrors.NewForbidden("supervisor role required for override")
	}

	resolution, err := h.service.AmendResolution(c.Context(), c.Params("id"), service.AmendmentInput{
		NewOutcome:         req.NewOutcome,
		Reason:             req.Reason,
		AmendedBy:          principal.Operator.ID,
		SupervisorOverride: req.SupervisorOverride,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": resolutionResponse(resolution)})
}

// AddFeedback POST /resolutions/:id/feedback.
func (h *ResolutionsHandler) AddFeedback(c *fiber.Ctx) error {
	var req dto.FeedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	feedback, err := h.service.RecordFeedback(c.Context(), c.Params("id"), service.FeedbackInput{
		Source:         req.Source,
		Rating:         req.Rating,
		SelfAssessment: req.SelfAssessment,
		Method:         req.Method,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": feedbackResponse(feedback)})
}

// ListFeedback GET /resolutions/:id/feedback.
func (h *ResolutionsHandler) ListFeedback(c *fiber.Ctx) error {
	entries, err := h.service.ListFeedback(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.FeedbackResponse, 0, len(entries))
	for i := range entries {
		items = append(items, feedbackResponse(&entries[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func resolutionResponse(resolution *domain.Resolution) dto.ResolutionResponse {
	amendments := make([]dto.AmendmentResponse, 0, len(resolution.Amendments))
	for _, amendment := range resolution.Amendments {
		amendments = append(amendments, dto.AmendmentResponse{
			ID:                 amendment.ID,
			AmendedAt:          amendment.AmendedAt,
			AmendedBy:          amendment.AmendedBy,
			PreviousOutcome:    amendment.PreviousOutcome,
			NewOutcome:         amendment.NewOutcome,
			Reason:             amendment.Reason,
			SupervisorOverride: amendment.SupervisorOverride,
		})
	}
	return dto.ResolutionResponse{
		ID:                 resolution.ID,
		EscalationID:       resolution.EscalationID,
		TenantID:           resolution.TenantID,
		Outcome:            resolution.Outcome,
		FinalOutcome:       resolution.FinalOutcome(),
		Method:             resolution.Method,
		Summary:            resolution.Summary,
		Notes:              resolution.Notes,
		ResolvedBy:         resolution.ResolvedBy,
		ResolvedAt:         resolution.ResolvedAt,
		TimeToResolutionMs: resolution.TimeToResolution.Milliseconds(),
		Amendments:         amendments,
	}
}

func feedbackResponse(feedback *domain.Feedback) dto.FeedbackResponse {
	return dto.FeedbackResponse{
		ID:             feedback.ID,
		ResolutionID:   feedback.ResolutionID,
		Source:         feedback.Source,
		Rating:         feedback.Rating,
		SelfAssessment: feedback.SelfAssessment,
		Method:         feedback.Method,
		CreatedAt:      feedback.CreatedAt,
	}
}

package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/escalation-engine/internal/api/dto"
	"github.com/spec-kit/escalation-engine/internal/auth"
	"github.com/spec-kit/escalation-engine/internal/domain"
	"github.com/spec-kit/escalation-engine/internal/service"
	apperrors "github.com/spec-kit/escalation-engine/pkg/util/errorutil"
)

// OperatorsHandler manages operator account endpoints.
type OperatorsHandler struct {
	service *service.AuthService
}

// NewOperatorsHandler constructs handler.
func NewOperatorsHandler(authService *service.AuthService) *OperatorsHandler {
	return &OperatorsHandler{service: authService}
}

// Register POST /auth/operators/register.
func (h *OperatorsHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterOperatorRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	role := req.Role
	if role == "" {
		role = domain.RoleOperator
	}
	operator, err := h.service.RegisterOperator(c.Context(), req.Name, req.Email, req.Password, role)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": operatorResponse(operator)})
}

// Login POST /auth/operators/login.
func (h *OperatorsHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	operator, token, expiresAt, err := h.service.Login(c.Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AuthResponse{
		Operator:  operatorResponse(operator),
		Token:     token,
		ExpiresAt: expiresAt,
	}})
}

// Me GET /auth/operators/me.
func (h *OperatorsHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Operator == nil {
		return apperrors.NewUnauthorized("operator required")
	}
	return c.JSON(fiber.Map{"data": operatorResponse(principal.Operator)})
}

func operatorResponse(operator *domain.Operator) dto.OperatorResponse {
	return dto.OperatorResponse{
		ID:        operator.ID,
		Email:     operator.Email,
		Name:      operator.Name,
		Role:      operator.Role,
		Active:    operator.Active,
		CreatedAt: operator.CreatedAt,
	}
}

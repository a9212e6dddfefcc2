package dto

import (
	"time"

	"github.com/spec-kit/escalation-engine/internal/domain"
)

// RegisterOperatorRequest payload.
type RegisterOperatorRequest struct {
	Name     string              `json:"name"`
	Email    string              `json:"email"`
	Password string              `json:"password"`
	Role     domain.OperatorRole `json:"role"`
}

// LoginRequest payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// OperatorResponse payload.
type OperatorResponse struct {
	ID        string              `json:"id"`
	Email     string              `json:"email"`
	Name      string              `json:"name"`
	Role      domain.OperatorRole `json:"role"`
	Active    bool                `json:"active"`
	CreatedAt time.Time           `json:"created_at"`
}

// AuthResponse wraps an operator with its access token.
type AuthResponse struct {
	Operator  OperatorResponse `json:"operator"`
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
}

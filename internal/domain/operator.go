package domain

import "time"

// OperatorRole enumerates operator privilege levels.
type OperatorRole string

const (
	RoleOperator   OperatorRole = "OPERATOR"
	RoleSupervisor OperatorRole = "SUPERVISOR"
	RoleAdmin      OperatorRole = "ADMIN"
)

// Operator is a human who works escalations. Escalations reference
// operators by id only.
type Operator struct {
	ID           string
	Email        string
	Name         string
	Role         OperatorRole
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
}

// CanOverrideAmendments reports whether the operator may amend a
// resolution outside the amendment window.
func (o *Operator) CanOverrideAmendments() bool {
	return o.Role == RoleSupervisor || o.Role == RoleAdmin
}

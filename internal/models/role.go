package models

import "time"

// RoleKind distinguishes receive-side from approve-side workflow roles.
type RoleKind string

const (
	RoleKindReceiver RoleKind = "RECEIVER"
	RoleKindApprover RoleKind = "APPROVER"
)

// WorkflowRole is a named authorization group of a single kind. Roles are
// deactivated rather than deleted so historic memberships stay explainable.
type WorkflowRole struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Kind        RoleKind  `db:"kind" json:"kind"`
	Description string    `db:"description" json:"description,omitempty"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// RoleMember links a user into a workflow role. Unique per (role, user).
type RoleMember struct {
	ID         string    `db:"id" json:"id"`
	RoleID     string    `db:"role_id" json:"role_id"`
	UserID     string    `db:"user_id" json:"user_id"`
	AssignedBy string    `db:"assigned_by" json:"assigned_by"`
	AssignedAt time.Time `db:"assigned_at" json:"assigned_at"`
}

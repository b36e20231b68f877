package dto

import "github.com/plantops/workflow-api/internal/models"

// CreateRoleRequest payload for defining a workflow role.
type CreateRoleRequest struct {
	Name        string          `json:"name" binding:"required,max=100"`
	Kind        models.RoleKind `json:"kind" binding:"required"`
	Description string          `json:"description"`
}

// AssignMemberRequest payload for adding a user to a role.
type AssignMemberRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// UpsertRouteRequest payload for creating or replacing a type route.
type UpsertRouteRequest struct {
	ApplicationType models.ApplicationType `json:"application_type" binding:"required"`
	ReceiverRoleID  string                 `json:"receiver_role_id" binding:"required"`
	ApproverRoleID  string                 `json:"approver_role_id" binding:"required"`
	Active          bool                   `json:"active"`
}

// RoleDetail combines a role with its membership.
type RoleDetail struct {
	Role    *models.WorkflowRole `json:"role"`
	Members []models.RoleMember  `json:"members"`
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/plantops/workflow-api/internal/models"
)

// uniqueViolation is the PostgreSQL error code for unique constraint breaks.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}

// RoleRepository provides database access for workflow roles and their
// membership.
type RoleRepository struct {
	db *sqlx.DB
}

// NewRoleRepository creates a new instance of RoleRepository.
func NewRoleRepository(db *sqlx.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

const roleColumns = `id, name, kind, description, active, created_at, updated_at`

// Create inserts a new workflow role.
func (r *RoleRepository) Create(ctx context.Context, role *models.WorkflowRole) error {
	if role.ID == "" {
		role.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	role.CreatedAt = now
	role.UpdatedAt = now

	const query = `INSERT INTO workflow_roles (id, name, kind, description, active, created_at, updated_at)
		VALUES (:id, :name, :kind, :description, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, role); err != nil {
		if isUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("create workflow role: %w", err)
	}
	return nil
}

// GetByID returns a role by identifier.
func (r *RoleRepository) GetByID(ctx context.Context, id string) (*models.WorkflowRole, error) {
	query := fmt.Sprintf(`SELECT %s FROM workflow_roles WHERE id = $1 LIMIT 1`, roleColumns)
	var role models.WorkflowRole
	if err := r.db.GetContext(ctx, &role, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find workflow role: %w", err)
	}
	return &role, nil
}

// List returns all roles, optionally filtered by kind.
func (r *RoleRepository) List(ctx context.Context, kind models.RoleKind) ([]models.WorkflowRole, error) {
	var roles []models.WorkflowRole
	if kind == "" {
		query := fmt.Sprintf(`SELECT %s FROM workflow_roles ORDER BY kind, name`, roleColumns)
		if err := r.db.SelectContext(ctx, &roles, query); err != nil {
			return nil, fmt.Errorf("list workflow roles: %w", err)
		}
		return roles, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM workflow_roles WHERE kind = $1 ORDER BY name`, roleColumns)
	if err := r.db.SelectContext(ctx, &roles, query, kind); err != nil {
		return nil, fmt.Errorf("list workflow roles: %w", err)
	}
	return roles, nil
}

// SetActive toggles a role. Deactivation excludes the role from capability
// resolution but keeps its history.
func (r *RoleRepository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE workflow_roles SET active = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set workflow role active: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AssignMember adds a user to a role. Duplicate (role, user) pairs surface
// the unique violation untouched for the service to map.
func (r *RoleRepository) AssignMember(ctx context.Context, member *models.RoleMember) error {
	if member.ID == "" {
		member.ID = uuid.NewString()
	}
	if member.AssignedAt.IsZero() {
		member.AssignedAt = time.Now().UTC()
	}
	const query = `INSERT INTO role_members (id, role_id, user_id, assigned_by, assigned_at)
		VALUES (:id, :role_id, :user_id, :assigned_by, :assigned_at)`
	if _, err := r.db.NamedExecContext(ctx, query, member); err != nil {
		if isUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("assign role member: %w", err)
	}
	return nil
}

// RemoveMember deletes a membership.
func (r *RoleRepository) RemoveMember(ctx context.Context, roleID, userID string) error {
	const query = `DELETE FROM role_members WHERE role_id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, roleID, userID)
	if err != nil {
		return fmt.Errorf("remove role member: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListMembers returns the membership of a role.
func (r *RoleRepository) ListMembers(ctx context.Context, roleID string) ([]models.RoleMember, error) {
	const query = `SELECT id, role_id, user_id, assigned_by, assigned_at FROM role_members WHERE role_id = $1 ORDER BY assigned_at`
	var members []models.RoleMember
	if err := r.db.SelectContext(ctx, &members, query, roleID); err != nil {
		return nil, fmt.Errorf("list role members: %w", err)
	}
	return members, nil
}

// MemberUserIDs returns the user ids belonging to a role.
func (r *RoleRepository) MemberUserIDs(ctx context.Context, roleID string) ([]string, error) {
	const query = `SELECT user_id FROM role_members WHERE role_id = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, roleID); err != nil {
		return nil, fmt.Errorf("list role member ids: %w", err)
	}
	return ids, nil
}

// IsMember reports whether the user belongs to the role.
func (r *RoleRepository) IsMember(ctx context.Context, roleID, userID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM role_members WHERE role_id = $1 AND user_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, roleID, userID); err != nil {
		return false, fmt.Errorf("check role member: %w", err)
	}
	return exists, nil
}

// RolesOf returns the ids of the active roles of the given kind the user
// belongs to.
func (r *RoleRepository) RolesOf(ctx context.Context, userID string, kind models.RoleKind) ([]string, error) {
	const query = `SELECT wr.id FROM workflow_roles wr
		JOIN role_members rm ON rm.role_id = wr.id
		WHERE rm.user_id = $1 AND wr.kind = $2 AND wr.active = TRUE`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, userID, kind); err != nil {
		return nil, fmt.Errorf("roles of user: %w", err)
	}
	return ids, nil
}

// MemberIDsOfKind returns the distinct user ids belonging to any active role
// of the given kind. Notification fallback when a type has no active route.
func (r *RoleRepository) MemberIDsOfKind(ctx context.Context, kind models.RoleKind) ([]string, error) {
	const query = `SELECT DISTINCT rm.user_id FROM role_members rm
		JOIN workflow_roles wr ON wr.id = rm.role_id
		WHERE wr.kind = $1 AND wr.active = TRUE`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, kind); err != nil {
		return nil, fmt.Errorf("list members of kind: %w", err)
	}
	return ids, nil
}

// HasActiveRoleOfKind reports whether the user holds any active role of the
// given kind. Used by the return/reject authorization checks.
func (r *RoleRepository) HasActiveRoleOfKind(ctx context.Context, userID string, kind models.RoleKind) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM workflow_roles wr
		JOIN role_members rm ON rm.role_id = wr.id
		WHERE rm.user_id = $1 AND wr.kind = $2 AND wr.active = TRUE)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, userID, kind); err != nil {
		return false, fmt.Errorf("check role of kind: %w", err)
	}
	return exists, nil
}

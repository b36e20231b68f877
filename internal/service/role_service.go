package service

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/plantops/workflow-api/internal/dto"
	"github.com/plantops/workflow-api/internal/models"
	appErrors "github.com/plantops/workflow-api/pkg/errors"
)

type roleRepo interface {
	Create(ctx context.Context, role *models.WorkflowRole) error
	GetByID(ctx context.Context, id string) (*models.WorkflowRole, error)
	List(ctx context.Context, kind models.RoleKind) ([]models.WorkflowRole, error)
	SetActive(ctx context.Context, id string, active bool) error
	AssignMember(ctx context.Context, member *models.RoleMember) error
	RemoveMember(ctx context.Context, roleID, userID string) error
	ListMembers(ctx context.Context, roleID string) ([]models.RoleMember, error)
}

type routeRepo interface {
	List(ctx context.Context) ([]models.TypeRoute, error)
	GetByID(ctx context.Context, id string) (*models.TypeRoute, error)
	ActiveRoute(ctx context.Context, appType models.ApplicationType) (*models.TypeRoute, error)
	Create(ctx context.Context, route *models.TypeRoute) error
	Update(ctx context.Context, route *models.TypeRoute) error
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type capabilityInvalidator interface {
	InvalidateUser(ctx context.Context, userID string) error
	InvalidateAll(ctx context.Context) error
}

// RoleService covers the admin surface: role definitions, memberships and
// type routes. Every write invalidates the affected capability cache
// entries synchronously.
type RoleService struct {
	roles        roleRepo
	routes       routeRepo
	users        userReader
	capabilities capabilityInvalidator
	logger       *zap.Logger
}

// NewRoleService constructs RoleService.
func NewRoleService(roles roleRepo, routes routeRepo, users userReader, capabilities capabilityInvalidator, logger *zap.Logger) *RoleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoleService{roles: roles, routes: routes, users: users, capabilities: capabilities, logger: logger}
}

func validRoleKind(kind models.RoleKind) bool {
	return kind == models.RoleKindReceiver || kind == models.RoleKindApprover
}

// CreateRole defines a new workflow role.
func (s *RoleService) CreateRole(ctx context.Context, req dto.CreateRoleRequest) (*models.WorkflowRole, error) {
	if !validRoleKind(req.Kind) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role kind")
	}
	role := &models.WorkflowRole{
		Name:        req.Name,
		Kind:        req.Kind,
		Description: req.Description,
		Active:      true,
	}
	if err := s.roles.Create(ctx, role); err != nil {
		if isUniqueViolationErr(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "role name already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create role")
	}
	s.logger.Info("role created", zap.String("role_id", role.ID), zap.String("kind", string(role.Kind)))
	return role, nil
}

// ListRoles returns roles, optionally filtered by kind.
func (s *RoleService) ListRoles(ctx context.Context, kind models.RoleKind) ([]models.WorkflowRole, error) {
	if kind != "" && !validRoleKind(kind) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role kind")
	}
	roles, err := s.roles.List(ctx, kind)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list roles")
	}
	return roles, nil
}

// GetRole returns a role with its membership.
func (s *RoleService) GetRole(ctx context.Context, id string) (*dto.RoleDetail, error) {
	role, err := s.loadRole(ctx, id)
	if err != nil {
		return nil, err
	}
	members, err := s.roles.ListMembers(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list role members")
	}
	return &dto.RoleDetail{Role: role, Members: members}, nil
}

// SetRoleActive toggles a role. Deactivation keeps memberships but removes
// the role from capability resolution, so the whole cache is flushed.
func (s *RoleService) SetRoleActive(ctx context.Context, id string, active bool) error {
	if err := s.roles.SetActive(ctx, id, active); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "role not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update role")
	}
	if err := s.capabilities.InvalidateAll(ctx); err != nil {
		s.logger.Warn("capability cache flush after role update failed", zap.Error(err))
	}
	return nil
}

// AssignMember adds a user to a role and invalidates that user's cached
// capability sets.
func (s *RoleService) AssignMember(ctx context.Context, roleID string, req dto.AssignMemberRequest, assignedBy string) (*models.RoleMember, error) {
	if _, err := s.loadRole(ctx, roleID); err != nil {
		return nil, err
	}
	if _, err := s.users.FindByID(ctx, req.UserID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	member := &models.RoleMember{RoleID: roleID, UserID: req.UserID, AssignedBy: assignedBy}
	if err := s.roles.AssignMember(ctx, member); err != nil {
		if isUniqueViolationErr(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "user already belongs to this role")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign member")
	}
	if err := s.capabilities.InvalidateUser(ctx, req.UserID); err != nil {
		s.logger.Warn("capability invalidation after assignment failed", zap.String("user_id", req.UserID), zap.Error(err))
	}
	return member, nil
}

// RemoveMember detaches a user from a role and invalidates their cached
// capability sets.
func (s *RoleService) RemoveMember(ctx context.Context, roleID, userID string) error {
	if err := s.roles.RemoveMember(ctx, roleID, userID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "membership not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove member")
	}
	if err := s.capabilities.InvalidateUser(ctx, userID); err != nil {
		s.logger.Warn("capability invalidation after removal failed", zap.String("user_id", userID), zap.Error(err))
	}
	return nil
}

// ListRoutes returns every type route, active or not.
func (s *RoleService) ListRoutes(ctx context.Context) ([]models.TypeRoute, error) {
	routes, err := s.routes.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list routes")
	}
	return routes, nil
}

// CreateRoute installs a new type route. The receiver side must point at a
// receiver-kind role and the approver side at an approver-kind role, and at
// most one active route may exist per type.
func (s *RoleService) CreateRoute(ctx context.Context, req dto.UpsertRouteRequest) (*models.TypeRoute, error) {
	if err := s.validateRoute(ctx, req); err != nil {
		return nil, err
	}
	route := &models.TypeRoute{
		ApplicationType: req.ApplicationType,
		ReceiverRoleID:  req.ReceiverRoleID,
		ApproverRoleID:  req.ApproverRoleID,
		Active:          req.Active,
	}
	if err := s.routes.Create(ctx, route); err != nil {
		if isUniqueViolationErr(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "an active route already exists for this type")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create route")
	}
	s.invalidateAfterRouteWrite(ctx)
	return route, nil
}

// UpdateRoute replaces an existing route's mapping or toggles it.
func (s *RoleService) UpdateRoute(ctx context.Context, id string, req dto.UpsertRouteRequest) (*models.TypeRoute, error) {
	route, err := s.routes.GetByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "route not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load route")
	}
	if err := s.validateRoute(ctx, req); err != nil {
		return nil, err
	}

	route.ApplicationType = req.ApplicationType
	route.ReceiverRoleID = req.ReceiverRoleID
	route.ApproverRoleID = req.ApproverRoleID
	route.Active = req.Active

	if err := s.routes.Update(ctx, route); err != nil {
		if isUniqueViolationErr(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "an active route already exists for this type")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update route")
	}
	s.invalidateAfterRouteWrite(ctx)
	return route, nil
}

func (s *RoleService) validateRoute(ctx context.Context, req dto.UpsertRouteRequest) error {
	if !models.ValidApplicationType(req.ApplicationType) {
		return appErrors.Clone(appErrors.ErrValidation, "unknown application type")
	}
	receiver, err := s.loadRole(ctx, req.ReceiverRoleID)
	if err != nil {
		return err
	}
	if receiver.Kind != models.RoleKindReceiver {
		return appErrors.Clone(appErrors.ErrValidation, "receiver side must reference a receiver role")
	}
	approver, err := s.loadRole(ctx, req.ApproverRoleID)
	if err != nil {
		return err
	}
	if approver.Kind != models.RoleKindApprover {
		return appErrors.Clone(appErrors.ErrValidation, "approver side must reference an approver role")
	}
	return nil
}

// Route writes flush the whole capability namespace.
func (s *RoleService) invalidateAfterRouteWrite(ctx context.Context) {
	if err := s.capabilities.InvalidateAll(ctx); err != nil {
		s.logger.Warn("capability cache flush after route write failed", zap.Error(err))
	}
}

func (s *RoleService) loadRole(ctx context.Context, id string) (*models.WorkflowRole, error) {
	role, err := s.roles.GetByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "role not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load role")
	}
	return role, nil
}

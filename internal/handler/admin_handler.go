package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/plantops/workflow-api/internal/dto"
	"github.com/plantops/workflow-api/internal/models"
	appErrors "github.com/plantops/workflow-api/pkg/errors"
	"github.com/plantops/workflow-api/pkg/response"
)

type roleService interface {
	CreateRole(ctx context.Context, req dto.CreateRoleRequest) (*models.WorkflowRole, error)
	ListRoles(ctx context.Context, kind models.RoleKind) ([]models.WorkflowRole, error)
	GetRole(ctx context.Context, id string) (*dto.RoleDetail, error)
	SetRoleActive(ctx context.Context, id string, active bool) error
	AssignMember(ctx context.Context, roleID string, req dto.AssignMemberRequest, assignedBy string) (*models.RoleMember, error)
	RemoveMember(ctx context.Context, roleID, userID string) error
	ListRoutes(ctx context.Context) ([]models.TypeRoute, error)
	CreateRoute(ctx context.Context, req dto.UpsertRouteRequest) (*models.TypeRoute, error)
	UpdateRoute(ctx context.Context, id string, req dto.UpsertRouteRequest) (*models.TypeRoute, error)
}

// AdminHandler exposes role and routing management. Mounted behind the
// admin RBAC gate.
type AdminHandler struct {
	service roleService
}

// NewAdminHandler constructs the handler.
func NewAdminHandler(service roleService) *AdminHandler {
	return &AdminHandler{service: service}
}

// CreateRole godoc
// @Summary Define a workflow role
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body dto.CreateRoleRequest true "Role payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/roles [post]
func (h *AdminHandler) CreateRole(c *gin.Context) {
	var req dto.CreateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid role payload"))
		return
	}
	role, err := h.service.CreateRole(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, role)
}

// ListRoles godoc
// @Summary List workflow roles
// @Tags Admin
// @Produce json
// @Param kind query string false "RECEIVER or APPROVER"
// @Success 200 {object} response.Envelope
// @Router /admin/roles [get]
func (h *AdminHandler) ListRoles(c *gin.Context) {
	roles, err := h.service.ListRoles(c.Request.Context(), models.RoleKind(c.Query("kind")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roles, nil)
}

// GetRole godoc
// @Summary Role detail with membership
// @Tags Admin
// @Produce json
// @Param id path string true "Role ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/roles/{id} [get]
func (h *AdminHandler) GetRole(c *gin.Context) {
	detail, err := h.service.GetRole(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// SetRoleActive godoc
// @Summary Activate or deactivate a role
// @Tags Admin
// @Produce json
// @Param id path string true "Role ID"
// @Param active query bool true "Target state"
// @Success 204 {object} response.Envelope
// @Router /admin/roles/{id}/active [put]
func (h *AdminHandler) SetRoleActive(c *gin.Context) {
	active, err := strconv.ParseBool(c.Query("active"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "active must be a boolean"))
		return
	}
	if err := h.service.SetRoleActive(c.Request.Context(), c.Param("id"), active); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AssignMember godoc
// @Summary Add a user to a role
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Role ID"
// @Param payload body dto.AssignMemberRequest true "Member payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/roles/{id}/members [post]
func (h *AdminHandler) AssignMember(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.AssignMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid member payload"))
		return
	}
	member, err := h.service.AssignMember(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, member)
}

// RemoveMember godoc
// @Summary Remove a user from a role
// @Tags Admin
// @Produce json
// @Param id path string true "Role ID"
// @Param userId path string true "User ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/roles/{id}/members/{userId} [delete]
func (h *AdminHandler) RemoveMember(c *gin.Context) {
	if err := h.service.RemoveMember(c.Request.Context(), c.Param("id"), c.Param("userId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListRoutes godoc
// @Summary List type routes
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/routes [get]
func (h *AdminHandler) ListRoutes(c *gin.Context) {
	routes, err := h.service.ListRoutes(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, routes, nil)
}

// CreateRoute godoc
// @Summary Install a type route
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body dto.UpsertRouteRequest true "Route payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/routes [post]
func (h *AdminHandler) CreateRoute(c *gin.Context) {
	var req dto.UpsertRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid route payload"))
		return
	}
	route, err := h.service.CreateRoute(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, route)
}

// UpdateRoute godoc
// @Summary Replace a type route
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Route ID"
// @Param payload body dto.UpsertRouteRequest true "Route payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/routes/{id} [put]
func (h *AdminHandler) UpdateRoute(c *gin.Context) {
	var req dto.UpsertRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid route payload"))
		return
	}
	route, err := h.service.UpdateRoute(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, route, nil)
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/plantops/workflow-api/internal/models"
)

// RouteRepository provides database access for type routes. The table
// carries a partial unique index on (application_type) WHERE active so only
// one route per type can be active at a time.
type RouteRepository struct {
	db *sqlx.DB
}

// NewRouteRepository creates a new instance of RouteRepository.
func NewRouteRepository(db *sqlx.DB) *RouteRepository {
	return &RouteRepository{db: db}
}

const routeColumns = `id, application_type, receiver_role_id, approver_role_id, active, created_at, updated_at`

// ActiveRoute returns the active route for a type, or nil when none is
// configured. Absence is an expected outcome, not an error.
func (r *RouteRepository) ActiveRoute(ctx context.Context, appType models.ApplicationType) (*models.TypeRoute, error) {
	query := fmt.Sprintf(`SELECT %s FROM type_routes WHERE application_type = $1 AND active = TRUE LIMIT 1`, routeColumns)
	var route models.TypeRoute
	if err := r.db.GetContext(ctx, &route, query, appType); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find active route: %w", err)
	}
	return &route, nil
}

// List returns all routes.
func (r *RouteRepository) List(ctx context.Context) ([]models.TypeRoute, error) {
	query := fmt.Sprintf(`SELECT %s FROM type_routes ORDER BY application_type`, routeColumns)
	var routes []models.TypeRoute
	if err := r.db.SelectContext(ctx, &routes, query); err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	return routes, nil
}

// TypesRoutedToRoles returns the application types whose active route
// references any of the given role ids on the requested side.
func (r *RouteRepository) TypesRoutedToRoles(ctx context.Context, roleIDs []string, direction models.CapabilityDirection) ([]models.ApplicationType, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	column := "receiver_role_id"
	if direction == models.DirectionApprove {
		column = "approver_role_id"
	}
	query := fmt.Sprintf(`SELECT application_type FROM type_routes WHERE %s = ANY($1) AND active = TRUE ORDER BY application_type`, column)

	var types []models.ApplicationType
	if err := r.db.SelectContext(ctx, &types, query, pq.Array(roleIDs)); err != nil {
		return nil, fmt.Errorf("types routed to roles: %w", err)
	}
	return types, nil
}

// Create inserts a route. Activating a duplicate active type surfaces the
// unique violation untouched for the service to map to a conflict.
func (r *RouteRepository) Create(ctx context.Context, route *models.TypeRoute) error {
	if route.ID == "" {
		route.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	route.CreatedAt = now
	route.UpdatedAt = now

	const query = `INSERT INTO type_routes (id, application_type, receiver_role_id, approver_role_id, active, created_at, updated_at)
		VALUES (:id, :application_type, :receiver_role_id, :approver_role_id, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, route); err != nil {
		if isUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("create route: %w", err)
	}
	return nil
}

// Update replaces the role bindings and active flag of a route.
func (r *RouteRepository) Update(ctx context.Context, route *models.TypeRoute) error {
	route.UpdatedAt = time.Now().UTC()
	const query = `UPDATE type_routes SET receiver_role_id = :receiver_role_id, approver_role_id = :approver_role_id, active = :active, updated_at = :updated_at WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, route)
	if err != nil {
		if isUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("update route: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetByID returns a route by identifier.
func (r *RouteRepository) GetByID(ctx context.Context, id string) (*models.TypeRoute, error) {
	query := fmt.Sprintf(`SELECT %s FROM type_routes WHERE id = $1 LIMIT 1`, routeColumns)
	var route models.TypeRoute
	if err := r.db.GetContext(ctx, &route, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find route: %w", err)
	}
	return &route, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/plantops/workflow-api/internal/models"
	appErrors "github.com/plantops/workflow-api/pkg/errors"
)

type capabilityRoleReader interface {
	RolesOf(ctx context.Context, userID string, kind models.RoleKind) ([]string, error)
	IsMember(ctx context.Context, roleID, userID string) (bool, error)
	HasActiveRoleOfKind(ctx context.Context, userID string, kind models.RoleKind) (bool, error)
}

type capabilityRouteReader interface {
	ActiveRoute(ctx context.Context, appType models.ApplicationType) (*models.TypeRoute, error)
	TypesRoutedToRoles(ctx context.Context, roleIDs []string, direction models.CapabilityDirection) ([]models.ApplicationType, error)
}

// CapabilityCache abstracts the redis-backed cache for resolved type sets.
type CapabilityCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CapabilityService resolves which application types a user may receive or
// approve, caching results per user and direction.
type CapabilityService struct {
	roles   capabilityRoleReader
	routes  capabilityRouteReader
	cache   CapabilityCache
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
}

// NewCapabilityService constructs CapabilityService. cache may be nil, which
// disables memoization.
func NewCapabilityService(roles capabilityRoleReader, routes capabilityRouteReader, cache CapabilityCache, metrics *MetricsService, ttl time.Duration, logger *zap.Logger) *CapabilityService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CapabilityService{roles: roles, routes: routes, cache: cache, metrics: metrics, ttl: ttl, logger: logger}
}

func cacheKey(userID string, direction models.CapabilityDirection) string {
	return fmt.Sprintf("capabilities:user:%s:%s", userID, direction)
}

// ReceivableTypes returns the application types the user may receive.
func (s *CapabilityService) ReceivableTypes(ctx context.Context, user *models.User) ([]models.ApplicationType, error) {
	return s.resolve(ctx, user, models.DirectionReceive)
}

// ApprovableTypes returns the application types the user may approve.
func (s *CapabilityService) ApprovableTypes(ctx context.Context, user *models.User) ([]models.ApplicationType, error) {
	return s.resolve(ctx, user, models.DirectionApprove)
}

// Capabilities resolves both directions at once.
func (s *CapabilityService) Capabilities(ctx context.Context, user *models.User) (*models.CapabilitySet, error) {
	receivable, err := s.ReceivableTypes(ctx, user)
	if err != nil {
		return nil, err
	}
	approvable, err := s.ApprovableTypes(ctx, user)
	if err != nil {
		return nil, err
	}
	return &models.CapabilitySet{Receivable: receivable, Approvable: approvable}, nil
}

// resolve computes the type set for one direction. Admins skip resolution
// entirely. An empty union falls back to all known types; deployments that
// predate per-type routing rely on this allow-all behavior.
func (s *CapabilityService) resolve(ctx context.Context, user *models.User, direction models.CapabilityDirection) ([]models.ApplicationType, error) {
	if user == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing user")
	}
	if user.IsAdmin() {
		return models.AllApplicationTypes(), nil
	}

	key := cacheKey(user.ID, direction)
	if s.cache != nil {
		start := time.Now()
		var cached []models.ApplicationType
		err := s.cache.Get(ctx, key, &cached)
		if err == nil {
			s.metrics.RecordCacheOperation(true, time.Since(start))
			return cached, nil
		}
		s.metrics.RecordCacheOperation(false, time.Since(start))
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("capability cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	types, err := s.compute(ctx, user.ID, direction)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, types, s.ttl); err != nil {
			s.logger.Warn("capability cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return types, nil
}

func (s *CapabilityService) compute(ctx context.Context, userID string, direction models.CapabilityDirection) ([]models.ApplicationType, error) {
	kind := models.RoleKindReceiver
	if direction == models.DirectionApprove {
		kind = models.RoleKindApprover
	}

	roleIDs, err := s.roles.RolesOf(ctx, userID, kind)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user roles")
	}

	var types []models.ApplicationType
	if len(roleIDs) > 0 {
		types, err = s.routes.TypesRoutedToRoles(ctx, roleIDs, direction)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load type routes")
		}
	}

	if len(types) == 0 {
		return models.AllApplicationTypes(), nil
	}
	return types, nil
}

// AuthorizedFor reports whether the user may act on the given type in the
// given direction. Unlike the dashboard type sets, this follows the active
// route for the type: when one exists, only members of its bound role pass.
// A type without an active route falls back to holding any active role of
// the matching kind.
func (s *CapabilityService) AuthorizedFor(ctx context.Context, user *models.User, appType models.ApplicationType, direction models.CapabilityDirection) (bool, error) {
	if user == nil {
		return false, appErrors.Clone(appErrors.ErrUnauthorized, "missing user")
	}
	if user.IsAdmin() {
		return true, nil
	}

	kind := models.RoleKindReceiver
	if direction == models.DirectionApprove {
		kind = models.RoleKindApprover
	}

	route, err := s.routes.ActiveRoute(ctx, appType)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load type route")
	}
	if route == nil {
		holds, err := s.roles.HasActiveRoleOfKind(ctx, user.ID, kind)
		if err != nil {
			return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check role of kind")
		}
		return holds, nil
	}

	roleID := route.ReceiverRoleID
	if direction == models.DirectionApprove {
		roleID = route.ApproverRoleID
	}
	member, err := s.roles.IsMember(ctx, roleID, user.ID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check role membership")
	}
	return member, nil
}

// InvalidateUser drops both cached directions for one user. Called
// synchronously when the user's role memberships change.
func (s *CapabilityService) InvalidateUser(ctx context.Context, userID string) error {
	if s.cache == nil {
		return nil
	}
	err := s.cache.Delete(ctx, cacheKey(userID, models.DirectionReceive), cacheKey(userID, models.DirectionApprove))
	if err != nil {
		s.logger.Warn("capability cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
		return err
	}
	return nil
}

// InvalidateAll drops every cached capability set. Called after route and
// role writes, which affect an unknown set of users.
func (s *CapabilityService) InvalidateAll(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	err := s.cache.DeleteByPattern(ctx, "capabilities:*")
	if err != nil {
		s.logger.Warn("capability cache flush failed", zap.Error(err))
		return err
	}
	return nil
}

package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/reportdesk/api/internal/cache"
	"github.com/reportdesk/api/internal/models"
	"github.com/reportdesk/api/internal/permissions"
	"github.com/reportdesk/api/pkg/logger"
	"gorm.io/gorm"
)

// PermissionService resolves effective permissions, including roles defined in the registry.
type PermissionService struct {
	DB    *gorm.DB
	Cache cache.PermissionCache
}

func NewPermissionService(db *gorm.DB, permissionCache cache.PermissionCache) *PermissionService {
	if permissionCache == nil {
		permissionCache = cache.NoopPermissionCache{}
	}
	return &PermissionService{DB: db, Cache: permissionCache}
}

// Effective returns the full 13-key permission map for user. Custom overrides win, then the
// built-in table, then the permissions stored on a registry role of the same name.
func (s *PermissionService) Effective(ctx context.Context, user *models.User) permissions.Set {
	if cached, ok, err := s.Cache.Get(ctx, user.ID); err != nil {
		logger.Warn("permission_cache_read_failed", map[string]interface{}{
			"user_id": user.ID.String(),
			"error":   err.Error(),
		})
	} else if ok {
		return cached
	}

	resolved := s.resolve(ctx, user)

	if err := s.Cache.Set(ctx, user.ID, resolved); err != nil {
		logger.Warn("permission_cache_write_failed", map[string]interface{}{
			"user_id": user.ID.String(),
			"error":   err.Error(),
		})
	}
	return resolved
}

func (s *PermissionService) resolve(ctx context.Context, user *models.User) permissions.Set {
	if !user.Permissions.IsEmpty() || permissions.IsBuiltinRole(user.Role) {
		return permissions.Resolve(user.Role, user.Permissions)
	}

	var role models.Role
	err := s.DB.WithContext(ctx).Select("permissions").Where("name = ?", user.Role).First(&role).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("registry_role_lookup_failed", err, map[string]interface{}{
				"role": user.Role,
			})
		}
		return permissions.Resolve(user.Role, nil)
	}

	// Registry permissions go through the custom-map path so absent keys stay false.
	if role.Permissions.IsEmpty() {
		return permissions.Resolve(user.Role, nil)
	}
	return permissions.Resolve(user.Role, role.Permissions)
}

func (s *PermissionService) Can(ctx context.Context, user *models.User, p permissions.Permission) bool {
	return s.Effective(ctx, user).Has(p)
}

// Invalidate drops cached sets for the given users. Failures are logged only.
func (s *PermissionService) Invalidate(ctx context.Context, userIDs ...uuid.UUID) {
	if err := s.Cache.Invalidate(ctx, userIDs...); err != nil {
		logger.Warn("permission_cache_invalidate_failed", map[string]interface{}{
			"users": len(userIDs),
			"error": err.Error(),
		})
	}
}

// InvalidateRole drops cached sets for every user currently holding roleName.
func (s *PermissionService) InvalidateRole(ctx context.Context, roleName string) {
	var ids []uuid.UUID
	if err := s.DB.WithContext(ctx).Model(&models.User{}).Where("role = ?", roleName).Pluck("id", &ids).Error; err != nil {
		logger.Error("permission_cache_role_lookup_failed", err, map[string]interface{}{
			"role": roleName,
		})
		return
	}
	s.Invalidate(ctx, ids...)
}

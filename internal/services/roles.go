package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/reportdesk/api/internal/models"
	"github.com/reportdesk/api/internal/permissions"
	"gorm.io/gorm"
)

type RoleService struct {
	DB          *gorm.DB
	Permissions *PermissionService
}

func NewRoleService(db *gorm.DB, permissionService *PermissionService) *RoleService {
	return &RoleService{DB: db, Permissions: permissionService}
}

type RoleInput struct {
	Name        string
	Description *string
	Color       string
	Icon        string
	IsDefault   bool
	Permissions permissions.Set
}

type RoleUpdate struct {
	Name        *string
	Description *string
	Color       *string
	Icon        *string
	Permissions *permissions.Set
}

func (s *RoleService) List(ctx context.Context) ([]models.Role, error) {
	var roles []models.Role
	if err := s.DB.WithContext(ctx).Order("created_at ASC").Find(&roles).Error; err != nil {
		return nil, err
	}

	var rows []struct {
		Role  string
		Count int64
	}
	if err := s.DB.WithContext(ctx).Model(&models.User{}).
		Select("role, COUNT(*) AS count").
		Group("role").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Role] = row.Count
	}
	for i := range roles {
		roles[i].UserCount = counts[roles[i].Name]
	}
	return roles, nil
}

func (s *RoleService) Get(ctx context.Context, rawID string) (*models.Role, error) {
	roleID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, NotFound("role not found")
	}

	var role models.Role
	if err := s.DB.WithContext(ctx).First(&role, "id = ?", roleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("role not found")
		}
		return nil, err
	}
	if err := s.DB.WithContext(ctx).Model(&models.User{}).Where("role = ?", role.Name).Count(&role.UserCount).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

// Exists reports whether name is a built-in role or one stored in the registry.
func (s *RoleService) Exists(ctx context.Context, name string) (bool, error) {
	if permissions.IsBuiltinRole(name) {
		return true, nil
	}
	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.Role{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// DefaultRoleName is the role given to newly signed-in users.
func (s *RoleService) DefaultRoleName(ctx context.Context) string {
	var role models.Role
	if err := s.DB.WithContext(ctx).Select("name").Where("is_default = ?", true).First(&role).Error; err != nil {
		return models.RoleVisitor
	}
	return role.Name
}

func (s *RoleService) Create(ctx context.Context, input RoleInput) (*models.Role, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, BadRequest("role name is required")
	}

	role := models.Role{
		Name:        name,
		Description: input.Description,
		Color:       input.Color,
		Icon:        input.Icon,
		IsDefault:   input.IsDefault,
		Permissions: input.Permissions,
	}
	if role.Color == "" {
		role.Color = "#99aab5"
	}
	if role.Icon == "" {
		role.Icon = "user"
	}
	if role.Permissions == nil {
		role.Permissions = permissions.Set{}
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.Role{}).Where("LOWER(name) = ?", strings.ToLower(name)).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return Conflict("a role with this name already exists")
		}

		if role.IsDefault {
			if err := tx.Model(&models.Role{}).Where("is_default = ?", true).Update("is_default", false).Error; err != nil {
				return err
			}
		}

		if err := tx.Create(&role).Error; err != nil {
			if isUniqueViolation(err) {
				return Conflict("a role with this name already exists")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// Update edits a role. Renaming moves every user holding the old name to the new one.
func (s *RoleService) Update(ctx context.Context, rawID string, input RoleUpdate) (*models.Role, error) {
	role, err := s.Get(ctx, rawID)
	if err != nil {
		return nil, err
	}
	oldName := role.Name

	updates := map[string]interface{}{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, BadRequest("role name cannot be empty")
		}
		if name != oldName {
			if permissions.IsBuiltinRole(oldName) {
				return nil, InvalidOperation("built-in roles cannot be renamed")
			}
			updates["name"] = name
			role.Name = name
		}
	}
	if input.Description != nil {
		updates["description"] = *input.Description
		role.Description = input.Description
	}
	if input.Color != nil {
		updates["color"] = *input.Color
		role.Color = *input.Color
	}
	if input.Icon != nil {
		updates["icon"] = *input.Icon
		role.Icon = *input.Icon
	}
	if input.Permissions != nil {
		if permissions.IsBuiltinRole(oldName) {
			return nil, InvalidOperation("built-in role permissions are fixed")
		}
		perms := *input.Permissions
		if perms == nil {
			perms = permissions.Set{}
		}
		// map updates skip serializers, so the column is written through a struct.
		role.Permissions = perms
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if newName, ok := updates["name"].(string); ok {
			var clash int64
			if err := tx.Model(&models.Role{}).
				Where("LOWER(name) = ? AND id <> ?", strings.ToLower(newName), role.ID).
				Count(&clash).Error; err != nil {
				return err
			}
			if clash > 0 {
				return Conflict("a role with this name already exists")
			}
		}

		if len(updates) > 0 {
			if err := tx.Model(&models.Role{}).Where("id = ?", role.ID).Updates(updates).Error; err != nil {
				if isUniqueViolation(err) {
					return Conflict("a role with this name already exists")
				}
				return err
			}
		}
		if input.Permissions != nil {
			if err := tx.Model(&models.Role{}).Where("id = ?", role.ID).Select("Permissions").Updates(&models.Role{Permissions: role.Permissions}).Error; err != nil {
				return err
			}
		}
		if role.Name != oldName {
			if err := tx.Model(&models.User{}).Where("role = ?", oldName).Update("role", role.Name).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if input.Permissions != nil || role.Name != oldName {
		s.Permissions.InvalidateRole(ctx, role.Name)
	}
	return role, nil
}

// SetDefault clears every other default and flags the target in one transaction.
func (s *RoleService) SetDefault(ctx context.Context, rawID string) (*models.Role, error) {
	roleID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, NotFound("role not found")
	}

	var role models.Role
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&role, "id = ?", roleID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NotFound("role not found")
			}
			return err
		}
		if err := tx.Model(&models.Role{}).Where("is_default = ? AND id <> ?", true, role.ID).Update("is_default", false).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Role{}).Where("id = ?", role.ID).Update("is_default", true).Error; err != nil {
			// a concurrent SetDefault committed first; the caller may retry
			if isUniqueViolation(err) {
				return Conflict("default role changed concurrently, try again")
			}
			return err
		}
		role.IsDefault = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// Delete removes a role only while no user holds it, checked in the same statement.
func (s *RoleService) Delete(ctx context.Context, rawID string) error {
	roleID, err := uuid.Parse(rawID)
	if err != nil {
		return NotFound("role not found")
	}

	var role models.Role
	if err := s.DB.WithContext(ctx).Select("id", "name").First(&role, "id = ?", roleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NotFound("role not found")
		}
		return err
	}
	if permissions.IsBuiltinRole(role.Name) {
		return InvalidOperation("built-in roles cannot be deleted")
	}

	result := s.DB.WithContext(ctx).
		Where("id = ?", roleID).
		Where("NOT EXISTS (SELECT 1 FROM users WHERE users.role = roles.name)").
		Delete(&models.Role{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var current models.Role
	if err := s.DB.WithContext(ctx).Select("name").First(&current, "id = ?", roleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NotFound("role not found")
		}
		return err
	}

	var userCount int64
	if err := s.DB.WithContext(ctx).Model(&models.User{}).Where("role = ?", current.Name).Count(&userCount).Error; err != nil {
		return err
	}
	return &ServiceError{
		Kind:    ErrConflict,
		Message: "role is still assigned to users",
		Details: map[string]interface{}{"userCount": userCount},
	}
}

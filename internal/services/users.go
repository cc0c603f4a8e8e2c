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

type UserService struct {
	DB          *gorm.DB
	Roles       *RoleService
	Permissions *PermissionService
}

func NewUserService(db *gorm.DB, roles *RoleService, permissionService *PermissionService) *UserService {
	return &UserService{DB: db, Roles: roles, Permissions: permissionService}
}

func (s *UserService) Get(ctx context.Context, rawID string) (*models.User, error) {
	userID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, NotFound("user not found")
	}

	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("user not found")
		}
		return nil, err
	}
	return &user, nil
}

type ProfileInput struct {
	DisplayName *string
	Bio         *string
}

// Register completes the profile after the first sign-in and queues the account for review.
func (s *UserService) Register(ctx context.Context, user *models.User, input ProfileInput) error {
	if user.Status != models.UserStatusNeedsRegistration && user.Status != models.UserStatusRejected {
		return InvalidOperation("registration is already complete")
	}
	if input.DisplayName == nil || strings.TrimSpace(*input.DisplayName) == "" {
		return BadRequest("display name is required")
	}

	updates := map[string]interface{}{
		"display_name": strings.TrimSpace(*input.DisplayName),
		"status":       models.UserStatusPending,
	}
	if input.Bio != nil {
		updates["bio"] = *input.Bio
	}

	if err := s.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		return err
	}

	user.DisplayName = updates["display_name"].(string)
	user.Status = models.UserStatusPending
	if input.Bio != nil {
		user.Bio = input.Bio
	}
	return nil
}

func (s *UserService) UpdateProfile(ctx context.Context, user *models.User, input ProfileInput) error {
	if !s.Permissions.Can(ctx, user, permissions.ManageProfile) {
		return Forbidden("you are not allowed to edit your profile")
	}

	updates := map[string]interface{}{}
	if input.DisplayName != nil {
		name := strings.TrimSpace(*input.DisplayName)
		if name == "" {
			return BadRequest("display name cannot be empty")
		}
		updates["display_name"] = name
		user.DisplayName = name
	}
	if input.Bio != nil {
		updates["bio"] = *input.Bio
		user.Bio = input.Bio
	}
	if len(updates) == 0 {
		return BadRequest("nothing to update")
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
			return err
		}
		if _, renamed := updates["display_name"]; renamed {
			return tx.Model(&models.FolderMember{}).Where("user_id = ?", user.ID).Update("name", user.Name()).Error
		}
		return nil
	})
}

func (s *UserService) SetRole(ctx context.Context, target *models.User, roleName string) error {
	roleName = strings.TrimSpace(roleName)
	if roleName == "" {
		return BadRequest("role is required")
	}

	exists, err := s.Roles.Exists(ctx, roleName)
	if err != nil {
		return err
	}
	if !exists {
		return NotFound("role not found")
	}

	if err := s.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", target.ID).Update("role", roleName).Error; err != nil {
		return err
	}
	target.Role = roleName
	s.Permissions.Invalidate(ctx, target.ID)
	return nil
}

func (s *UserService) SetStatus(ctx context.Context, target *models.User, status models.UserStatus, banReason *string) error {
	if !status.Valid() {
		return BadRequest("invalid status")
	}

	updates := map[string]interface{}{"status": status, "ban_reason": nil}
	if status == models.UserStatusBanned && banReason != nil {
		updates["ban_reason"] = strings.TrimSpace(*banReason)
	}

	if err := s.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", target.ID).Updates(updates).Error; err != nil {
		return err
	}

	target.Status = status
	target.BanReason = nil
	if reason, ok := updates["ban_reason"].(string); ok {
		target.BanReason = &reason
	}
	return nil
}

// SetPermissions replaces the custom override map. An empty or nil set clears it, so the
// role defaults apply again.
func (s *UserService) SetPermissions(ctx context.Context, target *models.User, set permissions.Set) error {
	if set.IsEmpty() {
		set = nil
	}

	err := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", target.ID).
		Select("Permissions").
		Updates(&models.User{Permissions: set}).Error
	if err != nil {
		return err
	}

	target.Permissions = set
	s.Permissions.Invalidate(ctx, target.ID)
	return nil
}

// Delete removes a user and their memberships. Folders they own must be transferred first.
func (s *UserService) Delete(ctx context.Context, target *models.User, actor *models.User) error {
	if target.ID == actor.ID {
		return InvalidOperation("you cannot delete your own account")
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owned int64
		if err := tx.Model(&models.Folder{}).Where("owner_id = ?", target.ID).Count(&owned).Error; err != nil {
			return err
		}
		if owned > 0 {
			return &ServiceError{
				Kind:    ErrConflict,
				Message: "user still owns folders",
				Details: map[string]interface{}{"folderCount": owned},
			}
		}

		if err := tx.Where("user_id = ?", target.ID).Delete(&models.FolderMember{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", target.ID).Delete(&models.Notification{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, "id = ?", target.ID).Error
	})
	if err != nil {
		return err
	}

	s.Permissions.Invalidate(ctx, target.ID)
	return nil
}

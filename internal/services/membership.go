package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/reportdesk/api/internal/models"
	"github.com/reportdesk/api/internal/permissions"
	"github.com/reportdesk/api/pkg/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const accessKeyAttempts = 5

type MembershipService struct {
	DB          *gorm.DB
	Access      *AccessService
	Permissions *PermissionService
}

func NewMembershipService(db *gorm.DB, access *AccessService, permissionService *PermissionService) *MembershipService {
	return &MembershipService{DB: db, Access: access, Permissions: permissionService}
}

// Join adds user to the folder whose access key matches. The insert is conditional on the
// (folder_id, user_id) unique index so concurrent joins cannot create duplicates.
func (s *MembershipService) Join(ctx context.Context, accessKey string, user *models.User) (*models.Folder, error) {
	key := utils.NormalizeAccessKey(accessKey)
	if key == "" {
		return nil, BadRequest("access key is required")
	}
	if !s.Permissions.Can(ctx, user, permissions.JoinFolders) {
		return nil, Forbidden("you are not allowed to join folders")
	}

	var folder models.Folder
	if err := s.DB.WithContext(ctx).Where("access_key = ?", key).First(&folder).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("no folder matches this access key")
		}
		return nil, err
	}

	if folder.OwnerID == user.ID {
		return nil, InvalidOperation("you already own this folder")
	}

	member := models.FolderMember{
		FolderID: folder.ID,
		UserID:   user.ID,
		Name:     user.Name(),
		JoinedAt: time.Now().UTC(),
	}
	result := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "folder_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&member)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, newError(ErrAlreadyMember, "you are already a member of this folder")
	}

	joined, _, err := s.Access.LoadFolderForUser(ctx, user, folder.ID.String(), false)
	return joined, err
}

// RemoveMember removes memberID from folder. The owner is never removable, whoever asks.
func (s *MembershipService) RemoveMember(ctx context.Context, folder *models.Folder, memberID uuid.UUID, actor *models.User) error {
	if memberID == folder.OwnerID {
		return InvalidOperation("the folder owner cannot be removed")
	}
	if folder.OwnerID != actor.ID && !actor.IsAdmin() {
		return Forbidden("only the folder owner or an admin can remove members")
	}

	// owner_id is re-checked at write time in case ownership moved to memberID meanwhile.
	result := s.DB.WithContext(ctx).
		Where("folder_id = ? AND user_id = ?", folder.ID, memberID).
		Where("NOT EXISTS (SELECT 1 FROM folders WHERE folders.id = folder_members.folder_id AND folders.owner_id = folder_members.user_id)").
		Delete(&models.FolderMember{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return NotFound("user is not a member of this folder")
	}
	return nil
}

// ChangeOwner transfers ownership. The previous owner keeps their membership.
func (s *MembershipService) ChangeOwner(ctx context.Context, folder *models.Folder, newOwnerID uuid.UUID, actor *models.User) (*models.Folder, error) {
	if folder.OwnerID != actor.ID && !actor.IsAdmin() {
		return nil, Forbidden("only the folder owner or an admin can change the owner")
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var newOwner models.User
		if err := tx.First(&newOwner, "id = ?", newOwnerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NotFound("new owner not found")
			}
			return err
		}

		result := tx.Model(&models.Folder{}).
			Where("id = ? AND owner_id = ?", folder.ID, folder.OwnerID).
			Update("owner_id", newOwner.ID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return Conflict("folder ownership changed concurrently, reload and retry")
		}

		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "folder_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).Create(&models.FolderMember{
			FolderID: folder.ID,
			UserID:   newOwner.ID,
			Name:     newOwner.Name(),
			JoinedAt: time.Now().UTC(),
		}).Error
	})
	if err != nil {
		return nil, err
	}

	return s.reload(ctx, folder.ID)
}

func (s *MembershipService) Leave(ctx context.Context, folder *models.Folder, user *models.User) error {
	if folder.OwnerID == user.ID {
		return InvalidOperation("the owner cannot leave their own folder, transfer ownership first")
	}

	result := s.DB.WithContext(ctx).
		Where("folder_id = ? AND user_id = ?", folder.ID, user.ID).
		Delete(&models.FolderMember{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return NotFound("you are not a member of this folder")
	}
	return nil
}

// RotateAccessKey issues a fresh key, invalidating the previous one.
func (s *MembershipService) RotateAccessKey(ctx context.Context, folder *models.Folder, actor *models.User) (string, error) {
	if folder.OwnerID != actor.ID && !actor.IsAdmin() {
		return "", Forbidden("only the folder owner or an admin can manage the access key")
	}

	for attempt := 0; attempt < accessKeyAttempts; attempt++ {
		key, err := utils.GenerateAccessKey()
		if err != nil {
			return "", err
		}

		err = s.DB.WithContext(ctx).Model(&models.Folder{}).Where("id = ?", folder.ID).Update("access_key", key).Error
		if err == nil {
			folder.AccessKey = &key
			return key, nil
		}
		if !isUniqueViolation(err) {
			return "", err
		}
	}
	return "", Conflict("could not generate a unique access key")
}

func (s *MembershipService) ClearAccessKey(ctx context.Context, folder *models.Folder, actor *models.User) error {
	if folder.OwnerID != actor.ID && !actor.IsAdmin() {
		return Forbidden("only the folder owner or an admin can manage the access key")
	}

	if err := s.DB.WithContext(ctx).Model(&models.Folder{}).Where("id = ?", folder.ID).Update("access_key", nil).Error; err != nil {
		return err
	}
	folder.AccessKey = nil
	return nil
}

func (s *MembershipService) reload(ctx context.Context, folderID uuid.UUID) (*models.Folder, error) {
	folder, err := s.Access.LoadFolder(ctx, folderID.String())
	if err != nil {
		return nil, err
	}
	if err := s.DB.WithContext(ctx).Model(&models.Report{}).Where("folder_id = ?", folder.ID).Count(&folder.ReportsCount).Error; err != nil {
		return nil, err
	}
	return folder, nil
}

// isUniqueViolation covers postgres (SQLSTATE 23505) and sqlite wording; gorm only
// translates these when TranslateError is enabled.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "23505") || strings.Contains(msg, "unique constraint")
}

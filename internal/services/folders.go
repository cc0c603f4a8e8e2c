package services

import (
	"context"
	"strings"
	"time"

	"github.com/reportdesk/api/internal/models"
	"github.com/reportdesk/api/internal/permissions"
	"github.com/reportdesk/api/pkg/utils"
	"gorm.io/gorm"
)

type FolderService struct {
	DB          *gorm.DB
	Access      *AccessService
	Permissions *PermissionService
}

func NewFolderService(db *gorm.DB, access *AccessService, permissionService *PermissionService) *FolderService {
	return &FolderService{DB: db, Access: access, Permissions: permissionService}
}

type CreateFolderInput struct {
	Title             string
	Description       *string
	GenerateAccessKey bool
}

// Create stores the folder and the owner's membership row together.
func (s *FolderService) Create(ctx context.Context, owner *models.User, input CreateFolderInput) (*models.Folder, error) {
	if !s.Permissions.Can(ctx, owner, permissions.CreateFolders) {
		return nil, Forbidden("you are not allowed to create folders")
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, BadRequest("title is required")
	}

	folder := models.Folder{
		Title:       title,
		Description: input.Description,
		OwnerID:     owner.ID,
	}
	if input.GenerateAccessKey {
		key, err := utils.GenerateAccessKey()
		if err != nil {
			return nil, err
		}
		folder.AccessKey = &key
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Owner", "Members").Create(&folder).Error; err != nil {
			return err
		}
		member := models.FolderMember{
			FolderID: folder.ID,
			UserID:   owner.ID,
			Name:     owner.Name(),
			JoinedAt: time.Now().UTC(),
		}
		if err := tx.Create(&member).Error; err != nil {
			return err
		}
		folder.Members = []models.FolderMember{member}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &folder, nil
}

type UpdateFolderInput struct {
	Title       *string
	Description *string
}

func (s *FolderService) Update(ctx context.Context, user *models.User, folder *models.Folder, input UpdateFolderInput) error {
	if err := s.Access.AuthorizeFolderManage(ctx, user, folder, FolderActionEdit); err != nil {
		return err
	}

	updates := map[string]interface{}{}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return BadRequest("title cannot be empty")
		}
		updates["title"] = title
		folder.Title = title
	}
	if input.Description != nil {
		updates["description"] = *input.Description
		folder.Description = input.Description
	}
	if len(updates) == 0 {
		return BadRequest("nothing to update")
	}

	return s.DB.WithContext(ctx).Model(&models.Folder{}).Where("id = ?", folder.ID).Updates(updates).Error
}

// Delete removes the folder with its reports and memberships in one transaction.
func (s *FolderService) Delete(ctx context.Context, user *models.User, folder *models.Folder) error {
	if err := s.Access.AuthorizeFolderManage(ctx, user, folder, FolderActionDelete); err != nil {
		return err
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("folder_id = ?", folder.ID).Delete(&models.Report{}).Error; err != nil {
			return err
		}
		if err := tx.Where("folder_id = ?", folder.ID).Delete(&models.FolderMember{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Mission{}).Where("folder_id = ?", folder.ID).Update("folder_id", nil).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.Folder{}, "id = ?", folder.ID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return NotFound("folder not found")
		}
		return nil
	})
}

// ListForUser returns folders the user owns or belongs to, newest first, with report counts.
func (s *FolderService) ListForUser(ctx context.Context, user *models.User, p utils.PaginationParams) ([]models.Folder, int64, error) {
	query := s.DB.WithContext(ctx).Model(&models.Folder{}).
		Where("owner_id = ? OR id IN (?)", user.ID,
			s.DB.Model(&models.FolderMember{}).Select("folder_id").Where("user_id = ?", user.ID))

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var folders []models.Folder
	if err := utils.ApplyPagination(query.Order("created_at DESC"), p).Preload("Members").Find(&folders).Error; err != nil {
		return nil, 0, err
	}
	if err := s.fillReportCounts(ctx, folders); err != nil {
		return nil, 0, err
	}
	return folders, total, nil
}

// ListAll is the admin view over every folder.
func (s *FolderService) ListAll(ctx context.Context, search string, p utils.PaginationParams) ([]models.Folder, int64, error) {
	query := s.DB.WithContext(ctx).Model(&models.Folder{})
	if search = strings.TrimSpace(search); search != "" {
		query = query.Where("LOWER(title) LIKE ? "+utils.LikeEscape, utils.ContainsPattern(strings.ToLower(search)))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var folders []models.Folder
	if err := utils.ApplyPagination(query.Order("created_at DESC"), p).Preload("Owner").Preload("Members").Find(&folders).Error; err != nil {
		return nil, 0, err
	}
	if err := s.fillReportCounts(ctx, folders); err != nil {
		return nil, 0, err
	}
	return folders, total, nil
}

func (s *FolderService) fillReportCounts(ctx context.Context, folders []models.Folder) error {
	if len(folders) == 0 {
		return nil
	}

	ids := make([]interface{}, len(folders))
	for i := range folders {
		ids[i] = folders[i].ID
	}

	var rows []struct {
		FolderID string
		Count    int64
	}
	if err := s.DB.WithContext(ctx).Model(&models.Report{}).
		Select("folder_id, COUNT(*) AS count").
		Where("folder_id IN ?", ids).
		Group("folder_id").
		Scan(&rows).Error; err != nil {
		return err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.FolderID] = row.Count
	}
	for i := range folders {
		folders[i].ReportsCount = counts[folders[i].ID.String()]
	}
	return nil
}

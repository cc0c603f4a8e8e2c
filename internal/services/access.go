package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/reportdesk/api/internal/models"
	"github.com/reportdesk/api/internal/permissions"
	"gorm.io/gorm"
)

// FolderAccess is the outcome of a granted folder check. IsAdminAccess marks access that
// only exists because an admin asked for admin mode; it never changes the decision itself.
type FolderAccess struct {
	IsOwner       bool
	IsMember      bool
	IsAdminAccess bool
}

type ReportAction string

const (
	ReportActionEdit   ReportAction = "edit"
	ReportActionDelete ReportAction = "delete"
)

type FolderAction string

const (
	FolderActionEdit   FolderAction = "edit"
	FolderActionDelete FolderAction = "delete"
)

type AccessService struct {
	DB          *gorm.DB
	Permissions *PermissionService
}

func NewAccessService(db *gorm.DB, permissionService *PermissionService) *AccessService {
	return &AccessService{DB: db, Permissions: permissionService}
}

// AuthorizeFolderAccess is the single decision function for reading a folder.
func (a *AccessService) AuthorizeFolderAccess(user *models.User, folder *models.Folder, adminModeRequested bool) (FolderAccess, error) {
	access := FolderAccess{
		IsOwner:  folder.OwnerID == user.ID,
		IsMember: folder.HasMember(user.ID),
	}
	access.IsAdminAccess = adminModeRequested && user.Role == models.RoleAdmin && !access.IsOwner

	if access.IsOwner || access.IsMember || access.IsAdminAccess {
		return access, nil
	}
	return FolderAccess{}, Forbidden("you do not have access to this folder")
}

func (a *AccessService) AuthorizeReportMutation(ctx context.Context, user *models.User, report *models.Report, action ReportAction) error {
	if report.AuthorID == user.ID {
		return nil
	}

	var required permissions.Permission
	switch action {
	case ReportActionEdit:
		required = permissions.EditAllReports
	case ReportActionDelete:
		required = permissions.DeleteAllReports
	default:
		return Forbidden("unsupported report action")
	}

	if a.Permissions.Can(ctx, user, required) {
		return nil
	}
	return Forbidden("only the author can " + string(action) + " this report")
}

// AuthorizeFolderManage guards folder update and delete.
func (a *AccessService) AuthorizeFolderManage(ctx context.Context, user *models.User, folder *models.Folder, action FolderAction) error {
	var own, all permissions.Permission
	switch action {
	case FolderActionEdit:
		own, all = permissions.EditOwnFolders, permissions.EditAllFolders
	case FolderActionDelete:
		own, all = permissions.DeleteOwnFolders, permissions.DeleteAllFolders
	default:
		return Forbidden("unsupported folder action")
	}

	effective := a.Permissions.Effective(ctx, user)
	if effective.Has(all) {
		return nil
	}
	if folder.OwnerID == user.ID && effective.Has(own) {
		return nil
	}
	return Forbidden("you cannot " + string(action) + " this folder")
}

// LoadFolder fetches a folder with its members. A malformed id is reported as NotFound.
func (a *AccessService) LoadFolder(ctx context.Context, rawID string) (*models.Folder, error) {
	folderID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, NotFound("folder not found")
	}

	var folder models.Folder
	err = a.DB.WithContext(ctx).
		Preload("Members", func(db *gorm.DB) *gorm.DB { return db.Order("joined_at ASC") }).
		First(&folder, "id = ?", folderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("folder not found")
		}
		return nil, err
	}
	return &folder, nil
}

// LoadFolderForUser loads a folder and runs it through AuthorizeFolderAccess. The returned
// folder has ReportsCount and AdminAccess filled in.
func (a *AccessService) LoadFolderForUser(ctx context.Context, user *models.User, rawID string, adminMode bool) (*models.Folder, FolderAccess, error) {
	folder, err := a.LoadFolder(ctx, rawID)
	if err != nil {
		return nil, FolderAccess{}, err
	}

	access, err := a.AuthorizeFolderAccess(user, folder, adminMode)
	if err != nil {
		return nil, FolderAccess{}, err
	}

	if err := a.DB.WithContext(ctx).Model(&models.Report{}).Where("folder_id = ?", folder.ID).Count(&folder.ReportsCount).Error; err != nil {
		return nil, FolderAccess{}, err
	}
	folder.AdminAccess = access.IsAdminAccess
	return folder, access, nil
}

// LoadReport fetches a report with its author. A malformed id is reported as NotFound.
func (a *AccessService) LoadReport(ctx context.Context, rawID string) (*models.Report, error) {
	reportID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, NotFound("report not found")
	}

	var report models.Report
	if err := a.DB.WithContext(ctx).Preload("Author").First(&report, "id = ?", reportID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("report not found")
		}
		return nil, err
	}
	return &report, nil
}

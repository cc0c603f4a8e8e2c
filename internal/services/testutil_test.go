package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/reportdesk/api/internal/cache"
	"github.com/reportdesk/api/internal/database"
	"github.com/reportdesk/api/internal/models"
	"github.com/reportdesk/api/internal/permissions"
	"github.com/reportdesk/api/pkg/logger"
	"github.com/reportdesk/api/pkg/utils"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testServices struct {
	db            *gorm.DB
	redis         *miniredis.Miniredis
	perms         *PermissionService
	access        *AccessService
	membership    *MembershipService
	folders       *FolderService
	roles         *RoleService
	users         *UserService
	missions      *MissionService
	notifications *NotificationService
}

var testSetupOnce sync.Once

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testSetupOnce.Do(func() {
		logger.Init()
		utils.ConfigureEncryption("test-secret")
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "failed opening in-memory sqlite database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func setupServices(t *testing.T) *testServices {
	t.Helper()

	db := setupTestDB(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	perms := NewPermissionService(db, cache.NewRedisPermissionCache(client, time.Minute))
	access := NewAccessService(db, perms)
	roles := NewRoleService(db, perms)

	return &testServices{
		db:            db,
		redis:         mr,
		perms:         perms,
		access:        access,
		membership:    NewMembershipService(db, access, perms),
		folders:       NewFolderService(db, access, perms),
		roles:         roles,
		users:         NewUserService(db, roles, perms),
		missions:      NewMissionService(db),
		notifications: NewNotificationService(db),
	}
}

func createUser(t *testing.T, db *gorm.DB, name, role string) *models.User {
	t.Helper()
	user := &models.User{
		DiscordID:   uuid.NewString(),
		Username:    name,
		DisplayName: name,
		Role:        role,
		Status:      models.UserStatusApproved,
	}
	require.NoError(t, db.Create(user).Error, "failed creating user %s", name)
	return user
}

func createFolder(t *testing.T, s *testServices, owner *models.User, title string) *models.Folder {
	t.Helper()
	folder, err := s.folders.Create(context.Background(), owner, CreateFolderInput{
		Title:             title,
		GenerateAccessKey: true,
	})
	require.NoError(t, err, "failed creating folder %s", title)
	return folder
}

func reloadFolder(t *testing.T, s *testServices, folderID uuid.UUID) *models.Folder {
	t.Helper()
	folder, err := s.access.LoadFolder(context.Background(), folderID.String())
	require.NoError(t, err)
	return folder
}

func createReport(t *testing.T, db *gorm.DB, folder *models.Folder, author *models.User, title string) *models.Report {
	t.Helper()
	report := &models.Report{
		FolderID:   folder.ID,
		AuthorID:   author.ID,
		Title:      title,
		Content:    "# " + title,
		Importance: models.ImportanceMedium,
	}
	require.NoError(t, db.Omit("Author").Create(report).Error)
	return report
}

func memberIDs(folder *models.Folder) []uuid.UUID {
	ids := make([]uuid.UUID, len(folder.Members))
	for i, m := range folder.Members {
		ids[i] = m.UserID
	}
	return ids
}

func moderatorPermissions() permissions.Set {
	return permissions.NewSet(permissions.ViewDashboard, permissions.JoinFolders, permissions.EditAllReports)
}

package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/reportdesk/api/internal/middleware"
	"github.com/reportdesk/api/internal/models"
	"github.com/reportdesk/api/internal/services"
	"github.com/reportdesk/api/pkg/utils"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type DashboardHandler struct {
	DB            *gorm.DB
	Folders       *services.FolderService
	Missions      *services.MissionService
	Notifications *services.NotificationService
}

func NewDashboardHandler(db *gorm.DB, folders *services.FolderService, missions *services.MissionService, notifications *services.NotificationService) *DashboardHandler {
	return &DashboardHandler{DB: db, Folders: folders, Missions: missions, Notifications: notifications}
}

func (h *DashboardHandler) Dashboard(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	ctx := c.UserContext()

	_, folderCount, err := h.Folders.ListForUser(ctx, currentUser, utils.NewPagination("1", "1"))
	if err != nil {
		return respondServiceError(c, err, "failed loading dashboard")
	}

	var reportCount int64
	if err := h.DB.WithContext(ctx).Model(&models.Report{}).Where("author_id = ?", currentUser.ID).Count(&reportCount).Error; err != nil {
		return respondServiceError(c, err, "failed loading dashboard")
	}

	openMissions, err := h.Missions.CountOpen(ctx, currentUser.ID)
	if err != nil {
		return respondServiceError(c, err, "failed loading dashboard")
	}

	unread, err := h.Notifications.UnreadCount(ctx, currentUser.ID)
	if err != nil {
		return respondServiceError(c, err, "failed loading dashboard")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"folders":             folderCount,
		"reports":             reportCount,
		"openMissions":        openMissions,
		"unreadNotifications": unread,
	})
}

type groupCount struct {
	Label string
	Count int64
}

// AdminStats gathers global counts. The queries are independent and run concurrently.
func (h *DashboardHandler) AdminStats(c *fiber.Ctx) error {
	g, ctx := errgroup.WithContext(c.UserContext())
	db := h.DB.WithContext(ctx)

	var usersByStatus, missionsByStatus, usersByRole []groupCount
	var folders, reports int64

	g.Go(func() error {
		return db.Model(&models.User{}).Select("status AS label, COUNT(*) AS count").Group("status").Scan(&usersByStatus).Error
	})
	g.Go(func() error {
		return db.Model(&models.User{}).Select("role AS label, COUNT(*) AS count").Group("role").Scan(&usersByRole).Error
	})
	g.Go(func() error {
		return db.Model(&models.Mission{}).Select("status AS label, COUNT(*) AS count").Group("status").Scan(&missionsByStatus).Error
	})
	g.Go(func() error {
		return db.Model(&models.Folder{}).Count(&folders).Error
	})
	g.Go(func() error {
		return db.Model(&models.Report{}).Count(&reports).Error
	})

	if err := g.Wait(); err != nil {
		return respondServiceError(c, err, "failed loading stats")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"usersByStatus":    toCountMap(usersByStatus),
		"usersByRole":      toCountMap(usersByRole),
		"missionsByStatus": toCountMap(missionsByStatus),
		"folders":          folders,
		"reports":          reports,
	})
}

func toCountMap(rows []groupCount) map[string]int64 {
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Label] = row.Count
	}
	return out
}

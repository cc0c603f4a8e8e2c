package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/reportdesk/api/internal/middleware"
	"github.com/reportdesk/api/internal/permissions"
)

type Handlers struct {
	Auth          *AuthHandler
	Users         *UsersHandler
	Roles         *RolesHandler
	Folders       *FoldersHandler
	Reports       *ReportsHandler
	Missions      *MissionsHandler
	Notifications *NotificationsHandler
	Uploads       *UploadsHandler
	Dashboard     *DashboardHandler
}

// RegisterRoutes mounts the API on app.
func RegisterRoutes(app *fiber.App, h *Handlers, auth *middleware.AuthMiddleware) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Get("/discord", h.Auth.DiscordLogin)
	authRoutes.Get("/discord/callback", h.Auth.DiscordCallback)
	authRoutes.Get("/me", auth.RequireAuth, h.Auth.Me)
	authRoutes.Put("/me", auth.RequireAuth, h.Auth.UpdateMe)
	authRoutes.Post("/register", auth.RequireAuth, h.Auth.Register)
	authRoutes.Get("/permissions", auth.RequireAuth, h.Auth.EffectivePermissions)
	authRoutes.Get("/ban-notice", auth.RequireAuth, h.Auth.BanNotice)

	approved := []fiber.Handler{auth.RequireAuth, middleware.RequireApproved}
	adminOnly := []fiber.Handler{auth.RequireAuth, middleware.RequireApproved, middleware.AdminOnly}

	api.Get("/dashboard", append(approved, auth.RequirePermission(permissions.ViewDashboard), h.Dashboard.Dashboard)...)

	folderRoutes := api.Group("/folders", approved...)
	folderRoutes.Post("/", h.Folders.Create)
	folderRoutes.Get("/", h.Folders.ListMine)
	folderRoutes.Post("/join", h.Folders.Join)
	folderRoutes.Get("/:id", h.Folders.Get)
	folderRoutes.Patch("/:id", h.Folders.Update)
	folderRoutes.Delete("/:id", h.Folders.Delete)
	folderRoutes.Post("/:id/leave", h.Folders.Leave)
	folderRoutes.Delete("/:id/members/:userId", h.Folders.RemoveMember)
	folderRoutes.Patch("/:id/owner", h.Folders.ChangeOwner)
	folderRoutes.Post("/:id/access-key", h.Folders.RotateAccessKey)
	folderRoutes.Delete("/:id/access-key", h.Folders.ClearAccessKey)
	folderRoutes.Get("/:id/reports", h.Reports.List)
	folderRoutes.Post("/:id/reports", h.Reports.Create)

	reportRoutes := api.Group("/reports", approved...)
	reportRoutes.Get("/:id", h.Reports.Get)
	reportRoutes.Patch("/:id", h.Reports.Update)
	reportRoutes.Delete("/:id", h.Reports.Delete)

	missionRoutes := api.Group("/missions", approved...)
	missionRoutes.Get("/mine", h.Missions.ListMine)
	missionRoutes.Get("/:id", h.Missions.Get)
	missionRoutes.Patch("/:id/status", h.Missions.UpdateStatus)
	missionRoutes.Post("/", middleware.AdminOnly, h.Missions.Create)
	missionRoutes.Get("/", middleware.AdminOnly, h.Missions.ListAll)
	missionRoutes.Patch("/:id", middleware.AdminOnly, h.Missions.Update)
	missionRoutes.Delete("/:id", middleware.AdminOnly, h.Missions.Delete)

	notificationRoutes := api.Group("/notifications", auth.RequireAuth)
	notificationRoutes.Get("/", h.Notifications.List)
	notificationRoutes.Get("/unread-count", h.Notifications.UnreadCount)
	notificationRoutes.Put("/read-all", h.Notifications.MarkAllRead)
	notificationRoutes.Put("/:id/read", h.Notifications.MarkRead)
	notificationRoutes.Delete("/:id", h.Notifications.Delete)

	uploadRoutes := api.Group("/uploads", approved...)
	uploadRoutes.Post("/", h.Uploads.Upload)
	uploadRoutes.Get("/:id", h.Uploads.Get)

	roleRoutes := api.Group("/roles", approved...)
	roleRoutes.Get("/", h.Roles.List)
	roleRoutes.Get("/:id", h.Roles.Get)
	roleRoutes.Post("/", middleware.AdminOnly, h.Roles.Create)
	roleRoutes.Patch("/:id", middleware.AdminOnly, h.Roles.Update)
	roleRoutes.Put("/:id/default", middleware.AdminOnly, h.Roles.SetDefault)
	roleRoutes.Delete("/:id", middleware.AdminOnly, h.Roles.Delete)

	adminRoutes := api.Group("/admin", adminOnly...)
	adminRoutes.Get("/stats", h.Dashboard.AdminStats)
	adminRoutes.Get("/folders", h.Folders.ListAll)
	adminRoutes.Get("/users", h.Users.List)
	adminRoutes.Get("/users/:id", h.Users.Get)
	adminRoutes.Put("/users/:id/role", h.Users.SetRole)
	adminRoutes.Put("/users/:id/status", h.Users.SetStatus)
	adminRoutes.Put("/users/:id/permissions", h.Users.SetPermissions)
	adminRoutes.Delete("/users/:id", h.Users.Delete)
	adminRoutes.Post("/notifications/broadcast", h.Notifications.Broadcast)
}

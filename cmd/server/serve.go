package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/reportdesk/api/internal/cache"
	"github.com/reportdesk/api/internal/database"
	"github.com/reportdesk/api/internal/handlers"
	"github.com/reportdesk/api/internal/jobs"
	"github.com/reportdesk/api/internal/metrics"
	"github.com/reportdesk/api/internal/middleware"
	"github.com/reportdesk/api/internal/services"
	"github.com/reportdesk/api/internal/storage"
	"github.com/reportdesk/api/pkg/logger"
	"github.com/reportdesk/api/pkg/statetoken"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and scheduled jobs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	db, err := database.Connect(cfg.DB)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	var permissionCache cache.PermissionCache = cache.NoopPermissionCache{}
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		defer redisClient.Close()
		permissionCache = cache.NewRedisPermissionCache(redisClient, cfg.Redis.PermissionsTTL).
			WithLookupCounter(m.PermissionCacheLookups)
	}

	var objectStore storage.ObjectStore
	if cfg.MinIO.Enabled {
		storageClient, err := storage.NewMinIOClient(cfg.MinIO)
		if err != nil {
			return fmt.Errorf("minio initialization failed: %w", err)
		}
		if err := storageClient.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed ensuring minio bucket: %w", err)
		}
		objectStore = storageClient
	}

	permissionService := services.NewPermissionService(db, permissionCache)
	accessService := services.NewAccessService(db, permissionService)
	roleService := services.NewRoleService(db, permissionService)
	userService := services.NewUserService(db, roleService, permissionService)
	folderService := services.NewFolderService(db, accessService, permissionService)
	membershipService := services.NewMembershipService(db, accessService, permissionService)
	missionService := services.NewMissionService(db)
	notificationService := services.NewNotificationService(db)
	webhooks := services.NewWebhookNotifier(cfg.Webhook.URLs, cfg.Webhook.Username, cfg.Webhook.Timeout)
	auditService := services.NewAuditService(db, webhooks)
	auditService.Dropped = m.AuditEventsDropped
	states := statetoken.NewIssuer(cfg.JWT.Secret)
	discordService := services.NewDiscordService(cfg.Discord, db, roleService, states)

	h := &handlers.Handlers{
		Auth:          handlers.NewAuthHandler(discordService, userService, permissionService, auditService, cfg.Server.FrontendURL),
		Users:         handlers.NewUsersHandler(db, userService, permissionService, auditService),
		Roles:         handlers.NewRolesHandler(roleService, auditService),
		Folders:       handlers.NewFoldersHandler(folderService, accessService, membershipService, auditService),
		Reports:       handlers.NewReportsHandler(db, accessService, permissionService, auditService),
		Missions:      handlers.NewMissionsHandler(missionService, auditService),
		Notifications: handlers.NewNotificationsHandler(notificationService),
		Uploads:       handlers.NewUploadsHandler(db, objectStore),
		Dashboard:     handlers.NewDashboardHandler(db, folderService, missionService, notificationService),
	}

	scheduler := jobs.NewScheduler(cfg.Jobs, missionService, notificationService, auditService, m).
		WithStateCleanup(states)
	if err := scheduler.Start(); err != nil {
		return err
	}

	app := fiber.New(fiber.Config{BodyLimit: cfg.Server.BodyLimitMB * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS(cfg.Server.FrontendURL))
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())
	app.Use(middleware.Metrics(m))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	handlers.RegisterRoutes(app, h, middleware.NewAuthMiddleware(db, permissionService))

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":            cfg.Server.Port,
		"address":         listenAddr,
		"body_limit_mb":   cfg.Server.BodyLimitMB,
		"discord_enabled": cfg.Discord.Enabled(),
		"redis_enabled":   cfg.Redis.Enabled,
		"minio_enabled":   cfg.MinIO.Enabled,
		"webhooks":        len(cfg.Webhook.URLs),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case sig := <-quit:
		logger.Info("server_shutting_down", map[string]interface{}{"signal": sig.String()})
	case err := <-errCh:
		serveErr = err
	}

	shutdownDone := make(chan struct{})
	go func() {
		_ = app.Shutdown()
		<-scheduler.Stop().Done()
		auditService.Close()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
	case <-time.After(shutdownTimeout):
		logger.Warn("forced_shutdown", map[string]interface{}{"timeout": shutdownTimeout.String()})
	}

	if serveErr != nil {
		return fmt.Errorf("server error: %w", serveErr)
	}
	return nil
}

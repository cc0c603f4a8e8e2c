package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/reportdesk/api/internal/cache"
	"github.com/reportdesk/api/internal/database"
	"github.com/reportdesk/api/internal/models"
	"github.com/reportdesk/api/pkg/logger"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the schema and seed built-in roles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := database.Connect(cfg.DB); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		logger.Info("migration_completed", map[string]interface{}{"driver": cfg.DB.Driver})
		return nil
	},
}

// promoteCmd bootstraps the first admin, who must have signed in with Discord once.
var promoteCmd = &cobra.Command{
	Use:   "promote <discord-id>",
	Short: "Make an existing user an approved admin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Connect(cfg.DB)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}

		var permissionCache cache.PermissionCache = cache.NoopPermissionCache{}
		if cfg.Redis.Enabled {
			redisClient, err := cache.NewRedisClient(cmd.Context(), cfg.Redis)
			if err != nil {
				return fmt.Errorf("redis initialization failed: %w", err)
			}
			defer redisClient.Close()
			permissionCache = cache.NewRedisPermissionCache(redisClient, cfg.Redis.PermissionsTTL)
		}
		return promoteUser(cmd.Context(), db, permissionCache, args[0])
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(promoteCmd)
}

// promoteUser drops the cached permission set so the new role applies on the next request.
func promoteUser(ctx context.Context, db *gorm.DB, permissionCache cache.PermissionCache, discordID string) error {
	var user models.User
	if err := db.WithContext(ctx).First(&user, "discord_id = ?", discordID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("no user with discord id %s, sign in once first", discordID)
		}
		return err
	}

	err := db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"role":   models.RoleAdmin,
		"status": models.UserStatusApproved,
	}).Error
	if err != nil {
		return err
	}
	if err := permissionCache.Invalidate(ctx, user.ID); err != nil {
		logger.Warn("permission_cache_invalidate_failed", map[string]interface{}{
			"user_id": user.ID.String(),
			"error":   err.Error(),
		})
	}

	logger.InfoWithUser(user.ID.String(), "user_promoted", map[string]interface{}{
		"discord_id": discordID,
		"username":   user.Username,
	})
	fmt.Printf("%s is now an approved admin\n", user.Name())
	return nil
}

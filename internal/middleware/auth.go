package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/reportdesk/api/internal/models"
	"github.com/reportdesk/api/internal/permissions"
	"github.com/reportdesk/api/internal/services"
	"github.com/reportdesk/api/pkg/logger"
	"github.com/reportdesk/api/pkg/utils"
	"gorm.io/gorm"
)

const currentUserKey = "currentUser"

// Banned users may only read the ban notice.
var bannedAllowedRoutes = map[string]string{
	"/api/auth/ban-notice": fiber.MethodGet,
}

type AuthMiddleware struct {
	DB          *gorm.DB
	Permissions *services.PermissionService
}

func NewAuthMiddleware(db *gorm.DB, permissionService *services.PermissionService) *AuthMiddleware {
	return &AuthMiddleware{DB: db, Permissions: permissionService}
}

func CORS(frontendURL string) fiber.Handler {
	origins := frontendURL
	if strings.Contains(frontendURL, "localhost") {
		loopback := strings.Replace(frontendURL, "localhost", "127.0.0.1", 1)
		origins = frontendURL + "," + loopback
	}
	return cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	})
}

func (a *AuthMiddleware) RequireAuth(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		logger.Warn("auth_missing_header", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "missing authorization header")
	}

	tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
	if tokenString == authHeader || tokenString == "" {
		logger.Warn("auth_invalid_format", map[string]interface{}{
			"ip":          c.IP(),
			"path":        c.Path(),
			"auth_header": authHeader[:min(len(authHeader), 20)] + "...",
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid authorization format")
	}

	claims, err := utils.ValidateToken(tokenString)
	if err != nil {
		logger.Warn("jwt_validation_failed", map[string]interface{}{
			"ip":    c.IP(),
			"path":  c.Path(),
			"error": err.Error(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid or expired token")
	}

	// Role and status come from the store, never from the token.
	var user models.User
	if err := a.DB.First(&user, "id = ?", claims.UserID).Error; err != nil {
		logger.Warn("jwt_user_not_found", map[string]interface{}{
			"ip":      c.IP(),
			"path":    c.Path(),
			"user_id": claims.UserID,
		})
		return utils.Error(c, fiber.StatusUnauthorized, "user not found")
	}

	c.Locals(currentUserKey, &user)
	c.Locals(logger.UserIDLocal, user.ID.String())

	if user.Status == models.UserStatusBanned {
		if method, ok := bannedAllowedRoutes[c.Path()]; !ok || method != c.Method() {
			return utils.Error(c, fiber.StatusForbidden, "account banned")
		}
	}

	return c.Next()
}

// RequireApproved keeps accounts that are still registering or under review out of the app.
func RequireApproved(c *fiber.Ctx) error {
	user := GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	if user.Status != models.UserStatusApproved {
		return utils.ErrorWithDetails(c, fiber.StatusForbidden, "account not approved", fiber.Map{
			"status": user.Status,
		})
	}
	return c.Next()
}

func AdminOnly(c *fiber.Ctx) error {
	user := GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	if !user.IsAdmin() {
		return utils.Error(c, fiber.StatusForbidden, "admin access required")
	}
	return c.Next()
}

func (a *AuthMiddleware) RequirePermission(p permissions.Permission) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := GetCurrentUser(c)
		if user == nil {
			return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
		}
		if !a.Permissions.Can(c.UserContext(), user, p) {
			return utils.ErrorWithDetails(c, fiber.StatusForbidden, "missing permission", fiber.Map{
				"permission": p,
			})
		}
		return c.Next()
	}
}

func GetCurrentUser(c *fiber.Ctx) *models.User {
	value := c.Locals(currentUserKey)
	if value == nil {
		return nil
	}
	user, ok := value.(*models.User)
	if !ok {
		return nil
	}
	return user
}

// SetCurrentUser is used by tests and by handlers that swap in a reloaded user.
func SetCurrentUser(c *fiber.Ctx, user *models.User) {
	c.Locals(currentUserKey, user)
	c.Locals(logger.UserIDLocal, user.ID.String())
}

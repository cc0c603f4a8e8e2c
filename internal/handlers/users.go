package handlers

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/reportdesk/api/internal/middleware"
	"github.com/reportdesk/api/internal/models"
	"github.com/reportdesk/api/internal/permissions"
	"github.com/reportdesk/api/internal/services"
	"github.com/reportdesk/api/pkg/logger"
	"github.com/reportdesk/api/pkg/utils"
	"gorm.io/gorm"
)

type UsersHandler struct {
	DB          *gorm.DB
	Users       *services.UserService
	Permissions *services.PermissionService
	Audit       *services.AuditService
}

func NewUsersHandler(db *gorm.DB, users *services.UserService, permissionService *services.PermissionService, audit *services.AuditService) *UsersHandler {
	return &UsersHandler{DB: db, Users: users, Permissions: permissionService, Audit: audit}
}

func (h *UsersHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)
	search := strings.TrimSpace(c.Query("search"))

	query := h.DB.WithContext(c.UserContext()).Model(&models.User{})
	if search != "" {
		searchValue := utils.ContainsPattern(strings.ToLower(search))
		query = query.Where("LOWER(username) LIKE ? "+utils.LikeEscape+" OR LOWER(display_name) LIKE ? "+utils.LikeEscape, searchValue, searchValue)
	}
	if status := models.UserStatus(c.Query("status")); status != "" {
		if !status.Valid() {
			return utils.Error(c, fiber.StatusBadRequest, "invalid status filter")
		}
		query = query.Where("status = ?", status)
	}
	if role := strings.TrimSpace(c.Query("role")); role != "" {
		query = query.Where("role = ?", role)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting users")
	}

	var users []models.User
	if err := utils.ApplyPagination(query.Order("created_at DESC"), p).Find(&users).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing users")
	}

	return utils.Paginated(c, users, p.Page, p.Limit, total)
}

func (h *UsersHandler) Get(c *fiber.Ctx) error {
	user, err := h.Users.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondServiceError(c, err, "failed loading user")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"user":        user,
		"permissions": h.Permissions.Effective(c.UserContext(), user).Map(),
	})
}

type setRoleRequest struct {
	Role string `json:"role"`
}

func (h *UsersHandler) SetRole(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	var req setRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	target, err := h.Users.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondServiceError(c, err, "failed loading user")
	}
	previousRole := target.Role

	if err := h.Users.SetRole(c.UserContext(), target, req.Role); err != nil {
		return respondServiceError(c, err, "failed updating role")
	}

	h.Audit.LogAsync(auditEntry(c, currentUser, "user.role_change", "user", uuidPtr(target.ID), map[string]interface{}{
		"target_user_id":  target.ID.String(),
		"target_username": target.Username,
		"previous_role":   previousRole,
		"role":            target.Role,
	}))

	return utils.Success(c, fiber.StatusOK, target)
}

type setStatusRequest struct {
	Status    models.UserStatus `json:"status"`
	BanReason *string           `json:"banReason"`
}

func (h *UsersHandler) SetStatus(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	var req setStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	target, err := h.Users.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondServiceError(c, err, "failed loading user")
	}
	if target.ID == currentUser.ID && req.Status != models.UserStatusApproved {
		return utils.Error(c, fiber.StatusUnprocessableEntity, "you cannot change your own status")
	}

	if err := h.Users.SetStatus(c.UserContext(), target, req.Status, req.BanReason); err != nil {
		return respondServiceError(c, err, "failed updating status")
	}

	h.Audit.LogAsync(auditEntry(c, currentUser, "user.status_change", "user", uuidPtr(target.ID), map[string]interface{}{
		"target_user_id":  target.ID.String(),
		"target_username": target.Username,
		"status":          target.Status,
	}))

	return utils.Success(c, fiber.StatusOK, target)
}

type setPermissionsRequest struct {
	Permissions permissions.Set `json:"permissions"`
}

// SetPermissions replaces the user's custom permission map. Sending null or {} clears it.
func (h *UsersHandler) SetPermissions(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	var req setPermissionsRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid permissions: "+err.Error())
	}

	target, err := h.Users.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondServiceError(c, err, "failed loading user")
	}

	if err := h.Users.SetPermissions(c.UserContext(), target, req.Permissions); err != nil {
		return respondServiceError(c, err, "failed updating permissions")
	}

	h.Audit.LogAsync(auditEntry(c, currentUser, "user.permissions_change", "user", uuidPtr(target.ID), map[string]interface{}{
		"target_user_id":  target.ID.String(),
		"target_username": target.Username,
		"custom":          !target.Permissions.IsEmpty(),
	}))

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"user":        target,
		"permissions": h.Permissions.Effective(c.UserContext(), target).Map(),
	})
}

func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	target, err := h.Users.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondServiceError(c, err, "failed loading user")
	}

	if err := h.Users.Delete(c.UserContext(), target, currentUser); err != nil {
		return respondServiceError(c, err, "failed deleting user")
	}

	logger.InfoWithUser(currentUser.ID.String(), "user_deleted", map[string]interface{}{
		"target_user_id": target.ID.String(),
		"username":       target.Username,
	})
	h.Audit.LogAsync(auditEntry(c, currentUser, "user.delete", "user", uuidPtr(target.ID), map[string]interface{}{
		"target_username": target.Username,
	}))

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "user deleted"})
}

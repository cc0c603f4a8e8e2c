package handlers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/reportdesk/api/internal/middleware"
	"github.com/reportdesk/api/internal/permissions"
	"github.com/reportdesk/api/internal/services"
	"github.com/reportdesk/api/pkg/logger"
	"github.com/reportdesk/api/pkg/utils"
)

type RolesHandler struct {
	Roles *services.RoleService
	Audit *services.AuditService
}

func NewRolesHandler(roles *services.RoleService, audit *services.AuditService) *RolesHandler {
	return &RolesHandler{Roles: roles, Audit: audit}
}

func (h *RolesHandler) List(c *fiber.Ctx) error {
	roles, err := h.Roles.List(c.UserContext())
	if err != nil {
		return respondServiceError(c, err, "failed listing roles")
	}
	return utils.Success(c, fiber.StatusOK, roles)
}

func (h *RolesHandler) Get(c *fiber.Ctx) error {
	role, err := h.Roles.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondServiceError(c, err, "failed loading role")
	}
	return utils.Success(c, fiber.StatusOK, role)
}

type createRoleRequest struct {
	Name        string          `json:"name"`
	Description *string         `json:"description"`
	Color       string          `json:"color"`
	Icon        string          `json:"icon"`
	IsDefault   bool            `json:"isDefault"`
	Permissions permissions.Set `json:"permissions"`
}

func (h *RolesHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	var req createRoleRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}

	role, err := h.Roles.Create(c.UserContext(), services.RoleInput{
		Name:        req.Name,
		Description: req.Description,
		Color:       req.Color,
		Icon:        req.Icon,
		IsDefault:   req.IsDefault,
		Permissions: req.Permissions,
	})
	if err != nil {
		return respondServiceError(c, err, "failed creating role")
	}

	logger.InfoWithUser(currentUser.ID.String(), "role_created", map[string]interface{}{
		"role_id":    role.ID.String(),
		"role_name":  role.Name,
		"is_default": role.IsDefault,
	})
	h.Audit.LogAsync(auditEntry(c, currentUser, "role.create", "role", uuidPtr(role.ID), map[string]interface{}{
		"role_name": role.Name,
	}))

	return utils.Success(c, fiber.StatusCreated, role)
}

type updateRoleRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Color       *string          `json:"color"`
	Icon        *string          `json:"icon"`
	Permissions *permissions.Set `json:"permissions"`
}

func (h *RolesHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	var req updateRoleRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}

	role, err := h.Roles.Update(c.UserContext(), c.Params("id"), services.RoleUpdate{
		Name:        req.Name,
		Description: req.Description,
		Color:       req.Color,
		Icon:        req.Icon,
		Permissions: req.Permissions,
	})
	if err != nil {
		return respondServiceError(c, err, "failed updating role")
	}

	h.Audit.LogAsync(auditEntry(c, currentUser, "role.update", "role", uuidPtr(role.ID), map[string]interface{}{
		"role_name":           role.Name,
		"permissions_changed": req.Permissions != nil,
	}))

	return utils.Success(c, fiber.StatusOK, role)
}

func (h *RolesHandler) SetDefault(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	role, err := h.Roles.SetDefault(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondServiceError(c, err, "failed setting default role")
	}

	h.Audit.LogAsync(auditEntry(c, currentUser, "role.set_default", "role", uuidPtr(role.ID), map[string]interface{}{
		"role_name": role.Name,
	}))

	return utils.Success(c, fiber.StatusOK, role)
}

// Delete refuses while any user still holds the role; the 409 carries details.userCount.
func (h *RolesHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	role, err := h.Roles.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondServiceError(c, err, "failed loading role")
	}

	if err := h.Roles.Delete(c.UserContext(), role.ID.String()); err != nil {
		return respondServiceError(c, err, "failed deleting role")
	}

	h.Audit.LogAsync(auditEntry(c, currentUser, "role.delete", "role", uuidPtr(role.ID), map[string]interface{}{
		"role_name": role.Name,
	}))

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "role deleted"})
}

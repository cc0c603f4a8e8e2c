package handlers

import (
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/reportdesk/api/internal/middleware"
	"github.com/reportdesk/api/internal/models"
	"github.com/reportdesk/api/internal/services"
	"github.com/reportdesk/api/pkg/logger"
	"github.com/reportdesk/api/pkg/utils"
)

type AuthHandler struct {
	Discord     *services.DiscordService
	Users       *services.UserService
	Permissions *services.PermissionService
	Audit       *services.AuditService
	FrontendURL string
}

func NewAuthHandler(discord *services.DiscordService, users *services.UserService, permissionService *services.PermissionService, audit *services.AuditService, frontendURL string) *AuthHandler {
	return &AuthHandler{
		Discord:     discord,
		Users:       users,
		Permissions: permissionService,
		Audit:       audit,
		FrontendURL: frontendURL,
	}
}

func (h *AuthHandler) DiscordLogin(c *fiber.Ctx) error {
	authURL, err := h.Discord.AuthURL()
	if err != nil {
		return respondServiceError(c, err, "failed building discord login url")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"url": authURL})
}

func (h *AuthHandler) DiscordCallback(c *fiber.Ctx) error {
	if errParam := c.Query("error"); errParam != "" {
		return c.Redirect(h.FrontendURL + "/login?error=" + url.QueryEscape(errParam))
	}

	user, err := h.Discord.Complete(c.UserContext(), c.Query("state"), c.Query("code"))
	if err != nil {
		logger.Warn("discord_login_failed", map[string]interface{}{
			"ip":    c.IP(),
			"error": err.Error(),
		})
		return c.Redirect(h.FrontendURL + "/login?error=" + url.QueryEscape(services.MessageOf(err, "discord login failed")))
	}

	token, err := utils.GenerateToken(user)
	if err != nil {
		logger.ErrorWithUser(user.ID.String(), "token_generation_failed", err, nil)
		return c.Redirect(h.FrontendURL + "/login?error=" + url.QueryEscape("failed to generate token"))
	}

	logger.InfoWithUser(user.ID.String(), "user_login", map[string]interface{}{
		"provider": "discord",
		"status":   user.Status,
		"ip":       c.IP(),
	})
	h.Audit.LogAsync(auditEntry(c, user, "user.login", "user", uuidPtr(user.ID), map[string]interface{}{
		"provider": "discord",
	}))

	return c.Redirect(h.FrontendURL + "/auth/callback?token=" + url.QueryEscape(token))
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"user":        user,
		"permissions": h.Permissions.Effective(c.UserContext(), user).Map(),
	})
}

type profileRequest struct {
	DisplayName *string `json:"displayName"`
	Bio         *string `json:"bio"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req profileRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.Users.Register(c.UserContext(), user, services.ProfileInput{DisplayName: req.DisplayName, Bio: req.Bio}); err != nil {
		return respondServiceError(c, err, "failed completing registration")
	}

	h.Audit.LogAsync(auditEntry(c, user, "user.register", "user", uuidPtr(user.ID), map[string]interface{}{
		"display_name": user.DisplayName,
	}))

	return utils.Success(c, fiber.StatusOK, user)
}

func (h *AuthHandler) UpdateMe(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req profileRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.Users.UpdateProfile(c.UserContext(), user, services.ProfileInput{DisplayName: req.DisplayName, Bio: req.Bio}); err != nil {
		return respondServiceError(c, err, "failed updating profile")
	}

	logger.InfoWithUser(user.ID.String(), "profile_updated", nil)
	return utils.Success(c, fiber.StatusOK, user)
}

// EffectivePermissions returns the caller's effective permission map with all thirteen keys.
func (h *AuthHandler) EffectivePermissions(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return utils.Success(c, fiber.StatusOK, h.Permissions.Effective(c.UserContext(), user).Map())
}

func (h *AuthHandler) BanNotice(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	notice := fiber.Map{"banned": user.Status == models.UserStatusBanned}
	if user.Status == models.UserStatusBanned && user.BanReason != nil {
		notice["reason"] = *user.BanReason
	}
	return utils.Success(c, fiber.StatusOK, notice)
}

package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/reportdesk/api/internal/middleware"
	"github.com/reportdesk/api/internal/services"
	"github.com/reportdesk/api/pkg/logger"
	"github.com/reportdesk/api/pkg/utils"
)

type NotificationsHandler struct {
	Notifications *services.NotificationService
}

func NewNotificationsHandler(notifications *services.NotificationService) *NotificationsHandler {
	return &NotificationsHandler{Notifications: notifications}
}

func (h *NotificationsHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	p := utils.ParsePagination(c)

	notifications, total, err := h.Notifications.List(c.UserContext(), currentUser.ID, queryBool(c, "unread"), p)
	if err != nil {
		return respondServiceError(c, err, "failed listing notifications")
	}
	return utils.Paginated(c, notifications, p.Page, p.Limit, total)
}

func (h *NotificationsHandler) UnreadCount(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	count, err := h.Notifications.UnreadCount(c.UserContext(), currentUser.ID)
	if err != nil {
		return respondServiceError(c, err, "failed counting notifications")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"count": count})
}

func (h *NotificationsHandler) MarkRead(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	if err := h.Notifications.MarkRead(c.UserContext(), currentUser.ID, c.Params("id")); err != nil {
		return respondServiceError(c, err, "failed marking notification read")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "notification marked as read"})
}

func (h *NotificationsHandler) MarkAllRead(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	updated, err := h.Notifications.MarkAllRead(c.UserContext(), currentUser.ID)
	if err != nil {
		return respondServiceError(c, err, "failed marking notifications read")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"updated": updated})
}

func (h *NotificationsHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	if err := h.Notifications.Delete(c.UserContext(), currentUser.ID, c.Params("id")); err != nil {
		return respondServiceError(c, err, "failed deleting notification")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "notification deleted"})
}

type broadcastRequest struct {
	Title   string   `json:"title"`
	Message string   `json:"message"`
	UserIDs []string `json:"userIds"`
}

// Broadcast sends an admin notice to the listed users, or to every approved user.
func (h *NotificationsHandler) Broadcast(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	var req broadcastRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	userIDs := make([]uuid.UUID, 0, len(req.UserIDs))
	for _, raw := range req.UserIDs {
		id, err := parseUUID(raw)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid user id: "+raw)
		}
		userIDs = append(userIDs, id)
	}

	sent, err := h.Notifications.Broadcast(c.UserContext(), currentUser, services.BroadcastInput{
		Title:   req.Title,
		Message: req.Message,
		UserIDs: userIDs,
	})
	if err != nil {
		return respondServiceError(c, err, "failed sending broadcast")
	}

	logger.InfoWithUser(currentUser.ID.String(), "notification_broadcast", map[string]interface{}{
		"recipients": sent,
	})
	return utils.Success(c, fiber.StatusCreated, fiber.Map{"sent": sent})
}

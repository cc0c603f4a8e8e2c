package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/reportdesk/api/internal/models"
	"github.com/reportdesk/api/internal/services"
	"github.com/reportdesk/api/pkg/logger"
	"github.com/reportdesk/api/pkg/utils"
)

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

func queryBool(c *fiber.Ctx, key string) bool {
	parsed, err := strconv.ParseBool(c.Query(key))
	return err == nil && parsed
}

var errorStatuses = []struct {
	kind   error
	status int
}{
	{services.ErrUnauthorized, fiber.StatusUnauthorized},
	{services.ErrForbidden, fiber.StatusForbidden},
	{services.ErrNotFound, fiber.StatusNotFound},
	{services.ErrBadRequest, fiber.StatusBadRequest},
	{services.ErrConflict, fiber.StatusConflict},
	{services.ErrAlreadyMember, fiber.StatusConflict},
	{services.ErrInvalidOperation, fiber.StatusUnprocessableEntity},
}

// respondServiceError maps the service error taxonomy onto the response envelope. Anything
// outside it is logged and reported as a 500 with fallback as the message.
func respondServiceError(c *fiber.Ctx, err error, fallback string) error {
	for _, entry := range errorStatuses {
		if !errors.Is(err, entry.kind) {
			continue
		}
		message := services.MessageOf(err, entry.kind.Error())
		var se *services.ServiceError
		if errors.As(err, &se) && len(se.Details) > 0 {
			return utils.ErrorWithDetails(c, entry.status, message, fiber.Map(se.Details))
		}
		return utils.Error(c, entry.status, message)
	}

	details := map[string]interface{}{
		"method":     c.Method(),
		"path":       c.Path(),
		"request_id": logger.GetRequestIDFromContext(c),
	}
	if userID := logger.GetUserIDFromContext(c); userID != nil {
		logger.ErrorWithUser(*userID, "request_failed", err, details)
	} else {
		logger.Error("request_failed", err, details)
	}
	return utils.Error(c, fiber.StatusInternalServerError, fallback)
}

func auditEntry(c *fiber.Ctx, actor *models.User, action, resourceType string, resourceID *uuid.UUID, details map[string]interface{}) services.AuditEntry {
	entry := services.AuditEntry{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
		IPAddress:    c.IP(),
		RequestID:    logger.GetRequestIDFromContext(c),
	}
	if actor != nil {
		actorID := actor.ID
		entry.UserID = &actorID
	}
	return entry
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	return &id
}

package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/reportdesk/api/internal/middleware"
	"github.com/reportdesk/api/internal/models"
	"github.com/reportdesk/api/internal/services"
	"github.com/reportdesk/api/pkg/utils"
)

type MissionsHandler struct {
	Missions *services.MissionService
	Audit    *services.AuditService
}

func NewMissionsHandler(missions *services.MissionService, audit *services.AuditService) *MissionsHandler {
	return &MissionsHandler{Missions: missions, Audit: audit}
}

type createMissionRequest struct {
	Title       string            `json:"title"`
	Description *string           `json:"description"`
	FolderID    *string           `json:"folderId"`
	AssigneeID  string            `json:"assigneeId"`
	Importance  models.Importance `json:"importance"`
	DueAt       *time.Time        `json:"dueAt"`
}

func (h *MissionsHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	var req createMissionRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	assigneeID, err := parseUUID(req.AssigneeID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "assigneeId must be a valid user id")
	}
	var folderID *uuid.UUID
	if req.FolderID != nil && *req.FolderID != "" {
		parsed, err := parseUUID(*req.FolderID)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "folderId must be a valid folder id")
		}
		folderID = &parsed
	}

	mission, err := h.Missions.Create(c.UserContext(), currentUser, services.MissionInput{
		Title:       req.Title,
		Description: req.Description,
		FolderID:    folderID,
		AssigneeID:  assigneeID,
		Importance:  req.Importance,
		DueAt:       req.DueAt,
	})
	if err != nil {
		return respondServiceError(c, err, "failed creating mission")
	}

	h.Audit.LogAsync(auditEntry(c, currentUser, "mission.assign", "mission", uuidPtr(mission.ID), map[string]interface{}{
		"mission_title": mission.Title,
		"assignee_id":   mission.AssigneeID.String(),
	}))

	return utils.Success(c, fiber.StatusCreated, mission)
}

func (h *MissionsHandler) ListAll(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)

	filter := services.MissionFilter{Status: models.MissionStatus(c.Query("status"))}
	if filter.Status != "" && !filter.Status.Valid() {
		return utils.Error(c, fiber.StatusBadRequest, "invalid status filter")
	}
	if raw := c.Query("assigneeId"); raw != "" {
		assigneeID, err := parseUUID(raw)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid assignee id")
		}
		filter.AssigneeID = &assigneeID
	}

	missions, total, err := h.Missions.List(c.UserContext(), filter, p)
	if err != nil {
		return respondServiceError(c, err, "failed listing missions")
	}
	return utils.Paginated(c, missions, p.Page, p.Limit, total)
}

func (h *MissionsHandler) ListMine(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	p := utils.ParsePagination(c)

	assigneeID := currentUser.ID
	filter := services.MissionFilter{
		Status:     models.MissionStatus(c.Query("status")),
		AssigneeID: &assigneeID,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return utils.Error(c, fiber.StatusBadRequest, "invalid status filter")
	}

	missions, total, err := h.Missions.List(c.UserContext(), filter, p)
	if err != nil {
		return respondServiceError(c, err, "failed listing missions")
	}
	return utils.Paginated(c, missions, p.Page, p.Limit, total)
}

// Get is open to the assignee, the assigner and admins.
func (h *MissionsHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	mission, err := h.Missions.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondServiceError(c, err, "failed loading mission")
	}
	if mission.AssigneeID != currentUser.ID && mission.AssignedByID != currentUser.ID && !currentUser.IsAdmin() {
		return utils.Error(c, fiber.StatusForbidden, "you do not have access to this mission")
	}
	return utils.Success(c, fiber.StatusOK, mission)
}

type updateMissionRequest struct {
	Title       *string               `json:"title"`
	Description *string               `json:"description"`
	Importance  *models.Importance    `json:"importance"`
	Status      *models.MissionStatus `json:"status"`
	AssigneeID  *string               `json:"assigneeId"`
	DueAt       *time.Time            `json:"dueAt"`
	ClearDueAt  bool                  `json:"clearDueAt"`
}

func (h *MissionsHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	var req updateMissionRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	mission, err := h.Missions.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondServiceError(c, err, "failed loading mission")
	}

	input := services.MissionUpdate{
		Title:       req.Title,
		Description: req.Description,
		Importance:  req.Importance,
		Status:      req.Status,
		DueAt:       req.DueAt,
		ClearDueAt:  req.ClearDueAt,
	}
	if req.AssigneeID != nil {
		assigneeID, err := parseUUID(*req.AssigneeID)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "assigneeId must be a valid user id")
		}
		input.AssigneeID = &assigneeID
	}

	if err := h.Missions.Update(c.UserContext(), mission, input); err != nil {
		return respondServiceError(c, err, "failed updating mission")
	}

	updated, err := h.Missions.Get(c.UserContext(), mission.ID.String())
	if err != nil {
		return respondServiceError(c, err, "failed loading mission")
	}

	if updated.AssigneeID != mission.AssigneeID {
		h.Audit.LogAsync(auditEntry(c, currentUser, "mission.assign", "mission", uuidPtr(updated.ID), map[string]interface{}{
			"mission_title": updated.Title,
			"assignee_id":   updated.AssigneeID.String(),
		}))
	} else {
		h.Audit.LogAsync(auditEntry(c, currentUser, "mission.update", "mission", uuidPtr(updated.ID), map[string]interface{}{
			"mission_title": updated.Title,
		}))
	}

	return utils.Success(c, fiber.StatusOK, updated)
}

type updateMissionStatusRequest struct {
	Status models.MissionStatus `json:"status"`
}

func (h *MissionsHandler) UpdateStatus(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	var req updateMissionStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	mission, err := h.Missions.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondServiceError(c, err, "failed loading mission")
	}

	if err := h.Missions.UpdateStatus(c.UserContext(), currentUser, mission, req.Status); err != nil {
		return respondServiceError(c, err, "failed updating mission status")
	}

	h.Audit.LogAsync(auditEntry(c, currentUser, "mission.status_change", "mission", uuidPtr(mission.ID), map[string]interface{}{
		"mission_title":  mission.Title,
		"status":         req.Status,
		"assigned_by_id": mission.AssignedByID.String(),
	}))

	updated, err := h.Missions.Get(c.UserContext(), mission.ID.String())
	if err != nil {
		return respondServiceError(c, err, "failed loading mission")
	}
	return utils.Success(c, fiber.StatusOK, updated)
}

func (h *MissionsHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	mission, err := h.Missions.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondServiceError(c, err, "failed loading mission")
	}
	if err := h.Missions.Delete(c.UserContext(), mission.ID.String()); err != nil {
		return respondServiceError(c, err, "failed deleting mission")
	}

	h.Audit.LogAsync(auditEntry(c, currentUser, "mission.delete", "mission", uuidPtr(mission.ID), map[string]interface{}{
		"mission_title": mission.Title,
	}))

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "mission deleted"})
}

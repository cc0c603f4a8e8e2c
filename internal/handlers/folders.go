package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/reportdesk/api/internal/middleware"
	"github.com/reportdesk/api/internal/models"
	"github.com/reportdesk/api/internal/services"
	"github.com/reportdesk/api/pkg/logger"
	"github.com/reportdesk/api/pkg/utils"
)

type FoldersHandler struct {
	Folders    *services.FolderService
	Access     *services.AccessService
	Membership *services.MembershipService
	Audit      *services.AuditService
}

func NewFoldersHandler(folders *services.FolderService, access *services.AccessService, membership *services.MembershipService, audit *services.AuditService) *FoldersHandler {
	return &FoldersHandler{Folders: folders, Access: access, Membership: membership, Audit: audit}
}

type createFolderRequest struct {
	Title             string  `json:"title"`
	Description       *string `json:"description"`
	GenerateAccessKey bool    `json:"generateAccessKey"`
}

func (h *FoldersHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	var req createFolderRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	folder, err := h.Folders.Create(c.UserContext(), currentUser, services.CreateFolderInput{
		Title:             req.Title,
		Description:       req.Description,
		GenerateAccessKey: req.GenerateAccessKey,
	})
	if err != nil {
		return respondServiceError(c, err, "failed creating folder")
	}

	logger.InfoWithUser(currentUser.ID.String(), "folder_created", map[string]interface{}{
		"folder_id":    folder.ID.String(),
		"folder_title": folder.Title,
	})
	h.Audit.LogAsync(auditEntry(c, currentUser, "folder.create", "folder", uuidPtr(folder.ID), map[string]interface{}{
		"folder_title": folder.Title,
	}))

	return utils.Success(c, fiber.StatusCreated, folder)
}

func (h *FoldersHandler) ListMine(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	p := utils.ParsePagination(c)

	folders, total, err := h.Folders.ListForUser(c.UserContext(), currentUser, p)
	if err != nil {
		return respondServiceError(c, err, "failed listing folders")
	}
	for i := range folders {
		hideAccessKey(&folders[i], currentUser)
	}
	return utils.Paginated(c, folders, p.Page, p.Limit, total)
}

func (h *FoldersHandler) ListAll(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)

	folders, total, err := h.Folders.ListAll(c.UserContext(), c.Query("search"), p)
	if err != nil {
		return respondServiceError(c, err, "failed listing folders")
	}
	return utils.Paginated(c, folders, p.Page, p.Limit, total)
}

// Get serves a folder to its owner and members, or to an admin passing adminMode=true.
func (h *FoldersHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	folder, access, err := h.Access.LoadFolderForUser(c.UserContext(), currentUser, c.Params("id"), queryBool(c, "adminMode"))
	if err != nil {
		return respondServiceError(c, err, "failed loading folder")
	}

	if access.IsAdminAccess {
		h.Audit.LogAsync(auditEntry(c, currentUser, "folder.admin_access", "folder", uuidPtr(folder.ID), map[string]interface{}{
			"folder_title": folder.Title,
		}))
	}

	hideAccessKey(folder, currentUser)
	return utils.Success(c, fiber.StatusOK, folder)
}

type updateFolderRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

func (h *FoldersHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	var req updateFolderRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	folder, err := h.Access.LoadFolder(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondServiceError(c, err, "failed loading folder")
	}

	if err := h.Folders.Update(c.UserContext(), currentUser, folder, services.UpdateFolderInput{
		Title:       req.Title,
		Description: req.Description,
	}); err != nil {
		return respondServiceError(c, err, "failed updating folder")
	}

	h.Audit.LogAsync(auditEntry(c, currentUser, "folder.update", "folder", uuidPtr(folder.ID), map[string]interface{}{
		"folder_title": folder.Title,
	}))

	return utils.Success(c, fiber.StatusOK, folder)
}

func (h *FoldersHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	folder, err := h.Access.LoadFolder(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondServiceError(c, err, "failed loading folder")
	}

	if err := h.Folders.Delete(c.UserContext(), currentUser, folder); err != nil {
		return respondServiceError(c, err, "failed deleting folder")
	}

	logger.InfoWithUser(currentUser.ID.String(), "folder_deleted", map[string]interface{}{
		"folder_id":    folder.ID.String(),
		"folder_title": folder.Title,
		"owner_id":     folder.OwnerID.String(),
	})
	h.Audit.LogAsync(auditEntry(c, currentUser, "folder.delete", "folder", uuidPtr(folder.ID), map[string]interface{}{
		"folder_title": folder.Title,
	}))

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "folder deleted"})
}

type joinFolderRequest struct {
	AccessKey string `json:"accessKey"`
}

func (h *FoldersHandler) Join(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	var req joinFolderRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	folder, err := h.Membership.Join(c.UserContext(), req.AccessKey, currentUser)
	if err != nil {
		return respondServiceError(c, err, "failed joining folder")
	}

	h.Audit.LogAsync(auditEntry(c, currentUser, "folder.member_join", "folder", uuidPtr(folder.ID), map[string]interface{}{
		"folder_title": folder.Title,
		"owner_id":     folder.OwnerID.String(),
	}))

	hideAccessKey(folder, currentUser)
	return utils.Success(c, fiber.StatusOK, folder)
}

func (h *FoldersHandler) Leave(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	folder, _, err := h.Access.LoadFolderForUser(c.UserContext(), currentUser, c.Params("id"), false)
	if err != nil {
		return respondServiceError(c, err, "failed loading folder")
	}

	if err := h.Membership.Leave(c.UserContext(), folder, currentUser); err != nil {
		return respondServiceError(c, err, "failed leaving folder")
	}

	h.Audit.LogAsync(auditEntry(c, currentUser, "folder.member_leave", "folder", uuidPtr(folder.ID), map[string]interface{}{
		"folder_title": folder.Title,
		"owner_id":     folder.OwnerID.String(),
	}))

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "left folder"})
}

func (h *FoldersHandler) RemoveMember(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	folder, err := h.Access.LoadFolder(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondServiceError(c, err, "failed loading folder")
	}

	memberID, err := parseUUID(c.Params("userId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	if err := h.Membership.RemoveMember(c.UserContext(), folder, memberID, currentUser); err != nil {
		return respondServiceError(c, err, "failed removing member")
	}

	h.Audit.LogAsync(auditEntry(c, currentUser, "folder.member_remove", "folder", uuidPtr(folder.ID), map[string]interface{}{
		"folder_title":   folder.Title,
		"target_user_id": memberID.String(),
	}))

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "member removed"})
}

type changeOwnerRequest struct {
	NewOwnerID string `json:"newOwnerId"`
}

func (h *FoldersHandler) ChangeOwner(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	var req changeOwnerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	newOwnerID, err := parseUUID(req.NewOwnerID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "newOwnerId must be a valid user id")
	}

	folder, err := h.Access.LoadFolder(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondServiceError(c, err, "failed loading folder")
	}
	previousOwnerID := folder.OwnerID

	updated, err := h.Membership.ChangeOwner(c.UserContext(), folder, newOwnerID, currentUser)
	if err != nil {
		return respondServiceError(c, err, "failed changing owner")
	}

	h.Audit.LogAsync(auditEntry(c, currentUser, "folder.owner_change", "folder", uuidPtr(folder.ID), map[string]interface{}{
		"folder_title":      updated.Title,
		"previous_owner_id": previousOwnerID.String(),
		"new_owner_id":      newOwnerID.String(),
	}))

	return utils.Success(c, fiber.StatusOK, updated)
}

func (h *FoldersHandler) RotateAccessKey(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	folder, err := h.Access.LoadFolder(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondServiceError(c, err, "failed loading folder")
	}

	key, err := h.Membership.RotateAccessKey(c.UserContext(), folder, currentUser)
	if err != nil {
		return respondServiceError(c, err, "failed rotating access key")
	}

	h.Audit.LogAsync(auditEntry(c, currentUser, "folder.access_key_rotate", "folder", uuidPtr(folder.ID), map[string]interface{}{
		"folder_title": folder.Title,
	}))

	return utils.Success(c, fiber.StatusOK, fiber.Map{"accessKey": key})
}

func (h *FoldersHandler) ClearAccessKey(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	folder, err := h.Access.LoadFolder(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondServiceError(c, err, "failed loading folder")
	}

	if err := h.Membership.ClearAccessKey(c.UserContext(), folder, currentUser); err != nil {
		return respondServiceError(c, err, "failed clearing access key")
	}

	h.Audit.LogAsync(auditEntry(c, currentUser, "folder.access_key_clear", "folder", uuidPtr(folder.ID), map[string]interface{}{
		"folder_title": folder.Title,
	}))

	return utils.Success(c, fiber.StatusOK, fiber.Map{"accessKey": (*string)(nil)})
}

// hideAccessKey strips the key from folders the caller does not manage.
func hideAccessKey(folder *models.Folder, user *models.User) {
	if folder.OwnerID != user.ID && !user.IsAdmin() {
		folder.AccessKey = nil
	}
}

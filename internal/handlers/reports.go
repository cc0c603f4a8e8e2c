package handlers

import (
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

const (
	maxReportTitle   = 200
	maxReportContent = 100_000
)

type ReportsHandler struct {
	DB          *gorm.DB
	Access      *services.AccessService
	Permissions *services.PermissionService
	Audit       *services.AuditService
}

func NewReportsHandler(db *gorm.DB, access *services.AccessService, permissionService *services.PermissionService, audit *services.AuditService) *ReportsHandler {
	return &ReportsHandler{DB: db, Access: access, Permissions: permissionService, Audit: audit}
}

type reportResponse struct {
	models.Report
	AdminAccess bool `json:"adminAccess"`
}

func (h *ReportsHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	folder, access, err := h.Access.LoadFolderForUser(c.UserContext(), currentUser, c.Params("id"), queryBool(c, "adminMode"))
	if err != nil {
		return respondServiceError(c, err, "failed loading folder")
	}

	p := utils.ParsePagination(c)
	query := h.DB.WithContext(c.UserContext()).Model(&models.Report{}).Where("folder_id = ?", folder.ID)

	if importance := models.Importance(c.Query("importance")); importance != "" {
		if !importance.Valid() {
			return utils.Error(c, fiber.StatusBadRequest, "invalid importance filter")
		}
		query = query.Where("importance = ?", importance)
	}
	if tag := strings.ToLower(strings.TrimSpace(c.Query("tag"))); tag != "" {
		query = query.Where("CAST(tags AS TEXT) LIKE ? "+utils.LikeEscape, utils.ContainsPattern(`"`+tag+`"`))
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		query = query.Where("LOWER(title) LIKE ? "+utils.LikeEscape, utils.ContainsPattern(strings.ToLower(search)))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting reports")
	}

	var reports []models.Report
	if err := utils.ApplyPagination(query.Order("created_at DESC"), p).Preload("Author").Find(&reports).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing reports")
	}

	items := make([]reportResponse, len(reports))
	for i := range reports {
		items[i] = reportResponse{Report: reports[i], AdminAccess: access.IsAdminAccess}
	}
	return utils.Paginated(c, items, p.Page, p.Limit, total)
}

type createReportRequest struct {
	Title      string            `json:"title"`
	Content    string            `json:"content"`
	Importance models.Importance `json:"importance"`
	Tags       []string          `json:"tags"`
}

// Create writes a report into a folder. Admin mode does not count here: the author must be
// the owner or a member.
func (h *ReportsHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	folder, access, err := h.Access.LoadFolderForUser(c.UserContext(), currentUser, c.Params("id"), false)
	if err != nil {
		return respondServiceError(c, err, "failed loading folder")
	}
	if !access.IsOwner && !access.IsMember {
		return utils.Error(c, fiber.StatusForbidden, "only folder members can write reports")
	}
	if !h.Permissions.Can(c.UserContext(), currentUser, permissions.CreateReports) {
		return utils.Error(c, fiber.StatusForbidden, "you are not allowed to create reports")
	}

	var req createReportRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	report := models.Report{
		FolderID:   folder.ID,
		AuthorID:   currentUser.ID,
		Title:      strings.TrimSpace(req.Title),
		Content:    req.Content,
		Importance: req.Importance,
		Tags:       models.NormalizeTags(req.Tags),
	}
	if report.Importance == "" {
		report.Importance = models.ImportanceMedium
	}
	if msg := validateReport(&report); msg != "" {
		return utils.Error(c, fiber.StatusBadRequest, msg)
	}

	if err := h.DB.WithContext(c.UserContext()).Omit("Author").Create(&report).Error; err != nil {
		return respondServiceError(c, err, "failed creating report")
	}
	report.Author = *currentUser

	logger.InfoWithUser(currentUser.ID.String(), "report_created", map[string]interface{}{
		"report_id": report.ID.String(),
		"folder_id": folder.ID.String(),
	})
	h.Audit.LogAsync(auditEntry(c, currentUser, "report.create", "report", uuidPtr(report.ID), map[string]interface{}{
		"folder_id":    folder.ID.String(),
		"folder_title": folder.Title,
		"report_title": report.Title,
	}))

	return utils.Success(c, fiber.StatusCreated, report)
}

func (h *ReportsHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	report, err := h.Access.LoadReport(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondServiceError(c, err, "failed loading report")
	}

	_, access, err := h.Access.LoadFolderForUser(c.UserContext(), currentUser, report.FolderID.String(), queryBool(c, "adminMode"))
	if err != nil {
		return respondServiceError(c, err, "failed loading folder")
	}

	return utils.Success(c, fiber.StatusOK, reportResponse{Report: *report, AdminAccess: access.IsAdminAccess})
}

type updateReportRequest struct {
	Title      *string            `json:"title"`
	Content    *string            `json:"content"`
	Importance *models.Importance `json:"importance"`
	Tags       *[]string          `json:"tags"`
}

func (h *ReportsHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	report, err := h.Access.LoadReport(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondServiceError(c, err, "failed loading report")
	}
	if err := h.Access.AuthorizeReportMutation(c.UserContext(), currentUser, report, services.ReportActionEdit); err != nil {
		return respondServiceError(c, err, "failed authorizing report edit")
	}

	var req updateReportRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	changed := false
	if req.Title != nil {
		report.Title = strings.TrimSpace(*req.Title)
		changed = true
	}
	if req.Content != nil {
		report.Content = *req.Content
		changed = true
	}
	if req.Importance != nil {
		report.Importance = *req.Importance
		changed = true
	}
	if req.Tags != nil {
		report.Tags = models.NormalizeTags(*req.Tags)
		changed = true
	}
	if !changed {
		return utils.Error(c, fiber.StatusBadRequest, "nothing to update")
	}
	if msg := validateReport(report); msg != "" {
		return utils.Error(c, fiber.StatusBadRequest, msg)
	}

	err = h.DB.WithContext(c.UserContext()).Model(&models.Report{}).
		Where("id = ?", report.ID).
		Select("Title", "Content", "Importance", "Tags").
		Updates(&models.Report{Title: report.Title, Content: report.Content, Importance: report.Importance, Tags: report.Tags}).Error
	if err != nil {
		return respondServiceError(c, err, "failed updating report")
	}

	details := map[string]interface{}{
		"folder_id":    report.FolderID.String(),
		"report_title": report.Title,
	}
	if report.AuthorID != currentUser.ID {
		details["author_id"] = report.AuthorID.String()
		details["moderated"] = true
	}
	h.Audit.LogAsync(auditEntry(c, currentUser, "report.update", "report", uuidPtr(report.ID), details))

	return utils.Success(c, fiber.StatusOK, report)
}

func (h *ReportsHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	report, err := h.Access.LoadReport(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondServiceError(c, err, "failed loading report")
	}
	if err := h.Access.AuthorizeReportMutation(c.UserContext(), currentUser, report, services.ReportActionDelete); err != nil {
		return respondServiceError(c, err, "failed authorizing report delete")
	}

	result := h.DB.WithContext(c.UserContext()).Delete(&models.Report{}, "id = ?", report.ID)
	if result.Error != nil {
		return respondServiceError(c, result.Error, "failed deleting report")
	}
	if result.RowsAffected == 0 {
		return utils.Error(c, fiber.StatusNotFound, "report not found")
	}

	details := map[string]interface{}{
		"folder_id":    report.FolderID.String(),
		"report_title": report.Title,
	}
	if report.AuthorID != currentUser.ID {
		details["author_id"] = report.AuthorID.String()
		details["moderated"] = true
	}
	h.Audit.LogAsync(auditEntry(c, currentUser, "report.delete", "report", uuidPtr(report.ID), details))

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "report deleted"})
}

func validateReport(report *models.Report) string {
	switch {
	case report.Title == "":
		return "title is required"
	case len(report.Title) > maxReportTitle:
		return "title is too long"
	case strings.TrimSpace(report.Content) == "":
		return "content is required"
	case len(report.Content) > maxReportContent:
		return "content is too long"
	case !report.Importance.Valid():
		return "invalid importance"
	}
	return ""
}

package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/reportdesk/api/internal/models"
	"github.com/reportdesk/api/pkg/utils"
	"gorm.io/gorm"
)

var missionStatusOrder = map[models.MissionStatus]int{
	models.MissionStatusPending:    0,
	models.MissionStatusInProgress: 1,
	models.MissionStatusCompleted:  2,
}

type MissionService struct {
	DB  *gorm.DB
	now func() time.Time
}

func NewMissionService(db *gorm.DB) *MissionService {
	return &MissionService{DB: db, now: func() time.Time { return time.Now().UTC() }}
}

type MissionInput struct {
	Title       string
	Description *string
	FolderID    *uuid.UUID
	AssigneeID  uuid.UUID
	Importance  models.Importance
	DueAt       *time.Time
}

type MissionUpdate struct {
	Title       *string
	Description *string
	Importance  *models.Importance
	Status      *models.MissionStatus
	AssigneeID  *uuid.UUID
	DueAt       *time.Time
	ClearDueAt  bool
}

type MissionFilter struct {
	Status     models.MissionStatus
	AssigneeID *uuid.UUID
}

func (s *MissionService) Create(ctx context.Context, admin *models.User, input MissionInput) (*models.Mission, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, BadRequest("title is required")
	}
	importance := input.Importance
	if importance == "" {
		importance = models.ImportanceMedium
	}
	if !importance.Valid() {
		return nil, BadRequest("invalid importance")
	}

	if err := s.ensureUser(ctx, input.AssigneeID); err != nil {
		return nil, err
	}
	if input.FolderID != nil {
		var count int64
		if err := s.DB.WithContext(ctx).Model(&models.Folder{}).Where("id = ?", *input.FolderID).Count(&count).Error; err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, NotFound("folder not found")
		}
	}

	mission := models.Mission{
		Title:        title,
		Description:  input.Description,
		FolderID:     input.FolderID,
		AssigneeID:   input.AssigneeID,
		AssignedByID: admin.ID,
		Status:       models.MissionStatusPending,
		Importance:   importance,
		DueAt:        input.DueAt,
	}
	if err := s.DB.WithContext(ctx).Omit("Assignee", "AssignedBy").Create(&mission).Error; err != nil {
		return nil, err
	}
	return s.Get(ctx, mission.ID.String())
}

func (s *MissionService) Get(ctx context.Context, rawID string) (*models.Mission, error) {
	missionID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, NotFound("mission not found")
	}

	var mission models.Mission
	if err := s.DB.WithContext(ctx).Preload("Assignee").Preload("AssignedBy").First(&mission, "id = ?", missionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("mission not found")
		}
		return nil, err
	}
	return &mission, nil
}

func (s *MissionService) List(ctx context.Context, filter MissionFilter, p utils.PaginationParams) ([]models.Mission, int64, error) {
	query := s.DB.WithContext(ctx).Model(&models.Mission{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.AssigneeID != nil {
		query = query.Where("assignee_id = ?", *filter.AssigneeID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var missions []models.Mission
	if err := utils.ApplyPagination(query.Order("created_at DESC"), p).
		Preload("Assignee").
		Preload("AssignedBy").
		Find(&missions).Error; err != nil {
		return nil, 0, err
	}
	return missions, total, nil
}

// Update is the admin edit. Any status may be set here.
func (s *MissionService) Update(ctx context.Context, mission *models.Mission, input MissionUpdate) error {
	updates := map[string]interface{}{}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return BadRequest("title cannot be empty")
		}
		updates["title"] = title
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.Importance != nil {
		if !input.Importance.Valid() {
			return BadRequest("invalid importance")
		}
		updates["importance"] = *input.Importance
	}
	if input.Status != nil {
		if !input.Status.Valid() {
			return BadRequest("invalid status")
		}
		s.applyStatus(updates, mission, *input.Status)
	}
	if input.AssigneeID != nil {
		if err := s.ensureUser(ctx, *input.AssigneeID); err != nil {
			return err
		}
		updates["assignee_id"] = *input.AssigneeID
	}
	if input.ClearDueAt {
		updates["due_at"] = nil
		updates["overdue_at"] = nil
	} else if input.DueAt != nil {
		updates["due_at"] = *input.DueAt
		updates["overdue_at"] = nil
	}
	if len(updates) == 0 {
		return BadRequest("nothing to update")
	}

	return s.DB.WithContext(ctx).Model(&models.Mission{}).Where("id = ?", mission.ID).Updates(updates).Error
}

// UpdateStatus is the assignee's path: only forward moves from pending to completed.
func (s *MissionService) UpdateStatus(ctx context.Context, user *models.User, mission *models.Mission, status models.MissionStatus) error {
	if mission.AssigneeID != user.ID {
		return Forbidden("only the assignee can update this mission")
	}
	if mission.Status.Terminal() {
		return InvalidOperation("mission is already " + string(mission.Status))
	}

	next, ok := missionStatusOrder[status]
	if !ok {
		return BadRequest("invalid status")
	}
	if next <= missionStatusOrder[mission.Status] {
		return InvalidOperation("missions can only move forward")
	}

	updates := map[string]interface{}{}
	s.applyStatus(updates, mission, status)

	// Conditional on the status read earlier so two concurrent moves cannot both apply.
	result := s.DB.WithContext(ctx).Model(&models.Mission{}).
		Where("id = ? AND status = ?", mission.ID, mission.Status).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return Conflict("mission changed concurrently, reload and retry")
	}
	return nil
}

func (s *MissionService) applyStatus(updates map[string]interface{}, mission *models.Mission, status models.MissionStatus) {
	updates["status"] = status
	if status == models.MissionStatusCompleted {
		updates["completed_at"] = s.now()
	} else if mission.Status == models.MissionStatusCompleted {
		updates["completed_at"] = nil
	}
}

func (s *MissionService) Delete(ctx context.Context, rawID string) error {
	missionID, err := uuid.Parse(rawID)
	if err != nil {
		return NotFound("mission not found")
	}

	result := s.DB.WithContext(ctx).Delete(&models.Mission{}, "id = ?", missionID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return NotFound("mission not found")
	}
	return nil
}

// MarkOverdue flags open missions whose due date has passed and returns the ones flagged by
// this call. Already-flagged missions are skipped so each is reported once.
func (s *MissionService) MarkOverdue(ctx context.Context) ([]models.Mission, error) {
	now := s.now()

	var candidates []models.Mission
	if err := s.DB.WithContext(ctx).
		Where("due_at IS NOT NULL AND due_at < ? AND overdue_at IS NULL", now).
		Where("status IN ?", []models.MissionStatus{models.MissionStatusPending, models.MissionStatusInProgress}).
		Find(&candidates).Error; err != nil {
		return nil, err
	}

	flagged := make([]models.Mission, 0, len(candidates))
	for _, mission := range candidates {
		result := s.DB.WithContext(ctx).Model(&models.Mission{}).
			Where("id = ? AND overdue_at IS NULL", mission.ID).
			Update("overdue_at", now)
		if result.Error != nil {
			return flagged, result.Error
		}
		if result.RowsAffected == 1 {
			mission.OverdueAt = &now
			flagged = append(flagged, mission)
		}
	}
	return flagged, nil
}

func (s *MissionService) CountOpen(ctx context.Context, assigneeID uuid.UUID) (int64, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.Mission{}).
		Where("assignee_id = ? AND status IN ?", assigneeID,
			[]models.MissionStatus{models.MissionStatusPending, models.MissionStatusInProgress}).
		Count(&count).Error
	return count, err
}

func (s *MissionService) ensureUser(ctx context.Context, userID uuid.UUID) error {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return NotFound("assignee not found")
	}
	return nil
}

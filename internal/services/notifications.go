package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/reportdesk/api/internal/models"
	"github.com/reportdesk/api/pkg/utils"
	"gorm.io/gorm"
)

type NotificationService struct {
	DB *gorm.DB
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{DB: db}
}

func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, p utils.PaginationParams) ([]models.Notification, int64, error) {
	query := s.DB.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var notifications []models.Notification
	if err := utils.ApplyPagination(query.Order("created_at DESC"), p).Preload("Actor").Find(&notifications).Error; err != nil {
		return nil, 0, err
	}
	return notifications, total, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

// MarkRead is scoped to the owner so another user's id reads as NotFound.
func (s *NotificationService) MarkRead(ctx context.Context, userID uuid.UUID, rawID string) error {
	notificationID, err := uuid.Parse(rawID)
	if err != nil {
		return NotFound("notification not found")
	}

	result := s.DB.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("is_read", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return NotFound("notification not found")
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	result := s.DB.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	return result.RowsAffected, result.Error
}

func (s *NotificationService) Delete(ctx context.Context, userID uuid.UUID, rawID string) error {
	notificationID, err := uuid.Parse(rawID)
	if err != nil {
		return NotFound("notification not found")
	}

	result := s.DB.WithContext(ctx).Where("id = ? AND user_id = ?", notificationID, userID).Delete(&models.Notification{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return NotFound("notification not found")
	}
	return nil
}

type BroadcastInput struct {
	Title   string
	Message string
	UserIDs []uuid.UUID
}

// Broadcast sends an admin announcement to the listed users, or to every approved user
// when the list is empty. It returns the number of notifications created.
func (s *NotificationService) Broadcast(ctx context.Context, actor *models.User, input BroadcastInput) (int, error) {
	title := strings.TrimSpace(input.Title)
	message := strings.TrimSpace(input.Message)
	if title == "" || message == "" {
		return 0, BadRequest("title and message are required")
	}

	recipients := input.UserIDs
	if len(recipients) == 0 {
		if err := s.DB.WithContext(ctx).Model(&models.User{}).
			Where("status = ?", models.UserStatusApproved).
			Pluck("id", &recipients).Error; err != nil {
			return 0, err
		}
	}
	if len(recipients) == 0 {
		return 0, nil
	}

	actorID := actor.ID
	rows := make([]models.Notification, 0, len(recipients))
	for _, userID := range recipients {
		rows = append(rows, models.Notification{
			UserID:       userID,
			ActorID:      &actorID,
			Type:         "admin.broadcast",
			Title:        title,
			Message:      message,
			ResourceType: "announcement",
		})
	}

	if err := s.DB.WithContext(ctx).CreateInBatches(&rows, 100).Error; err != nil {
		return 0, err
	}
	return len(rows), nil
}

// PurgeRead deletes read notifications older than the retention window.
func (s *NotificationService) PurgeRead(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	result := s.DB.WithContext(ctx).
		Where("is_read = ? AND created_at < ?", true, cutoff).
		Delete(&models.Notification{})
	return result.RowsAffected, result.Error
}

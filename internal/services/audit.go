package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/reportdesk/api/internal/models"
	"github.com/reportdesk/api/pkg/logger"
	"gorm.io/gorm"
)

const auditQueueSize = 1000

type AuditEntry struct {
	UserID       *uuid.UUID
	Action       string
	ResourceType string
	ResourceID   *uuid.UUID
	Details      map[string]interface{}
	IPAddress    string
	RequestID    string
}

// AuditService records audit rows off the request path. A single worker writes each row,
// derives notifications for affected users and forwards the event to the webhook notifier.
type AuditService struct {
	DB       *gorm.DB
	Webhooks *WebhookNotifier
	queue    chan models.AuditLog
	done     chan struct{}

	// Dropped counts entries lost to a full or closed queue when set.
	Dropped prometheus.Counter

	mu     sync.RWMutex
	closed bool
}

func NewAuditService(db *gorm.DB, webhooks *WebhookNotifier) *AuditService {
	s := &AuditService{
		DB:       db,
		Webhooks: webhooks,
		queue:    make(chan models.AuditLog, auditQueueSize),
		done:     make(chan struct{}),
	}
	go s.processQueue()
	return s
}

func (s *AuditService) LogAsync(entry AuditEntry) {
	row := models.AuditLog{
		UserID:       entry.UserID,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		Details:      entry.Details,
		IPAddress:    entry.IPAddress,
		RequestID:    entry.RequestID,
		CreatedAt:    time.Now().UTC(),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.countDrop()
		logger.Warn("audit_queue_closed", map[string]interface{}{
			"action":  entry.Action,
			"dropped": true,
		})
		return
	}

	select {
	case s.queue <- row:
	default:
		s.countDrop()
		logger.Warn("audit_queue_full", map[string]interface{}{
			"action":  entry.Action,
			"dropped": true,
		})
	}
}

func (s *AuditService) countDrop() {
	if s.Dropped != nil {
		s.Dropped.Inc()
	}
}

// Close stops accepting entries and waits until the queued ones are processed.
func (s *AuditService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	<-s.done
}

func (s *AuditService) processQueue() {
	defer close(s.done)
	for row := range s.queue {
		if err := s.DB.Create(&row).Error; err != nil {
			logger.Error("audit_log_insert_failed", err, map[string]interface{}{
				"action": row.Action,
			})
			continue
		}
		s.generateNotifications(row)
		s.forwardToWebhooks(row)
	}
}

func (s *AuditService) generateNotifications(log models.AuditLog) {
	var notifications []models.Notification

	switch log.Action {
	case "folder.member_join":
		notifications = s.notifyFolderOwner(log, "%s joined \"%s\"")
	case "folder.member_leave":
		notifications = s.notifyFolderOwner(log, "%s left \"%s\"")
	case "folder.member_remove":
		notifications = s.notifyTarget(log, "target_user_id", "Removed from folder", "%s removed you from \"%s\"", "folder_title")
	case "folder.owner_change":
		notifications = s.notificationsForOwnerChange(log)
	case "report.create":
		notifications = s.notificationsForReportCreate(log)
	case "mission.assign":
		notifications = s.notifyTarget(log, "assignee_id", "New mission", "%s assigned you \"%s\"", "mission_title")
	case "mission.status_change":
		notifications = s.notificationsForMissionStatus(log)
	case "mission.overdue":
		notifications = s.notificationsForOverdueMission(log)
	case "user.role_change":
		notifications = s.notifyTarget(log, "target_user_id", "Role updated", "%s changed your role to %s", "role")
	case "user.status_change":
		notifications = s.notifyTarget(log, "target_user_id", "Account status updated", "%s set your account to %s", "status")
	}

	for i := range notifications {
		if log.UserID != nil && notifications[i].UserID == *log.UserID {
			continue
		}
		if err := s.DB.Create(&notifications[i]).Error; err != nil {
			logger.Error("notification_insert_failed", err, map[string]interface{}{
				"action":  log.Action,
				"user_id": notifications[i].UserID.String(),
			})
		}
	}
}

func (s *AuditService) notifyFolderOwner(log models.AuditLog, format string) []models.Notification {
	ownerID, ok := detailUUID(log.Details, "owner_id")
	if !ok {
		return nil
	}
	folderTitle := detailString(log.Details, "folder_title")
	return []models.Notification{
		s.notification(log, ownerID, "Folder membership", fmt.Sprintf(format, s.actorName(log.UserID), folderTitle)),
	}
}

// notifyTarget notifies the single user named by targetKey. The format receives the actor
// name and the detail under subjectKey.
func (s *AuditService) notifyTarget(log models.AuditLog, targetKey, title, format, subjectKey string) []models.Notification {
	targetID, ok := detailUUID(log.Details, targetKey)
	if !ok {
		return nil
	}

	message := fmt.Sprintf(format, s.actorName(log.UserID), detailString(log.Details, subjectKey))
	return []models.Notification{s.notification(log, targetID, title, message)}
}

func (s *AuditService) notificationsForOverdueMission(log models.AuditLog) []models.Notification {
	assigneeID, ok := detailUUID(log.Details, "assignee_id")
	if !ok {
		return nil
	}
	message := fmt.Sprintf("\"%s\" is past its due date", detailString(log.Details, "mission_title"))
	return []models.Notification{s.notification(log, assigneeID, "Mission overdue", message)}
}

func (s *AuditService) notificationsForOwnerChange(log models.AuditLog) []models.Notification {
	folderTitle := detailString(log.Details, "folder_title")
	actor := s.actorName(log.UserID)

	var result []models.Notification
	if newOwnerID, ok := detailUUID(log.Details, "new_owner_id"); ok {
		result = append(result, s.notification(log, newOwnerID, "Folder ownership",
			fmt.Sprintf("%s made you the owner of \"%s\"", actor, folderTitle)))
	}
	if previousOwnerID, ok := detailUUID(log.Details, "previous_owner_id"); ok {
		result = append(result, s.notification(log, previousOwnerID, "Folder ownership",
			fmt.Sprintf("%s transferred ownership of \"%s\"", actor, folderTitle)))
	}
	return result
}

func (s *AuditService) notificationsForReportCreate(log models.AuditLog) []models.Notification {
	folderID, ok := detailUUID(log.Details, "folder_id")
	if !ok {
		return nil
	}

	var memberIDs []uuid.UUID
	if err := s.DB.Model(&models.FolderMember{}).Where("folder_id = ?", folderID).Pluck("user_id", &memberIDs).Error; err != nil {
		logger.Error("notification_recipients_failed", err, map[string]interface{}{
			"action":    log.Action,
			"folder_id": folderID.String(),
		})
		return nil
	}

	message := fmt.Sprintf("%s posted \"%s\" in \"%s\"",
		s.actorName(log.UserID),
		detailString(log.Details, "report_title"),
		detailString(log.Details, "folder_title"),
	)

	result := make([]models.Notification, 0, len(memberIDs))
	for _, memberID := range memberIDs {
		result = append(result, s.notification(log, memberID, "New report", message))
	}
	return result
}

func (s *AuditService) notificationsForMissionStatus(log models.AuditLog) []models.Notification {
	assignedByID, ok := detailUUID(log.Details, "assigned_by_id")
	if !ok {
		return nil
	}
	message := fmt.Sprintf("%s moved \"%s\" to %s",
		s.actorName(log.UserID),
		detailString(log.Details, "mission_title"),
		detailString(log.Details, "status"),
	)
	return []models.Notification{s.notification(log, assignedByID, "Mission updated", message)}
}

func (s *AuditService) notification(log models.AuditLog, recipient uuid.UUID, title, message string) models.Notification {
	return models.Notification{
		UserID:       recipient,
		ActorID:      log.UserID,
		Type:         log.Action,
		Title:        title,
		Message:      message,
		ResourceType: log.ResourceType,
		ResourceID:   log.ResourceID,
	}
}

func (s *AuditService) forwardToWebhooks(log models.AuditLog) {
	if !s.Webhooks.Enabled() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	event := WebhookEvent{
		Action:      log.Action,
		Title:       log.Action,
		Description: describeAudit(log),
		OccurredAt:  log.CreatedAt,
	}
	if log.UserID != nil {
		event.Actor = s.actorName(log.UserID)
	}
	// Failures are logged per URL inside Send.
	_ = s.Webhooks.Send(ctx, event)
}

func describeAudit(log models.AuditLog) string {
	for _, key := range []string{"folder_title", "report_title", "mission_title", "role_name", "target_username"} {
		if v := detailString(log.Details, key); v != "" {
			return fmt.Sprintf("%s on %q", log.ResourceType, v)
		}
	}
	return log.ResourceType
}

func (s *AuditService) actorName(userID *uuid.UUID) string {
	if userID == nil {
		return "System"
	}
	var user models.User
	if err := s.DB.Select("username", "display_name").First(&user, "id = ?", *userID).Error; err != nil {
		return "Someone"
	}
	return user.Name()
}

func detailString(details map[string]interface{}, key string) string {
	if details == nil {
		return ""
	}
	v, ok := details[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Sprintf("%v", v)
	}
	return s
}

func detailUUID(details map[string]interface{}, key string) (uuid.UUID, bool) {
	raw := detailString(details, key)
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

package models

import (
	"time"

	"github.com/google/uuid"
)

type MissionStatus string

const (
	MissionStatusPending    MissionStatus = "pending"
	MissionStatusInProgress MissionStatus = "in_progress"
	MissionStatusCompleted  MissionStatus = "completed"
	MissionStatusCancelled  MissionStatus = "cancelled"
)

func (s MissionStatus) Valid() bool {
	switch s {
	case MissionStatusPending, MissionStatusInProgress, MissionStatusCompleted, MissionStatusCancelled:
		return true
	default:
		return false
	}
}

func (s MissionStatus) Terminal() bool {
	return s == MissionStatusCompleted || s == MissionStatusCancelled
}

type Mission struct {
	BaseModel
	Title        string        `json:"title" gorm:"type:varchar(200);not null"`
	Description  *string       `json:"description,omitempty" gorm:"type:text"`
	FolderID     *uuid.UUID    `json:"folderID,omitempty" gorm:"type:uuid;index"`
	AssigneeID   uuid.UUID     `json:"assigneeID" gorm:"type:uuid;not null;index"`
	AssignedByID uuid.UUID     `json:"assignedByID" gorm:"type:uuid;not null"`
	Status       MissionStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	Importance   Importance    `json:"importance" gorm:"type:varchar(20);not null;default:'medium'"`
	DueAt        *time.Time    `json:"dueAt,omitempty" gorm:"index"`
	CompletedAt  *time.Time    `json:"completedAt,omitempty"`
	OverdueAt    *time.Time    `json:"overdueAt,omitempty"`

	Assignee   User `json:"assignee,omitempty" gorm:"foreignKey:AssigneeID;references:ID"`
	AssignedBy User `json:"assignedBy,omitempty" gorm:"foreignKey:AssignedByID;references:ID"`
}

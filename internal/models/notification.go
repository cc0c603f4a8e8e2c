package models

import "github.com/google/uuid"

type Notification struct {
	BaseModel
	UserID       uuid.UUID  `json:"userID" gorm:"type:uuid;not null;index"`
	ActorID      *uuid.UUID `json:"actorID,omitempty" gorm:"type:uuid"`
	Type         string     `json:"type" gorm:"type:varchar(50);not null"`
	Title        string     `json:"title" gorm:"type:varchar(200);not null"`
	Message      string     `json:"message" gorm:"type:text;not null"`
	ResourceType string     `json:"resourceType,omitempty" gorm:"type:varchar(30)"`
	ResourceID   *uuid.UUID `json:"resourceID,omitempty" gorm:"type:uuid"`
	IsRead       bool       `json:"isRead" gorm:"not null;default:false;index"`

	Actor *User `json:"actor,omitempty" gorm:"foreignKey:ActorID;references:ID"`
}

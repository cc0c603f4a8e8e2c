package models

import "github.com/google/uuid"

type Upload struct {
	BaseModel
	OwnerID     uuid.UUID `json:"ownerID" gorm:"type:uuid;not null;index"`
	FileName    string    `json:"fileName" gorm:"type:varchar(255);not null"`
	MimeType    string    `json:"mimeType" gorm:"type:varchar(100);not null"`
	Size        int64     `json:"size" gorm:"not null"`
	StoragePath string    `json:"-" gorm:"type:text;not null"`
}

package models

import (
	"time"

	"github.com/google/uuid"
)

type Folder struct {
	BaseModel
	Title       string         `json:"title" gorm:"type:varchar(150);not null"`
	Description *string        `json:"description,omitempty" gorm:"type:text"`
	OwnerID     uuid.UUID      `json:"ownerID" gorm:"type:uuid;not null;index"`
	AccessKey   *string        `json:"accessKey,omitempty" gorm:"type:varchar(32);uniqueIndex"`
	Owner       User           `json:"owner,omitempty" gorm:"foreignKey:OwnerID;references:ID"`
	Members     []FolderMember `json:"members,omitempty" gorm:"foreignKey:FolderID"`

	ReportsCount int64 `json:"reportsCount" gorm:"-"`
	AdminAccess  bool  `json:"adminAccess" gorm:"-"`
}

func (f *Folder) HasMember(userID uuid.UUID) bool {
	for _, m := range f.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

type FolderMember struct {
	BaseModel
	FolderID uuid.UUID `json:"folderID" gorm:"type:uuid;not null;uniqueIndex:idx_folder_member"`
	UserID   uuid.UUID `json:"userID" gorm:"type:uuid;not null;index;uniqueIndex:idx_folder_member"`
	Name     string    `json:"name" gorm:"type:varchar(100);not null"`
	JoinedAt time.Time `json:"joinedAt" gorm:"not null"`
}

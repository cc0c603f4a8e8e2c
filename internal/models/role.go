package models

import "github.com/reportdesk/api/internal/permissions"

type Role struct {
	BaseModel
	Name        string          `json:"name" gorm:"type:varchar(50);uniqueIndex;not null"`
	Description *string         `json:"description,omitempty" gorm:"type:text"`
	Color       string          `json:"color" gorm:"type:varchar(20);not null;default:'#99aab5'"`
	Icon        string          `json:"icon" gorm:"type:varchar(50);not null;default:'user'"`
	IsDefault   bool            `json:"isDefault" gorm:"not null;default:false;index"`
	Permissions permissions.Set `json:"permissions" gorm:"type:jsonb;serializer:json"`
	UserCount   int64           `json:"userCount" gorm:"-"`
}

package models

import "github.com/reportdesk/api/internal/permissions"

const (
	RoleVisitor = permissions.RoleVisitor
	RoleMember  = permissions.RoleMember
	RoleAdmin   = permissions.RoleAdmin
)

type UserStatus string

const (
	UserStatusNeedsRegistration UserStatus = "needs_registration"
	UserStatusPending           UserStatus = "pending"
	UserStatusApproved          UserStatus = "approved"
	UserStatusRejected          UserStatus = "rejected"
	UserStatusBanned            UserStatus = "banned"
)

func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusNeedsRegistration, UserStatusPending, UserStatusApproved, UserStatusRejected, UserStatusBanned:
		return true
	default:
		return false
	}
}

type User struct {
	BaseModel
	DiscordID           string          `json:"discordID" gorm:"type:varchar(32);uniqueIndex;not null"`
	Username            string          `json:"username" gorm:"type:varchar(100);not null"`
	DisplayName         string          `json:"displayName" gorm:"type:varchar(100)"`
	AvatarURL           *string         `json:"avatarURL,omitempty" gorm:"type:text"`
	Bio                 *string         `json:"bio,omitempty" gorm:"type:text"`
	Role                string          `json:"role" gorm:"type:varchar(50);not null;default:'visitor';index"`
	Permissions         permissions.Set `json:"permissions,omitempty" gorm:"type:jsonb;serializer:json"`
	Status              UserStatus      `json:"status" gorm:"type:varchar(30);not null;default:'needs_registration';index"`
	BanReason           *string         `json:"banReason,omitempty" gorm:"type:text"`
	DiscordAccessToken  string          `json:"-" gorm:"type:text"`
	DiscordRefreshToken string          `json:"-" gorm:"type:text"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Name is what other users see: the chosen display name, else the Discord handle.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

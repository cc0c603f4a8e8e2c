package models

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

type Importance string

const (
	ImportanceLow      Importance = "low"
	ImportanceMedium   Importance = "medium"
	ImportanceHigh     Importance = "high"
	ImportanceCritical Importance = "critical"
)

func (i Importance) Valid() bool {
	switch i {
	case ImportanceLow, ImportanceMedium, ImportanceHigh, ImportanceCritical:
		return true
	default:
		return false
	}
}

type Report struct {
	BaseModel
	FolderID   uuid.UUID  `json:"folderID" gorm:"type:uuid;not null;index"`
	AuthorID   uuid.UUID  `json:"authorID" gorm:"type:uuid;not null;index"`
	Title      string     `json:"title" gorm:"type:varchar(200);not null"`
	Content    string     `json:"content" gorm:"type:text;not null"`
	Importance Importance `json:"importance" gorm:"type:varchar(20);not null;default:'medium';index"`
	Tags       []string   `json:"tags" gorm:"type:jsonb;serializer:json"`
	Author     User       `json:"author,omitempty" gorm:"foreignKey:AuthorID;references:ID"`
}

// NormalizeTags trims, lowercases and deduplicates tags, dropping empty ones.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role groups permissions. Higher Level means more authority.
type Role struct {
	ID          uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string       `gorm:"type:varchar(50);uniqueIndex;not null" json:"name"`
	Description string       `gorm:"type:text" json:"description"`
	Level       int          `gorm:"not null;default:0;index" json:"level"`
	IsDefault   bool         `gorm:"default:false" json:"is_default"`
	Permissions []Permission `gorm:"many2many:role_permissions;" json:"permissions"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Permission is a dotted "<group>.<action>" name, e.g. "invoice.edit".
type Permission struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`
	Group       string    `gorm:"type:varchar(50);not null;index" json:"group"`
	Description string    `gorm:"type:varchar(255)" json:"description"`
}

// PermissionGroup returns the prefix before the first dot.
func PermissionGroup(name string) string {
	if i := strings.IndexByte(name, '.'); i > 0 {
		return name[:i]
	}
	return name
}

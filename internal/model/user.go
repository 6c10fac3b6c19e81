package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a back-office account. EmailVerifiedAt marks a completed registration.
type User struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name             string         `gorm:"type:varchar(255);not null" json:"name"`
	Email            string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Password         string         `gorm:"type:varchar(255);not null" json:"-"`
	Timezone         string         `gorm:"type:varchar(64);not null;default:'UTC'" json:"timezone"`
	InvitedAt        *time.Time     `json:"invited_at"`
	InvitationSentAt *time.Time     `json:"invitation_sent_at"`
	EmailVerifiedAt  *time.Time     `json:"email_verified_at"`
	Roles            []Role         `gorm:"many2many:user_roles;" json:"roles"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

// RefreshToken stores long-lived tokens allowing users to request new access tokens
type RefreshToken struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	User      User      `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Token     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"token"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (u *User) Verified() bool {
	return u.EmailVerifiedAt != nil
}

func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

// MaxRoleLevel is the highest level among the loaded roles.
func (u *User) MaxRoleLevel() int {
	max := 0
	for _, r := range u.Roles {
		if r.Level > max {
			max = r.Level
		}
	}
	return max
}

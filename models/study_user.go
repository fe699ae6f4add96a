package models

import (
	"time"

	"gorm.io/gorm"
)

// StudyUser is a local snapshot of user data needed by the engine
// (scheduler jobs iterate it to know who exists). Owned solely by this
// service; populated via sync worker from the profile service.
type StudyUser struct {
	ID                string     `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID    string     `gorm:"uniqueIndex;not null" json:"external_user_id"` // profile service UUID
	Username          string     `gorm:"index;not null" json:"username"`
	Email             string     `json:"email,omitempty"`
	FullName          *string    `json:"full_name,omitempty"`
	ProfilePictureURL *string    `json:"profile_picture_url,omitempty"`
	Grade             *string    `json:"grade,omitempty"` // e.g., "12", "mezun"
	TargetExam        *string    `json:"target_exam,omitempty"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	LastSeen          *time.Time `json:"last_seen,omitempty"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

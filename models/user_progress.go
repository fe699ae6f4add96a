package models

import (
	"time"

	"gorm.io/gorm"
)

// DateLayout is the calendar-date format used everywhere a day matters
// (streaks, daily goals, box cadence). Dates are stored and compared as
// date strings, never as timestamps.
const DateLayout = "2006-01-02"

// UserProgress tracks gamified study progression for each user (denormalized for performance)
type UserProgress struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex;not null" json:"external_user_id"` // links to profile service

	// Core progression — only XPService.AwardXP mutates these
	TotalXP      int64 `json:"total_xp" gorm:"default:0"`
	CurrentLevel int   `json:"current_level" gorm:"default:1"` // floor(total_xp/100)+1, always

	// Activity counters
	QuestionsSolved int64 `json:"questions_solved" gorm:"default:0"`

	// One-time welcome bonus guard, flipped by the login flow
	FirstLoginBonusGranted bool `json:"first_login_bonus_granted" gorm:"default:false"`

	// Streak state, evaluated at most once per calendar day
	StudyStreak      int    `json:"study_streak" gorm:"default:0"`
	LastActivityDate string `json:"last_activity_date" gorm:"size:10"`

	// Milestones
	LastLevelUpAt *time.Time `json:"last_level_up_at,omitempty"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

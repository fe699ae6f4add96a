package models

import (
	"time"

	"gorm.io/gorm"
)

// BoxType indicates what earned the surprise box
type BoxType string

const (
	BoxTypeDaily       BoxType = "daily"
	BoxTypeWeekly      BoxType = "weekly"
	BoxTypeAchievement BoxType = "achievement"
	BoxTypeMilestone   BoxType = "milestone"
	BoxTypeSpecial     BoxType = "special"
)

// RewardType is what a resolved box contains
type RewardType string

const (
	RewardXP             RewardType = "xp"
	RewardDoubleXP       RewardType = "double_xp"
	RewardStreakFreeze   RewardType = "streak_freeze"
	RewardBonusQuestions RewardType = "bonus_questions"
	RewardSpecialBadge   RewardType = "special_badge"
)

// ResolvedReward is the content of an opened box. It is rolled only at
// open time and embedded into the box row, terminal once written.
type ResolvedReward struct {
	Type          RewardType `gorm:"type:varchar(24)" json:"type"`
	Name          string     `json:"name"`
	Description   string     `gorm:"type:text" json:"description"`
	Icon          string     `gorm:"size:10" json:"icon"`
	Value         int64      `json:"value"`
	Rarity        Rarity     `gorm:"type:varchar(16)" json:"rarity"`
	DurationHours int        `json:"duration_hours,omitempty"` // for time-boxed effects
}

// RewardBox is a two-phase reward container: issued cheaply, resolved
// only on the single open transition (is_opened false → true).
type RewardBox struct {
	ID             string  `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string  `gorm:"index;not null" json:"external_user_id"`
	BoxType        BoxType `gorm:"type:varchar(16);not null" json:"box_type"`
	Reason         string  `gorm:"type:text" json:"reason,omitempty"`

	// DedupKey is set only for milestone issuance ("milestone:level:5").
	// The unique index makes re-checking the same crossing a no-op;
	// NULL rows (daily/weekly/achievement/special boxes) never collide.
	DedupKey *string `gorm:"uniqueIndex" json:"-"`

	EarnedAt time.Time  `gorm:"autoCreateTime" json:"earned_at"`
	OpenedAt *time.Time `json:"opened_at,omitempty"`
	IsOpened bool       `gorm:"default:false;index" json:"is_opened"`

	Reward *ResolvedReward `gorm:"embedded;embeddedPrefix:reward_" json:"reward,omitempty"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

package models

import (
	"time"
)

// DailyGoal is the per-user-per-date aggregate target (one row per day,
// enforced by the composite unique index). Achieved values are clamped
// to [0, target] on every write — never stored above 100%.
type DailyGoal struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex:idx_daily_goal_user_date;not null" json:"external_user_id"`
	GoalDate       string `gorm:"uniqueIndex:idx_daily_goal_user_date;size:10;not null" json:"goal_date"`

	TargetQuestions int `gorm:"default:5" json:"target_questions"`
	TargetDuration  int `gorm:"default:45" json:"target_duration"` // minutes
	TargetSubjects  int `gorm:"default:2" json:"target_subjects"`

	AchievedQuestions int `gorm:"default:0" json:"achieved_questions"`
	AchievedDuration  int `gorm:"default:0" json:"achieved_duration"`
	AchievedSubjects  int `gorm:"default:0" json:"achieved_subjects"`

	// Approval workflow: completion alone grants credit unless manual
	// approval is required, in which case Approve() gates the XP.
	ManualApprovalRequired bool       `gorm:"default:false" json:"manual_approval_required"`
	IsManuallyApproved     bool       `gorm:"default:false" json:"is_manually_approved"`
	ApprovedAt             *time.Time `json:"approved_at,omitempty"`
	ApprovalNote           string     `gorm:"type:text" json:"approval_note,omitempty"`

	// XPGranted is the compare-and-swap guard for the once-per-date
	// daily-goal XP credit.
	XPGranted bool `gorm:"default:false" json:"xp_granted"`

	Timestamps
}

// IsCompleted reports whether every target is met. Derived, never stored.
func (g *DailyGoal) IsCompleted() bool {
	return g.AchievedQuestions >= g.TargetQuestions &&
		g.AchievedDuration >= g.TargetDuration &&
		g.AchievedSubjects >= g.TargetSubjects
}

// UserGoal is a custom/manual goal (zero or more per user per date).
// Removed via the is_active soft-delete flag, never physically deleted.
type UserGoal struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string `gorm:"index;not null" json:"external_user_id"`
	GoalDate       string `gorm:"index;size:10;not null" json:"goal_date"`

	Title        string `gorm:"not null" json:"title"`
	TargetValue  int    `gorm:"default:1" json:"target_value"`
	CurrentValue int    `gorm:"default:0" json:"current_value"`
	Unit         string `gorm:"size:32;default:'adet'" json:"unit"`

	IsCompleted bool `gorm:"default:false" json:"is_completed"`
	IsActive    bool `gorm:"default:true" json:"is_active"`

	ManualApprovalRequired bool       `gorm:"default:false" json:"manual_approval_required"`
	IsManuallyApproved     bool       `gorm:"default:false" json:"is_manually_approved"`
	ApprovedAt             *time.Time `json:"approved_at,omitempty"`

	Timestamps
}

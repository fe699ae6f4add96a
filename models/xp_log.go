package models

import "time"

// ActivityType classifies an XP-granting event
type ActivityType string

const (
	ActivityQuestionSolved ActivityType = "question_solved"
	ActivityDailyGoal      ActivityType = "daily_goal"
	ActivityStreakBonus    ActivityType = "streak_bonus"
	ActivityFirstLogin     ActivityType = "first_login"
	ActivityAchievement    ActivityType = "achievement"
	ActivityExamCompleted  ActivityType = "exam_completed"
)

// XPLog is one append-only ledger entry per XP-granting event.
// Rows are never updated or deleted; "today" / "this week" aggregations
// (daily achievement criteria, login-day counts, daily-goal credit guard)
// all read from here.
type XPLog struct {
	ID             string       `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string       `gorm:"index:idx_xp_logs_user_time;not null" json:"external_user_id"`
	XPGained       int64        `json:"xp_gained"` // 0 is valid (audit-only entries)
	ActivityType   ActivityType `gorm:"type:varchar(32);index" json:"activity_type"`
	Description    string       `gorm:"type:text" json:"description"`
	CreatedAt      time.Time    `gorm:"autoCreateTime;index:idx_xp_logs_user_time" json:"created_at"`
}

package models

import "time"

// EffectType is a temporary, time-boxed buff applied by an opened box
type EffectType string

const (
	EffectDoubleXP     EffectType = "double_xp"
	EffectStreakFreeze EffectType = "streak_freeze"
)

// UserEffect stores a time-boxed effect with an explicit expiry.
// The expiry sweep worker flips is_active off once expires_at passes.
type UserEffect struct {
	ID             string     `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string     `gorm:"index;not null" json:"external_user_id"`
	EffectType     EffectType `gorm:"type:varchar(24);not null" json:"effect_type"`
	ExpiresAt      time.Time  `gorm:"index;not null" json:"expires_at"`
	IsActive       bool       `gorm:"default:true;index" json:"is_active"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// UserCredit is an additive credit counter (e.g., bonus question rights)
type UserCredit struct {
	ID             string    `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string    `gorm:"uniqueIndex:idx_user_credit;not null" json:"external_user_id"`
	CreditType     string    `gorm:"uniqueIndex:idx_user_credit;type:varchar(24);not null" json:"credit_type"`
	Amount         int64     `gorm:"default:0" json:"amount"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// CreditQuestions is the credit counter fed by bonus_questions rewards
const CreditQuestions = "questions"

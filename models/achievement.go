package models

import (
	"time"
)

// Rarity tiers shared by achievements and reward boxes
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// CriteriaType identifies how an achievement unlocks
type CriteriaType string

const (
	CriteriaQuestionsSolved CriteriaType = "questions_solved"
	CriteriaStreakReached   CriteriaType = "streak_reached"
	CriteriaLevelReached    CriteriaType = "level_reached"
	CriteriaXPEarned        CriteriaType = "xp_earned"
	CriteriaLoginDays       CriteriaType = "login_days"
	CriteriaSpecialEvent    CriteriaType = "special_event"
)

// Timeframe optionally scopes a criteria to a window instead of all-time
type Timeframe string

const (
	TimeframeAllTime Timeframe = "all_time"
	TimeframeDaily   Timeframe = "daily"
	TimeframeWeekly  Timeframe = "weekly"
	TimeframeMonthly Timeframe = "monthly"
)

// Achievement: static catalog entry (seeded at startup; special badges are appended at runtime)
type Achievement struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	Code        string `gorm:"uniqueIndex;not null" json:"code"` // e.g., "streak-7", "sansli-rozet"
	Name        string `gorm:"not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	Icon        string `gorm:"size:10" json:"icon"`
	IconURL     string `gorm:"type:text" json:"icon_url"` // R2/CDN asset, optional
	Category    string `gorm:"type:varchar(16)" json:"category"` // study, streak, level, special, progress

	CriteriaType      CriteriaType `gorm:"type:varchar(32);not null" json:"criteria_type"`
	CriteriaValue     int64        `json:"criteria_value"`
	CriteriaTimeframe Timeframe    `gorm:"type:varchar(16);default:'all_time'" json:"criteria_timeframe"`

	XPReward int64  `json:"xp_reward"`
	Rarity   Rarity `gorm:"type:varchar(16);default:'common'" json:"rarity"`
	IsActive bool   `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// UserAchievement: unlocked instance. The composite unique index is the
// idempotence mechanism — a concurrent duplicate unlock loses the insert
// race and is treated as already unlocked.
type UserAchievement struct {
	ID             string    `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string    `gorm:"uniqueIndex:idx_user_achievement;not null" json:"external_user_id"`
	AchievementID  string    `gorm:"uniqueIndex:idx_user_achievement;not null" json:"achievement_id"`
	UnlockedAt     time.Time `gorm:"autoCreateTime" json:"unlocked_at"`
}

// SpecialEventSetupComplete is the sentinel activity that unlocks
// special_event achievements (profile setup finished).
const SpecialEventSetupComplete = "setup_complete"

// DefaultAchievements mirrors the seeded catalog of the study platform.
var DefaultAchievements = []Achievement{
	{Code: "ilk-adim", Name: "İlk Adım", Description: "İlk sorunu çözdün", Icon: "🎯", Category: "study",
		CriteriaType: CriteriaQuestionsSolved, CriteriaValue: 1, XPReward: 25, Rarity: RarityCommon},
	{Code: "soru-avcisi", Name: "Soru Avcısı", Description: "Toplam 100 soru çözdün", Icon: "🏹", Category: "study",
		CriteriaType: CriteriaQuestionsSolved, CriteriaValue: 100, XPReward: 100, Rarity: RarityRare},
	{Code: "soru-ustasi", Name: "Soru Ustası", Description: "Toplam 500 soru çözdün", Icon: "🎓", Category: "study",
		CriteriaType: CriteriaQuestionsSolved, CriteriaValue: 500, XPReward: 250, Rarity: RarityEpic},
	{Code: "gunluk-beslik", Name: "Günlük Beşlik", Description: "Bir günde 5 soru çözdün", Icon: "⚡", Category: "study",
		CriteriaType: CriteriaQuestionsSolved, CriteriaValue: 5, CriteriaTimeframe: TimeframeDaily, XPReward: 30, Rarity: RarityCommon},
	{Code: "streak-3", Name: "Isınıyorsun", Description: "3 günlük çalışma serisi", Icon: "🔥", Category: "streak",
		CriteriaType: CriteriaStreakReached, CriteriaValue: 3, XPReward: 50, Rarity: RarityCommon},
	{Code: "streak-7", Name: "Haftalık Ateş", Description: "7 günlük çalışma serisi", Icon: "🔥", Category: "streak",
		CriteriaType: CriteriaStreakReached, CriteriaValue: 7, XPReward: 100, Rarity: RarityRare},
	{Code: "streak-30", Name: "Demir İrade", Description: "30 günlük çalışma serisi", Icon: "💪", Category: "streak",
		CriteriaType: CriteriaStreakReached, CriteriaValue: 30, XPReward: 500, Rarity: RarityLegendary},
	{Code: "seviye-5", Name: "Çırak", Description: "5. seviyeye ulaştın", Icon: "📚", Category: "level",
		CriteriaType: CriteriaLevelReached, CriteriaValue: 5, XPReward: 100, Rarity: RarityRare},
	{Code: "seviye-10", Name: "Usta", Description: "10. seviyeye ulaştın", Icon: "🧙", Category: "level",
		CriteriaType: CriteriaLevelReached, CriteriaValue: 10, XPReward: 250, Rarity: RarityEpic},
	{Code: "xp-1000", Name: "XP Koleksiyoncusu", Description: "Toplam 1000 XP topladın", Icon: "💎", Category: "progress",
		CriteriaType: CriteriaXPEarned, CriteriaValue: 1000, XPReward: 150, Rarity: RarityRare},
	{Code: "gunluk-yuzluk", Name: "Günün Yıldızı", Description: "Bir günde 100 XP kazandın", Icon: "🌟", Category: "progress",
		CriteriaType: CriteriaXPEarned, CriteriaValue: 100, CriteriaTimeframe: TimeframeDaily, XPReward: 50, Rarity: RarityCommon},
	{Code: "sadik-caliskan", Name: "Sadık Çalışkan", Description: "Bu hafta 5 farklı gün aktiftin", Icon: "📅", Category: "progress",
		CriteriaType: CriteriaLoginDays, CriteriaValue: 5, CriteriaTimeframe: TimeframeWeekly, XPReward: 75, Rarity: RarityRare},
	{Code: "kurulum-tamam", Name: "Hazırsın!", Description: "Profil kurulumunu tamamladın", Icon: "✅", Category: "special",
		CriteriaType: CriteriaSpecialEvent, CriteriaValue: 1, XPReward: 20, Rarity: RarityCommon},
}

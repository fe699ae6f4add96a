package services

import (
	"fmt"
	"math"
	"time"

	"github.com/orucunreiso/sarai/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// XPPerLevel: flat level curve, level = floor(totalXP / 100) + 1
const XPPerLevel = 100

// XPValues define base XP per activity (tunable via config/env later)
var XPValues = map[models.ActivityType]int64{
	models.ActivityQuestionSolved: 10,
	models.ActivityDailyGoal:      50,
	models.ActivityStreakBonus:    25,
	models.ActivityFirstLogin:     10,
}

// StreakMultipliers: highest matching tier wins, below 3 days no boost
var StreakMultipliers = []struct {
	Days   int
	Factor float64
}{
	{30, 2.0},
	{14, 1.8},
	{7, 1.5},
	{3, 1.2},
}

// StreakBonusMilestones: streak lengths that pay a one-time bonus when reached
var StreakBonusMilestones = map[int]bool{
	3: true, 7: true, 14: true, 21: true, 30: true,
}

func StreakMultiplier(streakDays int) float64 {
	for _, tier := range StreakMultipliers {
		if streakDays >= tier.Days {
			return tier.Factor
		}
	}
	return 1.0
}

func LevelForXP(totalXP int64) int {
	if totalXP < 0 {
		return 1
	}
	return int(totalXP/XPPerLevel) + 1
}

type XPService struct {
	DB *gorm.DB

	// Now is swappable in tests to pin dates
	Now func() time.Time
}

func NewXPService(db *gorm.DB) *XPService {
	return &XPService{DB: db, Now: time.Now}
}

// Activity describes one XP-earning event flowing into AwardXP.
// Amount == 0 means "use the default for this type". Multiplier <= 0
// means no boost (callers pass streak/double-XP factors pre-combined).
type Activity struct {
	Type        models.ActivityType
	Amount      int64
	Multiplier  float64
	Description string
}

type AwardResult struct {
	XPGained  int64                `json:"xp_gained"`
	TotalXP   int64                `json:"total_xp"`
	OldLevel  int                  `json:"old_level"`
	Level     int                  `json:"level"`
	LeveledUp bool                 `json:"leveled_up"`
	Progress  *models.UserProgress `json:"progress"`
}

// GetOrCreateProgress ensures a UserProgress row exists (idempotent)
func (s *XPService) GetOrCreateProgress(externalUserID string) (*models.UserProgress, error) {
	return s.getOrCreateProgressTx(s.DB, externalUserID)
}

// AwardXP applies one activity: atomic XP increment, level recompute,
// append-only ledger entry. Never subtracts, never lowers level.
func (s *XPService) AwardXP(externalUserID string, act Activity) (*AwardResult, error) {
	var result *AwardResult
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var txErr error
		result, txErr = s.awardXPTx(tx, externalUserID, act)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	if result.LeveledUp {
		fmt.Printf("🎉 Level up: %s → Lvl %d (XP=%d, +%d via %s)\n",
			externalUserID, result.Level, result.TotalXP, result.XPGained, act.Type)
	} else {
		fmt.Printf("✨ XP awarded: %s +%d via %s (total=%d)\n",
			externalUserID, result.XPGained, act.Type, result.TotalXP)
	}
	return result, nil
}

// awardXPTx is AwardXP running inside a caller-owned transaction, so
// multi-step operations (goal credit, box rewards, badge unlocks) can
// make the guard flip and the grant commit or roll back together.
func (s *XPService) awardXPTx(tx *gorm.DB, externalUserID string, act Activity) (*AwardResult, error) {
	base := act.Amount
	if base == 0 {
		base = XPValues[act.Type]
	}
	if base < 0 {
		return nil, fmt.Errorf("negative XP award rejected: %d (%s)", base, act.Type)
	}

	gained := base
	if act.Multiplier > 0 {
		gained = int64(math.Floor(float64(base) * act.Multiplier))
	}

	if _, err := s.getOrCreateProgressTx(tx, externalUserID); err != nil {
		return nil, err
	}

	// Increment in SQL so concurrent awards never lose updates
	res := tx.Model(&models.UserProgress{}).
		Where("external_user_id = ?", externalUserID).
		Updates(map[string]interface{}{
			"total_xp":      gorm.Expr("total_xp + ?", gained),
			"current_level": gorm.Expr("(total_xp + ?) / ? + 1", gained, XPPerLevel),
		})
	if res.Error != nil {
		return nil, res.Error
	}

	var prog models.UserProgress
	if err := tx.Where("external_user_id = ?", externalUserID).First(&prog).Error; err != nil {
		return nil, err
	}

	oldLevel := LevelForXP(prog.TotalXP - gained)
	leveledUp := oldLevel < prog.CurrentLevel
	if leveledUp {
		now := s.Now()
		prog.LastLevelUpAt = &now
		if err := tx.Model(&models.UserProgress{}).
			Where("external_user_id = ?", externalUserID).
			Update("last_level_up_at", &now).Error; err != nil {
			return nil, err
		}
	}

	entry := models.XPLog{
		ID:             uuid.NewString(),
		ExternalUserID: externalUserID,
		XPGained:       gained,
		ActivityType:   act.Type,
		Description:    act.Description,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return nil, err
	}

	return &AwardResult{
		XPGained:  gained,
		TotalXP:   prog.TotalXP,
		OldLevel:  oldLevel,
		Level:     prog.CurrentLevel,
		LeveledUp: leveledUp,
		Progress:  &prog,
	}, nil
}

// IncrementQuestions bumps the lifetime solved counter (atomic)
func (s *XPService) IncrementQuestions(externalUserID string, count int64) error {
	if count <= 0 {
		return nil
	}
	return s.DB.Model(&models.UserProgress{}).
		Where("external_user_id = ?", externalUserID).
		Update("questions_solved", gorm.Expr("questions_solved + ?", count)).Error
}

// getOrCreateProgressTx lazily creates the progress row. The insert is
// ON CONFLICT DO NOTHING so losing the creation race never poisons the
// surrounding transaction; the winner's row is re-read instead.
func (s *XPService) getOrCreateProgressTx(tx *gorm.DB, externalUserID string) (*models.UserProgress, error) {
	var prog models.UserProgress
	err := tx.Where("external_user_id = ?", externalUserID).First(&prog).Error
	if err == nil {
		return &prog, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	prog = models.UserProgress{
		ID:             uuid.NewString(),
		ExternalUserID: externalUserID,
		CurrentLevel:   1,
	}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_user_id"}},
		DoNothing: true,
	}).Create(&prog)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// concurrent create won, use its row
		if err := tx.Where("external_user_id = ?", externalUserID).First(&prog).Error; err != nil {
			return nil, err
		}
	}
	return &prog, nil
}

type StreakResult struct {
	Streak        int   `json:"streak"`
	Extended      bool  `json:"extended"`
	Frozen        bool  `json:"frozen"`
	MilestoneXP   int64 `json:"milestone_xp"`
	AlreadyActive bool  `json:"already_active"` // second+ activity today
}

// UpdateStreak advances the daily study streak for today's activity.
// Same-day repeats are no-ops; a one-day gap extends; longer gaps reset
// unless a streak_freeze effect is active, which preserves the count.
func (s *XPService) UpdateStreak(externalUserID string) (*StreakResult, error) {
	today := s.Now().Format(models.DateLayout)

	var out StreakResult
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		prog, err := s.getOrCreateProgressTx(tx, externalUserID)
		if err != nil {
			return err
		}

		if prog.LastActivityDate == today {
			out = StreakResult{Streak: prog.StudyStreak, AlreadyActive: true}
			return nil
		}

		newStreak := 1
		extended := false
		frozen := false

		if prog.LastActivityDate != "" {
			last, parseErr := time.Parse(models.DateLayout, prog.LastActivityDate)
			if parseErr == nil {
				todayT, _ := time.Parse(models.DateLayout, today)
				gap := int(todayT.Sub(last).Hours() / 24)
				switch {
				case gap == 1:
					newStreak = prog.StudyStreak + 1
					extended = true
				case gap > 1:
					active, effErr := s.hasActiveEffectTx(tx, externalUserID, models.EffectStreakFreeze)
					if effErr != nil {
						return effErr
					}
					if active {
						// freeze holds the count but does not extend it
						newStreak = prog.StudyStreak
						frozen = true
					}
				}
			}
		} else if prog.StudyStreak == 0 {
			extended = true // first ever activity starts the streak
		}

		res := tx.Model(&models.UserProgress{}).
			Where("external_user_id = ? AND last_activity_date = ?", externalUserID, prog.LastActivityDate).
			Updates(map[string]interface{}{
				"study_streak":       newStreak,
				"last_activity_date": today,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// concurrent request already moved the date today
			var fresh models.UserProgress
			if err := tx.Where("external_user_id = ?", externalUserID).First(&fresh).Error; err != nil {
				return err
			}
			out = StreakResult{Streak: fresh.StudyStreak, AlreadyActive: true}
			return nil
		}

		out = StreakResult{Streak: newStreak, Extended: extended, Frozen: frozen}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Milestone bonus pays once, when the streak first reaches the
	// mark. The multiplier is evaluated at the new streak value.
	if out.Extended && StreakBonusMilestones[out.Streak] {
		bonus, bonusErr := s.AwardXP(externalUserID, Activity{
			Type:        models.ActivityStreakBonus,
			Multiplier:  StreakMultiplier(out.Streak),
			Description: fmt.Sprintf("%d günlük seri! 🔥", out.Streak),
		})
		if bonusErr != nil {
			return nil, bonusErr
		}
		out.MilestoneXP = bonus.XPGained
	}

	if out.Frozen {
		fmt.Printf("🧊 Streak freeze held %s at %d days\n", externalUserID, out.Streak)
	}
	return &out, nil
}

func (s *XPService) hasActiveEffectTx(tx *gorm.DB, externalUserID string, effect models.EffectType) (bool, error) {
	var count int64
	err := tx.Model(&models.UserEffect{}).
		Where("external_user_id = ? AND effect_type = ? AND is_active = ? AND expires_at > ?",
			externalUserID, effect, true, s.Now()).
		Count(&count).Error
	return count > 0, err
}

// ActiveMultiplier combines the streak tier with any running double-XP
// effect for question activity.
func (s *XPService) ActiveMultiplier(externalUserID string) (float64, error) {
	prog, err := s.GetOrCreateProgress(externalUserID)
	if err != nil {
		return 1.0, err
	}
	mult := StreakMultiplier(prog.StudyStreak)
	boosted, err := s.hasActiveEffectTx(s.DB, externalUserID, models.EffectDoubleXP)
	if err != nil {
		return 1.0, err
	}
	if boosted {
		mult *= 2.0
	}
	return mult, nil
}

// GetRecentActivities returns the newest ledger entries, capped at limit
func (s *XPService) GetRecentActivities(externalUserID string, limit int) ([]models.XPLog, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	var logs []models.XPLog
	err := s.DB.Where("external_user_id = ?", externalUserID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// GetXPHistory returns paginated ledger entries plus totals
func (s *XPService) GetXPHistory(externalUserID string, page, size int) (map[string]interface{}, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	var totalItems int64
	s.DB.Model(&models.XPLog{}).Where("external_user_id = ?", externalUserID).Count(&totalItems)

	var logs []models.XPLog
	err := s.DB.Where("external_user_id = ?", externalUserID).
		Order("created_at DESC").
		Limit(size).Offset(offset).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}

	totalPages := int((totalItems + int64(size) - 1) / int64(size))
	return map[string]interface{}{
		"entries":     logs,
		"page":        page,
		"size":        size,
		"total_items": totalItems,
		"total_pages": totalPages,
	}, nil
}

// XPSince sums ledger XP earned at or after the given time
func (s *XPService) XPSince(externalUserID string, since time.Time) (int64, error) {
	var total int64
	err := s.DB.Model(&models.XPLog{}).
		Where("external_user_id = ? AND created_at >= ?", externalUserID, since).
		Select("COALESCE(SUM(xp_gained), 0)").
		Scan(&total).Error
	return total, err
}

// Leaderboard returns the top users by total XP
func (s *XPService) Leaderboard(limit int) ([]models.UserProgress, error) {
	if limit < 1 || limit > 100 {
		limit = 10
	}
	var rows []models.UserProgress
	err := s.DB.Order("total_xp DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

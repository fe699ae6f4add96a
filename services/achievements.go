package services

import (
	"fmt"
	"time"

	"github.com/orucunreiso/sarai/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AchievementService struct {
	DB *gorm.DB
	XP *XPService

	// Boxes is wired after construction (the box service also needs us
	// for special-badge rewards)
	Boxes *RewardBoxService

	Now func() time.Time
}

func NewAchievementService(db *gorm.DB, xp *XPService) *AchievementService {
	return &AchievementService{DB: db, XP: xp, Now: time.Now}
}

// EnsureCatalog seeds the default achievement catalog. Existing codes
// are left untouched, so runtime-created special badges and manual
// edits survive restarts.
func (s *AchievementService) EnsureCatalog(catalog []models.Achievement) error {
	for i := range catalog {
		a := catalog[i]
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if a.CriteriaTimeframe == "" {
			a.CriteriaTimeframe = models.TimeframeAllTime
		}
		a.IsActive = true
		err := s.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoNothing: true,
		}).Create(&a).Error
		if err != nil {
			return fmt.Errorf("seed achievement %s: %w", a.Code, err)
		}
	}
	fmt.Printf("🏆 Achievement catalog ready (%d seeded entries)\n", len(catalog))
	return nil
}

// ListCatalog returns all active achievements
func (s *AchievementService) ListCatalog() ([]models.Achievement, error) {
	var all []models.Achievement
	err := s.DB.Where("is_active = ?", true).Order("created_at ASC").Find(&all).Error
	return all, err
}

// CheckAndUnlock evaluates every locked achievement against the user's
// current stats and unlocks all whose criteria are met. Returns the
// newly unlocked achievements (empty slice when nothing fired).
func (s *AchievementService) CheckAndUnlock(externalUserID string) ([]models.Achievement, error) {
	prog, err := s.XP.GetOrCreateProgress(externalUserID)
	if err != nil {
		return nil, err
	}

	catalog, err := s.ListCatalog()
	if err != nil {
		return nil, err
	}

	unlockedIDs, err := s.unlockedSet(externalUserID)
	if err != nil {
		return nil, err
	}

	var newlyUnlocked []models.Achievement
	for _, a := range catalog {
		if unlockedIDs[a.ID] {
			continue
		}
		if a.CriteriaType == models.CriteriaSpecialEvent {
			continue // only fired explicitly, never by polling
		}

		met, evalErr := s.criteriaMet(externalUserID, prog, a)
		if evalErr != nil {
			return nil, evalErr
		}
		if !met {
			continue
		}

		ok, unlockErr := s.unlock(externalUserID, a)
		if unlockErr != nil {
			return nil, unlockErr
		}
		if ok {
			newlyUnlocked = append(newlyUnlocked, a)
		}
	}
	return newlyUnlocked, nil
}

// UnlockSpecialEvent fires event-gated achievements (e.g. profile setup
// completed). Idempotent via the same unique-index unlock path.
func (s *AchievementService) UnlockSpecialEvent(externalUserID, event string) ([]models.Achievement, error) {
	if event != models.SpecialEventSetupComplete {
		return nil, fmt.Errorf("unknown special event: %s", event)
	}

	var candidates []models.Achievement
	err := s.DB.Where("is_active = ? AND criteria_type = ? AND category = ?",
		true, models.CriteriaSpecialEvent, "special").Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	var unlocked []models.Achievement
	for _, a := range candidates {
		ok, unlockErr := s.unlock(externalUserID, a)
		if unlockErr != nil {
			return nil, unlockErr
		}
		if ok {
			unlocked = append(unlocked, a)
		}
	}
	return unlocked, nil
}

// UnlockSpecialBadge find-or-creates a badge achievement from a box
// reward and unlocks it for the user. Codes are slugs of the badge
// name, so the same badge rolled twice maps to one catalog entry.
func (s *AchievementService) UnlockSpecialBadge(externalUserID string, reward models.ResolvedReward) (*models.Achievement, bool, error) {
	var badge *models.Achievement
	var fresh bool
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var txErr error
		badge, fresh, txErr = s.unlockSpecialBadgeTx(tx, externalUserID, reward)
		return txErr
	})
	if err != nil {
		return nil, false, err
	}
	return badge, fresh, nil
}

func (s *AchievementService) unlockSpecialBadgeTx(tx *gorm.DB, externalUserID string, reward models.ResolvedReward) (*models.Achievement, bool, error) {
	code := slug.Make(reward.Name)

	var badge models.Achievement
	err := tx.Where("code = ?", code).First(&badge).Error
	if err == gorm.ErrRecordNotFound {
		badge = models.Achievement{
			ID:                uuid.NewString(),
			Code:              code,
			Name:              reward.Name,
			Description:       reward.Description,
			Icon:              reward.Icon,
			Category:          "special",
			CriteriaType:      models.CriteriaSpecialEvent,
			CriteriaValue:     1,
			CriteriaTimeframe: models.TimeframeAllTime,
			XPReward:          reward.Value,
			Rarity:            reward.Rarity,
			IsActive:          true,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoNothing: true,
		}).Create(&badge)
		if res.Error != nil {
			return nil, false, res.Error
		}
		if res.RowsAffected == 0 {
			// concurrent create of the same badge → re-read
			if readErr := tx.Where("code = ?", code).First(&badge).Error; readErr != nil {
				return nil, false, readErr
			}
		}
	} else if err != nil {
		return nil, false, err
	}

	fresh, err := s.unlockTx(tx, externalUserID, badge)
	if err != nil {
		return nil, false, err
	}
	return &badge, fresh, nil
}

// unlock runs the insert, the XP reward and the achievement box in one
// transaction, so a fresh unlock either lands completely or not at all.
func (s *AchievementService) unlock(externalUserID string, a models.Achievement) (bool, error) {
	var fresh bool
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var txErr error
		fresh, txErr = s.unlockTx(tx, externalUserID, a)
		return txErr
	})
	return fresh, err
}

// unlockTx inserts the UserAchievement row; a duplicate-key loss means
// someone (or a concurrent request) got there first — not an error.
// Fresh unlocks pay the XP reward and issue an achievement box.
func (s *AchievementService) unlockTx(tx *gorm.DB, externalUserID string, a models.Achievement) (bool, error) {
	ua := models.UserAchievement{
		ID:             uuid.NewString(),
		ExternalUserID: externalUserID,
		AchievementID:  a.ID,
	}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_user_id"}, {Name: "achievement_id"}},
		DoNothing: true,
	}).Create(&ua)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil // already unlocked
	}

	if a.XPReward > 0 {
		_, err := s.XP.awardXPTx(tx, externalUserID, Activity{
			Type:        models.ActivityAchievement,
			Amount:      a.XPReward,
			Description: fmt.Sprintf("Başarım: %s %s", a.Name, a.Icon),
		})
		if err != nil {
			return false, err
		}
	}

	if s.Boxes != nil {
		_, err := s.Boxes.awardBoxTx(tx, externalUserID, models.BoxTypeAchievement,
			fmt.Sprintf("Başarım kutusu: %s", a.Name), nil)
		if err != nil {
			return false, err
		}
	}

	fmt.Printf("🏅 Achievement unlocked: %s → %s (%s, +%d XP)\n",
		externalUserID, a.Code, a.Rarity, a.XPReward)
	return true, nil
}

func (s *AchievementService) criteriaMet(externalUserID string, prog *models.UserProgress, a models.Achievement) (bool, error) {
	switch a.CriteriaType {
	case models.CriteriaStreakReached:
		return int64(prog.StudyStreak) >= a.CriteriaValue, nil

	case models.CriteriaLevelReached:
		return int64(prog.CurrentLevel) >= a.CriteriaValue, nil

	case models.CriteriaQuestionsSolved:
		if a.CriteriaTimeframe == models.TimeframeAllTime || a.CriteriaTimeframe == "" {
			return prog.QuestionsSolved >= a.CriteriaValue, nil
		}
		// windowed: each question_solved ledger entry is one question
		var count int64
		err := s.DB.Model(&models.XPLog{}).
			Where("external_user_id = ? AND activity_type = ? AND created_at >= ?",
				externalUserID, models.ActivityQuestionSolved, s.windowStart(a.CriteriaTimeframe)).
			Count(&count).Error
		return count >= a.CriteriaValue, err

	case models.CriteriaXPEarned:
		if a.CriteriaTimeframe == models.TimeframeAllTime || a.CriteriaTimeframe == "" {
			return prog.TotalXP >= a.CriteriaValue, nil
		}
		sum, err := s.XP.XPSince(externalUserID, s.windowStart(a.CriteriaTimeframe))
		return sum >= a.CriteriaValue, err

	case models.CriteriaLoginDays:
		days, err := s.activeDays(externalUserID, s.windowStart(a.CriteriaTimeframe))
		return int64(days) >= a.CriteriaValue, err
	}
	return false, nil
}

// windowStart maps a timeframe to its start instant. Weeks start on
// Monday.
func (s *AchievementService) windowStart(tf models.Timeframe) time.Time {
	now := s.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch tf {
	case models.TimeframeDaily:
		return midnight
	case models.TimeframeWeekly:
		offset := (int(midnight.Weekday()) + 6) % 7
		return midnight.AddDate(0, 0, -offset)
	case models.TimeframeMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	}
	return time.Time{}
}

// activeDays counts distinct calendar dates with ledger activity since
// the given instant. Distinct-date folding happens here rather than in
// SQL to stay portable across drivers.
func (s *AchievementService) activeDays(externalUserID string, since time.Time) (int, error) {
	var stamps []time.Time
	err := s.DB.Model(&models.XPLog{}).
		Where("external_user_id = ? AND created_at >= ?", externalUserID, since).
		Pluck("created_at", &stamps).Error
	if err != nil {
		return 0, err
	}
	seen := map[string]bool{}
	for _, t := range stamps {
		seen[t.Format(models.DateLayout)] = true
	}
	return len(seen), nil
}

func (s *AchievementService) unlockedSet(externalUserID string) (map[string]bool, error) {
	var rows []models.UserAchievement
	if err := s.DB.Where("external_user_id = ?", externalUserID).Find(&rows).Error; err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(rows))
	for _, r := range rows {
		set[r.AchievementID] = true
	}
	return set, nil
}

// AchievementProgress pairs a catalog entry with the user's state
type AchievementProgress struct {
	Achievement models.Achievement `json:"achievement"`
	Unlocked    bool               `json:"unlocked"`
	UnlockedAt  *time.Time         `json:"unlocked_at,omitempty"`
	Current     int64              `json:"current"`
	Percent     int                `json:"percent"` // 0..100, clamped
}

// Progress returns every active achievement with unlock state and a
// clamped completion percentage.
func (s *AchievementService) Progress(externalUserID string) ([]AchievementProgress, error) {
	prog, err := s.XP.GetOrCreateProgress(externalUserID)
	if err != nil {
		return nil, err
	}
	catalog, err := s.ListCatalog()
	if err != nil {
		return nil, err
	}

	var unlocks []models.UserAchievement
	if err := s.DB.Where("external_user_id = ?", externalUserID).Find(&unlocks).Error; err != nil {
		return nil, err
	}
	unlockedAt := make(map[string]time.Time, len(unlocks))
	for _, u := range unlocks {
		unlockedAt[u.AchievementID] = u.UnlockedAt
	}

	out := make([]AchievementProgress, 0, len(catalog))
	for _, a := range catalog {
		p := AchievementProgress{Achievement: a}
		if at, ok := unlockedAt[a.ID]; ok {
			p.Unlocked = true
			at := at
			p.UnlockedAt = &at
			p.Current = a.CriteriaValue
			p.Percent = 100
		} else {
			p.Current = s.currentValue(externalUserID, prog, a)
			if a.CriteriaValue > 0 {
				p.Percent = int(p.Current * 100 / a.CriteriaValue)
				if p.Percent > 100 {
					p.Percent = 100
				}
			}
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *AchievementService) currentValue(externalUserID string, prog *models.UserProgress, a models.Achievement) int64 {
	switch a.CriteriaType {
	case models.CriteriaStreakReached:
		return int64(prog.StudyStreak)
	case models.CriteriaLevelReached:
		return int64(prog.CurrentLevel)
	case models.CriteriaQuestionsSolved:
		if a.CriteriaTimeframe == models.TimeframeDaily || a.CriteriaTimeframe == models.TimeframeWeekly || a.CriteriaTimeframe == models.TimeframeMonthly {
			var count int64
			s.DB.Model(&models.XPLog{}).
				Where("external_user_id = ? AND activity_type = ? AND created_at >= ?",
					externalUserID, models.ActivityQuestionSolved, s.windowStart(a.CriteriaTimeframe)).
				Count(&count)
			return count
		}
		return prog.QuestionsSolved
	case models.CriteriaXPEarned:
		if a.CriteriaTimeframe == models.TimeframeDaily || a.CriteriaTimeframe == models.TimeframeWeekly || a.CriteriaTimeframe == models.TimeframeMonthly {
			sum, _ := s.XP.XPSince(externalUserID, s.windowStart(a.CriteriaTimeframe))
			return sum
		}
		return prog.TotalXP
	case models.CriteriaLoginDays:
		days, _ := s.activeDays(externalUserID, s.windowStart(a.CriteriaTimeframe))
		return int64(days)
	}
	return 0
}

// AchievementStats summarizes a user's unlocked achievements
type AchievementStats struct {
	TotalUnlocked int               `json:"total_unlocked"`
	TotalCatalog  int               `json:"total_catalog"`
	XPFromBadges  int64             `json:"xp_from_badges"`
	ByRarity      map[string]int    `json:"by_rarity"`
	ByCategory    map[string]int    `json:"by_category"`
	Latest        []models.Achievement `json:"latest"`
}

// Stats aggregates unlock counts by rarity and category plus the five
// most recent unlocks.
func (s *AchievementService) Stats(externalUserID string) (*AchievementStats, error) {
	catalog, err := s.ListCatalog()
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.Achievement, len(catalog))
	for _, a := range catalog {
		byID[a.ID] = a
	}

	var unlocks []models.UserAchievement
	if err := s.DB.Where("external_user_id = ?", externalUserID).
		Order("unlocked_at DESC").Find(&unlocks).Error; err != nil {
		return nil, err
	}

	stats := &AchievementStats{
		TotalCatalog: len(catalog),
		ByRarity:     map[string]int{},
		ByCategory:   map[string]int{},
	}
	for _, u := range unlocks {
		a, ok := byID[u.AchievementID]
		if !ok {
			continue // deactivated entry, still counts for nothing
		}
		stats.TotalUnlocked++
		stats.XPFromBadges += a.XPReward
		stats.ByRarity[string(a.Rarity)]++
		stats.ByCategory[a.Category]++
		if len(stats.Latest) < 5 {
			stats.Latest = append(stats.Latest, a)
		}
	}
	return stats, nil
}

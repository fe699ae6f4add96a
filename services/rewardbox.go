package services

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/orucunreiso/sarai/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RarityWeights per box type, percentages summing to 100. Better boxes
// shift weight toward the top tiers; daily boxes can never roll legendary.
var RarityWeights = map[models.BoxType]map[models.Rarity]int{
	models.BoxTypeDaily:       {models.RarityCommon: 70, models.RarityRare: 25, models.RarityEpic: 5, models.RarityLegendary: 0},
	models.BoxTypeWeekly:      {models.RarityCommon: 40, models.RarityRare: 35, models.RarityEpic: 20, models.RarityLegendary: 5},
	models.BoxTypeAchievement: {models.RarityCommon: 30, models.RarityRare: 40, models.RarityEpic: 25, models.RarityLegendary: 5},
	models.BoxTypeMilestone:   {models.RarityCommon: 20, models.RarityRare: 30, models.RarityEpic: 35, models.RarityLegendary: 15},
	models.BoxTypeSpecial:     {models.RarityCommon: 10, models.RarityRare: 20, models.RarityEpic: 40, models.RarityLegendary: 30},
}

// rarityOrder fixes the cumulative walk so seeded rolls are reproducible
var rarityOrder = []models.Rarity{models.RarityCommon, models.RarityRare, models.RarityEpic, models.RarityLegendary}

// RewardPools: what each rarity tier can contain. Picked uniformly
// within the tier after the rarity roll.
var RewardPools = map[models.Rarity][]models.ResolvedReward{
	models.RarityCommon: {
		{Type: models.RewardXP, Name: "XP Paketi", Description: "25 XP kazandın!", Icon: "✨", Value: 25},
		{Type: models.RewardXP, Name: "XP Paketi", Description: "50 XP kazandın!", Icon: "✨", Value: 50},
		{Type: models.RewardBonusQuestions, Name: "Bonus Soru", Description: "5 bonus soru hakkı", Icon: "📝", Value: 5},
	},
	models.RarityRare: {
		{Type: models.RewardXP, Name: "Büyük XP Paketi", Description: "100 XP kazandın!", Icon: "💫", Value: 100},
		{Type: models.RewardDoubleXP, Name: "2x XP", Description: "2 saat boyunca çift XP", Icon: "⚡", Value: 2, DurationHours: 2},
		{Type: models.RewardStreakFreeze, Name: "Seri Dondurucu", Description: "1 gün seri koruması", Icon: "🧊", Value: 1, DurationHours: 24},
		{Type: models.RewardBonusQuestions, Name: "Bonus Soru Paketi", Description: "10 bonus soru hakkı", Icon: "📚", Value: 10},
	},
	models.RarityEpic: {
		{Type: models.RewardXP, Name: "Dev XP Paketi", Description: "200 XP kazandın!", Icon: "🌟", Value: 200},
		{Type: models.RewardDoubleXP, Name: "2x XP Uzun", Description: "6 saat boyunca çift XP", Icon: "⚡", Value: 2, DurationHours: 6},
		{Type: models.RewardStreakFreeze, Name: "Güçlü Seri Dondurucu", Description: "3 gün seri koruması", Icon: "❄️", Value: 3, DurationHours: 72},
		{Type: models.RewardSpecialBadge, Name: "Şanslı Rozet", Description: "Nadir bir rozet buldun!", Icon: "🍀", Value: 100},
	},
	models.RarityLegendary: {
		{Type: models.RewardXP, Name: "Efsanevi XP Paketi", Description: "500 XP kazandın!", Icon: "💎", Value: 500},
		{Type: models.RewardDoubleXP, Name: "2x XP Maraton", Description: "24 saat boyunca çift XP", Icon: "🔥", Value: 2, DurationHours: 24},
		{Type: models.RewardStreakFreeze, Name: "Buzul Kalkanı", Description: "7 gün seri koruması", Icon: "🛡️", Value: 7, DurationHours: 168},
		{Type: models.RewardSpecialBadge, Name: "Kaşif Rozeti", Description: "Efsanevi bir rozet buldun!", Icon: "🗺️", Value: 200},
	},
}

// MilestoneTriggers: crossing any threshold mints one milestone box,
// once per threshold per user (dedup key enforced).
var MilestoneTriggers = struct {
	Levels    []int64
	XP        []int64
	Questions []int64
	Streak    []int64
}{
	Levels:    []int64{5, 10, 20, 50},
	XP:        []int64{1000, 2500, 5000, 10000},
	Questions: []int64{100, 250, 500, 1000},
	Streak:    []int64{7, 14, 30, 50},
}

type RewardBoxService struct {
	DB           *gorm.DB
	XP           *XPService
	Achievements *AchievementService

	// Rand is swappable in tests for deterministic rolls
	Rand *rand.Rand
	Now  func() time.Time
}

func NewRewardBoxService(db *gorm.DB, xp *XPService) *RewardBoxService {
	return &RewardBoxService{
		DB:   db,
		XP:   xp,
		Rand: rand.New(rand.NewSource(time.Now().UnixNano())),
		Now:  time.Now,
	}
}

// AwardBox mints an unopened box. A non-nil dedupKey makes the mint
// idempotent: losing the unique-index race returns (nil, nil).
func (s *RewardBoxService) AwardBox(externalUserID string, boxType models.BoxType, reason string, dedupKey *string) (*models.RewardBox, error) {
	return s.awardBoxTx(s.DB, externalUserID, boxType, reason, dedupKey)
}

// awardBoxTx inserts with ON CONFLICT DO NOTHING on the dedup key, so a
// lost mint race inside a caller-owned transaction stays a clean no-op
// instead of aborting the whole transaction.
func (s *RewardBoxService) awardBoxTx(tx *gorm.DB, externalUserID string, boxType models.BoxType, reason string, dedupKey *string) (*models.RewardBox, error) {
	box := models.RewardBox{
		ID:             uuid.NewString(),
		ExternalUserID: externalUserID,
		BoxType:        boxType,
		Reason:         reason,
		DedupKey:       dedupKey,
		EarnedAt:       s.Now(),
	}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "dedup_key"}},
		DoNothing: true,
	}).Create(&box)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil // already minted for this trigger
	}
	fmt.Printf("🎁 Box minted: %s → %s (%s)\n", externalUserID, boxType, reason)
	return &box, nil
}

// ErrBoxAlreadyOpened signals the caller tried to re-open a box
var ErrBoxAlreadyOpened = errors.New("reward box already opened")

// OpenResult carries what came out of the box plus side-effect info
type OpenResult struct {
	Box      *models.RewardBox      `json:"box"`
	Reward   *models.ResolvedReward `json:"reward"`
	XPResult *AwardResult           `json:"xp_result,omitempty"`
	Badge    *models.Achievement    `json:"badge,omitempty"`
}

// OpenBox performs the single unopened→opened transition: the reward is
// rolled now, then written together with the flag flip and applied in
// one transaction. The conditional update is the race guard — exactly
// one concurrent opener wins, everyone else gets ErrBoxAlreadyOpened.
// A failed reward application rolls the flip back, so the caller can
// simply retry the open.
func (s *RewardBoxService) OpenBox(externalUserID, boxID string) (*OpenResult, error) {
	var box models.RewardBox
	err := s.DB.Where("id = ? AND external_user_id = ?", boxID, externalUserID).First(&box).Error
	if err == gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("reward box not found: %s", boxID)
	}
	if err != nil {
		return nil, err
	}
	if box.IsOpened {
		return nil, ErrBoxAlreadyOpened
	}

	reward := s.rollReward(box.BoxType)
	now := s.Now()
	out := &OpenResult{Box: &box, Reward: &reward}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.RewardBox{}).
			Where("id = ? AND is_opened = ?", boxID, false).
			Updates(map[string]interface{}{
				"is_opened":             true,
				"opened_at":             now,
				"reward_type":           reward.Type,
				"reward_name":           reward.Name,
				"reward_description":    reward.Description,
				"reward_icon":           reward.Icon,
				"reward_value":          reward.Value,
				"reward_rarity":         reward.Rarity,
				"reward_duration_hours": reward.DurationHours,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrBoxAlreadyOpened // lost the race
		}
		return s.applyReward(tx, externalUserID, reward, out)
	})
	if err != nil {
		return nil, err
	}

	box.IsOpened = true
	box.OpenedAt = &now
	box.Reward = &reward

	fmt.Printf("🎉 Box opened: %s → %s %s (%s)\n", externalUserID, reward.Icon, reward.Name, reward.Rarity)
	return out, nil
}

// rollReward picks a rarity by cumulative weight walk, then a reward
// uniformly within that tier.
func (s *RewardBoxService) rollReward(boxType models.BoxType) models.ResolvedReward {
	weights, ok := RarityWeights[boxType]
	if !ok {
		weights = RarityWeights[models.BoxTypeDaily]
	}

	roll := s.Rand.Intn(100)
	rarity := models.RarityCommon
	acc := 0
	for _, r := range rarityOrder {
		acc += weights[r]
		if roll < acc {
			rarity = r
			break
		}
	}

	pool := RewardPools[rarity]
	reward := pool[s.Rand.Intn(len(pool))]
	reward.Rarity = rarity
	return reward
}

func (s *RewardBoxService) applyReward(tx *gorm.DB, externalUserID string, reward models.ResolvedReward, out *OpenResult) error {
	switch reward.Type {
	case models.RewardXP:
		res, err := s.XP.awardXPTx(tx, externalUserID, Activity{
			Type:        models.ActivityAchievement,
			Amount:      reward.Value,
			Description: fmt.Sprintf("Sürpriz kutu: %s", reward.Name),
		})
		if err != nil {
			return err
		}
		out.XPResult = res

	case models.RewardDoubleXP, models.RewardStreakFreeze:
		effectType := models.EffectDoubleXP
		if reward.Type == models.RewardStreakFreeze {
			effectType = models.EffectStreakFreeze
		}
		effect := models.UserEffect{
			ID:             uuid.NewString(),
			ExternalUserID: externalUserID,
			EffectType:     effectType,
			ExpiresAt:      s.Now().Add(time.Duration(reward.DurationHours) * time.Hour),
			IsActive:       true,
		}
		if err := tx.Create(&effect).Error; err != nil {
			return err
		}

	case models.RewardBonusQuestions:
		if err := s.addCredit(tx, externalUserID, models.CreditQuestions, reward.Value); err != nil {
			return err
		}

	case models.RewardSpecialBadge:
		if s.Achievements == nil {
			return errors.New("achievement service not wired for special badges")
		}
		badge, _, err := s.Achievements.unlockSpecialBadgeTx(tx, externalUserID, reward)
		if err != nil {
			return err
		}
		out.Badge = badge
	}
	return nil
}

// addCredit upserts the counter row and bumps it atomically
func (s *RewardBoxService) addCredit(tx *gorm.DB, externalUserID, creditType string, amount int64) error {
	credit := models.UserCredit{
		ID:             uuid.NewString(),
		ExternalUserID: externalUserID,
		CreditType:     creditType,
		Amount:         amount,
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_user_id"}, {Name: "credit_type"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"amount": gorm.Expr("amount + ?", amount)}),
	}).Create(&credit).Error
}

// CheckMilestones mints milestone boxes for every threshold the user's
// current stats have crossed. Safe to call after each activity: the
// dedup key turns repeats into no-ops.
func (s *RewardBoxService) CheckMilestones(externalUserID string) ([]models.RewardBox, error) {
	prog, err := s.XP.GetOrCreateProgress(externalUserID)
	if err != nil {
		return nil, err
	}

	type crossing struct {
		dim   string
		value int64
	}
	var crossed []crossing
	for _, lv := range MilestoneTriggers.Levels {
		if int64(prog.CurrentLevel) >= lv {
			crossed = append(crossed, crossing{"level", lv})
		}
	}
	for _, xp := range MilestoneTriggers.XP {
		if prog.TotalXP >= xp {
			crossed = append(crossed, crossing{"xp", xp})
		}
	}
	for _, q := range MilestoneTriggers.Questions {
		if prog.QuestionsSolved >= q {
			crossed = append(crossed, crossing{"questions", q})
		}
	}
	for _, st := range MilestoneTriggers.Streak {
		if int64(prog.StudyStreak) >= st {
			crossed = append(crossed, crossing{"streak", st})
		}
	}

	var minted []models.RewardBox
	for _, c := range crossed {
		key := fmt.Sprintf("milestone:%s:%s:%d", externalUserID, c.dim, c.value)
		box, mintErr := s.AwardBox(externalUserID, models.BoxTypeMilestone,
			fmt.Sprintf("Kilometre taşı: %s %d", c.dim, c.value), &key)
		if mintErr != nil {
			return minted, mintErr
		}
		if box != nil {
			minted = append(minted, *box)
		}
	}
	return minted, nil
}

// EnsureDailyBox mints today's daily box if the user doesn't have one
// yet (first activity of the day or the scheduler, whichever is first).
func (s *RewardBoxService) EnsureDailyBox(externalUserID string) (*models.RewardBox, error) {
	key := fmt.Sprintf("daily:%s:%s", externalUserID, s.Now().Format(models.DateLayout))
	return s.AwardBox(externalUserID, models.BoxTypeDaily, "Günlük sürpriz kutusu", &key)
}

// EnsureWeeklyBox mints this ISO week's box once per user
func (s *RewardBoxService) EnsureWeeklyBox(externalUserID string) (*models.RewardBox, error) {
	year, week := s.Now().ISOWeek()
	key := fmt.Sprintf("weekly:%s:%d-W%02d", externalUserID, year, week)
	return s.AwardBox(externalUserID, models.BoxTypeWeekly, "Haftalık sürpriz kutusu", &key)
}

// UserBoxes returns the user's boxes, newest first
func (s *RewardBoxService) UserBoxes(externalUserID string, limit int) ([]models.RewardBox, error) {
	if limit < 1 || limit > 100 {
		limit = 50
	}
	var boxes []models.RewardBox
	err := s.DB.Where("external_user_id = ?", externalUserID).
		Order("earned_at DESC").
		Limit(limit).
		Find(&boxes).Error
	return boxes, err
}

// UnopenedBoxes returns pending boxes oldest first
func (s *RewardBoxService) UnopenedBoxes(externalUserID string) ([]models.RewardBox, error) {
	var boxes []models.RewardBox
	err := s.DB.Where("external_user_id = ? AND is_opened = ?", externalUserID, false).
		Order("earned_at ASC").
		Find(&boxes).Error
	return boxes, err
}

// ActiveEffects returns unexpired buffs for the user
func (s *RewardBoxService) ActiveEffects(externalUserID string) ([]models.UserEffect, error) {
	var effects []models.UserEffect
	err := s.DB.Where("external_user_id = ? AND is_active = ? AND expires_at > ?",
		externalUserID, true, s.Now()).
		Order("expires_at ASC").
		Find(&effects).Error
	return effects, err
}

// Credits returns the user's credit counters
func (s *RewardBoxService) Credits(externalUserID string) ([]models.UserCredit, error) {
	var credits []models.UserCredit
	err := s.DB.Where("external_user_id = ?", externalUserID).Find(&credits).Error
	return credits, err
}

// ExpireEffects flips is_active off for every effect past its expiry.
// Called by the background sweep; returns how many rows were retired.
func (s *RewardBoxService) ExpireEffects() (int64, error) {
	res := s.DB.Model(&models.UserEffect{}).
		Where("is_active = ? AND expires_at <= ?", true, s.Now()).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}

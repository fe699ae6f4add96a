package services

import (
	"testing"

	"github.com/orucunreiso/sarai/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAchievements(t *testing.T) (*AchievementService, *XPService) {
	t.Helper()
	db := testDB(t)
	xp := NewXPService(db)
	svc := NewAchievementService(db, xp)
	require.NoError(t, svc.EnsureCatalog(models.DefaultAchievements))
	return svc, xp
}

func codes(list []models.Achievement) []string {
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.Code)
	}
	return out
}

func TestEnsureCatalogIdempotent(t *testing.T) {
	svc, _ := newTestAchievements(t)

	// second seeding must not duplicate or overwrite
	require.NoError(t, svc.EnsureCatalog(models.DefaultAchievements))

	catalog, err := svc.ListCatalog()
	require.NoError(t, err)
	assert.Len(t, catalog, len(models.DefaultAchievements))
}

func TestCheckAndUnlockFirstQuestion(t *testing.T) {
	svc, xp := newTestAchievements(t)
	userID := uuid.NewString()

	_, err := xp.GetOrCreateProgress(userID)
	require.NoError(t, err)
	require.NoError(t, xp.IncrementQuestions(userID, 1))

	unlocked, err := svc.CheckAndUnlock(userID)
	require.NoError(t, err)
	assert.Contains(t, codes(unlocked), "ilk-adim")

	// re-check is a no-op for already unlocked entries
	again, err := svc.CheckAndUnlock(userID)
	require.NoError(t, err)
	assert.NotContains(t, codes(again), "ilk-adim")
}

func TestUnlockPaysXPReward(t *testing.T) {
	svc, xp := newTestAchievements(t)
	userID := uuid.NewString()

	_, err := xp.GetOrCreateProgress(userID)
	require.NoError(t, err)
	require.NoError(t, xp.IncrementQuestions(userID, 1))

	_, err = svc.CheckAndUnlock(userID)
	require.NoError(t, err)

	prog, err := xp.GetOrCreateProgress(userID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, prog.TotalXP, int64(25), "ilk-adim pays 25 XP")

	logs, err := xp.GetRecentActivities(userID, 50)
	require.NoError(t, err)
	var achievementEntries int
	for _, l := range logs {
		if l.ActivityType == models.ActivityAchievement {
			achievementEntries++
		}
	}
	assert.GreaterOrEqual(t, achievementEntries, 1)
}

func TestCheckAndUnlockStreakAndLevel(t *testing.T) {
	svc, xp := newTestAchievements(t)
	userID := uuid.NewString()

	prog, err := xp.GetOrCreateProgress(userID)
	require.NoError(t, err)
	require.NoError(t, svc.DB.Model(&models.UserProgress{}).Where("id = ?", prog.ID).
		Updates(map[string]interface{}{
			"study_streak":  7,
			"total_xp":      450,
			"current_level": 5,
		}).Error)

	unlocked, err := svc.CheckAndUnlock(userID)
	require.NoError(t, err)

	got := codes(unlocked)
	assert.Contains(t, got, "streak-3")
	assert.Contains(t, got, "streak-7")
	assert.Contains(t, got, "seviye-5")
	assert.NotContains(t, got, "streak-30")
	assert.NotContains(t, got, "seviye-10")
}

func TestSpecialEventUnlock(t *testing.T) {
	svc, _ := newTestAchievements(t)
	userID := uuid.NewString()

	unlocked, err := svc.UnlockSpecialEvent(userID, models.SpecialEventSetupComplete)
	require.NoError(t, err)
	assert.Contains(t, codes(unlocked), "kurulum-tamam")

	// repeat is idempotent
	again, err := svc.UnlockSpecialEvent(userID, models.SpecialEventSetupComplete)
	require.NoError(t, err)
	assert.Empty(t, again)

	// special_event entries never fire from the generic check
	_, err = svc.DB.Model(&models.UserAchievement{}).Where("external_user_id = ?", userID).Rows()
	require.NoError(t, err)
}

func TestSpecialEventUnknown(t *testing.T) {
	svc, _ := newTestAchievements(t)

	_, err := svc.UnlockSpecialEvent(uuid.NewString(), "no_such_event")
	assert.Error(t, err)
}

func TestUnlockSpecialBadgeFindOrCreate(t *testing.T) {
	svc, _ := newTestAchievements(t)
	userA := uuid.NewString()
	userB := uuid.NewString()

	reward := models.ResolvedReward{
		Type:        models.RewardSpecialBadge,
		Name:        "Şanslı Rozet",
		Description: "Nadir bir rozet buldun!",
		Icon:        "🍀",
		Value:       100,
		Rarity:      models.RarityEpic,
	}

	badge, fresh, err := svc.UnlockSpecialBadge(userA, reward)
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Equal(t, "sansli-rozet", badge.Code)
	assert.Equal(t, models.RarityEpic, badge.Rarity)

	// same badge for a second user reuses the catalog entry
	badge2, fresh2, err := svc.UnlockSpecialBadge(userB, reward)
	require.NoError(t, err)
	assert.True(t, fresh2)
	assert.Equal(t, badge.ID, badge2.ID)

	// rolling it again for the first user is not a fresh unlock
	_, fresh3, err := svc.UnlockSpecialBadge(userA, reward)
	require.NoError(t, err)
	assert.False(t, fresh3)

	var count int64
	require.NoError(t, svc.DB.Model(&models.Achievement{}).Where("code = ?", "sansli-rozet").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestProgressPercentClamped(t *testing.T) {
	svc, xp := newTestAchievements(t)
	userID := uuid.NewString()

	_, err := xp.GetOrCreateProgress(userID)
	require.NoError(t, err)
	require.NoError(t, xp.IncrementQuestions(userID, 250))

	progress, err := svc.Progress(userID)
	require.NoError(t, err)

	byCode := map[string]AchievementProgress{}
	for _, p := range progress {
		byCode[p.Achievement.Code] = p
	}

	// 250/100 clamps to 100 even while still locked
	assert.Equal(t, 100, byCode["soru-avcisi"].Percent)
	assert.False(t, byCode["soru-avcisi"].Unlocked)

	// 250/500 is halfway
	assert.Equal(t, 50, byCode["soru-ustasi"].Percent)
}

func TestStatsAggregation(t *testing.T) {
	svc, xp := newTestAchievements(t)
	userID := uuid.NewString()

	prog, err := xp.GetOrCreateProgress(userID)
	require.NoError(t, err)
	require.NoError(t, svc.DB.Model(&models.UserProgress{}).Where("id = ?", prog.ID).
		Update("study_streak", 3).Error)

	_, err = svc.CheckAndUnlock(userID)
	require.NoError(t, err)

	stats, err := svc.Stats(userID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.TotalUnlocked, 1)
	assert.Equal(t, len(models.DefaultAchievements), stats.TotalCatalog)
	assert.GreaterOrEqual(t, stats.ByCategory["streak"], 1)
	assert.NotEmpty(t, stats.Latest)
}

package services

import (
	"sync"
	"testing"
	"time"

	"github.com/orucunreiso/sarai/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelForXP(t *testing.T) {
	assert.Equal(t, 1, LevelForXP(0))
	assert.Equal(t, 1, LevelForXP(99))
	assert.Equal(t, 2, LevelForXP(100))
	assert.Equal(t, 2, LevelForXP(199))
	assert.Equal(t, 11, LevelForXP(1000))
	assert.Equal(t, 1, LevelForXP(-5))
}

func TestStreakMultiplier(t *testing.T) {
	assert.Equal(t, 1.0, StreakMultiplier(0))
	assert.Equal(t, 1.0, StreakMultiplier(2))
	assert.Equal(t, 1.2, StreakMultiplier(3))
	assert.Equal(t, 1.2, StreakMultiplier(6))
	assert.Equal(t, 1.5, StreakMultiplier(7))
	assert.Equal(t, 1.8, StreakMultiplier(14))
	assert.Equal(t, 2.0, StreakMultiplier(30))
	assert.Equal(t, 2.0, StreakMultiplier(365))
}

func TestAwardXPCreatesProgressAndLedger(t *testing.T) {
	svc := NewXPService(testDB(t))
	userID := uuid.NewString()

	res, err := svc.AwardXP(userID, Activity{Type: models.ActivityQuestionSolved, Description: "test"})
	require.NoError(t, err)

	assert.Equal(t, int64(10), res.XPGained)
	assert.Equal(t, int64(10), res.TotalXP)
	assert.Equal(t, 1, res.Level)
	assert.False(t, res.LeveledUp)

	logs, err := svc.GetRecentActivities(userID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ActivityQuestionSolved, logs[0].ActivityType)
	assert.Equal(t, int64(10), logs[0].XPGained)
}

func TestAwardXPLevelUpBoundary(t *testing.T) {
	svc := NewXPService(testDB(t))
	userID := uuid.NewString()

	_, err := svc.AwardXP(userID, Activity{Type: models.ActivityAchievement, Amount: 95})
	require.NoError(t, err)

	res, err := svc.AwardXP(userID, Activity{Type: models.ActivityQuestionSolved})
	require.NoError(t, err)

	assert.Equal(t, int64(105), res.TotalXP)
	assert.Equal(t, 2, res.Level)
	assert.True(t, res.LeveledUp)
	assert.NotNil(t, res.Progress.LastLevelUpAt)

	// another small award inside level 2 is not a level-up
	res, err = svc.AwardXP(userID, Activity{Type: models.ActivityQuestionSolved})
	require.NoError(t, err)
	assert.False(t, res.LeveledUp)
}

func TestAwardXPMultiplierRounding(t *testing.T) {
	svc := NewXPService(testDB(t))
	userID := uuid.NewString()

	// streak of 6 days sits in the 1.2x tier: 10 → 12
	res, err := svc.AwardXP(userID, Activity{Type: models.ActivityQuestionSolved, Multiplier: 1.2})
	require.NoError(t, err)
	assert.Equal(t, int64(12), res.XPGained)

	// 25 * 1.5 = 37.5 floors to 37
	res, err = svc.AwardXP(userID, Activity{Type: models.ActivityStreakBonus, Multiplier: 1.5})
	require.NoError(t, err)
	assert.Equal(t, int64(37), res.XPGained)
}

func TestAwardXPRejectsNegative(t *testing.T) {
	svc := NewXPService(testDB(t))

	_, err := svc.AwardXP(uuid.NewString(), Activity{Type: models.ActivityAchievement, Amount: -50})
	assert.Error(t, err)
}

func TestUpdateStreakFirstActivity(t *testing.T) {
	svc := NewXPService(testDB(t))
	svc.Now = fixedClock(t, "2026-03-10")
	userID := uuid.NewString()

	res, err := svc.UpdateStreak(userID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Streak)
	assert.True(t, res.Extended)
	assert.False(t, res.AlreadyActive)

	prog, err := svc.GetOrCreateProgress(userID)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-10", prog.LastActivityDate)
}

func TestUpdateStreakSameDayNoOp(t *testing.T) {
	svc := NewXPService(testDB(t))
	svc.Now = fixedClock(t, "2026-03-10")
	userID := uuid.NewString()

	_, err := svc.UpdateStreak(userID)
	require.NoError(t, err)

	res, err := svc.UpdateStreak(userID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Streak)
	assert.True(t, res.AlreadyActive)
	assert.False(t, res.Extended)
}

func TestUpdateStreakConsecutiveDays(t *testing.T) {
	svc := NewXPService(testDB(t))
	userID := uuid.NewString()

	svc.Now = fixedClock(t, "2026-03-10")
	_, err := svc.UpdateStreak(userID)
	require.NoError(t, err)

	svc.Now = fixedClock(t, "2026-03-11")
	res, err := svc.UpdateStreak(userID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Streak)
	assert.True(t, res.Extended)
}

func TestUpdateStreakGapResets(t *testing.T) {
	svc := NewXPService(testDB(t))
	userID := uuid.NewString()

	svc.Now = fixedClock(t, "2026-03-10")
	_, err := svc.UpdateStreak(userID)
	require.NoError(t, err)
	svc.Now = fixedClock(t, "2026-03-11")
	_, err = svc.UpdateStreak(userID)
	require.NoError(t, err)

	// two-day gap, no freeze → back to 1
	svc.Now = fixedClock(t, "2026-03-14")
	res, err := svc.UpdateStreak(userID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Streak)
	assert.False(t, res.Extended)
	assert.False(t, res.Frozen)
}

func TestUpdateStreakFreezeHoldsCount(t *testing.T) {
	db := testDB(t)
	svc := NewXPService(db)
	userID := uuid.NewString()

	svc.Now = fixedClock(t, "2026-03-10")
	_, err := svc.UpdateStreak(userID)
	require.NoError(t, err)
	svc.Now = fixedClock(t, "2026-03-11")
	_, err = svc.UpdateStreak(userID)
	require.NoError(t, err)

	svc.Now = fixedClock(t, "2026-03-14")
	require.NoError(t, db.Create(&models.UserEffect{
		ID:             uuid.NewString(),
		ExternalUserID: userID,
		EffectType:     models.EffectStreakFreeze,
		ExpiresAt:      svc.Now().Add(24 * time.Hour),
		IsActive:       true,
	}).Error)

	res, err := svc.UpdateStreak(userID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Streak, "freeze holds the count")
	assert.True(t, res.Frozen)
	assert.False(t, res.Extended, "freeze does not extend")

	prog, err := svc.GetOrCreateProgress(userID)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-14", prog.LastActivityDate, "date advances under freeze")
}

func TestUpdateStreakMilestoneBonus(t *testing.T) {
	svc := NewXPService(testDB(t))
	userID := uuid.NewString()

	for i, date := range []string{"2026-03-10", "2026-03-11", "2026-03-12"} {
		svc.Now = fixedClock(t, date)
		res, err := svc.UpdateStreak(userID)
		require.NoError(t, err)
		if i < 2 {
			assert.Zero(t, res.MilestoneXP)
		} else {
			assert.Equal(t, 3, res.Streak)
			// 25 base at the 1.2x tier the new streak just entered
			assert.Equal(t, int64(30), res.MilestoneXP)
		}
	}

	logs, err := svc.GetRecentActivities(userID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ActivityStreakBonus, logs[0].ActivityType)
}

func TestActiveMultiplierCombinesStreakAndDoubleXP(t *testing.T) {
	db := testDB(t)
	svc := NewXPService(db)
	userID := uuid.NewString()

	prog, err := svc.GetOrCreateProgress(userID)
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.UserProgress{}).Where("id = ?", prog.ID).
		Update("study_streak", 7).Error)

	mult, err := svc.ActiveMultiplier(userID)
	require.NoError(t, err)
	assert.Equal(t, 1.5, mult)

	require.NoError(t, db.Create(&models.UserEffect{
		ID:             uuid.NewString(),
		ExternalUserID: userID,
		EffectType:     models.EffectDoubleXP,
		ExpiresAt:      time.Now().Add(time.Hour),
		IsActive:       true,
	}).Error)

	mult, err = svc.ActiveMultiplier(userID)
	require.NoError(t, err)
	assert.Equal(t, 3.0, mult)
}

func TestExpiredEffectDoesNotBoost(t *testing.T) {
	db := testDB(t)
	svc := NewXPService(db)
	userID := uuid.NewString()

	require.NoError(t, db.Create(&models.UserEffect{
		ID:             uuid.NewString(),
		ExternalUserID: userID,
		EffectType:     models.EffectDoubleXP,
		ExpiresAt:      time.Now().Add(-time.Hour),
		IsActive:       true,
	}).Error)

	mult, err := svc.ActiveMultiplier(userID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, mult)
}

func TestLeaderboardOrder(t *testing.T) {
	svc := NewXPService(testDB(t))

	users := []struct {
		id string
		xp int64
	}{
		{uuid.NewString(), 50},
		{uuid.NewString(), 500},
		{uuid.NewString(), 120},
	}
	for _, u := range users {
		_, err := svc.AwardXP(u.id, Activity{Type: models.ActivityAchievement, Amount: u.xp})
		require.NoError(t, err)
	}

	rows, err := svc.Leaderboard(10)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, users[1].id, rows[0].ExternalUserID)
	assert.Equal(t, int64(500), rows[0].TotalXP)
	assert.Equal(t, users[0].id, rows[2].ExternalUserID)
}

func TestXPHistoryPagination(t *testing.T) {
	svc := NewXPService(testDB(t))
	userID := uuid.NewString()

	for i := 0; i < 25; i++ {
		_, err := svc.AwardXP(userID, Activity{Type: models.ActivityQuestionSolved})
		require.NoError(t, err)
	}

	page, err := svc.GetXPHistory(userID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(25), page["total_items"])
	assert.Equal(t, 3, page["total_pages"])
	assert.Len(t, page["entries"], 10)

	last, err := svc.GetXPHistory(userID, 3, 10)
	require.NoError(t, err)
	assert.Len(t, last["entries"], 5)
}

func TestConcurrentAwardsToFreshUser(t *testing.T) {
	svc := NewXPService(testDB(t))
	userID := uuid.NewString()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AwardXP(userID, Activity{Type: models.ActivityQuestionSolved})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// lazy creation races resolve to one row, no award is lost
	var rows int64
	require.NoError(t, svc.DB.Model(&models.UserProgress{}).
		Where("external_user_id = ?", userID).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)

	prog, err := svc.GetOrCreateProgress(userID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), prog.TotalXP)
}

func TestActiveMultiplierSurfacesEffectError(t *testing.T) {
	svc := NewXPService(testDB(t))
	userID := uuid.NewString()

	_, err := svc.GetOrCreateProgress(userID)
	require.NoError(t, err)

	require.NoError(t, svc.DB.Migrator().DropTable(&models.UserEffect{}))
	_, err = svc.ActiveMultiplier(userID)
	assert.Error(t, err, "a broken effect read must not pass as 'no boost'")
}

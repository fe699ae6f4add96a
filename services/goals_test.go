package services

import (
	"sync"
	"testing"

	"github.com/orucunreiso/sarai/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGoals(t *testing.T) (*GoalService, *XPService) {
	t.Helper()
	db := testDB(t)
	xp := NewXPService(db)
	svc := NewGoalService(db, xp)
	svc.Now = fixedClock(t, "2026-03-10")
	return svc, xp
}

func countGoalXPEntries(t *testing.T, xp *XPService, userID string) int {
	t.Helper()
	var count int64
	require.NoError(t, xp.DB.Model(&models.XPLog{}).
		Where("external_user_id = ? AND activity_type = ?", userID, models.ActivityDailyGoal).
		Count(&count).Error)
	return int(count)
}

func TestGetOrCreateDailyGoalDefaults(t *testing.T) {
	svc, _ := newTestGoals(t)
	userID := uuid.NewString()

	goal, err := svc.GetOrCreateDailyGoal(userID, "")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-10", goal.GoalDate)
	assert.Equal(t, 5, goal.TargetQuestions)
	assert.Equal(t, 45, goal.TargetDuration)
	assert.Equal(t, 2, goal.TargetSubjects)
	assert.False(t, goal.IsCompleted())

	// second call returns the same row
	again, err := svc.GetOrCreateDailyGoal(userID, "2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, goal.ID, again.ID)
}

func TestGetOrCreateDailyGoalRejectsBadDate(t *testing.T) {
	svc, _ := newTestGoals(t)

	_, err := svc.GetOrCreateDailyGoal(uuid.NewString(), "10-03-2026")
	assert.Error(t, err)
}

func TestAddProgressClamping(t *testing.T) {
	svc, _ := newTestGoals(t)
	userID := uuid.NewString()

	goal, err := svc.AddProgress(userID, "", GoalProgressDelta{Questions: 99, DurationMin: 500, Subjects: 10})
	require.NoError(t, err)
	assert.Equal(t, 5, goal.AchievedQuestions, "clamped to target")
	assert.Equal(t, 45, goal.AchievedDuration)
	assert.Equal(t, 2, goal.AchievedSubjects)

	// negative deltas clamp at zero
	goal, err = svc.AddProgress(userID, "", GoalProgressDelta{Questions: -100})
	require.NoError(t, err)
	assert.Equal(t, 0, goal.AchievedQuestions)
}

func TestCompletionCreditsOnce(t *testing.T) {
	svc, xp := newTestGoals(t)
	userID := uuid.NewString()

	goal, err := svc.AddProgress(userID, "", GoalProgressDelta{Questions: 5, DurationMin: 45, Subjects: 2})
	require.NoError(t, err)
	assert.True(t, goal.IsCompleted())
	assert.True(t, goal.XPGranted)
	assert.Equal(t, 1, countGoalXPEntries(t, xp, userID))

	prog, err := xp.GetOrCreateProgress(userID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), prog.TotalXP)

	// more progress on a completed day never double-credits
	_, err = svc.AddProgress(userID, "", GoalProgressDelta{Questions: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, countGoalXPEntries(t, xp, userID))
}

func TestPartialCompletionNoCredit(t *testing.T) {
	svc, xp := newTestGoals(t)
	userID := uuid.NewString()

	goal, err := svc.AddProgress(userID, "", GoalProgressDelta{Questions: 5, DurationMin: 45})
	require.NoError(t, err)
	assert.False(t, goal.IsCompleted(), "subjects target unmet")
	assert.Zero(t, countGoalXPEntries(t, xp, userID))
}

func TestManualApprovalGatesCredit(t *testing.T) {
	svc, xp := newTestGoals(t)
	userID := uuid.NewString()

	reqApproval := true
	var err error
	_, err = svc.UpdateTargets(userID, "", TargetUpdate{RequireApproval: &reqApproval})
	require.NoError(t, err)

	goal, err := svc.AddProgress(userID, "", GoalProgressDelta{Questions: 5, DurationMin: 45, Subjects: 2})
	require.NoError(t, err)
	assert.True(t, goal.IsCompleted())
	assert.False(t, goal.XPGranted, "credit held for approval")
	assert.Zero(t, countGoalXPEntries(t, xp, userID))

	approved, err := svc.Approve(userID, "", "checked by coach")
	require.NoError(t, err)
	assert.True(t, approved.XPGranted)
	assert.Equal(t, 1, countGoalXPEntries(t, xp, userID))

	// re-approving never re-credits
	_, err = svc.Approve(userID, "", "again")
	require.NoError(t, err)
	assert.Equal(t, 1, countGoalXPEntries(t, xp, userID))
}

func TestRevokeKeepsGrantedXP(t *testing.T) {
	svc, xp := newTestGoals(t)
	userID := uuid.NewString()

	reqApproval := true
	_, err := svc.UpdateTargets(userID, "", TargetUpdate{RequireApproval: &reqApproval})
	require.NoError(t, err)
	_, err = svc.AddProgress(userID, "", GoalProgressDelta{Questions: 5, DurationMin: 45, Subjects: 2})
	require.NoError(t, err)
	_, err = svc.Approve(userID, "", "")
	require.NoError(t, err)
	require.Equal(t, 1, countGoalXPEntries(t, xp, userID))

	goal, err := svc.RevokeApproval(userID, "")
	require.NoError(t, err)
	assert.False(t, goal.IsManuallyApproved)
	assert.True(t, goal.XPGranted, "ledger is append-only, credit stays")
	assert.Equal(t, 1, countGoalXPEntries(t, xp, userID))
}

func TestUpdateTargetsValidationAndReclamp(t *testing.T) {
	svc, _ := newTestGoals(t)
	userID := uuid.NewString()

	_, err := svc.AddProgress(userID, "", GoalProgressDelta{Questions: 4})
	require.NoError(t, err)

	bad := 0
	_, err = svc.UpdateTargets(userID, "", TargetUpdate{Questions: &bad})
	assert.Error(t, err)

	lower := 3
	goal, err := svc.UpdateTargets(userID, "", TargetUpdate{Questions: &lower})
	require.NoError(t, err)
	assert.Equal(t, 3, goal.TargetQuestions)
	assert.Equal(t, 3, goal.AchievedQuestions, "achieved re-clamped to the new target")
}

func TestSeparateDatesSeparateCredits(t *testing.T) {
	svc, xp := newTestGoals(t)
	userID := uuid.NewString()

	_, err := svc.AddProgress(userID, "2026-03-10", GoalProgressDelta{Questions: 5, DurationMin: 45, Subjects: 2})
	require.NoError(t, err)

	svc.Now = fixedClock(t, "2026-03-11")
	_, err = svc.AddProgress(userID, "2026-03-11", GoalProgressDelta{Questions: 5, DurationMin: 45, Subjects: 2})
	require.NoError(t, err)

	assert.Equal(t, 2, countGoalXPEntries(t, xp, userID))
}

func TestUserGoalLifecycle(t *testing.T) {
	svc, _ := newTestGoals(t)
	userID := uuid.NewString()

	goal, err := svc.CreateUserGoal(userID, UserGoalInput{Title: "20 paragraf sorusu", TargetValue: 20})
	require.NoError(t, err)
	assert.Equal(t, "2026-03-10", goal.GoalDate)
	assert.Equal(t, "adet", goal.Unit)
	assert.True(t, goal.IsActive)

	goal, err = svc.UpdateUserGoalProgress(userID, goal.ID, 25)
	require.NoError(t, err)
	assert.Equal(t, 20, goal.CurrentValue, "clamped")
	assert.True(t, goal.IsCompleted)

	require.NoError(t, svc.RemoveUserGoal(userID, goal.ID))

	list, err := svc.ListUserGoals(userID, "")
	require.NoError(t, err)
	assert.Empty(t, list, "soft-deleted goals disappear from listings")

	// removing twice fails, row already inactive
	assert.Error(t, svc.RemoveUserGoal(userID, goal.ID))
}

func TestUserGoalApprovalGate(t *testing.T) {
	svc, _ := newTestGoals(t)
	userID := uuid.NewString()

	goal, err := svc.CreateUserGoal(userID, UserGoalInput{
		Title: "Kitap özeti", TargetValue: 1, RequireApproval: true,
	})
	require.NoError(t, err)

	goal, err = svc.UpdateUserGoalProgress(userID, goal.ID, 1)
	require.NoError(t, err)
	assert.False(t, goal.IsCompleted, "waits for approval")

	goal, err = svc.ApproveUserGoal(userID, goal.ID)
	require.NoError(t, err)
	assert.True(t, goal.IsCompleted)
	assert.NotNil(t, goal.ApprovedAt)
}

func TestCreateUserGoalValidation(t *testing.T) {
	svc, _ := newTestGoals(t)

	_, err := svc.CreateUserGoal(uuid.NewString(), UserGoalInput{Title: ""})
	assert.Error(t, err)

	_, err = svc.CreateUserGoal(uuid.NewString(), UserGoalInput{Title: "x", GoalDate: "bad-date"})
	assert.Error(t, err)
}

func TestGoalsForRange(t *testing.T) {
	svc, _ := newTestGoals(t)
	userID := uuid.NewString()

	for _, d := range []string{"2026-03-08", "2026-03-09", "2026-03-10"} {
		_, err := svc.GetOrCreateDailyGoal(userID, d)
		require.NoError(t, err)
	}

	goals, err := svc.GoalsForRange(userID, "2026-03-09", "2026-03-10")
	require.NoError(t, err)
	require.Len(t, goals, 2)
	assert.Equal(t, "2026-03-09", goals[0].GoalDate)
	assert.Equal(t, "2026-03-10", goals[1].GoalDate)
}

func TestAddProgressConcurrentDeltas(t *testing.T) {
	svc, _ := newTestGoals(t)
	userID := uuid.NewString()

	// seed the row so every worker hits the same goal
	_, err := svc.GetOrCreateDailyGoal(userID, "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.AddProgress(userID, "", GoalProgressDelta{Questions: 1, DurationMin: 10})
		}()
	}
	wg.Wait()

	goal, err := svc.GetOrCreateDailyGoal(userID, "")
	require.NoError(t, err)
	assert.Equal(t, 4, goal.AchievedQuestions, "every delta folds in")
	assert.Equal(t, 40, goal.AchievedDuration)
}

func TestUserGoalConcurrentIncrements(t *testing.T) {
	svc, _ := newTestGoals(t)
	userID := uuid.NewString()

	goal, err := svc.CreateUserGoal(userID, UserGoalInput{Title: "Kitap oku", TargetValue: 10})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.UpdateUserGoalProgress(userID, goal.ID, 1)
		}()
	}
	wg.Wait()

	var stored models.UserGoal
	require.NoError(t, svc.DB.Where("id = ?", goal.ID).First(&stored).Error)
	assert.Equal(t, 5, stored.CurrentValue)
}

func TestGoalCreditRollsBackOnFailedGrant(t *testing.T) {
	svc, xp := newTestGoals(t)
	userID := uuid.NewString()

	_, err := svc.AddProgress(userID, "", GoalProgressDelta{Questions: 5, DurationMin: 45, Subjects: 1})
	require.NoError(t, err)

	// ledger writes fail → the grant must roll the guard flag back
	require.NoError(t, svc.DB.Migrator().DropTable(&models.XPLog{}))
	_, err = svc.AddProgress(userID, "", GoalProgressDelta{Subjects: 1})
	require.Error(t, err)

	var goal models.DailyGoal
	require.NoError(t, svc.DB.Where("external_user_id = ?", userID).First(&goal).Error)
	assert.False(t, goal.XPGranted, "failed grant must not burn the credit")

	// store recovers, retry pays exactly once
	require.NoError(t, svc.DB.AutoMigrate(&models.XPLog{}))
	retried, err := svc.AddProgress(userID, "", GoalProgressDelta{})
	require.NoError(t, err)
	assert.True(t, retried.XPGranted)
	assert.Equal(t, 1, countGoalXPEntries(t, xp, userID))

	prog, err := xp.GetOrCreateProgress(userID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), prog.TotalXP)
}

func TestReApprovalKeepsOriginalNote(t *testing.T) {
	svc, _ := newTestGoals(t)
	userID := uuid.NewString()

	first, err := svc.Approve(userID, "", "ilk kontrol")
	require.NoError(t, err)
	require.NotNil(t, first.ApprovedAt)

	again, err := svc.Approve(userID, "", "ikinci kontrol")
	require.NoError(t, err)
	assert.True(t, again.IsManuallyApproved)
	assert.Equal(t, "ilk kontrol", again.ApprovalNote, "re-approval is a no-op")
}

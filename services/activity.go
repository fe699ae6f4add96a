package services

import (
	"fmt"
	"time"

	"github.com/orucunreiso/sarai/models"

	"gorm.io/gorm"
)

// ActivityService runs the per-event pipeline: streak first (so the
// multiplier reflects today's activity), then XP, then achievement and
// milestone checks, then goal aggregation and the daily box.
type ActivityService struct {
	DB           *gorm.DB
	XP           *XPService
	Achievements *AchievementService
	Boxes        *RewardBoxService
	Goals        *GoalService

	Now func() time.Time
}

func NewActivityService(db *gorm.DB, xp *XPService, ach *AchievementService, boxes *RewardBoxService, goals *GoalService) *ActivityService {
	return &ActivityService{
		DB: db, XP: xp, Achievements: ach, Boxes: boxes, Goals: goals,
		Now: time.Now,
	}
}

// QuestionEntry is one study session of solved questions
type QuestionEntry struct {
	Subject     string `json:"subject"`
	Count       int    `json:"count"`
	DurationMin int    `json:"duration_min"`
}

// ActivityResult aggregates everything one entry triggered
type ActivityResult struct {
	XPGained     int64                `json:"xp_gained"`
	TotalXP      int64                `json:"total_xp"`
	Level        int                  `json:"level"`
	LeveledUp    bool                 `json:"leveled_up"`
	Streak       *StreakResult        `json:"streak,omitempty"`
	Unlocked     []models.Achievement `json:"unlocked_achievements,omitempty"`
	NewBoxes     []models.RewardBox   `json:"new_boxes,omitempty"`
	Goal         *models.DailyGoal    `json:"goal,omitempty"`
	Multiplier   float64              `json:"multiplier"`
}

// ProcessQuestionEntry records a batch of solved questions. One ledger
// entry is written per question so windowed question criteria can count
// entries directly.
func (s *ActivityService) ProcessQuestionEntry(externalUserID string, entry QuestionEntry) (*ActivityResult, error) {
	if entry.Count < 1 {
		entry.Count = 1
	}
	if entry.DurationMin < 0 {
		entry.DurationMin = 0
	}

	out := &ActivityResult{}

	streak, err := s.XP.UpdateStreak(externalUserID)
	if err != nil {
		return nil, err
	}
	out.Streak = streak

	mult, err := s.XP.ActiveMultiplier(externalUserID)
	if err != nil {
		return nil, err
	}
	out.Multiplier = mult

	desc := "Soru çözüldü"
	if entry.Subject != "" {
		desc = fmt.Sprintf("Soru çözüldü: %s", entry.Subject)
	}
	for i := 0; i < entry.Count; i++ {
		res, awardErr := s.XP.AwardXP(externalUserID, Activity{
			Type:        models.ActivityQuestionSolved,
			Multiplier:  mult,
			Description: desc,
		})
		if awardErr != nil {
			return nil, awardErr
		}
		out.XPGained += res.XPGained
		out.TotalXP = res.TotalXP
		out.Level = res.Level
		out.LeveledUp = out.LeveledUp || res.LeveledUp
	}

	if err := s.XP.IncrementQuestions(externalUserID, int64(entry.Count)); err != nil {
		return nil, err
	}

	unlocked, err := s.Achievements.CheckAndUnlock(externalUserID)
	if err != nil {
		return nil, err
	}
	out.Unlocked = unlocked

	subjectDelta := 0
	if entry.Subject != "" {
		isNew, subErr := s.firstSubjectTouchToday(externalUserID, entry.Subject, entry.Count)
		if subErr != nil {
			return nil, subErr
		}
		if isNew {
			subjectDelta = 1
		}
	}
	goal, err := s.Goals.AddProgress(externalUserID, "", GoalProgressDelta{
		Questions:   entry.Count,
		DurationMin: entry.DurationMin,
		Subjects:    subjectDelta,
	})
	if err != nil {
		return nil, err
	}
	out.Goal = goal

	milestones, err := s.Boxes.CheckMilestones(externalUserID)
	if err != nil {
		return nil, err
	}
	out.NewBoxes = append(out.NewBoxes, milestones...)

	daily, err := s.Boxes.EnsureDailyBox(externalUserID)
	if err != nil {
		return nil, err
	}
	if daily != nil {
		out.NewBoxes = append(out.NewBoxes, *daily)
	}

	return out, nil
}

// firstSubjectTouchToday reports whether this entry is the first for
// its subject today. The ledger rows written moments ago for this very
// entry are excluded by count.
func (s *ActivityService) firstSubjectTouchToday(externalUserID, subject string, justWritten int) (bool, error) {
	now := s.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var count int64
	err := s.DB.Model(&models.XPLog{}).
		Where("external_user_id = ? AND activity_type = ? AND created_at >= ? AND description LIKE ?",
			externalUserID, models.ActivityQuestionSolved, midnight, "%: "+subject).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count <= int64(justWritten), nil
}

// ExamEntry is a completed practice exam
type ExamEntry struct {
	Name           string `json:"name"`
	Subject        string `json:"subject"`
	TotalQuestions int    `json:"total_questions"`
	CorrectAnswers int    `json:"correct_answers"`
	DurationMin    int    `json:"duration_min"`
}

// ExamBaseXP plus a score bonus keyed to accuracy bands
const ExamBaseXP = 50

func calculateExamXP(total, correct int) int64 {
	xp := int64(ExamBaseXP)
	if total <= 0 {
		return xp
	}
	score := correct * 100 / total
	switch {
	case score >= 80:
		xp += 30
	case score >= 60:
		xp += 15
	}
	return xp
}

// ProcessExamEntry records a finished exam: one exam_completed ledger
// entry at the banded XP amount, then the same downstream checks as a
// question entry.
func (s *ActivityService) ProcessExamEntry(externalUserID string, entry ExamEntry) (*ActivityResult, error) {
	if entry.TotalQuestions < 1 {
		return nil, fmt.Errorf("exam needs at least one question")
	}
	if entry.CorrectAnswers < 0 {
		entry.CorrectAnswers = 0
	}
	if entry.CorrectAnswers > entry.TotalQuestions {
		entry.CorrectAnswers = entry.TotalQuestions
	}

	out := &ActivityResult{}

	streak, err := s.XP.UpdateStreak(externalUserID)
	if err != nil {
		return nil, err
	}
	out.Streak = streak
	out.Multiplier = 1.0 // exam XP is banded, never multiplied

	name := entry.Name
	if name == "" {
		name = "Deneme sınavı"
	}
	res, err := s.XP.AwardXP(externalUserID, Activity{
		Type:   models.ActivityExamCompleted,
		Amount: calculateExamXP(entry.TotalQuestions, entry.CorrectAnswers),
		Description: fmt.Sprintf("%s: %d/%d doğru", name,
			entry.CorrectAnswers, entry.TotalQuestions),
	})
	if err != nil {
		return nil, err
	}
	out.XPGained = res.XPGained
	out.TotalXP = res.TotalXP
	out.Level = res.Level
	out.LeveledUp = res.LeveledUp

	if err := s.XP.IncrementQuestions(externalUserID, int64(entry.TotalQuestions)); err != nil {
		return nil, err
	}

	unlocked, err := s.Achievements.CheckAndUnlock(externalUserID)
	if err != nil {
		return nil, err
	}
	out.Unlocked = unlocked

	goal, err := s.Goals.AddProgress(externalUserID, "", GoalProgressDelta{
		Questions:   entry.TotalQuestions,
		DurationMin: entry.DurationMin,
		Subjects:    0,
	})
	if err != nil {
		return nil, err
	}
	out.Goal = goal

	milestones, err := s.Boxes.CheckMilestones(externalUserID)
	if err != nil {
		return nil, err
	}
	out.NewBoxes = append(out.NewBoxes, milestones...)

	daily, err := s.Boxes.EnsureDailyBox(externalUserID)
	if err != nil {
		return nil, err
	}
	if daily != nil {
		out.NewBoxes = append(out.NewBoxes, *daily)
	}

	return out, nil
}

// ProcessLogin handles a session start: the one-time first-login bonus
// and today's daily box. Streaks are driven by study activity, not
// logins.
func (s *ActivityService) ProcessLogin(externalUserID string) (*ActivityResult, error) {
	out := &ActivityResult{}

	if _, err := s.XP.GetOrCreateProgress(externalUserID); err != nil {
		return nil, err
	}

	// The welcome bonus pays once: the flag flip and the award share a
	// transaction, and only the request that wins the flip pays.
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.UserProgress{}).
			Where("external_user_id = ? AND first_login_bonus_granted = ?", externalUserID, false).
			Update("first_login_bonus_granted", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil // already welcomed
		}
		award, awardErr := s.XP.awardXPTx(tx, externalUserID, Activity{
			Type:        models.ActivityFirstLogin,
			Description: "Aramıza hoş geldin! 👋",
		})
		if awardErr != nil {
			return awardErr
		}
		out.XPGained = award.XPGained
		out.TotalXP = award.TotalXP
		out.Level = award.Level
		out.LeveledUp = award.LeveledUp
		return nil
	})
	if err != nil {
		return nil, err
	}

	daily, err := s.Boxes.EnsureDailyBox(externalUserID)
	if err != nil {
		return nil, err
	}
	if daily != nil {
		out.NewBoxes = append(out.NewBoxes, *daily)
	}
	return out, nil
}

// CompleteSetup fires the profile-setup special event
func (s *ActivityService) CompleteSetup(externalUserID string) ([]models.Achievement, error) {
	return s.Achievements.UnlockSpecialEvent(externalUserID, models.SpecialEventSetupComplete)
}

// Overview is the dashboard payload: progression, today's goal, pending
// boxes and running effects in one read.
type Overview struct {
	Progress       *models.UserProgress `json:"progress"`
	XPToNextLevel  int64                `json:"xp_to_next_level"`
	Multiplier     float64              `json:"multiplier"`
	TodayGoal      *models.DailyGoal    `json:"today_goal"`
	UnopenedBoxes  int                  `json:"unopened_boxes"`
	ActiveEffects  []models.UserEffect  `json:"active_effects"`
	RecentActivity []models.XPLog       `json:"recent_activity"`
}

func (s *ActivityService) GetOverview(externalUserID string) (*Overview, error) {
	prog, err := s.XP.GetOrCreateProgress(externalUserID)
	if err != nil {
		return nil, err
	}

	mult, err := s.XP.ActiveMultiplier(externalUserID)
	if err != nil {
		return nil, err
	}

	goal, err := s.Goals.GetOrCreateDailyGoal(externalUserID, "")
	if err != nil {
		return nil, err
	}

	unopened, err := s.Boxes.UnopenedBoxes(externalUserID)
	if err != nil {
		return nil, err
	}

	effects, err := s.Boxes.ActiveEffects(externalUserID)
	if err != nil {
		return nil, err
	}

	recent, err := s.XP.GetRecentActivities(externalUserID, 10)
	if err != nil {
		return nil, err
	}

	return &Overview{
		Progress:       prog,
		XPToNextLevel:  int64(prog.CurrentLevel)*XPPerLevel - prog.TotalXP,
		Multiplier:     mult,
		TodayGoal:      goal,
		UnopenedBoxes:  len(unopened),
		ActiveEffects:  effects,
		RecentActivity: recent,
	}, nil
}

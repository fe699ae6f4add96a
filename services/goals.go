package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/orucunreiso/sarai/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GoalService struct {
	DB *gorm.DB
	XP *XPService

	Now func() time.Time
}

func NewGoalService(db *gorm.DB, xp *XPService) *GoalService {
	return &GoalService{DB: db, XP: xp, Now: time.Now}
}

// Today returns the service's current calendar date string
func (s *GoalService) Today() string {
	return s.Now().Format(models.DateLayout)
}

// GetOrCreateDailyGoal returns the one goal row for (user, date),
// creating it with default targets on first touch. The composite
// unique index resolves concurrent creates to a single row.
func (s *GoalService) GetOrCreateDailyGoal(externalUserID, date string) (*models.DailyGoal, error) {
	if date == "" {
		date = s.Today()
	}
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return nil, fmt.Errorf("invalid goal date %q: %w", date, err)
	}

	var goal models.DailyGoal
	err := s.DB.Where("external_user_id = ? AND goal_date = ?", externalUserID, date).First(&goal).Error
	if err == nil {
		return &goal, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	goal = models.DailyGoal{
		ID:              uuid.NewString(),
		ExternalUserID:  externalUserID,
		GoalDate:        date,
		TargetQuestions: 5,
		TargetDuration:  45,
		TargetSubjects:  2,
	}
	if createErr := s.DB.Create(&goal).Error; createErr != nil {
		if errors.Is(createErr, gorm.ErrDuplicatedKey) {
			// concurrent create won, use its row
			if readErr := s.DB.Where("external_user_id = ? AND goal_date = ?", externalUserID, date).First(&goal).Error; readErr != nil {
				return nil, readErr
			}
			return &goal, nil
		}
		return nil, createErr
	}
	return &goal, nil
}

// clampedAddExpr adds a delta to a counter column clamped to [0, target]
// in SQL, so concurrent deltas fold into the stored value instead of
// overwriting each other's reads. The CASE form works on both postgres
// and sqlite.
func clampedAddExpr(achievedCol, targetCol string, delta int) clause.Expr {
	return gorm.Expr(fmt.Sprintf(
		"CASE WHEN %[1]s + ? < 0 THEN 0 WHEN %[1]s + ? > %[2]s THEN %[2]s ELSE %[1]s + ? END",
		achievedCol, targetCol), delta, delta, delta)
}

// GoalProgressDelta is one study session's contribution to the day
type GoalProgressDelta struct {
	Questions   int `json:"questions"`
	DurationMin int `json:"duration_min"`
	Subjects    int `json:"subjects"`
}

// AddProgress folds a session into the day's goal. Achieved values are
// clamped to [0, target]. When all targets are met the XP credit fires
// exactly once per date, unless manual approval gates it.
func (s *GoalService) AddProgress(externalUserID, date string, delta GoalProgressDelta) (*models.DailyGoal, error) {
	goal, err := s.GetOrCreateDailyGoal(externalUserID, date)
	if err != nil {
		return nil, err
	}

	// One statement, clamped in SQL: concurrent sessions never lose a delta
	err = s.DB.Model(&models.DailyGoal{}).Where("id = ?", goal.ID).
		Updates(map[string]interface{}{
			"achieved_questions": clampedAddExpr("achieved_questions", "target_questions", delta.Questions),
			"achieved_duration":  clampedAddExpr("achieved_duration", "target_duration", delta.DurationMin),
			"achieved_subjects":  clampedAddExpr("achieved_subjects", "target_subjects", delta.Subjects),
		}).Error
	if err != nil {
		return nil, err
	}
	if err := s.DB.Where("id = ?", goal.ID).First(goal).Error; err != nil {
		return nil, err
	}

	if goal.IsCompleted() && (!goal.ManualApprovalRequired || goal.IsManuallyApproved) {
		if err := s.grantGoalXP(goal); err != nil {
			return goal, err
		}
	}
	return goal, nil
}

// grantGoalXP pays the daily-goal bonus at most once per (user, date).
// The conditional flag flip is the guard: whoever flips it pays, and
// the flip and the award share one transaction so a failed grant rolls
// the flag back instead of eating the credit.
func (s *GoalService) grantGoalXP(goal *models.DailyGoal) error {
	granted := false
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.DailyGoal{}).
			Where("id = ? AND xp_granted = ?", goal.ID, false).
			Update("xp_granted", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil // already credited
		}
		granted = true

		_, err := s.XP.awardXPTx(tx, goal.ExternalUserID, Activity{
			Type:        models.ActivityDailyGoal,
			Description: fmt.Sprintf("Günlük hedef tamamlandı (%s) 🎯", goal.GoalDate),
		})
		return err
	})
	if err != nil {
		return err
	}
	if granted {
		goal.XPGranted = true
		fmt.Printf("🎯 Daily goal credited: %s @ %s\n", goal.ExternalUserID, goal.GoalDate)
	}
	return nil
}

// Approve marks a goal manually approved (parent/coach flow). If the
// goal is already complete this releases the pending XP credit.
func (s *GoalService) Approve(externalUserID, date, note string) (*models.DailyGoal, error) {
	goal, err := s.GetOrCreateDailyGoal(externalUserID, date)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	// Re-approval is a no-op: the original stamp and note stay put
	res := s.DB.Model(&models.DailyGoal{}).
		Where("id = ? AND is_manually_approved = ?", goal.ID, false).
		Updates(map[string]interface{}{
			"is_manually_approved": true,
			"approved_at":          now,
			"approval_note":        note,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected > 0 {
		goal.IsManuallyApproved = true
		goal.ApprovedAt = &now
		goal.ApprovalNote = note
	}

	if goal.IsCompleted() {
		if err := s.grantGoalXP(goal); err != nil {
			return goal, err
		}
	}
	return goal, nil
}

// RevokeApproval withdraws manual approval. Already-granted XP stays
// granted: the ledger is append-only and the credit guard never resets.
func (s *GoalService) RevokeApproval(externalUserID, date string) (*models.DailyGoal, error) {
	goal, err := s.GetOrCreateDailyGoal(externalUserID, date)
	if err != nil {
		return nil, err
	}
	err = s.DB.Model(&models.DailyGoal{}).Where("id = ?", goal.ID).
		Updates(map[string]interface{}{
			"is_manually_approved": false,
			"approved_at":          nil,
		}).Error
	if err != nil {
		return nil, err
	}
	goal.IsManuallyApproved = false
	goal.ApprovedAt = nil
	return goal, nil
}

// TargetUpdate carries new targets; nil fields stay unchanged
type TargetUpdate struct {
	Questions       *int  `json:"questions,omitempty"`
	DurationMin     *int  `json:"duration_min,omitempty"`
	Subjects        *int  `json:"subjects,omitempty"`
	RequireApproval *bool `json:"require_approval,omitempty"`
}

// UpdateTargets adjusts the day's targets (minimum 1 each). Achieved
// values are re-clamped so a lowered target can't leave achieved above it.
func (s *GoalService) UpdateTargets(externalUserID, date string, upd TargetUpdate) (*models.DailyGoal, error) {
	goal, err := s.GetOrCreateDailyGoal(externalUserID, date)
	if err != nil {
		return nil, err
	}

	set := func(target *int, achieved *int, v *int) error {
		if v == nil {
			return nil
		}
		if *v < 1 {
			return fmt.Errorf("target must be at least 1, got %d", *v)
		}
		*target = *v
		if *achieved > *target {
			*achieved = *target
		}
		return nil
	}
	if err := set(&goal.TargetQuestions, &goal.AchievedQuestions, upd.Questions); err != nil {
		return nil, err
	}
	if err := set(&goal.TargetDuration, &goal.AchievedDuration, upd.DurationMin); err != nil {
		return nil, err
	}
	if err := set(&goal.TargetSubjects, &goal.AchievedSubjects, upd.Subjects); err != nil {
		return nil, err
	}
	if upd.RequireApproval != nil {
		goal.ManualApprovalRequired = *upd.RequireApproval
	}

	err = s.DB.Model(&models.DailyGoal{}).Where("id = ?", goal.ID).
		Updates(map[string]interface{}{
			"target_questions":         goal.TargetQuestions,
			"target_duration":          goal.TargetDuration,
			"target_subjects":          goal.TargetSubjects,
			"achieved_questions":       goal.AchievedQuestions,
			"achieved_duration":        goal.AchievedDuration,
			"achieved_subjects":        goal.AchievedSubjects,
			"manual_approval_required": goal.ManualApprovalRequired,
		}).Error
	if err != nil {
		return nil, err
	}
	return goal, nil
}

// GoalsForRange returns daily goals between two dates inclusive
func (s *GoalService) GoalsForRange(externalUserID, from, to string) ([]models.DailyGoal, error) {
	var goals []models.DailyGoal
	err := s.DB.Where("external_user_id = ? AND goal_date BETWEEN ? AND ?", externalUserID, from, to).
		Order("goal_date ASC").
		Find(&goals).Error
	return goals, err
}

// ---- custom user goals ----

type UserGoalInput struct {
	Title           string `json:"title"`
	TargetValue     int    `json:"target_value"`
	Unit            string `json:"unit"`
	GoalDate        string `json:"goal_date"`
	RequireApproval bool   `json:"require_approval"`
}

// CreateUserGoal adds a custom goal for the given date
func (s *GoalService) CreateUserGoal(externalUserID string, in UserGoalInput) (*models.UserGoal, error) {
	if in.Title == "" {
		return nil, errors.New("goal title is required")
	}
	if in.TargetValue < 1 {
		in.TargetValue = 1
	}
	if in.Unit == "" {
		in.Unit = "adet"
	}
	if in.GoalDate == "" {
		in.GoalDate = s.Today()
	}
	if _, err := time.Parse(models.DateLayout, in.GoalDate); err != nil {
		return nil, fmt.Errorf("invalid goal date %q: %w", in.GoalDate, err)
	}

	goal := models.UserGoal{
		ID:                     uuid.NewString(),
		ExternalUserID:         externalUserID,
		GoalDate:               in.GoalDate,
		Title:                  in.Title,
		TargetValue:            in.TargetValue,
		Unit:                   in.Unit,
		IsActive:               true,
		ManualApprovalRequired: in.RequireApproval,
	}
	if err := s.DB.Create(&goal).Error; err != nil {
		return nil, err
	}
	return &goal, nil
}

// UpdateUserGoalProgress moves a custom goal's counter (clamped) and
// derives completion.
func (s *GoalService) UpdateUserGoalProgress(externalUserID, goalID string, delta int) (*models.UserGoal, error) {
	res := s.DB.Model(&models.UserGoal{}).
		Where("id = ? AND external_user_id = ? AND is_active = ?", goalID, externalUserID, true).
		Update("current_value", clampedAddExpr("current_value", "target_value", delta))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("goal not found: %s", goalID)
	}

	// Completion derives from the stored row, so concurrent deltas all
	// converge on the same answer
	err := s.DB.Model(&models.UserGoal{}).Where("id = ?", goalID).
		Update("is_completed", gorm.Expr(
			"current_value >= target_value AND (NOT manual_approval_required OR is_manually_approved)")).Error
	if err != nil {
		return nil, err
	}

	var goal models.UserGoal
	if err := s.DB.Where("id = ?", goalID).First(&goal).Error; err != nil {
		return nil, err
	}
	return &goal, nil
}

// ApproveUserGoal releases a manually gated custom goal
func (s *GoalService) ApproveUserGoal(externalUserID, goalID string) (*models.UserGoal, error) {
	var goal models.UserGoal
	err := s.DB.Where("id = ? AND external_user_id = ?", goalID, externalUserID).First(&goal).Error
	if err != nil {
		return nil, err
	}
	now := s.Now()
	err = s.DB.Model(&models.UserGoal{}).Where("id = ?", goal.ID).
		Updates(map[string]interface{}{
			"is_manually_approved": true,
			"approved_at":          now,
			"is_completed":         gorm.Expr("current_value >= target_value"),
		}).Error
	if err != nil {
		return nil, err
	}
	if err := s.DB.Where("id = ?", goal.ID).First(&goal).Error; err != nil {
		return nil, err
	}
	return &goal, nil
}

// RemoveUserGoal soft-deletes via the is_active flag, history stays
func (s *GoalService) RemoveUserGoal(externalUserID, goalID string) error {
	res := s.DB.Model(&models.UserGoal{}).
		Where("id = ? AND external_user_id = ? AND is_active = ?", goalID, externalUserID, true).
		Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("goal not found: %s", goalID)
	}
	return nil
}

// ListUserGoals returns active custom goals for a date (today if empty)
func (s *GoalService) ListUserGoals(externalUserID, date string) ([]models.UserGoal, error) {
	if date == "" {
		date = s.Today()
	}
	var goals []models.UserGoal
	err := s.DB.Where("external_user_id = ? AND goal_date = ? AND is_active = ?", externalUserID, date, true).
		Order("created_at ASC").
		Find(&goals).Error
	return goals, err
}

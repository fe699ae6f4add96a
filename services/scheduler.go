// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/orucunreiso/sarai/models"

	"github.com/go-co-op/gocron/v2"
)

// StartRewardScheduler runs the periodic box issuance: daily boxes
// shortly after midnight for users active today, weekly boxes on
// Monday mornings for users active in the trailing week. Issuance is
// idempotent (dedup keys), so overlapping with on-activity minting is
// harmless.
func (s *RewardBoxService) StartRewardScheduler() {
	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Printf("[Scheduler] init failed: %v", err)
		return
	}
	sched.Start()

	// Daily boxes at 00:05
	_, _ = sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(0, 5, 0))),
		gocron.NewTask(func() {
			today := s.Now().Format(models.DateLayout)
			n, err := s.issueBoxesForActiveUsers(today, s.EnsureDailyBox)
			if err != nil {
				log.Printf("[Scheduler] daily box issuance error: %v", err)
				return
			}
			log.Printf("🎁 Daily boxes issued: %d", n)
		}),
	)

	// Weekly boxes Monday 00:10
	_, _ = sched.NewJob(
		gocron.WeeklyJob(1, gocron.NewWeekdays(time.Monday),
			gocron.NewAtTimes(gocron.NewAtTime(0, 10, 0))),
		gocron.NewTask(func() {
			weekAgo := s.Now().AddDate(0, 0, -6).Format(models.DateLayout)
			n, err := s.issueBoxesForActiveUsers(weekAgo, s.EnsureWeeklyBox)
			if err != nil {
				log.Printf("[Scheduler] weekly box issuance error: %v", err)
				return
			}
			log.Printf("🎁 Weekly boxes issued: %d", n)
		}),
	)

	log.Println("⏰ Reward scheduler started (daily 00:05, weekly Mon 00:10)")
}

// issueBoxesForActiveUsers mints for users whose last activity is on or
// after sinceDate. Date strings compare lexicographically.
func (s *RewardBoxService) issueBoxesForActiveUsers(sinceDate string, mint func(string) (*models.RewardBox, error)) (int, error) {
	var users []models.UserProgress
	if err := s.DB.Select("external_user_id").
		Where("last_activity_date >= ?", sinceDate).
		Find(&users).Error; err != nil {
		return 0, err
	}
	minted := 0
	for _, u := range users {
		box, err := mint(u.ExternalUserID)
		if err != nil {
			log.Printf("[Scheduler] mint failed for %s: %v", u.ExternalUserID, err)
			continue
		}
		if box != nil {
			minted++
		}
	}
	return minted, nil
}

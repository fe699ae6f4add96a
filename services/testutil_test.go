package services

import (
	"testing"
	"time"

	"github.com/orucunreiso/sarai/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testDB opens an isolated in-memory database per test. Max one open
// connection: every :memory: connection is its own database otherwise.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.StudyUser{},
		&models.UserProgress{},
		&models.XPLog{},
		&models.Achievement{},
		&models.UserAchievement{},
		&models.RewardBox{},
		&models.UserEffect{},
		&models.UserCredit{},
		&models.DailyGoal{},
		&models.UserGoal{},
	))
	return db
}

// fixedClock returns a Now func pinned to the given date string
func fixedClock(t *testing.T, date string) func() time.Time {
	t.Helper()
	parsed, err := time.Parse(models.DateLayout, date)
	require.NoError(t, err)
	at := parsed.Add(12 * time.Hour) // midday, away from boundary
	return func() time.Time { return at }
}

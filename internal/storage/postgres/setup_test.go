package postgres

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pubplan/pubplan/internal/models"
)

func SetupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // Disable logs during tests
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.BulkJob{},
		&models.UnitJob{},
		&models.JobEvent{},
		&models.SchedulePlan{},
		&models.PlanAssignment{},
		&models.AdaptiveWeight{},
		&models.OutcomeMetric{},
	)
	require.NoError(t, err)

	return db
}

package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/judging-integrity-api/internal/models"
)

// Migrate creates or updates the judging schema, including the partial unique
// index that allows one active lock per hackathon.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Hackathon{},
		&models.HackathonJudge{},
		&models.Project{},
		&models.EvaluationSession{},
		&models.EvaluationLock{},
		&models.Score{},
		&models.ContentRecord{},
		&models.Notification{},
		&models.ActivityLog{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

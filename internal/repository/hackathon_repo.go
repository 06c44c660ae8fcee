package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/judging-integrity-api/internal/models"
)

// HackathonRepository reads hackathons, their projects and judge rosters.
type HackathonRepository interface {
	GetHackathon(ctx context.Context, id uint) (models.Hackathon, error)
	GetProject(ctx context.Context, id uint) (models.Project, error)
	GetUser(ctx context.Context, id uint) (models.User, error)
	IsJudge(ctx context.Context, hackathonID, userID uint) (bool, error)
}

type hackathonRepository struct {
	db *gorm.DB
}

// NewHackathonRepository constructs a GORM-backed hackathon repository.
func NewHackathonRepository(db *gorm.DB) HackathonRepository {
	return &hackathonRepository{db: db}
}

func (r *hackathonRepository) GetHackathon(ctx context.Context, id uint) (models.Hackathon, error) {
	var hackathon models.Hackathon
	if err := r.db.WithContext(ctx).First(&hackathon, id).Error; err != nil {
		return models.Hackathon{}, err
	}
	return hackathon, nil
}

func (r *hackathonRepository) GetProject(ctx context.Context, id uint) (models.Project, error) {
	var project models.Project
	if err := r.db.WithContext(ctx).First(&project, id).Error; err != nil {
		return models.Project{}, err
	}
	return project, nil
}

func (r *hackathonRepository) GetUser(ctx context.Context, id uint) (models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (r *hackathonRepository) IsJudge(ctx context.Context, hackathonID, userID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.HackathonJudge{}).
		Where("hackathon_id = ? AND judge_id = ?", hackathonID, userID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

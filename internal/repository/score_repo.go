package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/judging-integrity-api/internal/models"
)

// ErrScoreAlreadyFinalized indicates a concurrent finalization won the race.
var ErrScoreAlreadyFinalized = errors.New("score already finalized")

// ScoreRepository persists judge scores and their content records.
type ScoreRepository interface {
	GetByID(ctx context.Context, id uint) (models.Score, error)
	FindByJudgeAndProject(ctx context.Context, judgeID, projectID uint) (models.Score, error)
	ListFinalizedByProject(ctx context.Context, projectID uint, judgeID *uint) ([]models.Score, error)
	Transaction(ctx context.Context, fn func(scores ScoreRepository, evaluations EvaluationRepository) error) error
	Create(ctx context.Context, score *models.Score) error
	UpdateDraft(ctx context.Context, score *models.Score) error
	Finalize(ctx context.Context, score *models.Score, record *models.ContentRecord) error
}

type scoreRepository struct {
	db *gorm.DB
}

// NewScoreRepository constructs a GORM-backed score repository.
func NewScoreRepository(db *gorm.DB) ScoreRepository {
	return &scoreRepository{db: db}
}

func (r *scoreRepository) GetByID(ctx context.Context, id uint) (models.Score, error) {
	var score models.Score
	if err := r.db.WithContext(ctx).
		Preload("Judge").
		Preload("Project").
		Preload("ContentRecords", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("created_at DESC, id DESC")
		}).
		First(&score, id).Error; err != nil {
		return models.Score{}, err
	}
	return score, nil
}

func (r *scoreRepository) FindByJudgeAndProject(ctx context.Context, judgeID, projectID uint) (models.Score, error) {
	var score models.Score
	if err := r.db.WithContext(ctx).
		Where("judge_id = ? AND project_id = ?", judgeID, projectID).
		First(&score).Error; err != nil {
		return models.Score{}, err
	}
	return score, nil
}

// ListFinalizedByProject returns finalized scores of a project together with the
// judge (for the on-file wallet) and the content records, newest first.
func (r *scoreRepository) ListFinalizedByProject(ctx context.Context, projectID uint, judgeID *uint) ([]models.Score, error) {
	query := r.db.WithContext(ctx).
		Preload("Judge").
		Preload("ContentRecords", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("created_at DESC, id DESC")
		}).
		Where("project_id = ? AND is_finalized = ?", projectID, true)

	if judgeID != nil {
		query = query.Where("judge_id = ?", *judgeID)
	}

	var scores []models.Score
	if err := query.Order("id ASC").Find(&scores).Error; err != nil {
		return nil, err
	}
	return scores, nil
}

// Transaction runs fn with score and evaluation repositories bound to one
// database transaction.
func (r *scoreRepository) Transaction(ctx context.Context, fn func(scores ScoreRepository, evaluations EvaluationRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&scoreRepository{db: tx}, &evaluationRepository{db: tx})
	})
}

func (r *scoreRepository) Create(ctx context.Context, score *models.Score) error {
	return r.db.WithContext(ctx).Omit("Judge", "Project", "ContentRecords").Create(score).Error
}

// UpdateDraft writes the criteria, feedback and total of a score that is still
// open. Finalization columns are never touched, so a score finalized after it
// was read stays finalized and ErrScoreAlreadyFinalized is returned.
func (r *scoreRepository) UpdateDraft(ctx context.Context, score *models.Score) error {
	result := r.db.WithContext(ctx).
		Model(&models.Score{}).
		Where("id = ? AND is_finalized = ?", score.ID, false).
		Updates(map[string]interface{}{
			"innovation":   score.Innovation,
			"technical":    score.Technical,
			"design":       score.Design,
			"impact":       score.Impact,
			"presentation": score.Presentation,
			"feedback":     score.Feedback,
			"total_score":  score.TotalScore,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrScoreAlreadyFinalized
	}
	return nil
}

// Finalize flips the score to finalized and appends its content record in one
// transaction. The update is conditional on the score still being open.
func (r *scoreRepository) Finalize(ctx context.Context, score *models.Score, record *models.ContentRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Score{}).
			Where("id = ? AND is_finalized = ?", score.ID, false).
			Updates(map[string]interface{}{
				"is_finalized":        true,
				"finalized_at":        score.FinalizedAt,
				"content_hash":        score.ContentHash,
				"wallet_signature":    score.WalletSignature,
				"signature_timestamp": score.SignatureTimestamp,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrScoreAlreadyFinalized
		}

		record.ScoreID = score.ID
		return tx.Create(record).Error
	})
}

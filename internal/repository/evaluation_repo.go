package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/judging-integrity-api/internal/models"
)

// EvaluationRepository persists evaluation sessions, locks and the rows a lock
// cascades into. Every method runs inside the transaction of the repository it
// is called on, so a repository handed out by Transaction writes atomically.
type EvaluationRepository interface {
	Transaction(ctx context.Context, fn func(repo EvaluationRepository) error) error
	GetHackathon(ctx context.Context, id uint) (models.Hackathon, error)
	LockHackathon(ctx context.Context, id uint) (models.Hackathon, error)
	ListJudgeIDs(ctx context.Context, hackathonID uint) ([]uint, error)
	ListProjectIDs(ctx context.Context, hackathonID uint) ([]uint, error)
	ListSessions(ctx context.Context, hackathonID uint) ([]models.EvaluationSession, error)
	SaveSessionLockState(ctx context.Context, session *models.EvaluationSession) error
	CountActiveLocks(ctx context.Context, hackathonID uint) (int64, error)
	FindActiveLock(ctx context.Context, hackathonID uint) (models.EvaluationLock, error)
	ListLocks(ctx context.Context, hackathonID uint) ([]models.EvaluationLock, error)
	CreateLock(ctx context.Context, lock *models.EvaluationLock) error
	SaveLock(ctx context.Context, lock *models.EvaluationLock) error
	FinalizePendingScores(ctx context.Context, hackathonID uint, judgeIDs, projectIDs []uint, finalizedAt time.Time) (int64, error)
	EnqueueNotifications(ctx context.Context, notifications []models.Notification) error
}

type evaluationRepository struct {
	db *gorm.DB
}

// NewEvaluationRepository constructs a GORM-backed evaluation repository.
func NewEvaluationRepository(db *gorm.DB) EvaluationRepository {
	return &evaluationRepository{db: db}
}

func (r *evaluationRepository) Transaction(ctx context.Context, fn func(repo EvaluationRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&evaluationRepository{db: tx})
	})
}

func (r *evaluationRepository) GetHackathon(ctx context.Context, id uint) (models.Hackathon, error) {
	var hackathon models.Hackathon
	if err := r.db.WithContext(ctx).First(&hackathon, id).Error; err != nil {
		return models.Hackathon{}, err
	}
	return hackathon, nil
}

// LockHackathon reads the hackathon row with FOR UPDATE so concurrent lock and
// unlock commands on the same hackathon serialize. Dialects without row locks
// ignore the clause and rely on the partial unique index instead.
func (r *evaluationRepository) LockHackathon(ctx context.Context, id uint) (models.Hackathon, error) {
	var hackathon models.Hackathon
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&hackathon, id).Error; err != nil {
		return models.Hackathon{}, err
	}
	return hackathon, nil
}

func (r *evaluationRepository) ListJudgeIDs(ctx context.Context, hackathonID uint) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).
		Model(&models.HackathonJudge{}).
		Where("hackathon_id = ?", hackathonID).
		Order("judge_id ASC").
		Pluck("judge_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *evaluationRepository) ListProjectIDs(ctx context.Context, hackathonID uint) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).
		Model(&models.Project{}).
		Where("hackathon_id = ?", hackathonID).
		Order("id ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *evaluationRepository) ListSessions(ctx context.Context, hackathonID uint) ([]models.EvaluationSession, error) {
	var sessions []models.EvaluationSession
	if err := r.db.WithContext(ctx).
		Where("hackathon_id = ?", hackathonID).
		Order("start_time ASC, id ASC").
		Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *evaluationRepository) SaveSessionLockState(ctx context.Context, session *models.EvaluationSession) error {
	return r.db.WithContext(ctx).
		Model(session).
		Select("is_locked", "lock_timestamp", "grace_period_minutes", "end_time").
		Updates(session).Error
}

func (r *evaluationRepository) CountActiveLocks(ctx context.Context, hackathonID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.EvaluationLock{}).
		Where("hackathon_id = ? AND is_active = ?", hackathonID, true).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *evaluationRepository) FindActiveLock(ctx context.Context, hackathonID uint) (models.EvaluationLock, error) {
	var lock models.EvaluationLock
	if err := r.db.WithContext(ctx).
		Where("hackathon_id = ? AND is_active = ?", hackathonID, true).
		Order("locked_at DESC").
		First(&lock).Error; err != nil {
		return models.EvaluationLock{}, err
	}
	return lock, nil
}

func (r *evaluationRepository) ListLocks(ctx context.Context, hackathonID uint) ([]models.EvaluationLock, error) {
	var locks []models.EvaluationLock
	if err := r.db.WithContext(ctx).
		Where("hackathon_id = ?", hackathonID).
		Order("locked_at DESC, id DESC").
		Find(&locks).Error; err != nil {
		return nil, err
	}
	return locks, nil
}

func (r *evaluationRepository) CreateLock(ctx context.Context, lock *models.EvaluationLock) error {
	return r.db.WithContext(ctx).Create(lock).Error
}

func (r *evaluationRepository) SaveLock(ctx context.Context, lock *models.EvaluationLock) error {
	return r.db.WithContext(ctx).Save(lock).Error
}

// FinalizePendingScores confirms computed-but-unconfirmed scores of the given
// judges on the given projects of one hackathon. Scores without a total and
// projects of other hackathons are left untouched.
func (r *evaluationRepository) FinalizePendingScores(ctx context.Context, hackathonID uint, judgeIDs, projectIDs []uint, finalizedAt time.Time) (int64, error) {
	if len(judgeIDs) == 0 || len(projectIDs) == 0 {
		return 0, nil
	}

	result := r.db.WithContext(ctx).
		Model(&models.Score{}).
		Where("judge_id IN ? AND project_id IN ?", judgeIDs, projectIDs).
		Where("project_id IN (?)", r.db.Model(&models.Project{}).Select("id").Where("hackathon_id = ?", hackathonID)).
		Where("is_finalized = ?", false).
		Where("total_score IS NOT NULL").
		Updates(map[string]interface{}{
			"is_finalized": true,
			"finalized_at": finalizedAt,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *evaluationRepository) EnqueueNotifications(ctx context.Context, notifications []models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(&notifications, 100).Error
}

package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/judging-integrity-api/internal/models"
)

var epoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
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
	))
	return db
}

func total(v float64) *float64 { return &v }

func createScore(t *testing.T, db *gorm.DB, judgeID, projectID uint, totalScore *float64, finalized bool) models.Score {
	t.Helper()
	score := models.Score{JudgeID: judgeID, ProjectID: projectID, TotalScore: totalScore, IsFinalized: finalized}
	require.NoError(t, db.Create(&score).Error)
	return score
}

func TestScoreRepositoryListFinalizedByProject(t *testing.T) {
	db := setupDB(t)
	repo := NewScoreRepository(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.User{ID: 1, Name: "Ada", Email: "ada@example.com", Role: models.RoleJudge, WalletAddress: "0xA"}).Error)
	require.NoError(t, db.Create(&models.User{ID: 2, Name: "Lin", Email: "lin@example.com", Role: models.RoleJudge}).Error)

	first := createScore(t, db, 1, 10, total(30), true)
	createScore(t, db, 2, 10, total(25), true)
	createScore(t, db, 1, 11, total(20), true)
	createScore(t, db, 3, 10, total(10), false)

	require.NoError(t, db.Create(&models.ContentRecord{ScoreID: first.ID, ContentHash: "older", VerificationStatus: models.ContentStatusPending, CreatedAt: epoch}).Error)
	require.NoError(t, db.Create(&models.ContentRecord{ScoreID: first.ID, ContentHash: "newer", VerificationStatus: models.ContentStatusPending, CreatedAt: epoch.Add(time.Minute)}).Error)

	scores, err := repo.ListFinalizedByProject(ctx, 10, nil)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	require.Equal(t, "0xA", scores[0].Judge.WalletAddress)
	require.Equal(t, "newer", scores[0].ContentRecords[0].ContentHash)

	judge := uint(2)
	scores, err = repo.ListFinalizedByProject(ctx, 10, &judge)
	require.NoError(t, err)
	require.Len(t, scores, 1)
	require.Equal(t, uint(2), scores[0].JudgeID)
}

func TestScoreRepositoryFinalizeIsConditional(t *testing.T) {
	db := setupDB(t)
	repo := NewScoreRepository(db)
	ctx := context.Background()

	score := createScore(t, db, 1, 10, total(30), false)
	hash := "bafkreiexample"
	score.FinalizedAt = &epoch
	score.ContentHash = &hash

	require.NoError(t, repo.Finalize(ctx, &score, &models.ContentRecord{ContentHash: hash, VerificationStatus: models.ContentStatusPending}))

	stored, err := repo.GetByID(ctx, score.ID)
	require.NoError(t, err)
	require.True(t, stored.IsFinalized)
	require.Equal(t, hash, *stored.ContentHash)
	require.Len(t, stored.ContentRecords, 1)

	err = repo.Finalize(ctx, &score, &models.ContentRecord{ContentHash: hash})
	require.ErrorIs(t, err, ErrScoreAlreadyFinalized)

	var records int64
	require.NoError(t, db.Model(&models.ContentRecord{}).Count(&records).Error)
	require.Equal(t, int64(1), records, "a lost race appends no record")
}

func TestFinalizePendingScoresScope(t *testing.T) {
	db := setupDB(t)
	repo := NewEvaluationRepository(db)

	for _, project := range []models.Project{
		{ID: 10, HackathonID: 1, OwnerID: 9, Title: "Relay"},
		{ID: 11, HackathonID: 1, OwnerID: 9, Title: "Beacon"},
		{ID: 12, HackathonID: 2, OwnerID: 9, Title: "Elsewhere"},
	} {
		require.NoError(t, db.Create(&project).Error)
	}

	inScope := createScore(t, db, 1, 10, total(30), false)
	incomplete := createScore(t, db, 1, 11, nil, false)
	otherJudge := createScore(t, db, 2, 10, total(12), false)
	otherHackathon := createScore(t, db, 1, 12, total(18), false)

	finalized, err := repo.FinalizePendingScores(context.Background(), 1, []uint{1}, []uint{10, 11, 12}, epoch)
	require.NoError(t, err)
	require.Equal(t, int64(1), finalized)

	for id, want := range map[uint]bool{inScope.ID: true, incomplete.ID: false, otherJudge.ID: false, otherHackathon.ID: false} {
		var score models.Score
		require.NoError(t, db.First(&score, id).Error)
		require.Equal(t, want, score.IsFinalized, "score %d", id)
	}

	none, err := repo.FinalizePendingScores(context.Background(), 1, nil, []uint{10}, epoch)
	require.NoError(t, err)
	require.Zero(t, none)
}

func TestUpdateDraftKeepsFinalizedScores(t *testing.T) {
	db := setupDB(t)
	repo := NewScoreRepository(db)
	ctx := context.Background()

	score := createScore(t, db, 1, 10, total(30), false)
	stale := score

	require.NoError(t, db.Model(&models.Score{}).Where("id = ?", score.ID).Updates(map[string]interface{}{
		"is_finalized": true,
		"finalized_at": epoch,
	}).Error)

	stale.TotalScore = total(45)
	err := repo.UpdateDraft(ctx, &stale)
	require.ErrorIs(t, err, ErrScoreAlreadyFinalized)

	stored, err := repo.GetByID(ctx, score.ID)
	require.NoError(t, err)
	require.True(t, stored.IsFinalized)
	require.NotNil(t, stored.FinalizedAt)
	require.InDelta(t, 30.0, *stored.TotalScore, 1e-9)

	open := createScore(t, db, 2, 10, total(10), false)
	open.TotalScore = total(20)
	open.Feedback = "revised"
	require.NoError(t, repo.UpdateDraft(ctx, &open))
	stored, err = repo.GetByID(ctx, open.ID)
	require.NoError(t, err)
	require.InDelta(t, 20.0, *stored.TotalScore, 1e-9)
	require.Equal(t, "revised", stored.Feedback)
}

func TestNotificationRepositoryLifecycle(t *testing.T) {
	db := setupDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	rows := []models.Notification{
		{UserID: 4, Title: "Evaluation period locked", Priority: models.NotificationPriorityHigh, Category: "evaluation_lock", Status: models.NotificationStatusPending, Payload: datatypes.JSONMap{"lock_id": 1}},
		{UserID: 4, Title: "Evaluation period unlocked", Priority: models.NotificationPriorityNormal, Category: "evaluation_unlock", Status: models.NotificationStatusPending},
	}
	require.NoError(t, NewEvaluationRepository(db).EnqueueNotifications(ctx, rows))

	pending, err := repo.ClaimPending(ctx, 10, epoch, time.Minute)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	require.NoError(t, repo.MarkDispatched(ctx, pending[0].ID, epoch))
	require.NoError(t, repo.RecordFailure(ctx, pending[1].ID, "nats: timeout", nil, 1))

	pending, err = repo.ClaimPending(ctx, 10, epoch.Add(time.Hour), time.Minute)
	require.NoError(t, err)
	require.Empty(t, pending)

	inbox, err := repo.ListByUser(ctx, 4, 10, 0)
	require.NoError(t, err)
	require.Len(t, inbox, 2)

	read, err := repo.MarkRead(ctx, inbox[0].ID, 4)
	require.NoError(t, err)
	require.True(t, read.Read)

	_, err = repo.MarkRead(ctx, inbox[0].ID, 5)
	require.Error(t, err)
}

func TestClaimPendingHoldsLeaseUntilReleased(t *testing.T) {
	db := setupDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	rows := []models.Notification{
		{UserID: 4, Title: "Evaluation period locked", Priority: models.NotificationPriorityHigh, Category: "evaluation_lock", Status: models.NotificationStatusPending},
		{UserID: 5, Title: "Evaluation period locked", Priority: models.NotificationPriorityHigh, Category: "evaluation_lock", Status: models.NotificationStatusPending},
	}
	require.NoError(t, NewEvaluationRepository(db).EnqueueNotifications(ctx, rows))

	claimed, err := repo.ClaimPending(ctx, 10, epoch, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 2)

	again, err := repo.ClaimPending(ctx, 10, epoch.Add(30*time.Second), time.Minute)
	require.NoError(t, err)
	require.Empty(t, again, "a live lease hides the rows from other dispatchers")

	require.NoError(t, repo.RecordFailure(ctx, claimed[0].ID, "nats: timeout", []string{"log"}, 5))

	again, err = repo.ClaimPending(ctx, 10, epoch.Add(30*time.Second), time.Minute)
	require.NoError(t, err)
	require.Len(t, again, 1, "a failed row is released for retry")
	require.Equal(t, claimed[0].ID, again[0].ID)
	require.Equal(t, []string{"log"}, []string(again[0].DeliveredSinks))
	require.Equal(t, 1, again[0].Attempts)

	expired, err := repo.ClaimPending(ctx, 10, epoch.Add(70*time.Second), time.Minute)
	require.NoError(t, err)
	require.Len(t, expired, 1, "an expired lease is claimable again")
	require.Equal(t, claimed[1].ID, expired[0].ID)
}

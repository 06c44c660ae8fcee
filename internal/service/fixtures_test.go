package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/judging-integrity-api/internal/models"
)

var fixtureEpoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// newTestDB opens an isolated in-memory database with a single connection so
// concurrent transactions serialize the way row locks do on postgres.
func newTestDB(t *testing.T) *gorm.DB {
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

type judgingFixture struct {
	admin     models.User
	organizer models.User
	outsider  models.User
	judges    []models.User
	hackathon models.Hackathon
	projects  []models.Project
	sessions  []models.EvaluationSession
}

func (f judgingFixture) adminActor() Actor {
	return Actor{ID: f.admin.ID, Role: models.RoleAdmin}
}

func (f judgingFixture) judgeActor(i int) Actor {
	return Actor{ID: f.judges[i].ID, Role: models.RoleJudge}
}

func seedJudging(t *testing.T, db *gorm.DB, judgeCount, projectCount, sessionCount int) judgingFixture {
	t.Helper()

	newUser := func(name, role string) models.User {
		user := models.User{
			Name:          name,
			Email:         fmt.Sprintf("%s-%s@example.com", name, uuid.NewString()[:8]),
			Role:          role,
			WalletAddress: fmt.Sprintf("0xWALLET%s", name),
		}
		require.NoError(t, db.Create(&user).Error)
		return user
	}

	fixture := judgingFixture{
		admin:     newUser("admin", models.RoleAdmin),
		organizer: newUser("organizer", models.RoleOrganizer),
		outsider:  newUser("outsider", models.RoleParticipant),
	}

	fixture.hackathon = models.Hackathon{
		Name:        "Spring Build",
		OrganizerID: fixture.organizer.ID,
		StartsAt:    fixtureEpoch.Add(-48 * time.Hour),
		EndsAt:      fixtureEpoch.Add(48 * time.Hour),
	}
	require.NoError(t, db.Create(&fixture.hackathon).Error)

	for i := 0; i < judgeCount; i++ {
		judge := newUser(fmt.Sprintf("judge%d", i+1), models.RoleJudge)
		require.NoError(t, db.Create(&models.HackathonJudge{HackathonID: fixture.hackathon.ID, JudgeID: judge.ID}).Error)
		fixture.judges = append(fixture.judges, judge)
	}

	for i := 0; i < projectCount; i++ {
		project := models.Project{
			HackathonID: fixture.hackathon.ID,
			OwnerID:     fixture.outsider.ID,
			Title:       fmt.Sprintf("Project %d", i+1),
		}
		require.NoError(t, db.Create(&project).Error)
		fixture.projects = append(fixture.projects, project)
	}

	for i := 0; i < sessionCount; i++ {
		session := models.EvaluationSession{
			HackathonID: fixture.hackathon.ID,
			StartTime:   fixtureEpoch.Add(time.Duration(i) * 24 * time.Hour),
			EndTime:     fixtureEpoch.Add(time.Duration(i)*24*time.Hour + 8*time.Hour),
		}
		require.NoError(t, db.Create(&session).Error)
		fixture.sessions = append(fixture.sessions, session)
	}

	return fixture
}

func seedScore(t *testing.T, db *gorm.DB, judgeID, projectID uint, total *float64, finalized bool) models.Score {
	t.Helper()

	score := models.Score{JudgeID: judgeID, ProjectID: projectID}
	if total != nil {
		per := *total / 5
		score.Innovation, score.Technical, score.Design, score.Impact, score.Presentation = &per, &per, &per, &per, &per
		value := *total
		score.TotalScore = &value
	}
	if finalized {
		at := fixtureEpoch
		score.IsFinalized = true
		score.FinalizedAt = &at
	}
	require.NoError(t, db.Omit("Judge", "Project", "ContentRecords").Create(&score).Error)
	return score
}

func floatPtr(v float64) *float64 {
	return &v
}

func ptrUint(v uint) *uint {
	return &v
}

func boolPtr(v bool) *bool {
	return &v
}

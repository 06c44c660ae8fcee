package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/judging-integrity-api/internal/dto"
	"github.com/noah-isme/judging-integrity-api/internal/handler"
	"github.com/noah-isme/judging-integrity-api/internal/models"
	"github.com/noah-isme/judging-integrity-api/internal/service"
)

type fakeLockService struct {
	lockErr      error
	unlockErr    error
	lastActor    service.Actor
	lastLock     dto.LockPeriodRequest
	lastUnlock   dto.UnlockPeriodRequest
	provenance   dto.RequestProvenance
	hackathonID  uint
	statusCalled bool
}

func (f *fakeLockService) LockPeriod(_ context.Context, hackathonID uint, req dto.LockPeriodRequest, actor service.Actor, provenance dto.RequestProvenance) (dto.LockPeriodResponse, error) {
	f.hackathonID = hackathonID
	f.lastLock = req
	f.lastActor = actor
	f.provenance = provenance
	if f.lockErr != nil {
		return dto.LockPeriodResponse{}, f.lockErr
	}
	return dto.LockPeriodResponse{
		Lock:           dto.EvaluationLockResponse{ID: 11, HackathonID: hackathonID, LockType: req.LockType, IsActive: true},
		SessionsLocked: 2,
	}, nil
}

func (f *fakeLockService) UnlockPeriod(_ context.Context, hackathonID uint, req dto.UnlockPeriodRequest, actor service.Actor, provenance dto.RequestProvenance) (dto.UnlockPeriodResponse, error) {
	f.hackathonID = hackathonID
	f.lastUnlock = req
	f.lastActor = actor
	if f.unlockErr != nil {
		return dto.UnlockPeriodResponse{}, f.unlockErr
	}
	return dto.UnlockPeriodResponse{Lock: dto.EvaluationLockResponse{ID: 11, IsActive: false}}, nil
}

func (f *fakeLockService) Status(_ context.Context, hackathonID uint) (dto.LockStatusResponse, error) {
	f.statusCalled = true
	return dto.LockStatusResponse{HackathonID: hackathonID}, nil
}

func (f *fakeLockService) History(_ context.Context, hackathonID uint, actor service.Actor) ([]dto.EvaluationLockResponse, error) {
	if !actor.HasRole(models.RoleAdmin) {
		return nil, service.ErrInsufficientPermissions
	}
	return []dto.EvaluationLockResponse{{ID: 2, HackathonID: hackathonID}, {ID: 1, HackathonID: hackathonID}}, nil
}

func lockApp(svc service.LockService, userID uint, role string) *fiber.App {
	app := newTestApp(userID, role)
	handler.NewLockHandler(svc, zerolog.Nop()).Register(app.Group("/api/v1/hackathons"))
	return app
}

func TestLockHandlerLocksWithProvenance(t *testing.T) {
	svc := &fakeLockService{}
	app := lockApp(svc, 1, models.RoleAdmin)

	req := jsonRequest(http.MethodPost, "/api/v1/hackathons/7/lock", `{"lock_type":"manual","reason":"judging closed","grace_period_minutes":15,"force_finalize":true}`)
	req.Header.Set("X-Correlation-ID", "corr-7")
	req.Header.Set("User-Agent", "judging-console/1.0")

	resp, body := perform(t, app, req)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.True(t, body.Success)

	var result dto.LockPeriodResponse
	require.NoError(t, json.Unmarshal(body.Data, &result))
	require.Equal(t, uint(11), result.Lock.ID)
	require.Equal(t, 2, result.SessionsLocked)

	require.Equal(t, uint(7), svc.hackathonID)
	require.Equal(t, service.Actor{ID: 1, Role: models.RoleAdmin}, svc.lastActor)
	require.True(t, svc.lastLock.ForceFinalize)
	require.Equal(t, 15, svc.lastLock.GracePeriodMinutes)
	require.Equal(t, "corr-7", svc.provenance.RequestID)
	require.Equal(t, "judging-console/1.0", svc.provenance.UserAgent)
}

func TestLockHandlerConflictCarriesExistingLock(t *testing.T) {
	lockedAt := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	svc := &fakeLockService{lockErr: &service.AlreadyLockedError{Lock: models.EvaluationLock{ID: 5, LockedAt: lockedAt, LockType: models.LockTypeEmergency}}}
	app := lockApp(svc, 1, models.RoleAdmin)

	resp, body := perform(t, app, jsonRequest(http.MethodPost, "/api/v1/hackathons/7/lock", `{"lock_type":"manual"}`))
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	require.False(t, body.Success)

	var conflict dto.LockConflictResponse
	require.NoError(t, json.Unmarshal(body.Data, &conflict))
	require.Equal(t, uint(5), conflict.LockID)
	require.Equal(t, "emergency", conflict.LockType)
	require.True(t, conflict.LockedAt.Equal(lockedAt))
}

func TestLockHandlerMapsServiceErrors(t *testing.T) {
	validationErr := validator.New().Struct(dto.LockPeriodRequest{LockType: "sometimes"})
	require.Error(t, validationErr)

	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", validationErr, fiber.StatusBadRequest},
		{"foreign affected ids", fmt.Errorf("%w: projects 12", service.ErrAffectedOutsideHackathon), fiber.StatusBadRequest},
		{"forbidden", service.ErrInsufficientPermissions, fiber.StatusForbidden},
		{"missing hackathon", service.ErrHackathonNotFound, fiber.StatusNotFound},
		{"unexpected", context.DeadlineExceeded, fiber.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := lockApp(&fakeLockService{lockErr: tc.err}, 3, models.RoleOrganizer)
			resp, body := perform(t, app, jsonRequest(http.MethodPost, "/api/v1/hackathons/7/lock", `{"lock_type":"manual"}`))
			require.Equal(t, tc.status, resp.StatusCode)
			require.False(t, body.Success)
		})
	}
}

func TestLockHandlerRejectsMalformedInput(t *testing.T) {
	svc := &fakeLockService{}
	app := lockApp(svc, 1, models.RoleAdmin)

	resp, _ := perform(t, app, jsonRequest(http.MethodPost, "/api/v1/hackathons/abc/lock", `{"lock_type":"manual"}`))
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = perform(t, app, jsonRequest(http.MethodPost, "/api/v1/hackathons/7/lock", `{"lock_type":`))
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Zero(t, svc.hackathonID, "the service is not reached")
}

func TestLockHandlerUnlock(t *testing.T) {
	svc := &fakeLockService{}
	app := lockApp(svc, 1, models.RoleAdmin)

	resp, body := perform(t, app, jsonRequest(http.MethodPost, "/api/v1/hackathons/7/unlock", `{"reason":"appeal upheld","extend_minutes":30,"notify_judges":false}`))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.True(t, body.Success)
	require.Equal(t, 30, svc.lastUnlock.ExtendMinutes)
	require.False(t, svc.lastUnlock.ShouldNotifyJudges())

	svc.unlockErr = service.ErrNotLocked
	resp, _ = perform(t, app, jsonRequest(http.MethodPost, "/api/v1/hackathons/7/unlock", `{"reason":"again"}`))
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)

	svc.unlockErr = service.ErrUnlockReasonRequired
	resp, _ = perform(t, app, jsonRequest(http.MethodPost, "/api/v1/hackathons/7/unlock", `{"reason":""}`))
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestLockHandlerStatusAndHistory(t *testing.T) {
	svc := &fakeLockService{}

	resp, _ := perform(t, lockApp(svc, 0, ""), jsonRequest(http.MethodGet, "/api/v1/hackathons/7/lock", ""))
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	require.False(t, svc.statusCalled)

	resp, body := perform(t, lockApp(svc, 4, models.RoleJudge), jsonRequest(http.MethodGet, "/api/v1/hackathons/7/lock", ""))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var status dto.LockStatusResponse
	require.NoError(t, json.Unmarshal(body.Data, &status))
	require.Equal(t, uint(7), status.HackathonID)

	resp, _ = perform(t, lockApp(svc, 4, models.RoleJudge), jsonRequest(http.MethodGet, "/api/v1/hackathons/7/locks", ""))
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, body = perform(t, lockApp(svc, 1, models.RoleAdmin), jsonRequest(http.MethodGet, "/api/v1/hackathons/7/locks", ""))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var history []dto.EvaluationLockResponse
	require.NoError(t, json.Unmarshal(body.Data, &history))
	require.Len(t, history, 2)
	require.Equal(t, uint(2), history[0].ID)
}

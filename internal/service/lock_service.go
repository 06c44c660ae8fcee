package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/judging-integrity-api/internal/dto"
	"github.com/noah-isme/judging-integrity-api/internal/models"
	"github.com/noah-isme/judging-integrity-api/internal/observability"
	"github.com/noah-isme/judging-integrity-api/internal/repository"
)

var (
	// ErrHackathonNotFound indicates the hackathon does not exist.
	ErrHackathonNotFound = errors.New("hackathon not found")
	// ErrAlreadyLocked indicates an active lock already freezes the hackathon.
	ErrAlreadyLocked = errors.New("evaluation period already locked")
	// ErrNotLocked indicates there is no active lock to lift.
	ErrNotLocked = errors.New("evaluation period is not locked")
	// ErrUnlockReasonRequired indicates an unlock was requested without a reason.
	ErrUnlockReasonRequired = errors.New("unlock reason is required")
	// ErrAffectedOutsideHackathon indicates a lock named judges or projects that do not belong to the hackathon.
	ErrAffectedOutsideHackathon = errors.New("affected judges and projects must belong to the hackathon")

	errLockRace = errors.New("active lock created concurrently")
)

// Notification categories written by the lock manager.
const (
	NotificationCategoryLock   = "evaluation_lock"
	NotificationCategoryUnlock = "evaluation_unlock"
)

// AlreadyLockedError carries the lock that blocked a lock request.
type AlreadyLockedError struct {
	Lock models.EvaluationLock
}

func (e *AlreadyLockedError) Error() string {
	return fmt.Sprintf("evaluation period already locked by lock %d", e.Lock.ID)
}

// Is lets callers match the error against ErrAlreadyLocked.
func (e *AlreadyLockedError) Is(target error) bool {
	return target == ErrAlreadyLocked
}

// NotificationKicker wakes the outbox dispatcher once new rows are committed.
type NotificationKicker interface {
	Kick()
}

// LockService freezes and reopens hackathon evaluation periods.
type LockService interface {
	LockPeriod(ctx context.Context, hackathonID uint, req dto.LockPeriodRequest, actor Actor, provenance dto.RequestProvenance) (dto.LockPeriodResponse, error)
	UnlockPeriod(ctx context.Context, hackathonID uint, req dto.UnlockPeriodRequest, actor Actor, provenance dto.RequestProvenance) (dto.UnlockPeriodResponse, error)
	Status(ctx context.Context, hackathonID uint) (dto.LockStatusResponse, error)
	History(ctx context.Context, hackathonID uint, actor Actor) ([]dto.EvaluationLockResponse, error)
}

type lockService struct {
	repo      repository.EvaluationRepository
	validator *validator.Validate
	activity  ActivityRecorder
	kicker    NotificationKicker
	sanitizer *bluemonday.Policy
	tracer    trace.Tracer
	logger    zerolog.Logger
	now       func() time.Time
}

// NewLockService constructs the lock state manager. activity and kicker may be nil.
func NewLockService(repo repository.EvaluationRepository, validator *validator.Validate, activity ActivityRecorder, kicker NotificationKicker, logger zerolog.Logger) LockService {
	return &lockService{
		repo:      repo,
		validator: validator,
		activity:  activity,
		kicker:    kicker,
		sanitizer: bluemonday.StrictPolicy(),
		tracer:    otel.Tracer("github.com/noah-isme/judging-integrity-api/internal/service/lock"),
		logger:    logger.With().Str("component", "lock_service").Logger(),
		now:       time.Now,
	}
}

func (s *lockService) LockPeriod(ctx context.Context, hackathonID uint, req dto.LockPeriodRequest, actor Actor, provenance dto.RequestProvenance) (dto.LockPeriodResponse, error) {
	ctx, span := s.tracer.Start(ctx, "evaluation.lock")
	span.SetAttributes(
		attribute.Int64("lock.hackathon_id", int64(hackathonID)),
		attribute.Int64("lock.actor_id", int64(actor.ID)),
		attribute.String("lock.type", req.LockType),
	)
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		return dto.LockPeriodResponse{}, s.fail(span, "lock", "validation_failed", err)
	}
	lockType := models.LockType(req.LockType)
	if !lockType.Valid() {
		return dto.LockPeriodResponse{}, s.fail(span, "lock", "validation_failed", fmt.Errorf("unknown lock type %q", req.LockType))
	}

	reason := s.sanitize(req.Reason)
	var (
		lock      models.EvaluationLock
		meta      models.LockMetadata
		hackathon models.Hackathon
	)

	err := s.repo.Transaction(ctx, func(tx repository.EvaluationRepository) error {
		var err error
		hackathon, err = tx.LockHackathon(ctx, hackathonID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrHackathonNotFound
			}
			return err
		}
		if !CanAdministerHackathon(actor, hackathon) {
			return ErrInsufficientPermissions
		}

		active, err := tx.FindActiveLock(ctx, hackathonID)
		switch {
		case err == nil:
			return &AlreadyLockedError{Lock: active}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		roster, err := tx.ListJudgeIDs(ctx, hackathonID)
		if err != nil {
			return err
		}
		judges, err := scopeIDs(req.AffectedJudges, roster, "judges")
		if err != nil {
			return err
		}
		entries, err := tx.ListProjectIDs(ctx, hackathonID)
		if err != nil {
			return err
		}
		projects, err := scopeIDs(req.AffectedProjects, entries, "projects")
		if err != nil {
			return err
		}

		now := s.now().UTC()
		sessions, err := tx.ListSessions(ctx, hackathonID)
		if err != nil {
			return err
		}
		for i := range sessions {
			lockedAt := now
			sessions[i].IsLocked = true
			sessions[i].LockTimestamp = &lockedAt
			sessions[i].GracePeriodMinutes = req.GracePeriodMinutes
			if err := tx.SaveSessionLockState(ctx, &sessions[i]); err != nil {
				return err
			}
		}

		meta = models.LockMetadata{
			Reason:           reason,
			ForceFinalize:    req.ForceFinalize,
			SessionsLocked:   len(sessions),
			JudgesAffected:   len(judges),
			ProjectsAffected: len(projects),
			LockProvenance:   provenance.Map(),
		}
		lock = models.EvaluationLock{
			HackathonID:        hackathonID,
			LockType:           lockType,
			IsActive:           true,
			LockedAt:           now,
			LockedBy:           actor.ID,
			GracePeriodMinutes: req.GracePeriodMinutes,
			AffectedJudgeIDs:   datatypes.JSONSlice[uint](judges),
			AffectedProjectIDs: datatypes.JSONSlice[uint](projects),
			Metadata:           datatypes.NewJSONType(meta),
		}
		if len(sessions) == 1 {
			sessionID := sessions[0].ID
			lock.SessionID = &sessionID
		}
		if err := tx.CreateLock(ctx, &lock); err != nil {
			if isUniqueViolation(err) {
				return errLockRace
			}
			return err
		}

		if req.ForceFinalize {
			finalized, err := tx.FinalizePendingScores(ctx, hackathonID, judges, projects, now)
			if err != nil {
				return err
			}
			meta.ScoresFinalized = finalized
		}

		notifications := lockNotifications(hackathon, lock, reason, judges)
		if err := tx.EnqueueNotifications(ctx, notifications); err != nil {
			return err
		}
		meta.NotificationsQueued = len(notifications)

		lock.Metadata = datatypes.NewJSONType(meta)
		return tx.SaveLock(ctx, &lock)
	})
	if err != nil {
		if errors.Is(err, errLockRace) {
			err = s.conflictFor(ctx, hackathonID)
		}
		return dto.LockPeriodResponse{}, s.fail(span, "lock", lockOutcome(err), err)
	}

	s.kick()
	observability.LockOperations().WithLabelValues("lock", "success").Inc()
	if meta.ScoresFinalized > 0 {
		observability.ScoresForceFinalized().Add(float64(meta.ScoresFinalized))
	}

	span.SetAttributes(
		attribute.Int64("lock.id", int64(lock.ID)),
		attribute.Int64("lock.scores_finalized", meta.ScoresFinalized),
	)
	s.logger.Info().
		Uint("hackathon_id", hackathonID).
		Uint("lock_id", lock.ID).
		Str("lock_type", req.LockType).
		Int("sessions_locked", meta.SessionsLocked).
		Int64("scores_finalized", meta.ScoresFinalized).
		Msg("evaluation period locked")

	lockID := lock.ID
	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     ActivityActionLock,
		EntityType: "hackathon",
		EntityID:   &hackathon.ID,
		Metadata: map[string]interface{}{
			"lock_id":          lockID,
			"lock_type":        req.LockType,
			"reason":           reason,
			"force_finalize":   req.ForceFinalize,
			"scores_finalized": meta.ScoresFinalized,
		},
	})

	return dto.LockPeriodResponse{
		Lock:              dto.NewEvaluationLockResponse(lock),
		SessionsLocked:    meta.SessionsLocked,
		JudgesAffected:    meta.JudgesAffected,
		ProjectsAffected:  meta.ProjectsAffected,
		ScoresFinalized:   meta.ScoresFinalized,
		NotificationsSent: meta.NotificationsQueued,
	}, nil
}

func (s *lockService) UnlockPeriod(ctx context.Context, hackathonID uint, req dto.UnlockPeriodRequest, actor Actor, provenance dto.RequestProvenance) (dto.UnlockPeriodResponse, error) {
	ctx, span := s.tracer.Start(ctx, "evaluation.unlock")
	span.SetAttributes(
		attribute.Int64("lock.hackathon_id", int64(hackathonID)),
		attribute.Int64("lock.actor_id", int64(actor.ID)),
		attribute.Int("lock.extend_minutes", req.ExtendMinutes),
	)
	defer span.End()

	reason := s.sanitize(req.Reason)
	if reason == "" {
		return dto.UnlockPeriodResponse{}, s.fail(span, "unlock", "validation_failed", ErrUnlockReasonRequired)
	}
	if err := s.validator.Struct(req); err != nil {
		return dto.UnlockPeriodResponse{}, s.fail(span, "unlock", "validation_failed", err)
	}

	var (
		lock     models.EvaluationLock
		touched  []models.EvaluationSession
		notified int
	)

	err := s.repo.Transaction(ctx, func(tx repository.EvaluationRepository) error {
		hackathon, err := tx.LockHackathon(ctx, hackathonID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrHackathonNotFound
			}
			return err
		}
		if !CanAdministerHackathon(actor, hackathon) {
			return ErrInsufficientPermissions
		}

		lock, err = tx.FindActiveLock(ctx, hackathonID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotLocked
			}
			return err
		}

		sessions, err := tx.ListSessions(ctx, hackathonID)
		if err != nil {
			return err
		}
		extension := time.Duration(req.ExtendMinutes) * time.Minute
		touched = make([]models.EvaluationSession, 0, len(sessions))
		for i := range sessions {
			if lock.SessionID != nil && sessions[i].ID != *lock.SessionID {
				continue
			}
			sessions[i].IsLocked = false
			sessions[i].LockTimestamp = nil
			sessions[i].EndTime = sessions[i].EndTime.Add(extension)
			if err := tx.SaveSessionLockState(ctx, &sessions[i]); err != nil {
				return err
			}
			touched = append(touched, sessions[i])
		}

		now := s.now().UTC()
		unlockedBy := actor.ID
		meta := lock.Metadata.Data()
		meta.SessionsUnlocked = len(touched)
		meta.ExtendMinutes = req.ExtendMinutes
		meta.UnlockProvenance = provenance.Map()

		lock.IsActive = false
		lock.UnlockedAt = &now
		lock.UnlockedBy = &unlockedBy
		lock.UnlockReason = reason
		lock.Metadata = datatypes.NewJSONType(meta)
		if err := tx.SaveLock(ctx, &lock); err != nil {
			return err
		}

		if !req.ShouldNotifyJudges() {
			return nil
		}
		judges, err := tx.ListJudgeIDs(ctx, hackathonID)
		if err != nil {
			return err
		}
		notifications := unlockNotifications(hackathon, lock, reason, req.ExtendMinutes, touched, judges)
		if err := tx.EnqueueNotifications(ctx, notifications); err != nil {
			return err
		}
		notified = len(notifications)
		return nil
	})
	if err != nil {
		return dto.UnlockPeriodResponse{}, s.fail(span, "unlock", lockOutcome(err), err)
	}

	s.kick()
	observability.LockOperations().WithLabelValues("unlock", "success").Inc()

	span.SetAttributes(attribute.Int64("lock.id", int64(lock.ID)))
	s.logger.Info().
		Uint("hackathon_id", hackathonID).
		Uint("lock_id", lock.ID).
		Int("sessions_unlocked", len(touched)).
		Int("extend_minutes", req.ExtendMinutes).
		Msg("evaluation period unlocked")

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     ActivityActionUnlock,
		EntityType: "hackathon",
		EntityID:   &lock.HackathonID,
		Metadata: map[string]interface{}{
			"lock_id":        lock.ID,
			"reason":         reason,
			"extend_minutes": req.ExtendMinutes,
		},
	})

	return dto.UnlockPeriodResponse{
		Lock:              dto.NewEvaluationLockResponse(lock),
		Sessions:          dto.NewEvaluationSessionResponseSlice(touched),
		NotificationsSent: notified,
	}, nil
}

func (s *lockService) Status(ctx context.Context, hackathonID uint) (dto.LockStatusResponse, error) {
	if _, err := s.repo.GetHackathon(ctx, hackathonID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.LockStatusResponse{}, ErrHackathonNotFound
		}
		return dto.LockStatusResponse{}, err
	}

	sessions, err := s.repo.ListSessions(ctx, hackathonID)
	if err != nil {
		return dto.LockStatusResponse{}, err
	}

	status := dto.LockStatusResponse{
		HackathonID: hackathonID,
		Sessions:    dto.NewEvaluationSessionResponseSlice(sessions),
	}

	active, err := s.repo.FindActiveLock(ctx, hackathonID)
	switch {
	case err == nil:
		response := dto.NewEvaluationLockResponse(active)
		status.IsLocked = true
		status.ActiveLock = &response
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return dto.LockStatusResponse{}, err
	}

	return status, nil
}

func (s *lockService) History(ctx context.Context, hackathonID uint, actor Actor) ([]dto.EvaluationLockResponse, error) {
	hackathon, err := s.repo.GetHackathon(ctx, hackathonID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHackathonNotFound
		}
		return nil, err
	}
	if !CanAdministerHackathon(actor, hackathon) {
		return nil, ErrInsufficientPermissions
	}

	locks, err := s.repo.ListLocks(ctx, hackathonID)
	if err != nil {
		return nil, err
	}
	return dto.NewEvaluationLockResponseSlice(locks), nil
}

// conflictFor resolves a lost insert race into the lock that won it.
func (s *lockService) conflictFor(ctx context.Context, hackathonID uint) error {
	active, err := s.repo.FindActiveLock(ctx, hackathonID)
	if err != nil {
		return ErrAlreadyLocked
	}
	return &AlreadyLockedError{Lock: active}
}

func (s *lockService) fail(span trace.Span, operation, outcome string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, outcome)
	observability.LockOperations().WithLabelValues(operation, outcome).Inc()
	if outcome == "error" {
		s.logger.Error().Err(err).Str("operation", operation).Msg("lock operation failed")
	}
	return err
}

func (s *lockService) kick() {
	if s.kicker != nil {
		s.kicker.Kick()
	}
}

// sanitize strips markup from a reason. The result is stored as plain text,
// so the entities the policy emits are decoded again.
func (s *lockService) sanitize(text string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(strings.TrimSpace(text))))
}

func lockOutcome(err error) string {
	var validationErrs validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrs), errors.Is(err, ErrUnlockReasonRequired), errors.Is(err, ErrAffectedOutsideHackathon):
		return "validation_failed"
	case errors.Is(err, ErrHackathonNotFound):
		return "not_found"
	case errors.Is(err, ErrInsufficientPermissions):
		return "forbidden"
	case errors.Is(err, ErrAlreadyLocked):
		return "already_locked"
	case errors.Is(err, ErrNotLocked):
		return "not_locked"
	default:
		return "error"
	}
}

func lockNotifications(hackathon models.Hackathon, lock models.EvaluationLock, reason string, judges []uint) []models.Notification {
	priority := models.NotificationPriorityHigh
	if lock.LockType == models.LockTypeEmergency {
		priority = models.NotificationPriorityUrgent
	}

	body := fmt.Sprintf("Judging for %s has been locked (%s).", hackathonLabel(hackathon), lock.LockType)
	if lock.GracePeriodMinutes > 0 {
		body += fmt.Sprintf(" You have %d minutes to complete pending scores.", lock.GracePeriodMinutes)
	}
	if reason != "" {
		body += " Reason: " + reason
	}

	notifications := make([]models.Notification, 0, len(judges))
	for _, judgeID := range judges {
		notifications = append(notifications, models.Notification{
			UserID:   judgeID,
			Title:    "Evaluation period locked",
			Body:     body,
			Priority: priority,
			Category: NotificationCategoryLock,
			Status:   models.NotificationStatusPending,
			Payload: datatypes.JSONMap{
				"hackathon_id":         hackathon.ID,
				"lock_id":              lock.ID,
				"lock_type":            string(lock.LockType),
				"grace_period_minutes": lock.GracePeriodMinutes,
				"grace_ends_at":        lock.GraceEndsAt().Format(time.RFC3339),
				"reason":               reason,
			},
		})
	}
	return notifications
}

func unlockNotifications(hackathon models.Hackathon, lock models.EvaluationLock, reason string, extendMinutes int, sessions []models.EvaluationSession, judges []uint) []models.Notification {
	deadlines := make([]string, 0, len(sessions))
	for _, session := range sessions {
		deadlines = append(deadlines, session.EndTime.UTC().Format(time.RFC3339))
	}

	body := fmt.Sprintf("Judging for %s has been reopened.", hackathonLabel(hackathon))
	if extendMinutes > 0 {
		body += fmt.Sprintf(" Deadlines were extended by %d minutes.", extendMinutes)
	}
	if len(deadlines) > 0 {
		body += " New deadline: " + strings.Join(deadlines, ", ") + "."
	}
	body += " Reason: " + reason

	notifications := make([]models.Notification, 0, len(judges))
	for _, judgeID := range judges {
		notifications = append(notifications, models.Notification{
			UserID:   judgeID,
			Title:    "Evaluation period reopened",
			Body:     body,
			Priority: models.NotificationPriorityHigh,
			Category: NotificationCategoryUnlock,
			Status:   models.NotificationStatusPending,
			Payload: datatypes.JSONMap{
				"hackathon_id":   hackathon.ID,
				"lock_id":        lock.ID,
				"extend_minutes": extendMinutes,
				"deadlines":      deadlines,
				"reason":         reason,
			},
		})
	}
	return notifications
}

func hackathonLabel(hackathon models.Hackathon) string {
	if name := strings.TrimSpace(hackathon.Name); name != "" {
		return name
	}
	return fmt.Sprintf("hackathon %d", hackathon.ID)
}

func uniqueIDs(ids []uint) []uint {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// scopeIDs narrows a lock to the requested ids, defaulting to every member.
// Requested ids outside members are rejected.
func scopeIDs(requested, members []uint, kind string) ([]uint, error) {
	ids := uniqueIDs(requested)
	if len(ids) == 0 {
		return members, nil
	}

	known := make(map[uint]struct{}, len(members))
	for _, id := range members {
		known[id] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			return nil, fmt.Errorf("%w: %s %d", ErrAffectedOutsideHackathon, kind, id)
		}
	}
	return ids, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

package dto

import (
	"time"

	"github.com/noah-isme/judging-integrity-api/internal/models"
)

// LockPeriodRequest captures the payload for freezing a hackathon's evaluation period.
type LockPeriodRequest struct {
	LockType           string `json:"lock_type" validate:"required,oneof=time_based manual emergency"`
	Reason             string `json:"reason" validate:"omitempty,max=1000"`
	GracePeriodMinutes int    `json:"grace_period_minutes" validate:"gte=0,lte=1440"`
	AffectedJudges     []uint `json:"affected_judges" validate:"omitempty,dive,gt=0"`
	AffectedProjects   []uint `json:"affected_projects" validate:"omitempty,dive,gt=0"`
	ForceFinalize      bool   `json:"force_finalize"`
}

// UnlockPeriodRequest captures the payload for reopening a locked evaluation period.
type UnlockPeriodRequest struct {
	Reason        string `json:"reason" validate:"required,min=1,max=1000"`
	ExtendMinutes int    `json:"extend_minutes" validate:"gte=0,lte=10080"`
	NotifyJudges  *bool  `json:"notify_judges"`
}

// ShouldNotifyJudges applies the default of notifying the roster.
func (r UnlockPeriodRequest) ShouldNotifyJudges() bool {
	return r.NotifyJudges == nil || *r.NotifyJudges
}

// RequestProvenance describes where a lock command came from.
type RequestProvenance struct {
	RequestID string
	IP        string
	UserAgent string
}

// Map flattens the provenance into lock metadata.
func (p RequestProvenance) Map() map[string]string {
	result := map[string]string{}
	if p.RequestID != "" {
		result["request_id"] = p.RequestID
	}
	if p.IP != "" {
		result["ip"] = p.IP
	}
	if p.UserAgent != "" {
		result["user_agent"] = p.UserAgent
	}
	return result
}

// LockMetadataResponse mirrors the typed lock metadata.
type LockMetadataResponse struct {
	Reason              string            `json:"reason,omitempty"`
	ForceFinalize       bool              `json:"force_finalize"`
	SessionsLocked      int               `json:"sessions_locked"`
	JudgesAffected      int               `json:"judges_affected"`
	ProjectsAffected    int               `json:"projects_affected"`
	ScoresFinalized     int64             `json:"scores_finalized"`
	NotificationsQueued int               `json:"notifications_queued"`
	LockProvenance      map[string]string `json:"lock_provenance,omitempty"`
	SessionsUnlocked    int               `json:"sessions_unlocked,omitempty"`
	ExtendMinutes       int               `json:"extend_minutes,omitempty"`
	UnlockProvenance    map[string]string `json:"unlock_provenance,omitempty"`
}

// EvaluationLockResponse serializes a lock record.
type EvaluationLockResponse struct {
	ID                 uint                 `json:"id"`
	HackathonID        uint                 `json:"hackathon_id"`
	SessionID          *uint                `json:"session_id"`
	LockType           string               `json:"lock_type"`
	IsActive           bool                 `json:"is_active"`
	LockedAt           time.Time            `json:"locked_at"`
	LockedBy           uint                 `json:"locked_by"`
	GracePeriodMinutes int                  `json:"grace_period_minutes"`
	GraceEndsAt        time.Time            `json:"grace_ends_at"`
	AffectedJudgeIDs   []uint               `json:"affected_judge_ids"`
	AffectedProjectIDs []uint               `json:"affected_project_ids"`
	Metadata           LockMetadataResponse `json:"metadata"`
	UnlockedAt         *time.Time           `json:"unlocked_at,omitempty"`
	UnlockedBy         *uint                `json:"unlocked_by,omitempty"`
	UnlockReason       string               `json:"unlock_reason,omitempty"`
}

// EvaluationSessionResponse serializes a session's lock state.
type EvaluationSessionResponse struct {
	ID                 uint       `json:"id"`
	HackathonID        uint       `json:"hackathon_id"`
	StartTime          time.Time  `json:"start_time"`
	EndTime            time.Time  `json:"end_time"`
	IsLocked           bool       `json:"is_locked"`
	LockTimestamp      *time.Time `json:"lock_timestamp"`
	GracePeriodMinutes int        `json:"grace_period_minutes"`
}

// LockPeriodResponse summarises a successful lock.
type LockPeriodResponse struct {
	Lock              EvaluationLockResponse `json:"lock"`
	SessionsLocked    int                    `json:"sessions_locked"`
	JudgesAffected    int                    `json:"judges_affected"`
	ProjectsAffected  int                    `json:"projects_affected"`
	ScoresFinalized   int64                  `json:"scores_finalized"`
	NotificationsSent int                    `json:"notifications_sent"`
}

// UnlockPeriodResponse summarises a successful unlock.
type UnlockPeriodResponse struct {
	Lock              EvaluationLockResponse      `json:"lock"`
	Sessions          []EvaluationSessionResponse `json:"sessions"`
	NotificationsSent int                         `json:"notifications_sent"`
}

// LockStatusResponse reports whether judging is currently frozen.
type LockStatusResponse struct {
	HackathonID uint                        `json:"hackathon_id"`
	IsLocked    bool                        `json:"is_locked"`
	ActiveLock  *EvaluationLockResponse     `json:"active_lock,omitempty"`
	Sessions    []EvaluationSessionResponse `json:"sessions"`
}

// LockConflictResponse identifies the lock that blocked a request.
type LockConflictResponse struct {
	LockID   uint      `json:"lock_id"`
	LockedAt time.Time `json:"locked_at"`
	LockType string    `json:"lock_type"`
}

// NewEvaluationLockResponse converts a lock model into a DTO.
func NewEvaluationLockResponse(lock models.EvaluationLock) EvaluationLockResponse {
	meta := lock.Metadata.Data()
	return EvaluationLockResponse{
		ID:                 lock.ID,
		HackathonID:        lock.HackathonID,
		SessionID:          lock.SessionID,
		LockType:           string(lock.LockType),
		IsActive:           lock.IsActive,
		LockedAt:           lock.LockedAt,
		LockedBy:           lock.LockedBy,
		GracePeriodMinutes: lock.GracePeriodMinutes,
		GraceEndsAt:        lock.GraceEndsAt(),
		AffectedJudgeIDs:   nonNilIDs(lock.AffectedJudgeIDs),
		AffectedProjectIDs: nonNilIDs(lock.AffectedProjectIDs),
		Metadata: LockMetadataResponse{
			Reason:              meta.Reason,
			ForceFinalize:       meta.ForceFinalize,
			SessionsLocked:      meta.SessionsLocked,
			JudgesAffected:      meta.JudgesAffected,
			ProjectsAffected:    meta.ProjectsAffected,
			ScoresFinalized:     meta.ScoresFinalized,
			NotificationsQueued: meta.NotificationsQueued,
			LockProvenance:      meta.LockProvenance,
			SessionsUnlocked:    meta.SessionsUnlocked,
			ExtendMinutes:       meta.ExtendMinutes,
			UnlockProvenance:    meta.UnlockProvenance,
		},
		UnlockedAt:   lock.UnlockedAt,
		UnlockedBy:   lock.UnlockedBy,
		UnlockReason: lock.UnlockReason,
	}
}

// NewEvaluationLockResponseSlice converts many locks.
func NewEvaluationLockResponseSlice(locks []models.EvaluationLock) []EvaluationLockResponse {
	responses := make([]EvaluationLockResponse, 0, len(locks))
	for _, lock := range locks {
		responses = append(responses, NewEvaluationLockResponse(lock))
	}
	return responses
}

// NewEvaluationSessionResponse converts a session model into a DTO.
func NewEvaluationSessionResponse(session models.EvaluationSession) EvaluationSessionResponse {
	return EvaluationSessionResponse{
		ID:                 session.ID,
		HackathonID:        session.HackathonID,
		StartTime:          session.StartTime,
		EndTime:            session.EndTime,
		IsLocked:           session.IsLocked,
		LockTimestamp:      session.LockTimestamp,
		GracePeriodMinutes: session.GracePeriodMinutes,
	}
}

// NewEvaluationSessionResponseSlice converts many sessions.
func NewEvaluationSessionResponseSlice(sessions []models.EvaluationSession) []EvaluationSessionResponse {
	responses := make([]EvaluationSessionResponse, 0, len(sessions))
	for _, session := range sessions {
		responses = append(responses, NewEvaluationSessionResponse(session))
	}
	return responses
}

func nonNilIDs(ids []uint) []uint {
	if ids == nil {
		return []uint{}
	}
	return ids
}

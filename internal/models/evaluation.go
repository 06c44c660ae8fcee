package models

import (
	"time"

	"gorm.io/datatypes"
)

// LockType describes why an evaluation period was frozen.
type LockType string

const (
	// LockTypeTimeBased is applied when the judging window closes on schedule.
	LockTypeTimeBased LockType = "time_based"
	// LockTypeManual is applied by an administrator on demand.
	LockTypeManual LockType = "manual"
	// LockTypeEmergency freezes judging immediately, typically after an incident.
	LockTypeEmergency LockType = "emergency"
)

// Valid reports whether the lock type is one of the known values.
func (t LockType) Valid() bool {
	switch t {
	case LockTypeTimeBased, LockTypeManual, LockTypeEmergency:
		return true
	default:
		return false
	}
}

// EvaluationSession is one judging window of a hackathon.
type EvaluationSession struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	HackathonID        uint       `gorm:"not null;index" json:"hackathon_id"`
	StartTime          time.Time  `gorm:"not null" json:"start_time"`
	EndTime            time.Time  `gorm:"not null" json:"end_time"`
	IsLocked           bool       `gorm:"not null;default:false" json:"is_locked"`
	LockTimestamp      *time.Time `json:"lock_timestamp"`
	GracePeriodMinutes int        `gorm:"not null;default:0" json:"grace_period_minutes"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// LockMetadata is the typed payload stored alongside a lock. Known fields are
// explicit; request provenance goes into the provenance maps.
type LockMetadata struct {
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

// EvaluationLock is the authoritative record of a frozen evaluation period.
// At most one row per hackathon may be active; the partial unique index
// enforces it in the store.
type EvaluationLock struct {
	ID                 uint                             `gorm:"primaryKey" json:"id"`
	HackathonID        uint                             `gorm:"not null;index:idx_evaluation_locks_hackathon;uniqueIndex:idx_evaluation_locks_active,where:is_active = true" json:"hackathon_id"`
	SessionID          *uint                            `gorm:"index" json:"session_id"`
	LockType           LockType                         `gorm:"size:16;not null" json:"lock_type"`
	IsActive           bool                             `gorm:"not null" json:"is_active"`
	LockedAt           time.Time                        `gorm:"not null" json:"locked_at"`
	LockedBy           uint                             `gorm:"not null" json:"locked_by"`
	GracePeriodMinutes int                              `gorm:"not null;default:0" json:"grace_period_minutes"`
	AffectedJudgeIDs   datatypes.JSONSlice[uint]        `json:"affected_judge_ids"`
	AffectedProjectIDs datatypes.JSONSlice[uint]        `json:"affected_project_ids"`
	Metadata           datatypes.JSONType[LockMetadata] `json:"metadata"`
	UnlockedAt         *time.Time                       `json:"unlocked_at"`
	UnlockedBy         *uint                            `json:"unlocked_by"`
	UnlockReason       string                           `gorm:"type:text" json:"unlock_reason"`
	CreatedAt          time.Time                        `json:"created_at"`
	UpdatedAt          time.Time                        `json:"updated_at"`
}

// GraceEndsAt returns the instant after which judges can no longer submit.
func (l EvaluationLock) GraceEndsAt() time.Time {
	return l.LockedAt.Add(time.Duration(l.GracePeriodMinutes) * time.Minute)
}

// InGracePeriod reports whether the lock still tolerates score changes at now.
func (l EvaluationLock) InGracePeriod(now time.Time) bool {
	return l.IsActive && l.GracePeriodMinutes > 0 && now.Before(l.GraceEndsAt())
}

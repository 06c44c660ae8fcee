package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification outbox states.
const (
	NotificationStatusPending    = "pending"
	NotificationStatusDispatched = "dispatched"
	NotificationStatusFailed     = "failed"
)

// Notification priorities.
const (
	NotificationPriorityNormal = "normal"
	NotificationPriorityHigh   = "high"
	NotificationPriorityUrgent = "urgent"
)

// Notification is both the user's inbox entry and the outbox row the
// dispatcher drains. Rows are written in the same transaction as the change
// they describe. DeliveredSinks names the sinks that already accepted the row
// so a retry only reaches the ones that failed; ClaimedUntil is the lease a
// dispatcher holds on the row.
type Notification struct {
	ID             uint                        `gorm:"primaryKey" json:"id"`
	UserID         uint                        `gorm:"not null;index" json:"user_id"`
	Title          string                      `gorm:"size:255;not null" json:"title"`
	Body           string                      `gorm:"type:text" json:"body"`
	Priority       string                      `gorm:"size:16;not null;default:normal" json:"priority"`
	Category       string                      `gorm:"size:64;not null;index" json:"category"`
	Payload        datatypes.JSONMap           `json:"payload"`
	Status         string                      `gorm:"size:16;not null;default:pending;index" json:"status"`
	Attempts       int                         `gorm:"not null;default:0" json:"attempts"`
	LastError      string                      `gorm:"type:text" json:"last_error"`
	DispatchedAt   *time.Time                  `json:"dispatched_at"`
	DeliveredSinks datatypes.JSONSlice[string] `json:"-"`
	ClaimedUntil   *time.Time                  `gorm:"index" json:"-"`
	Read           bool                        `gorm:"not null;default:false" json:"read"`
	CreatedAt      time.Time                   `json:"created_at"`
	UpdatedAt      time.Time                   `json:"updated_at"`
}

package models

import "time"

// Role names recognised by the judging platform.
const (
	RoleAdmin       = "admin"
	RoleModerator   = "moderator"
	RoleOrganizer   = "organizer"
	RoleJudge       = "judge"
	RoleParticipant = "participant"
)

// User is an account that may organise hackathons, judge projects or own them.
type User struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"size:255;not null" json:"name"`
	Email         string    `gorm:"size:255;uniqueIndex" json:"email"`
	Role          string    `gorm:"size:32;not null;default:participant" json:"role"`
	WalletAddress string    `gorm:"size:128" json:"wallet_address"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

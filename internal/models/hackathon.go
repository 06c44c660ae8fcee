package models

import "time"

// Hackathon is the top-level event that owns projects, judges and evaluation sessions.
type Hackathon struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	OrganizerID uint      `gorm:"index" json:"organizer_id"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HackathonJudge assigns a judge to a hackathon roster.
type HackathonJudge struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	HackathonID uint      `gorm:"not null;uniqueIndex:idx_hackathon_judges_pair" json:"hackathon_id"`
	JudgeID     uint      `gorm:"not null;uniqueIndex:idx_hackathon_judges_pair" json:"judge_id"`
	CreatedAt   time.Time `json:"created_at"`
	Judge       User      `gorm:"foreignKey:JudgeID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"judge"`
}

// Project is a team submission evaluated by judges.
type Project struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	HackathonID uint      `gorm:"not null;index" json:"hackathon_id"`
	OwnerID     uint      `gorm:"not null;index" json:"owner_id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	IsPublic    bool      `gorm:"not null;default:false" json:"is_public"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

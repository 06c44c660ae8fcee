package models

import "time"

// Score is one judge's evaluation of one project.
type Score struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	JudgeID            uint            `gorm:"not null;uniqueIndex:idx_scores_judge_project" json:"judge_id"`
	ProjectID          uint            `gorm:"not null;uniqueIndex:idx_scores_judge_project;index" json:"project_id"`
	Innovation         *float64        `json:"innovation"`
	Technical          *float64        `json:"technical"`
	Design             *float64        `json:"design"`
	Impact             *float64        `json:"impact"`
	Presentation       *float64        `json:"presentation"`
	TotalScore         *float64        `json:"total_score"`
	Feedback           string          `gorm:"type:text" json:"feedback"`
	IsFinalized        bool            `gorm:"not null;default:false;index" json:"is_finalized"`
	FinalizedAt        *time.Time      `json:"finalized_at"`
	ContentHash        *string         `gorm:"size:128" json:"content_hash"`
	WalletSignature    *string         `gorm:"type:text" json:"wallet_signature"`
	SignatureTimestamp *time.Time      `json:"signature_timestamp"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	Judge              User            `gorm:"foreignKey:JudgeID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"judge"`
	Project            Project         `gorm:"foreignKey:ProjectID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"project"`
	ContentRecords     []ContentRecord `gorm:"foreignKey:ScoreID" json:"content_records"`
}

// Criteria returns the per-criterion values keyed by criterion name.
func (s Score) Criteria() map[string]*float64 {
	return map[string]*float64{
		"innovation":   s.Innovation,
		"technical":    s.Technical,
		"design":       s.Design,
		"impact":       s.Impact,
		"presentation": s.Presentation,
	}
}

// ComputeTotal returns the sum of all criteria, or nil while any criterion is missing.
func (s Score) ComputeTotal() *float64 {
	var total float64
	for _, value := range s.Criteria() {
		if value == nil {
			return nil
		}
		total += *value
	}
	return &total
}

// HasContentHash reports whether the score points into the content store.
func (s Score) HasContentHash() bool {
	return s.ContentHash != nil && *s.ContentHash != ""
}

// VerificationEligible reports whether the score can be checked against the content store.
func (s Score) VerificationEligible() bool {
	return s.IsFinalized && s.HasContentHash()
}

// Content record verification states. The cached value is advisory only.
const (
	ContentStatusPending  = "pending"
	ContentStatusVerified = "verified"
	ContentStatusFailed   = "failed"
)

// ContentRecord binds a score to a content-addressed blob. A score accumulates
// one record per publication.
type ContentRecord struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	ScoreID              uint      `gorm:"not null;index" json:"score_id"`
	ContentHash          string    `gorm:"size:128;not null;index" json:"content_hash"`
	ClaimedSignerAddress string    `gorm:"size:128" json:"claimed_signer_address"`
	VerificationStatus   string    `gorm:"size:16;not null;default:pending" json:"verification_status"`
	CreatedAt            time.Time `json:"created_at"`
}

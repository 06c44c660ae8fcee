package dto

import (
	"time"

	"github.com/noah-isme/judging-integrity-api/internal/models"
)

// SubmitScoreRequest captures a judge's criterion scores for a project.
type SubmitScoreRequest struct {
	ProjectID    uint     `json:"project_id" validate:"required,gt=0"`
	Innovation   *float64 `json:"innovation" validate:"omitempty,gte=0,lte=10"`
	Technical    *float64 `json:"technical" validate:"omitempty,gte=0,lte=10"`
	Design       *float64 `json:"design" validate:"omitempty,gte=0,lte=10"`
	Impact       *float64 `json:"impact" validate:"omitempty,gte=0,lte=10"`
	Presentation *float64 `json:"presentation" validate:"omitempty,gte=0,lte=10"`
	Feedback     string   `json:"feedback" validate:"omitempty,max=5000"`
}

// FinalizeScoreRequest carries the judge's wallet signature, if any. SignedAt
// is the timestamp the judge signed over; it defaults to the finalization time.
type FinalizeScoreRequest struct {
	WalletSignature string     `json:"wallet_signature" validate:"omitempty,max=1024"`
	SignedAt        *time.Time `json:"signed_at"`
}

// ContentRecordResponse serializes a content record.
type ContentRecordResponse struct {
	ID                   uint      `json:"id"`
	ContentHash          string    `json:"content_hash"`
	ClaimedSignerAddress string    `json:"claimed_signer_address"`
	VerificationStatus   string    `json:"verification_status"`
	CreatedAt            time.Time `json:"created_at"`
}

// ScoreResponse serializes a score.
type ScoreResponse struct {
	ID                 uint                    `json:"id"`
	JudgeID            uint                    `json:"judge_id"`
	ProjectID          uint                    `json:"project_id"`
	Innovation         *float64                `json:"innovation"`
	Technical          *float64                `json:"technical"`
	Design             *float64                `json:"design"`
	Impact             *float64                `json:"impact"`
	Presentation       *float64                `json:"presentation"`
	TotalScore         *float64                `json:"total_score"`
	Feedback           string                  `json:"feedback"`
	IsFinalized        bool                    `json:"is_finalized"`
	FinalizedAt        *time.Time              `json:"finalized_at"`
	ContentHash        *string                 `json:"content_hash"`
	WalletSignature    *string                 `json:"wallet_signature,omitempty"`
	SignatureTimestamp *time.Time              `json:"signature_timestamp,omitempty"`
	ContentRecords     []ContentRecordResponse `json:"content_records,omitempty"`
	UpdatedAt          time.Time               `json:"updated_at"`
}

// NewScoreResponse converts a score model into a DTO.
func NewScoreResponse(score models.Score) ScoreResponse {
	records := make([]ContentRecordResponse, 0, len(score.ContentRecords))
	for _, record := range score.ContentRecords {
		records = append(records, ContentRecordResponse{
			ID:                   record.ID,
			ContentHash:          record.ContentHash,
			ClaimedSignerAddress: record.ClaimedSignerAddress,
			VerificationStatus:   record.VerificationStatus,
			CreatedAt:            record.CreatedAt,
		})
	}

	return ScoreResponse{
		ID:                 score.ID,
		JudgeID:            score.JudgeID,
		ProjectID:          score.ProjectID,
		Innovation:         score.Innovation,
		Technical:          score.Technical,
		Design:             score.Design,
		Impact:             score.Impact,
		Presentation:       score.Presentation,
		TotalScore:         score.TotalScore,
		Feedback:           score.Feedback,
		IsFinalized:        score.IsFinalized,
		FinalizedAt:        score.FinalizedAt,
		ContentHash:        score.ContentHash,
		WalletSignature:    score.WalletSignature,
		SignatureTimestamp: score.SignatureTimestamp,
		ContentRecords:     records,
		UpdatedAt:          score.UpdatedAt,
	}
}

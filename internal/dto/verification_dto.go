package dto

import "time"

// Aggregate verification outcomes for a project.
const (
	VerificationAllVerified       = "ALL_VERIFIED"
	VerificationPartiallyVerified = "PARTIALLY_VERIFIED"
	VerificationFailed            = "VERIFICATION_FAILED"
	VerificationNoScores          = "NO_SCORES"
)

// Per-score issue codes.
const (
	IssueNoContentHash        = "NoContentHash"
	IssueContentNotAccessible = "ContentNotAccessible"
	IssueContentHashMismatch  = "ContentHashMismatch"
	IssueParseError           = "ParseError"
	IssueIntegrityMismatch    = "DataIntegrityMismatch"
	IssueSignatureInvalid     = "SignatureInvalid"
	IssueSignatureMissing     = "SignatureMissing"
	IssueTimestampSkew        = "TimestampSkew"
	IssueVerificationError    = "VerificationError"
)

// VerifyProjectRequest captures the options of a project verification.
type VerifyProjectRequest struct {
	JudgeID           *uint
	IncludeRawContent bool
	VerifySignature   bool
}

// VerificationIssue is one error or warning recorded while checking a score.
type VerificationIssue struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

// ScoreVerdict is the trust verdict for a single finalized score.
type ScoreVerdict struct {
	ScoreID             uint                   `json:"score_id"`
	JudgeID             uint                   `json:"judge_id"`
	ProjectID           uint                   `json:"project_id"`
	ContentHash         string                 `json:"content_hash,omitempty"`
	ContentAccessible   bool                   `json:"content_accessible"`
	DataIntegrity       bool                   `json:"data_integrity"`
	SignatureValid      bool                   `json:"signature_valid"`
	TimestampValid      bool                   `json:"timestamp_valid"`
	OverallValid        bool                   `json:"overall_valid"`
	IntegrityMismatches []string               `json:"integrity_mismatches,omitempty"`
	Errors              []VerificationIssue    `json:"errors"`
	Warnings            []VerificationIssue    `json:"warnings"`
	RawContent          map[string]interface{} `json:"raw_content,omitempty"`
}

// HasError reports whether an error with the given code was recorded.
func (v ScoreVerdict) HasError(code string) bool {
	for _, issue := range v.Errors {
		if issue.Code == code {
			return true
		}
	}
	return false
}

// HasWarning reports whether a warning with the given code was recorded.
func (v ScoreVerdict) HasWarning(code string) bool {
	for _, issue := range v.Warnings {
		if issue.Code == code {
			return true
		}
	}
	return false
}

// VerificationSummary aggregates the verdicts of a report.
type VerificationSummary struct {
	TotalScores   int    `json:"total_scores"`
	VerifiedCount int    `json:"verified_count"`
	FailedCount   int    `json:"failed_count"`
	OverallStatus string `json:"overall_status"`
}

// VerificationReport is the result of verifying a project's finalized scores.
type VerificationReport struct {
	ProjectID           uint                `json:"project_id"`
	JudgeID             *uint               `json:"judge_id,omitempty"`
	OverallStatus       string              `json:"overall_status"`
	Summary             VerificationSummary `json:"summary"`
	VerificationResults []ScoreVerdict      `json:"verification_results"`
	Recommendations     []string            `json:"recommendations"`
	SignatureChecked    bool                `json:"signature_checked"`
	VerifiedAt          time.Time           `json:"verified_at"`
}

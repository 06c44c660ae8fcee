package service

import "github.com/noah-isme/judging-integrity-api/internal/dto"

func buildReport(projectID uint, req dto.VerifyProjectRequest, verdicts []dto.ScoreVerdict) dto.VerificationReport {
	if verdicts == nil {
		verdicts = []dto.ScoreVerdict{}
	}

	summary := dto.VerificationSummary{TotalScores: len(verdicts)}
	for _, verdict := range verdicts {
		if verdict.OverallValid {
			summary.VerifiedCount++
		}
	}
	summary.FailedCount = summary.TotalScores - summary.VerifiedCount
	summary.OverallStatus = overallStatus(summary)

	return dto.VerificationReport{
		ProjectID:           projectID,
		JudgeID:             req.JudgeID,
		OverallStatus:       summary.OverallStatus,
		Summary:             summary,
		VerificationResults: verdicts,
		Recommendations:     recommendations(verdicts),
		SignatureChecked:    req.VerifySignature,
	}
}

func overallStatus(summary dto.VerificationSummary) string {
	switch {
	case summary.TotalScores == 0:
		return dto.VerificationNoScores
	case summary.VerifiedCount == summary.TotalScores:
		return dto.VerificationAllVerified
	case summary.VerifiedCount > 0:
		return dto.VerificationPartiallyVerified
	default:
		return dto.VerificationFailed
	}
}

// recommendations derives remediation advice from the failed check categories.
func recommendations(verdicts []dto.ScoreVerdict) []string {
	if len(verdicts) == 0 {
		return []string{"No finalized scores to verify yet. Re-run verification after judges finalize their scores."}
	}

	var (
		missingHash  bool
		inaccessible bool
		tampered     bool
		unparsable   bool
		integrity    bool
		signature    bool
		unexpected   bool
		skewed       bool
	)
	for _, verdict := range verdicts {
		missingHash = missingHash || verdict.HasError(dto.IssueNoContentHash)
		inaccessible = inaccessible || verdict.HasError(dto.IssueContentNotAccessible)
		tampered = tampered || verdict.HasError(dto.IssueContentHashMismatch)
		unparsable = unparsable || verdict.HasError(dto.IssueParseError)
		integrity = integrity || verdict.HasError(dto.IssueIntegrityMismatch)
		signature = signature || verdict.HasError(dto.IssueSignatureInvalid)
		unexpected = unexpected || verdict.HasError(dto.IssueVerificationError)
		skewed = skewed || verdict.HasWarning(dto.IssueTimestampSkew)
	}

	var out []string
	if missingHash {
		out = append(out, "Some finalized scores were never published. Re-finalize them so a content record exists.")
	}
	if inaccessible {
		out = append(out, "Some score content could not be retrieved. Check content store availability and re-run verification.")
	}
	if tampered {
		out = append(out, "Some published content no longer matches its content hash and may have been tampered with. Treat those scores as untrusted and audit the content store.")
	}
	if unparsable {
		out = append(out, "Some stored content is not a valid score document. Investigate the publishing pipeline for those scores.")
	}
	if integrity {
		out = append(out, "Stored scores differ from their published content. Audit recent changes to the affected scores before trusting results.")
	}
	if signature {
		out = append(out, "Signatures do not match the judges' wallets. Ask the affected judges to confirm and re-sign their scores.")
	}
	if unexpected {
		out = append(out, "Verification hit unexpected errors for some scores. Check service logs and retry.")
	}
	if skewed {
		out = append(out, "Clock skew detected between content timestamps and finalization times. Confirm server clocks are synchronized.")
	}
	if len(out) == 0 {
		out = append(out, "All scores verified successfully. No action required.")
	}
	return out
}

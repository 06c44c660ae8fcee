package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/noah-isme/judging-integrity-api/internal/dto"
	"github.com/noah-isme/judging-integrity-api/internal/models"
	"github.com/noah-isme/judging-integrity-api/internal/observability"
	"github.com/noah-isme/judging-integrity-api/internal/repository"
)

// ErrProjectNotFound indicates the project does not exist.
var ErrProjectNotFound = errors.New("project not found")

const (
	defaultTimestampTolerance = 5 * time.Minute
	defaultVerifyConcurrency  = 4
	totalScoreTolerance       = 0.01
)

// Integrity sub-checks reported on mismatch.
const (
	FieldProjectID  = "projectId"
	FieldJudgeID    = "judgeId"
	FieldTotalScore = "totalScore"
	FieldTimestamp  = "timestamp"
)

// VerificationConfig tunes the verification engine.
type VerificationConfig struct {
	Concurrency        int
	TimestampTolerance time.Duration
}

// VerificationService re-derives trust in finalized scores.
type VerificationService interface {
	VerifyProject(ctx context.Context, projectID uint, req dto.VerifyProjectRequest, actor Actor) (dto.VerificationReport, error)
}

type verificationService struct {
	projects   repository.HackathonRepository
	scores     repository.ScoreRepository
	content    ContentVerifier
	signatures SignatureChecker
	cfg        VerificationConfig
	tracer     trace.Tracer
	logger     zerolog.Logger
	now        func() time.Time
}

// NewVerificationService constructs the score verification engine.
func NewVerificationService(projects repository.HackathonRepository, scores repository.ScoreRepository, content ContentVerifier, signatures SignatureChecker, cfg VerificationConfig, logger zerolog.Logger) VerificationService {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultVerifyConcurrency
	}
	if cfg.TimestampTolerance <= 0 {
		cfg.TimestampTolerance = defaultTimestampTolerance
	}
	if signatures == nil {
		signatures = NewSignatureChecker(nil)
	}

	return &verificationService{
		projects:   projects,
		scores:     scores,
		content:    content,
		signatures: signatures,
		cfg:        cfg,
		tracer:     otel.Tracer("github.com/noah-isme/judging-integrity-api/internal/service/verification"),
		logger:     logger.With().Str("component", "verification_service").Logger(),
		now:        time.Now,
	}
}

func (s *verificationService) VerifyProject(ctx context.Context, projectID uint, req dto.VerifyProjectRequest, actor Actor) (dto.VerificationReport, error) {
	ctx, span := s.tracer.Start(ctx, "verification.project")
	span.SetAttributes(
		attribute.Int64("verification.project_id", int64(projectID)),
		attribute.Int64("verification.actor_id", int64(actor.ID)),
		attribute.Bool("verification.signature", req.VerifySignature),
	)
	defer span.End()

	started := s.now()

	if !actor.Authenticated() {
		span.SetStatus(codes.Error, "unauthenticated")
		return dto.VerificationReport{}, ErrUnauthenticated
	}

	project, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "project_not_found")
			return dto.VerificationReport{}, ErrProjectNotFound
		}
		span.SetStatus(codes.Error, "project_lookup_failed")
		return dto.VerificationReport{}, err
	}
	if !CanViewProjectVerification(actor, project) {
		span.SetStatus(codes.Error, "forbidden")
		return dto.VerificationReport{}, ErrInsufficientPermissions
	}

	scores, err := s.scores.ListFinalizedByProject(ctx, projectID, req.JudgeID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "score_lookup_failed")
		return dto.VerificationReport{}, err
	}

	verdicts := make([]dto.ScoreVerdict, len(scores))
	var group errgroup.Group
	group.SetLimit(s.cfg.Concurrency)
	for i := range scores {
		i := i
		group.Go(func() error {
			verdicts[i] = s.verifyScore(ctx, scores[i], req)
			return nil
		})
	}
	_ = group.Wait()

	report := buildReport(projectID, req, verdicts)
	report.VerifiedAt = s.now().UTC()

	for _, verdict := range verdicts {
		observability.VerificationVerdicts().WithLabelValues(strconv.FormatBool(verdict.OverallValid)).Inc()
	}
	observability.VerificationReports().WithLabelValues(report.OverallStatus).Inc()
	observability.VerificationDuration().Observe(s.now().Sub(started).Seconds())

	span.SetAttributes(
		attribute.String("verification.status", report.OverallStatus),
		attribute.Int("verification.total", report.Summary.TotalScores),
		attribute.Int("verification.failed", report.Summary.FailedCount),
	)
	s.logger.Info().
		Uint("project_id", projectID).
		Str("status", report.OverallStatus).
		Int("verified", report.Summary.VerifiedCount).
		Int("failed", report.Summary.FailedCount).
		Msg("project verification completed")

	return report, nil
}

// verifyScore runs every check for one score. It never panics and never
// returns an error; failures are recorded on the verdict.
func (s *verificationService) verifyScore(ctx context.Context, score models.Score, req dto.VerifyProjectRequest) (verdict dto.ScoreVerdict) {
	verdict = dto.ScoreVerdict{
		ScoreID:   score.ID,
		JudgeID:   score.JudgeID,
		ProjectID: score.ProjectID,
		Errors:    []dto.VerificationIssue{},
		Warnings:  []dto.VerificationIssue{},
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Uint("score_id", score.ID).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("score verification panicked")
			verdict.OverallValid = false
			verdict.Errors = append(verdict.Errors, dto.VerificationIssue{
				Code:    dto.IssueVerificationError,
				Message: fmt.Sprintf("unexpected verification failure: %v", r),
			})
		}
	}()

	if !score.HasContentHash() {
		verdict.Errors = append(verdict.Errors, dto.VerificationIssue{
			Code:    dto.IssueNoContentHash,
			Message: "score has no content hash",
		})
		return verdict
	}
	verdict.ContentHash = *score.ContentHash

	content, err := s.content.Retrieve(ctx, verdict.ContentHash)
	if err != nil {
		if errors.Is(err, ErrContentTampered) {
			verdict.ContentAccessible = true
			verdict.Errors = append(verdict.Errors, dto.VerificationIssue{
				Code:    dto.IssueContentHashMismatch,
				Message: err.Error(),
			})
			return verdict
		}
		if errors.Is(err, ErrContentParse) {
			verdict.ContentAccessible = true
			verdict.Errors = append(verdict.Errors, dto.VerificationIssue{
				Code:    dto.IssueParseError,
				Message: err.Error(),
			})
			return verdict
		}
		verdict.Errors = append(verdict.Errors, dto.VerificationIssue{
			Code:    dto.IssueContentNotAccessible,
			Message: err.Error(),
		})
		return verdict
	}
	verdict.ContentAccessible = true
	if req.IncludeRawContent {
		verdict.RawContent = content.Raw
	}

	doc := content.Document
	mismatches := integrityMismatches(doc, score, s.now())
	verdict.DataIntegrity = len(mismatches) == 0
	if !verdict.DataIntegrity {
		verdict.IntegrityMismatches = mismatches
		verdict.Errors = append(verdict.Errors, dto.VerificationIssue{
			Code:    dto.IssueIntegrityMismatch,
			Message: fmt.Sprintf("published content disagrees with the stored score on %v", mismatches),
			Fields:  mismatches,
		})
	}

	verdict.TimestampValid = s.checkTimestamp(&verdict, doc, score)

	if !req.VerifySignature {
		verdict.SignatureValid = true
	} else {
		check, err := s.signatures.Check(ctx, doc, score)
		switch {
		case err != nil:
			verdict.Errors = append(verdict.Errors, dto.VerificationIssue{
				Code:    dto.IssueVerificationError,
				Message: err.Error(),
			})
		case check.Missing:
			verdict.SignatureValid = true
			verdict.Warnings = append(verdict.Warnings, dto.VerificationIssue{
				Code:    dto.IssueSignatureMissing,
				Message: "score has no stored signature to verify",
			})
		case !check.Valid:
			verdict.Errors = append(verdict.Errors, dto.VerificationIssue{
				Code:    dto.IssueSignatureInvalid,
				Message: check.Reason,
			})
		default:
			verdict.SignatureValid = true
		}
	}

	verdict.OverallValid = overallValid(verdict)
	return verdict
}

func (s *verificationService) checkTimestamp(verdict *dto.ScoreVerdict, doc ScoreDocument, score models.Score) bool {
	if score.FinalizedAt == nil || doc.Timestamp.IsZero() {
		verdict.Warnings = append(verdict.Warnings, dto.VerificationIssue{
			Code:    dto.IssueTimestampSkew,
			Message: "finalization time or content timestamp is missing",
		})
		return false
	}

	skew := doc.Timestamp.Sub(*score.FinalizedAt)
	if skew < 0 {
		skew = -skew
	}
	if skew <= s.cfg.TimestampTolerance {
		return true
	}

	verdict.Warnings = append(verdict.Warnings, dto.VerificationIssue{
		Code:    dto.IssueTimestampSkew,
		Message: fmt.Sprintf("content timestamp differs from finalization time by %s (tolerance %s)", skew.Round(time.Second), s.cfg.TimestampTolerance),
	})
	return false
}

func integrityMismatches(doc ScoreDocument, score models.Score, now time.Time) []string {
	var mismatches []string
	if uint(doc.ProjectID) != score.ProjectID {
		mismatches = append(mismatches, FieldProjectID)
	}
	if uint(doc.JudgeID) != score.JudgeID {
		mismatches = append(mismatches, FieldJudgeID)
	}
	if doc.TotalScore == nil || score.TotalScore == nil || math.Abs(*doc.TotalScore-*score.TotalScore) > totalScoreTolerance+1e-9 {
		mismatches = append(mismatches, FieldTotalScore)
	}
	if doc.Timestamp.IsZero() || doc.Timestamp.After(now) {
		mismatches = append(mismatches, FieldTimestamp)
	}
	return mismatches
}

// overallValid excuses timestampValid=false only when the timestamp warning is
// the sole issue on the verdict.
func overallValid(verdict dto.ScoreVerdict) bool {
	if !verdict.ContentAccessible || !verdict.DataIntegrity || !verdict.SignatureValid {
		return false
	}
	if len(verdict.Errors) > 0 {
		return false
	}
	if verdict.TimestampValid {
		return true
	}
	for _, warning := range verdict.Warnings {
		if warning.Code != dto.IssueTimestampSkew {
			return false
		}
	}
	return true
}

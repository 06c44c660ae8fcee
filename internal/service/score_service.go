package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/judging-integrity-api/internal/dto"
	"github.com/noah-isme/judging-integrity-api/internal/models"
	"github.com/noah-isme/judging-integrity-api/internal/repository"
	"github.com/noah-isme/judging-integrity-api/pkg/contentstore"
)

var (
	// ErrScoreNotFound indicates the score does not exist.
	ErrScoreNotFound = errors.New("score not found")
	// ErrScoreFinalized indicates the score can no longer change.
	ErrScoreFinalized = errors.New("score already finalized")
	// ErrScoreIncomplete indicates a score is missing criteria and cannot be finalized.
	ErrScoreIncomplete = errors.New("score is missing criteria")
	// ErrEvaluationLocked indicates the evaluation period is locked and its grace period has elapsed.
	ErrEvaluationLocked = errors.New("evaluation period is locked")
)

// ScoreService lets judges record and finalize scores.
type ScoreService interface {
	Submit(ctx context.Context, req dto.SubmitScoreRequest, actor Actor) (dto.ScoreResponse, error)
	Finalize(ctx context.Context, scoreID uint, req dto.FinalizeScoreRequest, actor Actor) (dto.ScoreResponse, error)
}

type scoreService struct {
	scores      repository.ScoreRepository
	hackathons  repository.HackathonRepository
	evaluations repository.EvaluationRepository
	publisher   contentstore.Publisher
	validator   *validator.Validate
	activity    ActivityRecorder
	sanitizer   *bluemonday.Policy
	tracer      trace.Tracer
	logger      zerolog.Logger
	now         func() time.Time
}

// NewScoreService constructs the scoring service.
func NewScoreService(scores repository.ScoreRepository, hackathons repository.HackathonRepository, evaluations repository.EvaluationRepository, publisher contentstore.Publisher, validator *validator.Validate, activity ActivityRecorder, logger zerolog.Logger) ScoreService {
	return &scoreService{
		scores:      scores,
		hackathons:  hackathons,
		evaluations: evaluations,
		publisher:   publisher,
		validator:   validator,
		activity:    activity,
		sanitizer:   bluemonday.UGCPolicy(),
		tracer:      otel.Tracer("github.com/noah-isme/judging-integrity-api/internal/service/score"),
		logger:      logger.With().Str("component", "score_service").Logger(),
		now:         time.Now,
	}
}

func (s *scoreService) Submit(ctx context.Context, req dto.SubmitScoreRequest, actor Actor) (dto.ScoreResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ScoreResponse{}, err
	}

	project, err := s.hackathons.GetProject(ctx, req.ProjectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ScoreResponse{}, ErrProjectNotFound
		}
		return dto.ScoreResponse{}, err
	}

	onRoster, err := s.hackathons.IsJudge(ctx, project.HackathonID, actor.ID)
	if err != nil {
		return dto.ScoreResponse{}, err
	}
	if !CanScore(actor, onRoster) {
		return dto.ScoreResponse{}, ErrInsufficientPermissions
	}

	var score models.Score
	err = s.scores.Transaction(ctx, func(scores repository.ScoreRepository, evaluations repository.EvaluationRepository) error {
		if _, err := evaluations.LockHackathon(ctx, project.HackathonID); err != nil {
			return err
		}
		if err := s.ensureOpen(ctx, evaluations, project.HackathonID); err != nil {
			return err
		}

		var err error
		score, err = scores.FindByJudgeAndProject(ctx, actor.ID, project.ID)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			score = models.Score{JudgeID: actor.ID, ProjectID: project.ID}
		case err != nil:
			return err
		}
		if score.IsFinalized {
			return ErrScoreFinalized
		}

		assignCriterion(&score.Innovation, req.Innovation)
		assignCriterion(&score.Technical, req.Technical)
		assignCriterion(&score.Design, req.Design)
		assignCriterion(&score.Impact, req.Impact)
		assignCriterion(&score.Presentation, req.Presentation)
		if feedback := strings.TrimSpace(req.Feedback); feedback != "" {
			score.Feedback = s.sanitizer.Sanitize(feedback)
		}
		score.TotalScore = score.ComputeTotal()

		if score.ID == 0 {
			return scores.Create(ctx, &score)
		}
		if err := scores.UpdateDraft(ctx, &score); err != nil {
			if errors.Is(err, repository.ErrScoreAlreadyFinalized) {
				return ErrScoreFinalized
			}
			return err
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrScoreFinalized) && !errors.Is(err, ErrEvaluationLocked) {
			s.logger.Error().Err(err).Uint("project_id", project.ID).Uint("judge_id", actor.ID).Msg("failed to save score")
		}
		return dto.ScoreResponse{}, err
	}

	return dto.NewScoreResponse(score), nil
}

func (s *scoreService) Finalize(ctx context.Context, scoreID uint, req dto.FinalizeScoreRequest, actor Actor) (dto.ScoreResponse, error) {
	ctx, span := s.tracer.Start(ctx, "score.finalize")
	span.SetAttributes(
		attribute.Int64("score.id", int64(scoreID)),
		attribute.Int64("score.actor_id", int64(actor.ID)),
	)
	defer span.End()

	fail := func(status string, err error) (dto.ScoreResponse, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
		return dto.ScoreResponse{}, err
	}

	if err := s.validator.Struct(req); err != nil {
		return fail("validation_failed", err)
	}

	score, err := s.scores.GetByID(ctx, scoreID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail("score_not_found", ErrScoreNotFound)
		}
		return fail("score_lookup_failed", err)
	}
	if !actor.Authenticated() || score.JudgeID != actor.ID {
		return fail("forbidden", ErrInsufficientPermissions)
	}
	if score.IsFinalized {
		return fail("already_finalized", ErrScoreFinalized)
	}
	if score.TotalScore == nil {
		return fail("incomplete", ErrScoreIncomplete)
	}
	if err := s.ensureOpen(ctx, s.evaluations, score.Project.HackathonID); err != nil {
		return fail("evaluation_locked", err)
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	signedAt := now
	if req.SignedAt != nil {
		signedAt = req.SignedAt.UTC()
	}
	signature := strings.TrimSpace(req.WalletSignature)

	doc := NewScoreDocument(score, score.Project.HackathonID, signedAt, signature)
	payload, err := json.Marshal(doc)
	if err != nil {
		return fail("encode_failed", fmt.Errorf("encode score document: %w", err))
	}
	hash, err := s.publisher.Put(ctx, payload)
	if err != nil {
		s.logger.Error().Err(err).Uint("score_id", score.ID).Msg("failed to publish score document")
		return fail("publish_failed", fmt.Errorf("publish score document: %w", err))
	}

	score.IsFinalized = true
	score.FinalizedAt = &now
	score.ContentHash = &hash
	if signature != "" {
		score.WalletSignature = &signature
		score.SignatureTimestamp = &signedAt
	}
	record := models.ContentRecord{
		ContentHash:          hash,
		ClaimedSignerAddress: score.Judge.WalletAddress,
		VerificationStatus:   models.ContentStatusPending,
	}
	err = s.scores.Transaction(ctx, func(scores repository.ScoreRepository, evaluations repository.EvaluationRepository) error {
		if _, err := evaluations.LockHackathon(ctx, score.Project.HackathonID); err != nil {
			return err
		}
		if err := s.ensureOpen(ctx, evaluations, score.Project.HackathonID); err != nil {
			return err
		}
		return scores.Finalize(ctx, &score, &record)
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrScoreAlreadyFinalized):
			return fail("already_finalized", ErrScoreFinalized)
		case errors.Is(err, ErrEvaluationLocked):
			return fail("evaluation_locked", err)
		}
		return fail("finalize_failed", err)
	}

	span.SetAttributes(attribute.String("score.content_hash", hash))
	s.logger.Info().
		Uint("score_id", score.ID).
		Uint("project_id", score.ProjectID).
		Str("content_hash", hash).
		Bool("signed", signature != "").
		Msg("score finalized")

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     ActivityActionFinalize,
		EntityType: "score",
		EntityID:   &score.ID,
		Metadata: map[string]interface{}{
			"project_id":   score.ProjectID,
			"content_hash": hash,
			"signed":       signature != "",
		},
	})

	finalized, err := s.scores.GetByID(ctx, score.ID)
	if err != nil {
		return dto.NewScoreResponse(score), nil
	}
	return dto.NewScoreResponse(finalized), nil
}

// ensureOpen rejects score changes once a lock's grace period has elapsed.
func (s *scoreService) ensureOpen(ctx context.Context, evaluations repository.EvaluationRepository, hackathonID uint) error {
	lock, err := evaluations.FindActiveLock(ctx, hackathonID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if lock.InGracePeriod(s.now()) {
		return nil
	}
	return ErrEvaluationLocked
}

func assignCriterion(target **float64, value *float64) {
	if value == nil {
		return
	}
	v := *value
	*target = &v
}

package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/judging-integrity-api/internal/dto"
	"github.com/noah-isme/judging-integrity-api/internal/service"
	"github.com/noah-isme/judging-integrity-api/internal/utils"
)

// ScoreHandler lets judges submit and finalize their scores.
type ScoreHandler struct {
	service service.ScoreService
	logger  zerolog.Logger
}

// NewScoreHandler constructs a score handler.
func NewScoreHandler(service service.ScoreService, logger zerolog.Logger) *ScoreHandler {
	return &ScoreHandler{
		service: service,
		logger:  logger.With().Str("component", "score_handler").Logger(),
	}
}

// Register binds the score routes.
func (h *ScoreHandler) Register(router fiber.Router) {
	router.Put("", h.submit)
	router.Post("/:id/finalize", h.finalize)
}

func (h *ScoreHandler) submit(c *fiber.Ctx) error {
	var req dto.SubmitScoreRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	score, err := h.service.Submit(requestContext(c), req, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to submit score")
	}

	return utils.SendSuccess(c, "score saved", score)
}

func (h *ScoreHandler) finalize(c *fiber.Ctx) error {
	scoreID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid score id")
	}

	var req dto.FinalizeScoreRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
		}
	}

	score, err := h.service.Finalize(requestContext(c), scoreID, req, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to finalize score")
	}

	requestLogger(h.logger, c).Info().
		Uint("score_id", score.ID).
		Str("content_hash", derefString(score.ContentHash)).
		Msg("score finalized")

	return utils.SendSuccess(c, "score finalized", score)
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

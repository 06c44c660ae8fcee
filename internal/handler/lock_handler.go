package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/judging-integrity-api/internal/dto"
	"github.com/noah-isme/judging-integrity-api/internal/service"
	"github.com/noah-isme/judging-integrity-api/internal/utils"
)

// LockHandler exposes evaluation period lock management.
type LockHandler struct {
	service service.LockService
	logger  zerolog.Logger
}

// NewLockHandler constructs a lock handler.
func NewLockHandler(service service.LockService, logger zerolog.Logger) *LockHandler {
	return &LockHandler{
		service: service,
		logger:  logger.With().Str("component", "lock_handler").Logger(),
	}
}

// Register binds the lock routes under a hackathon group.
func (h *LockHandler) Register(router fiber.Router) {
	router.Post("/:id/lock", h.lock)
	router.Get("/:id/lock", h.status)
	router.Post("/:id/unlock", h.unlock)
	router.Get("/:id/locks", h.history)
}

func (h *LockHandler) lock(c *fiber.Ctx) error {
	hackathonID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid hackathon id")
	}

	var req dto.LockPeriodRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	result, err := h.service.LockPeriod(requestContext(c), hackathonID, req, actorFromContext(c), provenanceFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to lock evaluation period")
	}

	requestLogger(h.logger, c).Info().
		Uint("hackathon_id", hackathonID).
		Uint("lock_id", result.Lock.ID).
		Msg("evaluation period locked")

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "evaluation period locked", result)
}

func (h *LockHandler) unlock(c *fiber.Ctx) error {
	hackathonID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid hackathon id")
	}

	var req dto.UnlockPeriodRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	result, err := h.service.UnlockPeriod(requestContext(c), hackathonID, req, actorFromContext(c), provenanceFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to unlock evaluation period")
	}

	return utils.SendSuccess(c, "evaluation period unlocked", result)
}

func (h *LockHandler) status(c *fiber.Ctx) error {
	hackathonID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid hackathon id")
	}
	if !actorFromContext(c).Authenticated() {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	status, err := h.service.Status(requestContext(c), hackathonID)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load lock status")
	}

	return utils.SendSuccess(c, "lock status retrieved", status)
}

func (h *LockHandler) history(c *fiber.Ctx) error {
	hackathonID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid hackathon id")
	}

	locks, err := h.service.History(requestContext(c), hackathonID, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to load lock history")
	}

	return utils.SendSuccess(c, "lock history retrieved", locks)
}

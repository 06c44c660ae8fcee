package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/judging-integrity-api/internal/dto"
	"github.com/noah-isme/judging-integrity-api/internal/service"
	"github.com/noah-isme/judging-integrity-api/internal/utils"
)

// VerificationHandler serves score verification reports.
type VerificationHandler struct {
	service service.VerificationService
	logger  zerolog.Logger
}

// NewVerificationHandler constructs a verification handler.
func NewVerificationHandler(service service.VerificationService, logger zerolog.Logger) *VerificationHandler {
	return &VerificationHandler{
		service: service,
		logger:  logger.With().Str("component", "verification_handler").Logger(),
	}
}

// Register binds the verification route under a project group.
func (h *VerificationHandler) Register(router fiber.Router) {
	router.Get("/:id/verification", h.verify)
}

func (h *VerificationHandler) verify(c *fiber.Ctx) error {
	projectID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid project id")
	}

	req, err := verificationRequestFromQuery(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	report, err := h.service.VerifyProject(requestContext(c), projectID, req, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to verify project scores")
	}

	return utils.SendSuccess(c, "verification completed", report)
}

func verificationRequestFromQuery(c *fiber.Ctx) (dto.VerifyProjectRequest, error) {
	var req dto.VerifyProjectRequest

	if raw := queryValue(c, "judgeId", "judge_id"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || parsed == 0 {
			return req, fiber.NewError(fiber.StatusBadRequest, "invalid judge id")
		}
		judgeID := uint(parsed)
		req.JudgeID = &judgeID
	}

	includeRaw, err := parseQueryBool(c, false, "includeRawContent", "include_raw_content")
	if err != nil {
		return req, fiber.NewError(fiber.StatusBadRequest, "invalid includeRawContent flag")
	}
	verifySignature, err := parseQueryBool(c, true, "verifySignature", "verify_signature")
	if err != nil {
		return req, fiber.NewError(fiber.StatusBadRequest, "invalid verifySignature flag")
	}

	req.IncludeRawContent = includeRaw
	req.VerifySignature = verifySignature
	return req, nil
}

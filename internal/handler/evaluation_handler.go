package handler

import (
	_ "embed"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/noah-isme/teacher-eval-api/internal/dto"
	"github.com/noah-isme/teacher-eval-api/internal/middleware"
	"github.com/noah-isme/teacher-eval-api/internal/models"
	"github.com/noah-isme/teacher-eval-api/internal/service"
	"github.com/noah-isme/teacher-eval-api/internal/utils"
)

//go:embed schemas/evaluation_submit.schema.json
var evaluationSubmitSchema string

// EvaluationHandler accepts evaluation submissions for the three forms.
type EvaluationHandler struct {
	service service.EvaluationService
	schema  *jsonschema.Schema
	logger  zerolog.Logger
}

// NewEvaluationHandler builds an evaluation handler. The payload schema is
// compiled once at construction.
func NewEvaluationHandler(service service.EvaluationService, logger zerolog.Logger) *EvaluationHandler {
	return &EvaluationHandler{
		service: service,
		schema:  jsonschema.MustCompileString("evaluation_submit.schema.json", evaluationSubmitSchema),
		logger:  logger.With().Str("component", "evaluation_handler").Logger(),
	}
}

// Register attaches the submission routes. Each form is restricted to the
// role that fills it in; submitGuards run after the role check.
func (h *EvaluationHandler) Register(router fiber.Router, submitGuards ...fiber.Handler) {
	forms := []struct {
		path string
		role string
		kind models.EvaluationType
	}{
		{path: "/student", role: models.RoleStudent, kind: models.EvaluationTypeStudent},
		{path: "/peer", role: models.RoleTeacher, kind: models.EvaluationTypePeer},
		{path: "/department", role: models.RoleDepartmentHead, kind: models.EvaluationTypeDepartmentHead},
	}

	for _, form := range forms {
		handlers := []fiber.Handler{middleware.RequireRole(form.role)}
		handlers = append(handlers, submitGuards...)
		handlers = append(handlers, h.submit(form.kind))
		router.Post(form.path, handlers...)
	}

	router.Get("/mine", middleware.WithAuth(h.mine, middleware.AuthOptions{RequireUser: true}))
}

func (h *EvaluationHandler) submit(kind models.EvaluationType) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var document interface{}
		if err := json.Unmarshal(c.Body(), &document); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
		}
		if err := h.schema.Validate(document); err != nil {
			return utils.Fail(c, fiber.StatusBadRequest, "request does not match the submission schema", schemaDetails(err))
		}

		var payload dto.EvaluationSubmitRequest
		if err := json.Unmarshal(c.Body(), &payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
		}

		evaluation, err := h.service.Submit(c.UserContext(), evaluatorFromContext(c), kind, payload)
		if err != nil {
			return h.handleError(c, err)
		}

		return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "evaluation submitted", evaluation)
	}
}

func (h *EvaluationHandler) mine(c *fiber.Ctx) error {
	evaluations, err := h.service.ListMine(c.UserContext(), userIDFromContext(c), c.Query("period"))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "evaluations retrieved", evaluations)
}

func (h *EvaluationHandler) handleError(c *fiber.Ctx, err error) error {
	var answerErr *service.AnswerError
	questionDetails := func(code string) fiber.Map {
		details := fiber.Map{"code": code}
		if errors.As(err, &answerErr) {
			details["question_code"] = answerErr.QuestionCode
		}
		return details
	}

	switch {
	case errors.Is(err, service.ErrDuplicateSubmission):
		return utils.Fail(c, fiber.StatusConflict, "evaluation already submitted for this teacher and period", fiber.Map{"code": "duplicate_submission"})
	case errors.Is(err, service.ErrFormMismatch):
		return utils.Fail(c, fiber.StatusUnprocessableEntity, err.Error(), questionDetails("form_mismatch"))
	case errors.Is(err, service.ErrIncompleteForm):
		return utils.Fail(c, fiber.StatusUnprocessableEntity, err.Error(), questionDetails("incomplete_form"))
	case errors.Is(err, service.ErrInvalidScore):
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), questionDetails("invalid_score"))
	case errors.Is(err, service.ErrSelfEvaluation):
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), fiber.Map{"code": "self_evaluation"})
	case errors.Is(err, service.ErrBlankPeriod):
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), fiber.Map{"code": "blank_period"})
	}

	if details, ok := validationDetails(err); ok {
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", details)
	}

	requestLogger(h.logger, c).Error().Err(err).Msg("evaluation request failed")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}

func schemaDetails(err error) []fiber.Map {
	var validationErr *jsonschema.ValidationError
	if !errors.As(err, &validationErr) {
		return []fiber.Map{{"error": err.Error()}}
	}

	output := validationErr.BasicOutput()
	details := make([]fiber.Map, 0, len(output.Errors))
	for _, item := range output.Errors {
		if item.KeywordLocation == "" && len(output.Errors) > 1 {
			continue
		}
		details = append(details, fiber.Map{
			"field": item.InstanceLocation,
			"error": item.Error,
		})
	}
	return details
}

package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/teacher-eval-api/internal/dto"
	"github.com/noah-isme/teacher-eval-api/internal/middleware"
	"github.com/noah-isme/teacher-eval-api/internal/models"
	"github.com/noah-isme/teacher-eval-api/internal/service"
	"github.com/noah-isme/teacher-eval-api/internal/utils"
)

// AssignmentHandler manages peer and student evaluation assignments.
type AssignmentHandler struct {
	service service.AssignmentService
	logger  zerolog.Logger
}

// NewAssignmentHandler constructs an assignment handler.
func NewAssignmentHandler(service service.AssignmentService, logger zerolog.Logger) *AssignmentHandler {
	return &AssignmentHandler{
		service: service,
		logger:  logger.With().Str("component", "assignment_handler").Logger(),
	}
}

// Register attaches the assignment routes with their role guards.
func (h *AssignmentHandler) Register(router fiber.Router) {
	router.Post("/peer", middleware.RequireRole(models.RoleAdmin, models.RoleDepartmentHead), h.createPeer)
	router.Get("/peer/mine", middleware.RequireRole(models.RoleTeacher), h.listPeer)
	router.Post("/student", middleware.RequireRole(models.RoleAdmin), h.createStudent)
	router.Get("/student/mine", middleware.RequireRole(models.RoleStudent), h.listStudent)
}

func (h *AssignmentHandler) createPeer(c *fiber.Ctx) error {
	var payload dto.PeerAssignmentCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	assignment, err := h.service.CreatePeer(c.UserContext(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "peer assignment created", assignment)
}

func (h *AssignmentHandler) listPeer(c *fiber.Ctx) error {
	activeOnly := c.QueryBool("active", true)

	assignments, err := h.service.ListPeerForEvaluator(c.UserContext(), userIDFromContext(c), activeOnly)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "peer assignments retrieved", assignments)
}

func (h *AssignmentHandler) createStudent(c *fiber.Ctx) error {
	var payload dto.EvaluationAssignmentCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	assignment, err := h.service.CreateStudent(c.UserContext(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "evaluation assignment created", assignment)
}

func (h *AssignmentHandler) listStudent(c *fiber.Ctx) error {
	assignments, err := h.service.ListStudentPending(c.UserContext(), userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "pending evaluations retrieved", assignments)
}

func (h *AssignmentHandler) handleError(c *fiber.Ctx, err error) error {
	if errors.Is(err, service.ErrAssignmentExists) {
		return utils.SendError(c, fiber.StatusConflict, "assignment already exists")
	}
	if details, ok := validationDetails(err); ok {
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", details)
	}

	requestLogger(h.logger, c).Error().Err(err).Msg("assignment request failed")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}

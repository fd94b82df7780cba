package handler

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/teacher-eval-api/internal/dto"
	"github.com/noah-isme/teacher-eval-api/internal/jobs"
	"github.com/noah-isme/teacher-eval-api/internal/middleware"
	"github.com/noah-isme/teacher-eval-api/internal/models"
	"github.com/noah-isme/teacher-eval-api/internal/service"
	"github.com/noah-isme/teacher-eval-api/internal/utils"
)

const failedJobsLimit = 50

// QueueInspector exposes recompute queue state to administrators.
type QueueInspector interface {
	Depth(ctx context.Context) (jobs.Depth, error)
	Failed(ctx context.Context, limit int64) ([]jobs.Job, error)
}

// StatsHandler serves cached teacher statistics and recompute requests.
type StatsHandler struct {
	stats     service.StatsService
	enqueuer  service.RecomputeEnqueuer
	queue     QueueInspector
	audit     service.AuditRecorder
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewStatsHandler constructs a stats handler. queue and audit may be nil.
func NewStatsHandler(stats service.StatsService, enqueuer service.RecomputeEnqueuer, queue QueueInspector, audit service.AuditRecorder, validate *validator.Validate, logger zerolog.Logger) *StatsHandler {
	return &StatsHandler{
		stats:     stats,
		enqueuer:  enqueuer,
		queue:     queue,
		audit:     audit,
		validator: validate,
		logger:    logger.With().Str("component", "stats_handler").Logger(),
	}
}

// Register attaches the read routes. Teachers may only read their own stats.
func (h *StatsHandler) Register(router fiber.Router) {
	guard := middleware.RequireSelfOrRole("id", models.RoleAdmin, models.RoleDepartmentHead)
	router.Get("/teachers/:id", guard, h.get)
	router.Get("/teachers/:id/courses", guard, h.listCourses)
}

// RegisterAdmin attaches the recompute and queue inspection routes.
func (h *StatsHandler) RegisterAdmin(router fiber.Router) {
	router.Post("/stats/recompute", h.recompute)
	router.Get("/stats/queue", h.queueState)
}

func (h *StatsHandler) get(c *fiber.Ctx) error {
	teacherID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	period := c.Query("period")
	if period == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "period is required")
	}
	courseID, err := parseQueryUint(c, "course_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	stats, err := h.stats.Get(c.UserContext(), teacherID, period, courseID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "stats retrieved", stats)
}

func (h *StatsHandler) listCourses(c *fiber.Ctx) error {
	teacherID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	period := c.Query("period")
	if period == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "period is required")
	}

	stats, err := h.stats.ListByTeacher(c.UserContext(), teacherID, period)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "stats retrieved", stats)
}

func (h *StatsHandler) recompute(c *fiber.Ctx) error {
	var payload dto.RecomputeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	jobID, err := h.enqueuer.Enqueue(c.UserContext(), payload.TeacherID, payload.Period)
	if err != nil {
		return h.handleError(c, err)
	}

	if h.audit != nil {
		actorID := userIDFromContext(c)
		if _, err := h.audit.Record(c.UserContext(), service.AuditEntry{
			ActorID:    &actorID,
			ActorRole:  userRoleFromContext(c),
			Action:     service.AuditActionRecomputeRequested,
			Level:      models.AuditLevelInfo,
			EntityType: "stats_cache",
			Details: map[string]interface{}{
				"jobId":     jobID,
				"teacherId": payload.TeacherID,
				"period":    payload.Period,
			},
		}); err != nil {
			requestLogger(h.logger, c).Warn().Err(err).Msg("failed to audit recompute request")
		}
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "recompute scheduled", dto.RecomputeResponse{
		JobID:     jobID,
		TeacherID: payload.TeacherID,
		Period:    payload.Period,
	})
}

func (h *StatsHandler) queueState(c *fiber.Ctx) error {
	if h.queue == nil {
		return utils.SendError(c, fiber.StatusServiceUnavailable, "recompute queue unavailable")
	}

	depth, err := h.queue.Depth(c.UserContext())
	if err != nil {
		return h.handleError(c, err)
	}
	failed, err := h.queue.Failed(c.UserContext(), failedJobsLimit)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "queue state retrieved", fiber.Map{
		"depth":  depth,
		"failed": failed,
	})
}

func (h *StatsHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrStatsNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "no stats recorded for this teacher and period")
	case errors.Is(err, jobs.ErrInvalidJob):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if details, ok := validationDetails(err); ok {
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", details)
	}

	requestLogger(h.logger, c).Error().Err(err).Msg("stats request failed")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}

package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/teacher-eval-api/internal/dto"
	"github.com/noah-isme/teacher-eval-api/internal/service"
	"github.com/noah-isme/teacher-eval-api/internal/utils"
)

// AdminHandler serves the directory, schedule window and audit log routes.
type AdminHandler struct {
	directory service.DirectoryService
	audit     service.AuditService
	logger    zerolog.Logger
}

// NewAdminHandler constructs an admin handler.
func NewAdminHandler(directory service.DirectoryService, audit service.AuditService, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		directory: directory,
		audit:     audit,
		logger:    logger.With().Str("component", "admin_handler").Logger(),
	}
}

// Register attaches the admin routes. The caller guards the group.
func (h *AdminHandler) Register(router fiber.Router) {
	router.Post("/users", h.createUser)
	router.Get("/users", h.listUsers)
	router.Post("/schedule-windows", h.createWindow)
	router.Get("/schedule-windows", h.listWindows)
	router.Get("/audit-logs", h.listAuditLogs)
}

func (h *AdminHandler) createUser(c *fiber.Ctx) error {
	var payload dto.UserCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	user, err := h.directory.CreateUser(c.UserContext(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "user created", user)
}

func (h *AdminHandler) listUsers(c *fiber.Ctx) error {
	users, err := h.directory.ListUsers(c.UserContext(), strings.ToLower(strings.TrimSpace(c.Query("role"))))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "users retrieved", users)
}

func (h *AdminHandler) createWindow(c *fiber.Ctx) error {
	var payload dto.ScheduleWindowCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	window, err := h.directory.CreateWindow(c.UserContext(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "schedule window created", window)
}

func (h *AdminHandler) listWindows(c *fiber.Ctx) error {
	windows, err := h.directory.ListWindows(c.UserContext())
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "schedule windows retrieved", windows)
}

func (h *AdminHandler) listAuditLogs(c *fiber.Ctx) error {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	actorID, err := parseQueryUint(c, "actor_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	req := dto.AuditLogListRequest{
		Page:     page,
		PageSize: pageSize,
		Action:   c.Query("action"),
		Level:    strings.ToLower(c.Query("level")),
	}
	if actorID != nil {
		req.ActorID = *actorID
	}

	logs, err := h.audit.List(c.UserContext(), req)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "audit logs retrieved", logs)
}

func (h *AdminHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrUserExists):
		return utils.SendError(c, fiber.StatusConflict, "user already exists")
	case errors.Is(err, service.ErrWindowExists):
		return utils.SendError(c, fiber.StatusConflict, "schedule window already exists for this period")
	}

	if details, ok := validationDetails(err); ok {
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", details)
	}

	requestLogger(h.logger, c).Error().Err(err).Msg("admin request failed")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}

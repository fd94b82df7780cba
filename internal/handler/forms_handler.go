package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/teacher-eval-api/internal/models"
	"github.com/noah-isme/teacher-eval-api/internal/scoring"
	"github.com/noah-isme/teacher-eval-api/internal/utils"
)

// FormsHandler publishes the fixed question catalog.
type FormsHandler struct{}

// NewFormsHandler builds a forms handler.
func NewFormsHandler() *FormsHandler {
	return &FormsHandler{}
}

// Register attaches the catalog routes.
func (h *FormsHandler) Register(router fiber.Router) {
	router.Get("/:kind", h.get)
}

func (h *FormsHandler) get(c *fiber.Ctx) error {
	kind := models.EvaluationType(strings.ToLower(strings.TrimSpace(c.Params("kind"))))
	if kind == "department" {
		kind = models.EvaluationTypeDepartmentHead
	}

	form, ok := scoring.FormFor(kind)
	if !ok {
		return utils.SendError(c, fiber.StatusNotFound, "unknown evaluation form")
	}

	return utils.SendSuccess(c, "form retrieved", form)
}

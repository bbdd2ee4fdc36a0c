package verify

import (
	"errors"

	"doltsync/core/logger"
	"doltsync/core/syncer"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for parity verification.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the verify routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/verify")
	group.Get("/:table", h.HandleVerifyTable)
}

// HandleVerifyTable returns the parity report for a single table. The
// optional target_table query parameter overrides the target-side name.
func (h *Handler) HandleVerifyTable(c *fiber.Ctx) error {
	table := c.Params("table")
	l := logger.WithRayID(h.service.logger, c)

	report, err := h.service.Check(c.Context(), table, c.Query("target_table"))
	if err != nil {
		l.Error("Verification failed", zap.String("table", table), zap.Error(err))
		status := fiber.StatusInternalServerError
		var refErr *syncer.RefNotFoundError
		var schemaErr *syncer.SchemaMismatchError
		if errors.As(err, &refErr) || errors.As(err, &schemaErr) {
			status = fiber.StatusNotFound
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(report)
}

package export

import (
	"errors"

	"doltsync/core/logger"
	"doltsync/core/syncer"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for snapshot export and import.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the export routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/export")
	group.Get("/:table", h.HandleListSnapshots)
	group.Post("/:table", h.HandleExport)
	group.Post("/:table/import", h.HandleImport)
	group.Delete("/:table", h.HandleRemove)
}

// HandleExport snapshots the table as of the requested ref (the head when
// absent) and uploads it as a CSV object.
func (h *Handler) HandleExport(c *fiber.Ctx) error {
	table := c.Params("table")
	l := logger.WithRayID(h.service.logger, c)

	var body struct {
		To string `json:"to"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
	}

	result, err := h.service.Export(c.Context(), table, body.To)
	if err != nil {
		l.Error("Export failed", zap.String("table", table), zap.Error(err))
		return c.Status(statusFor(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(result)
}

// HandleImport applies a stored snapshot back to the target database.
func (h *Handler) HandleImport(c *fiber.Ctx) error {
	table := c.Params("table")
	l := logger.WithRayID(h.service.logger, c)

	var body struct {
		Object     string `json:"object"`
		OnConflict string `json:"on_conflict"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if body.Object == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "object is required",
		})
	}

	result, err := h.service.Import(c.Context(), table, body.Object, syncer.OnConflict(body.OnConflict))
	if err != nil {
		l.Error("Import failed", zap.String("object", body.Object), zap.Error(err))
		resp := fiber.Map{"error": err.Error()}
		if result != nil && result.RowsApplied > 0 {
			resp["result"] = result
		}
		return c.Status(statusFor(err)).JSON(resp)
	}

	return c.JSON(result)
}

// HandleListSnapshots lists the stored snapshots of a table, newest first.
func (h *Handler) HandleListSnapshots(c *fiber.Ctx) error {
	table := c.Params("table")
	l := logger.WithRayID(h.service.logger, c)

	snaps, err := h.service.Snapshots(c.Context(), table)
	if err != nil {
		l.Error("Snapshot listing failed", zap.String("table", table), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{"snapshots": snaps})
}

// HandleRemove deletes one snapshot (?object=...) or, without an object, all
// snapshots of the table.
func (h *Handler) HandleRemove(c *fiber.Ctx) error {
	table := c.Params("table")
	l := logger.WithRayID(h.service.logger, c)

	if object := c.Query("object"); object != "" {
		if err := h.service.Remove(c.Context(), table, object); err != nil {
			l.Error("Snapshot removal failed", zap.String("object", object), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"removed": 1})
	}

	count, err := h.service.RemoveAll(c.Context(), table)
	if err != nil {
		l.Error("Snapshot removal failed", zap.String("table", table), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{"removed": count})
}

// statusFor maps sync-taxonomy errors onto HTTP statuses.
func statusFor(err error) int {
	var refErr *syncer.RefNotFoundError
	var schemaErr *syncer.SchemaMismatchError
	if errors.As(err, &refErr) || errors.As(err, &schemaErr) {
		return fiber.StatusNotFound
	}
	return fiber.StatusInternalServerError
}

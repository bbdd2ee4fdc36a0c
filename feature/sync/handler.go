package sync

import (
	"errors"
	"time"

	"doltsync/core/logger"
	"doltsync/core/syncer"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for sync jobs and cursors.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the sync and cursor routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/sync")
	group.Post("/", h.HandleSyncAll)
	group.Post("/:table", h.HandleSyncTable)

	cursors := app.Group("/cursors")
	cursors.Get("/", h.HandleListCursors)
	cursors.Post("/reset", h.HandleResetCursor)
}

// HandleSyncTable runs one sync job for the table in the path. The optional
// JSON body carries per-job overrides (direction, to, batch_size, ...).
func (h *Handler) HandleSyncTable(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	var params Params
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&params); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
	}
	params.Table = c.Params("table")

	result, err := h.service.Sync(c.Context(), params)
	if err != nil {
		l.Error("Sync failed", zap.String("table", params.Table), zap.Error(err))
		resp := fiber.Map{"error": err.Error()}
		if result != nil {
			resp["result"] = result
		}
		return c.Status(statusFor(err)).JSON(resp)
	}

	return c.JSON(result)
}

// HandleSyncAll runs every configured (or requested) table as an independent
// job. Per-table failures are reported in the body, not as an HTTP error.
func (h *Handler) HandleSyncAll(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	var params AllParams
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&params); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
	}

	outcomes, err := h.service.SyncAll(c.Context(), params)
	if err != nil {
		l.Error("Sync run failed to start", zap.Error(err))
		return c.Status(statusFor(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	resp := make([]outcomeResponse, 0, len(outcomes))
	failed := 0
	for _, o := range outcomes {
		r := outcomeResponse{
			Table:     o.Request.Mapping.SourceTable,
			Direction: string(o.Request.Direction),
			Result:    o.Result,
		}
		if o.Err != nil {
			r.Error = o.Err.Error()
			failed++
		}
		resp = append(resp, r)
	}
	return c.JSON(fiber.Map{
		"outcomes": resp,
		"failed":   failed,
	})
}

// HandleListCursors returns every persisted cursor plus the keys of jobs
// currently in flight.
func (h *Handler) HandleListCursors(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	cursors, err := h.service.Cursors(c.Context())
	if err != nil {
		l.Error("Cursor listing failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	resp := make([]cursorResponse, 0, len(cursors))
	for _, cur := range cursors {
		resp = append(resp, cursorResponse{
			Table:      cur.Key.Table,
			TargetID:   cur.Key.TargetID,
			Direction:  string(cur.Key.Direction),
			LastCommit: cur.LastCommit,
			UpdatedAt:  cur.UpdatedAt,
		})
	}
	return c.JSON(fiber.Map{
		"cursors": resp,
		"running": h.service.Running(),
	})
}

// HandleResetCursor deletes the cursor named in the body so the next sync of
// that key runs from scratch.
func (h *Handler) HandleResetCursor(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	var body struct {
		Table     string `json:"table"`
		TargetID  string `json:"target_id"`
		Direction string `json:"direction"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if body.Table == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "table is required",
		})
	}

	key := syncer.CursorKey{
		Table:     body.Table,
		TargetID:  body.TargetID,
		Direction: syncer.Direction(body.Direction),
	}
	if err := h.service.ResetCursor(c.Context(), key); err != nil {
		l.Error("Cursor reset failed", zap.String("table", body.Table), zap.Error(err))
		return c.Status(statusFor(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{"reset": true})
}

type outcomeResponse struct {
	Table     string         `json:"table"`
	Direction string         `json:"direction"`
	Result    *syncer.Result `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}

type cursorResponse struct {
	Table      string    `json:"table"`
	TargetID   string    `json:"target_id"`
	Direction  string    `json:"direction"`
	LastCommit string    `json:"last_commit"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// statusFor maps the sync error taxonomy onto HTTP statuses: key conflicts
// are 409, unresolvable refs 404, everything else 500.
func statusFor(err error) int {
	var conflict *JobConflictError
	if errors.As(err, &conflict) {
		return fiber.StatusConflict
	}
	var refErr *syncer.RefNotFoundError
	if errors.As(err, &refErr) {
		return fiber.StatusNotFound
	}
	return fiber.StatusInternalServerError
}

package handlers

import (
	"agenticdebugger/internal/models"
	"agenticdebugger/internal/services"

	"github.com/gofiber/fiber/v2"
)

// ObservabilityHandler serves metrics, health and the request log
type ObservabilityHandler struct {
	metrics  *services.Metrics
	requests *services.RequestLogger
}

// NewObservabilityHandler creates an observability handler
func NewObservabilityHandler(metrics *services.Metrics, requests *services.RequestLogger) *ObservabilityHandler {
	return &ObservabilityHandler{metrics: metrics, requests: requests}
}

// Metrics handles GET /metrics
func (h *ObservabilityHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(h.metrics.Snapshot())
}

// Health handles GET /health. Anything but healthy is served as 503.
func (h *ObservabilityHandler) Health(c *fiber.Ctx) error {
	report := h.metrics.Health()
	status := fiber.StatusOK
	if !report.OK() {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(report)
}

// Logs handles GET /logs?path=&minStatus=&maxStatus=&limit=
func (h *ObservabilityHandler) Logs(c *fiber.Ctx) error {
	filter := models.LogFilter{
		PathContains: c.Query("path"),
		MinStatus:    c.QueryInt("minStatus"),
		MaxStatus:    c.QueryInt("maxStatus"),
		Limit:        c.QueryInt("limit"),
	}
	if filter.MinStatus > 0 && filter.MaxStatus > 0 && filter.MinStatus > filter.MaxStatus {
		return fiber.NewError(fiber.StatusBadRequest, "minStatus must not exceed maxStatus")
	}

	entries := h.requests.List(filter)
	return c.JSON(fiber.Map{
		"logs":     entries,
		"count":    len(entries),
		"capacity": h.requests.Capacity(),
	})
}

// LogEntry handles GET /logs/:id
func (h *ObservabilityHandler) LogEntry(c *fiber.Ctx) error {
	entry, ok := h.requests.Get(c.Params("id"))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "log entry not found")
	}
	return c.JSON(entry)
}

// ClearLogs handles DELETE /logs
func (h *ObservabilityHandler) ClearLogs(c *fiber.Ctx) error {
	cleared := h.requests.Clear()
	return c.JSON(fiber.Map{
		"ok":      true,
		"cleared": cleared,
	})
}

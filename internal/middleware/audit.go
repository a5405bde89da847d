package middleware

import (
	"log"
	"strings"
	"time"

	"agenticdebugger/internal/logging"
	"agenticdebugger/internal/services"

	"github.com/gofiber/fiber/v2"
)

// Audit records every request in the request log and the metrics. Register it
// before any other middleware: errors returned further down the chain are
// rendered here so the logged status matches what the client receives, and the
// entry is completed even when a handler panics past the recover middleware.
func Audit(requests *services.RequestLogger, metrics *services.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		method := c.Method()
		path := strings.Clone(c.Path())
		pending := requests.Begin(method, path, c.Body())

		defer func() {
			if r := recover(); r != nil {
				log.Printf("❌ [AUDIT] Panic escaped handler chain on %s %s: %v", method, path, r)
				c.Status(fiber.StatusInternalServerError)
				_ = c.JSON(fiber.Map{"ok": false, "error": "internal server error"})
			}

			status := c.Response().StatusCode()
			entry := requests.Complete(pending, status, c.Response().Body())
			logging.WithRequest(entry.ID, method, path).Debug("request completed",
				"status", status, "duration_ms", entry.DurationMs)
			if metrics != nil && path != "/health" {
				metrics.RecordRequest(method, EndpointKey(path), status, time.Since(start))
			}
		}()

		if err := c.Next(); err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		return nil
	}
}

// routeTemplates collapse parameterised paths so per-endpoint counters stay bounded
var routeTemplates = []struct {
	prefix   string
	template string
}{
	{"/proxy/", "/proxy/:instanceId"},
	{"/logs/", "/logs/:id"},
	{"/output/", "/output/:pane"},
}

// EndpointKey normalises a request path into the key used by per-endpoint metrics
func EndpointKey(path string) string {
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	for _, rt := range routeTemplates {
		if strings.HasPrefix(path, rt.prefix) && len(path) > len(rt.prefix) {
			return rt.template
		}
	}
	return path
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"agenticdebugger/internal/automation"
	"agenticdebugger/internal/engine"
	"agenticdebugger/internal/models"
	"agenticdebugger/internal/services"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler renders every error as {"ok":false,"error":msg}. Domain errors
// are mapped to statuses here so handlers can return them unwrapped.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status := StatusFor(err)
	if status >= fiber.StatusInternalServerError && status != fiber.StatusServiceUnavailable {
		log.Printf("❌ [HTTP] %s %s failed: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{
		"ok":    false,
		"error": err.Error(),
	})
}

// StatusFor maps an error to its HTTP status
func StatusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, models.ErrInvalidCommand),
		errors.Is(err, models.ErrUnknownAction),
		errors.Is(err, services.ErrProxyToSelf),
		errors.Is(err, services.ErrInvalidInstance):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrInstanceNotFound),
		errors.Is(err, engine.ErrProjectNotFound),
		errors.Is(err, engine.ErrPaneNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, engine.ErrNotInBreakMode):
		return fiber.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	case errors.Is(err, automation.ErrStopped):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

// parseBody decodes a JSON body regardless of Content-Type, reporting failures as 400
func parseBody(c *fiber.Ctx, out any) error {
	if err := json.Unmarshal(c.Body(), out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body: "+err.Error())
	}
	return nil
}

package handlers

import (
	"log/slog"

	"agenticdebugger/internal/models"
	"agenticdebugger/internal/services"

	"github.com/gofiber/fiber/v2"
)

// DebuggerHandler serves state, commands and host reads
type DebuggerHandler struct {
	executor  *services.CommandExecutor
	batches   *services.BatchExecutor
	cache     *services.SnapshotCache
	instances *InstanceHandler
}

// NewDebuggerHandler creates a debugger handler. instances enables routing
// commands by instanceId and may be nil.
func NewDebuggerHandler(executor *services.CommandExecutor, cache *services.SnapshotCache, instances *InstanceHandler) *DebuggerHandler {
	return &DebuggerHandler{
		executor:  executor,
		batches:   services.NewBatchExecutor(executor),
		cache:     cache,
		instances: instances,
	}
}

// State handles GET /state. ?live=true recaptures on the automation thread.
func (h *DebuggerHandler) State(c *fiber.Ctx) error {
	if c.QueryBool("live") {
		snap, err := h.executor.LiveSnapshot(c.UserContext())
		if err != nil {
			return err
		}
		return c.JSON(snap)
	}
	return c.JSON(h.cache.Get())
}

// Command handles POST /command
func (h *DebuggerHandler) Command(c *fiber.Ctx) error {
	var req models.CommandRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	if h.instances != nil && h.instances.routesElsewhere(req.InstanceID) {
		return h.instances.forward(c, req.InstanceID, "/command")
	}

	cmd, err := models.NewCommand(req)
	if err != nil {
		return err
	}

	resp := h.executor.Execute(c.UserContext(), cmd)
	if !resp.OK {
		slog.Debug("command failed", "action", cmd.Kind, "message", resp.Message)
	}
	return c.JSON(resp)
}

// Batch handles POST /batch
func (h *DebuggerHandler) Batch(c *fiber.Ctx) error {
	var req models.BatchRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if len(req.Commands) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "commands must not be empty")
	}
	return c.JSON(h.batches.Execute(c.UserContext(), req))
}

// Errors handles GET /errors
func (h *DebuggerHandler) Errors(c *fiber.Ctx) error {
	list, err := h.executor.Errors(c.UserContext())
	if err != nil {
		return err
	}
	if list == nil {
		list = []models.BuildError{}
	}
	return c.JSON(fiber.Map{
		"errors": list,
		"count":  len(list),
	})
}

// Projects handles GET /projects
func (h *DebuggerHandler) Projects(c *fiber.Ctx) error {
	list, err := h.executor.Projects(c.UserContext())
	if err != nil {
		return err
	}
	if list == nil {
		list = []models.ProjectInfo{}
	}
	return c.JSON(fiber.Map{
		"projects": list,
		"count":    len(list),
	})
}

// OutputPanes handles GET /output
func (h *DebuggerHandler) OutputPanes(c *fiber.Ctx) error {
	panes, err := h.executor.OutputPanes(c.UserContext())
	if err != nil {
		return err
	}
	if panes == nil {
		panes = []string{}
	}
	return c.JSON(fiber.Map{"panes": panes})
}

// Output handles GET /output/:pane and returns the pane text as text/plain
func (h *DebuggerHandler) Output(c *fiber.Ctx) error {
	text, err := h.executor.Output(c.UserContext(), c.Params("pane"))
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString(text)
}

// Configure handles POST /configure
func (h *DebuggerHandler) Configure(c *fiber.Ctx) error {
	var req models.ConfigureRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	message, err := h.executor.Configure(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"ok":      true,
		"message": message,
	})
}

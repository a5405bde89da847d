package handlers

import (
	"fmt"
	"log"
	"time"

	"agenticdebugger/internal/models"
	"agenticdebugger/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/proxy"
)

// Version is reported by GET / and the API description
const Version = "1.0.0"

// InstanceHandler serves discovery, registration and cross-instance proxying
type InstanceHandler struct {
	registry   *services.InstanceRegistry
	keyHeader  string
	defaultKey string
	apiKey     func() string
	timeout    time.Duration
}

// NewInstanceHandler creates an instance handler. apiKey returns the key
// attached to proxied requests.
func NewInstanceHandler(registry *services.InstanceRegistry, keyHeader, defaultKey string, apiKey func() string, timeout time.Duration) *InstanceHandler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &InstanceHandler{
		registry:   registry,
		keyHeader:  keyHeader,
		defaultKey: defaultKey,
		apiKey:     apiKey,
		timeout:    timeout,
	}
}

func (h *InstanceHandler) requirePrimary() error {
	if !h.registry.IsPrimary() {
		return fiber.NewError(fiber.StatusNotFound, "this endpoint is served by the primary bridge only")
	}
	return nil
}

// Info handles GET /
func (h *InstanceHandler) Info(c *fiber.Ctx) error {
	self := h.registry.Self()
	role := "secondary"
	if self.IsPrimary {
		role = "primary"
	}
	return c.JSON(fiber.Map{
		"name":          "agentic-debugger-bridge",
		"version":       Version,
		"instanceId":    self.ID,
		"pid":           self.PID,
		"port":          self.Port,
		"role":          role,
		"isPrimary":     self.IsPrimary,
		"solutionName":  self.SolutionName,
		"keyHeader":     h.keyHeader,
		"defaultApiKey": h.defaultKey,
		"docs":          "/docs",
	})
}

// List handles GET /instances
func (h *InstanceHandler) List(c *fiber.Ctx) error {
	if err := h.requirePrimary(); err != nil {
		return err
	}
	list := h.registry.List()
	return c.JSON(fiber.Map{
		"instances": list,
		"count":     len(list),
	})
}

// Register handles POST /register, the secondaries' heartbeat
func (h *InstanceHandler) Register(c *fiber.Ctx) error {
	if err := h.requirePrimary(); err != nil {
		return err
	}
	var info models.InstanceInfo
	if err := parseBody(c, &info); err != nil {
		return err
	}

	stored, created, err := h.registry.Register(info)
	if err != nil {
		return err
	}
	if created {
		return c.Status(fiber.StatusCreated).JSON(stored)
	}
	return c.JSON(stored)
}

// Proxy handles ANY /proxy/:instanceId/*, forwarding the request verbatim to
// the named instance
func (h *InstanceHandler) Proxy(c *fiber.Ctx) error {
	if err := h.requirePrimary(); err != nil {
		return err
	}
	return h.forward(c, c.Params("instanceId"), "/"+c.Params("*"))
}

// routesElsewhere reports whether a command addressed to instanceID must be forwarded
func (h *InstanceHandler) routesElsewhere(instanceID string) bool {
	return instanceID != "" && instanceID != h.registry.Self().ID
}

func (h *InstanceHandler) forward(c *fiber.Ctx, instanceID, path string) error {
	target, err := h.registry.Lookup(instanceID)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://127.0.0.1:%d%s", target.Port, path)
	if q := c.Request().URI().QueryString(); len(q) > 0 {
		url += "?" + string(q)
	}

	key := h.apiKey()
	if key == "" {
		key = h.defaultKey
	}
	c.Request().Header.Set(h.keyHeader, key)

	if err := proxy.DoTimeout(c, url, h.timeout); err != nil {
		log.Printf("⚠️  [PROXY] %s %s -> instance %s (port %d) failed: %v", c.Method(), path, target.ID, target.Port, err)
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("instance %s is unreachable: %v", target.ID, err))
	}
	c.Response().Header.Del(fiber.HeaderServer)
	return nil
}

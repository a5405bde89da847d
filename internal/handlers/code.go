package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"agenticdebugger/internal/codeintel"

	"github.com/gofiber/fiber/v2"
)

// CodeHandler exposes the code-intelligence collaborator. A query that
// resolves to nothing is a normal answer: 200 with found=false.
type CodeHandler struct {
	service codeintel.Service
	timeout time.Duration
}

// NewCodeHandler creates a code handler
func NewCodeHandler(service codeintel.Service, timeout time.Duration) *CodeHandler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CodeHandler{service: service, timeout: timeout}
}

type positionRequest struct {
	codeintel.Position
	IncludeDeclaration bool `json:"includeDeclaration"`
}

func (h *CodeHandler) position(c *fiber.Ctx) (positionRequest, error) {
	var req positionRequest
	if err := parseBody(c, &req); err != nil {
		return req, err
	}
	req.File = strings.TrimSpace(req.File)
	if req.File == "" || req.Line <= 0 {
		return req, fiber.NewError(fiber.StatusBadRequest, "file and line > 0 are required")
	}
	return req, nil
}

func (h *CodeHandler) withTimeout(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), h.timeout)
}

// respond writes result under key, or found=false for ErrNotFound
func respond(c *fiber.Ctx, key string, result any, err error) error {
	if errors.Is(err, codeintel.ErrNotFound) {
		return c.JSON(fiber.Map{"found": false})
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"found": true, key: result})
}

// Symbols handles POST /code/symbols
func (h *CodeHandler) Symbols(c *fiber.Ctx) error {
	var q codeintel.SearchQuery
	if err := parseBody(c, &q); err != nil {
		return err
	}
	if strings.TrimSpace(q.Query) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "query is required")
	}

	ctx, cancel := h.withTimeout(c)
	defer cancel()
	symbols, err := h.service.SearchSymbols(ctx, q)
	if err == nil && len(symbols) == 0 {
		err = codeintel.ErrNotFound
	}
	if err != nil {
		return respond(c, "symbols", nil, err)
	}
	return c.JSON(fiber.Map{
		"found":   true,
		"symbols": symbols,
		"count":   len(symbols),
	})
}

// Definition handles POST /code/definition
func (h *CodeHandler) Definition(c *fiber.Ctx) error {
	req, err := h.position(c)
	if err != nil {
		return err
	}
	ctx, cancel := h.withTimeout(c)
	defer cancel()
	sym, err := h.service.GoToDefinition(ctx, req.Position)
	return respond(c, "symbol", sym, err)
}

// References handles POST /code/references
func (h *CodeHandler) References(c *fiber.Ctx) error {
	req, err := h.position(c)
	if err != nil {
		return err
	}
	ctx, cancel := h.withTimeout(c)
	defer cancel()
	refs, err := h.service.FindReferences(ctx, req.Position, req.IncludeDeclaration)
	return respond(c, "result", refs, err)
}

// Outline handles GET /code/outline?file=
func (h *CodeHandler) Outline(c *fiber.Ctx) error {
	file := strings.TrimSpace(c.Query("file"))
	if file == "" {
		return fiber.NewError(fiber.StatusBadRequest, "file query parameter is required")
	}
	ctx, cancel := h.withTimeout(c)
	defer cancel()
	tree, err := h.service.Outline(ctx, file)
	return respond(c, "outline", tree, err)
}

// Semantic handles POST /code/semantic
func (h *CodeHandler) Semantic(c *fiber.Ctx) error {
	req, err := h.position(c)
	if err != nil {
		return err
	}
	ctx, cancel := h.withTimeout(c)
	defer cancel()
	info, err := h.service.SemanticInfo(ctx, req.Position)
	return respond(c, "info", info, err)
}

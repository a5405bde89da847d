package handlers

import (
	"bytes"
	_ "embed"
	"sort"
	"strings"
	"sync"

	"agenticdebugger/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

//go:embed docs/api.md
var apiMarkdown []byte

// DocsHandler serves the human and machine readable API descriptions
type DocsHandler struct {
	once sync.Once
	html []byte
	err  error
}

// NewDocsHandler creates a docs handler
func NewDocsHandler() *DocsHandler {
	return &DocsHandler{}
}

func (h *DocsHandler) render() ([]byte, error) {
	h.once.Do(func() {
		md := goldmark.New(goldmark.WithExtensions(extension.GFM))
		var body bytes.Buffer
		if err := md.Convert(apiMarkdown, &body); err != nil {
			h.err = err
			return
		}
		var page bytes.Buffer
		page.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>Agentic Debugger Bridge</title>")
		page.WriteString("<style>body{font-family:sans-serif;max-width:60em;margin:2em auto}table{border-collapse:collapse}td,th{border:1px solid #ccc;padding:.3em .6em}code{background:#f4f4f4}</style>")
		page.WriteString("</head><body>\n")
		page.Write(body.Bytes())
		page.WriteString("</body></html>\n")
		h.html = page.Bytes()
	})
	return h.html, h.err
}

// Docs handles GET /docs
func (h *DocsHandler) Docs(c *fiber.Ctx) error {
	html, err := h.render()
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(html)
}

// Swagger handles GET /swagger.json with an OpenAPI document built from the
// registered routes
func (h *DocsHandler) Swagger(c *fiber.Ctx) error {
	paths := make(map[string]fiber.Map)
	for _, route := range c.App().GetRoutes(true) {
		if route.Method == fiber.MethodHead || route.Method == fiber.MethodConnect || route.Method == fiber.MethodTrace {
			continue
		}
		path, params := openAPIPath(route.Path)
		op := fiber.Map{
			"operationId": strings.ToLower(route.Method) + strings.NewReplacer("/", "_", "{", "", "}", "").Replace(path),
			"responses": fiber.Map{
				"200": fiber.Map{"description": "OK"},
			},
		}
		if route.Name != "" {
			op["summary"] = route.Name
		}
		if len(params) > 0 {
			list := make([]fiber.Map, 0, len(params))
			for _, p := range params {
				list = append(list, fiber.Map{
					"name":     p,
					"in":       "path",
					"required": true,
					"schema":   fiber.Map{"type": "string"},
				})
			}
			op["parameters"] = list
		}
		if paths[path] == nil {
			paths[path] = fiber.Map{}
		}
		paths[path][strings.ToLower(route.Method)] = op
	}

	return c.JSON(fiber.Map{
		"openapi": "3.0.3",
		"info": fiber.Map{
			"title":       "Agentic Debugger Bridge",
			"version":     Version,
			"description": "Local control plane over the debugger. Command actions: " + actionList(),
		},
		"components": fiber.Map{
			"securitySchemes": fiber.Map{
				"sharedKey": fiber.Map{"type": "apiKey", "in": "header", "name": "X-Api-Key"},
			},
		},
		"security": []fiber.Map{{"sharedKey": []string{}}},
		"paths":    paths,
	})
}

// openAPIPath converts /logs/:id and /proxy/:instanceId/* into OpenAPI templates
func openAPIPath(path string) (string, []string) {
	var params []string
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		switch {
		case strings.HasPrefix(seg, ":"):
			name := strings.TrimSuffix(strings.TrimPrefix(seg, ":"), "?")
			params = append(params, name)
			segments[i] = "{" + name + "}"
		case seg == "*":
			params = append(params, "path")
			segments[i] = "{path}"
		}
	}
	return strings.Join(segments, "/"), params
}

func actionList() string {
	kinds := models.AllCommandKinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

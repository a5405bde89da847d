package handlers

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// Routes groups the handlers served by one bridge
type Routes struct {
	Instances     *InstanceHandler
	Debugger      *DebuggerHandler
	Observability *ObservabilityHandler
	Code          *CodeHandler
	Docs          *DocsHandler
	Stream        *StreamHandler

	// CommandLimiter guards /command and /batch; WebSocketLimiter guards /ws
	CommandLimiter   fiber.Handler
	WebSocketLimiter fiber.Handler
}

// AppConfig is the fiber configuration every bridge app starts from. Routing
// is case-sensitive: the permission table matches lower-case paths only, and
// a mixed-case path must not reach a handler it did not evaluate.
func AppConfig() fiber.Config {
	return fiber.Config{
		ErrorHandler:  ErrorHandler,
		CaseSensitive: true,
		UnescapePath:  true,
	}
}

func passThrough(c *fiber.Ctx) error { return c.Next() }

// Mount registers every route on router. Auth and permission middleware are
// expected to be installed on the app before Mount is called.
func (r Routes) Mount(router fiber.Router) {
	commandLimiter := r.CommandLimiter
	if commandLimiter == nil {
		commandLimiter = passThrough
	}
	wsLimiter := r.WebSocketLimiter
	if wsLimiter == nil {
		wsLimiter = passThrough
	}

	// Discovery and docs
	router.Get("/", r.Instances.Info).Name("Instance info")
	router.Get("/docs", r.Docs.Docs).Name("API documentation")
	router.Get("/swagger.json", r.Docs.Swagger).Name("OpenAPI document")

	// State and commands
	router.Get("/state", r.Debugger.State).Name("Current snapshot")
	router.Post("/command", commandLimiter, r.Debugger.Command).Name("Execute a command")
	router.Post("/batch", commandLimiter, r.Debugger.Batch).Name("Execute commands in order")
	router.Post("/configure", r.Debugger.Configure).Name("Set startup project or configuration")
	router.Get("/errors", r.Debugger.Errors).Name("Build errors")
	router.Get("/projects", r.Debugger.Projects).Name("Solution projects")
	router.Get("/output", r.Debugger.OutputPanes).Name("Output panes")
	router.Get("/output/:pane", r.Debugger.Output).Name("Output pane text")

	// Instances
	router.Get("/instances", r.Instances.List).Name("Live instances")
	router.Post("/register", r.Instances.Register).Name("Secondary heartbeat")
	router.All("/proxy/:instanceId", r.Instances.Proxy)
	router.All("/proxy/:instanceId/*", r.Instances.Proxy)

	// Code intelligence
	code := router.Group("/code")
	code.Post("/symbols", r.Code.Symbols).Name("Search symbols")
	code.Post("/definition", r.Code.Definition).Name("Go to definition")
	code.Post("/references", r.Code.References).Name("Find references")
	code.Get("/outline", r.Code.Outline).Name("Document outline")
	code.Post("/semantic", r.Code.Semantic).Name("Semantic info")

	// Observability
	router.Get("/metrics", r.Observability.Metrics).Name("Metrics")
	router.Get("/health", r.Observability.Health).Name("Health")
	router.Get("/logs", r.Observability.Logs).Name("Request log")
	router.Delete("/logs", r.Observability.ClearLogs).Name("Clear request log")
	router.Get("/logs/:id", r.Observability.LogEntry).Name("Request log entry")

	// Push stream
	router.Get("/ws", wsLimiter, r.Stream.Upgrade, websocket.New(r.Stream.Handle)).Name("State stream")
}

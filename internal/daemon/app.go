package daemon

import (
	"log"

	"agenticdebugger/internal/handlers"
	"agenticdebugger/internal/middleware"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// PrometheusPath serves the Prometheus exposition of the bridge collectors
const PrometheusPath = "/metrics/prometheus"

func (b *Bridge) buildApp() *fiber.App {
	appConfig := handlers.AppConfig()
	appConfig.AppName = "Agentic Debugger Bridge " + handlers.Version
	appConfig.DisableStartupMessage = true
	app := fiber.New(appConfig)

	// Audit wraps everything so rejected and panicking requests are still logged
	app.Use(middleware.Audit(b.requests, b.metrics))
	app.Use(recover.New())
	if b.cfg.Verbose {
		app.Use(logger.New())
	}

	prometheus := fiberprometheus.NewWithRegistry(b.metrics.Registry(), "agentic-bridge", "agentic", "http", nil)
	app.Use(prometheus.Middleware)

	// The bridge is loopback-only; browsers on localhost may still call it
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept," + b.cfg.KeyHeader,
	}))

	app.Use(middleware.SharedKey(b.cfg.KeyHeader, b.defaultKey(), b.apiKey))
	app.Use(middleware.Permissions(b.provider))

	prometheus.RegisterAt(app, PrometheusPath)
	log.Printf("📊 [DAEMON] Prometheus metrics enabled at %s", PrometheusPath)

	limits := middleware.DefaultRateLimitConfig()
	limits.CommandRate = b.cfg.CommandRate
	limits.WebSocketMax = b.cfg.WebSocketRate
	if b.cfg.CommandRate > 0 {
		log.Printf("🛡️  [RATE-LIMIT] Commands limited to %.1f/s, WebSocket upgrades to %d/min", limits.CommandRate, limits.WebSocketMax)
	}

	instances := handlers.NewInstanceHandler(b.registry, b.cfg.KeyHeader, b.defaultKey(), b.apiKey, b.cfg.ProxyTimeout)
	routes := handlers.Routes{
		Instances:        instances,
		Debugger:         handlers.NewDebuggerHandler(b.executor, b.cache, instances),
		Observability:    handlers.NewObservabilityHandler(b.metrics, b.requests),
		Code:             handlers.NewCodeHandler(b.codeintel, b.cfg.CommandTimeout),
		Docs:             handlers.NewDocsHandler(),
		Stream:           handlers.NewStreamHandler(b.connections, b.cache, b.metrics),
		CommandLimiter:   middleware.CommandRateLimiter(limits),
		WebSocketLimiter: middleware.WebSocketRateLimiter(limits),
	}
	routes.Mount(app)

	return app
}

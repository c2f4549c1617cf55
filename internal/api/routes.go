package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/ahrdadan/tabpilot/internal/security"
)

// RouteConfig holds configuration for routes
type RouteConfig struct {
	RateLimitRequests int           // requests per window
	RateLimitWindow   time.Duration // time window
	IdempotencyTTL    time.Duration // TTL for idempotency keys
}

// DefaultRouteConfig returns default route configuration
func DefaultRouteConfig() RouteConfig {
	return RouteConfig{
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
		IdempotencyTTL:    24 * time.Hour,
	}
}

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, handler *Handler) {
	SetupRoutesWithConfig(app, handler, DefaultRouteConfig())
}

// SetupRoutesWithConfig configures all API routes with custom security
// settings
func SetupRoutesWithConfig(app *fiber.App, handler *Handler, config RouteConfig) {
	rateLimiter := security.NewRateLimiter(security.RateLimitConfig{
		RequestsPerWindow: config.RateLimitRequests,
		WindowDuration:    config.RateLimitWindow,
		BurstMax:          20,
	})
	handler.idempotencyStore = security.NewIdempotencyStore(config.IdempotencyTTL)
	secMiddleware := security.NewMiddleware(rateLimiter)

	// Health check (no rate limit)
	app.Get("/health", handler.HealthCheck)

	api := app.Group("/api")
	api.Use(security.SecurityHeadersMiddleware())
	api.Use(security.RequestValidationMiddleware())
	api.Use(secMiddleware.RateLimitMiddleware())

	api.Get("/info", handler.Info)

	// Navigation and tabs
	api.Post("/navigate", handler.Navigate)
	api.Post("/tabs", handler.CreateTab)
	api.Get("/tabs", handler.ListTabs)
	api.Delete("/tabs/:id", handler.CloseTab)

	// Element operations
	api.Post("/element/find", handler.FindElement)
	api.Post("/element/interact", handler.InteractElement)
	api.Post("/element/highlight", handler.HighlightElement)
	api.Post("/element/wait", handler.WaitForCondition)

	// Script execution
	api.Post("/javascript/execute", handler.ExecuteScript)

	// Page state
	api.Get("/page/info", handler.GetPageInfo)
	api.Post("/screenshot", handler.Screenshot)

	// Visual testing
	api.Post("/visual/baseline", handler.CaptureBaseline)
	api.Post("/visual/test", handler.RunVisualTest)

	// Network monitoring
	api.Post("/network/start", handler.StartNetworkMonitor)
	api.Post("/network/stop", handler.StopNetworkMonitor)
	api.Post("/network/filter", handler.AddNetworkFilter)
	api.Post("/network/clear-filters", handler.ClearNetworkFilters)
	api.Get("/network/stats", handler.NetworkStats)
	api.Get("/network/export", handler.ExportHAR)

	// WebSocket command/event endpoint
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(handler.HandleWebSocket))
}

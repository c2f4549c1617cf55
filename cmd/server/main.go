package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ahrdadan/tabpilot/internal/api"
	"github.com/ahrdadan/tabpilot/internal/browser"
	"github.com/ahrdadan/tabpilot/internal/config"
	"github.com/ahrdadan/tabpilot/internal/events"
	"github.com/ahrdadan/tabpilot/internal/nats"
	"github.com/ahrdadan/tabpilot/internal/network"
	"github.com/ahrdadan/tabpilot/internal/session"
	"github.com/ahrdadan/tabpilot/internal/visual"
)

func main() {
	// Parse CLI flags
	cfg := config.ParseFlags()

	// Handle --version and --help
	config.HandleFlags(cfg)

	// Banner
	log.Printf("Starting %s v%s (Tab + Pilot)", config.AppName, config.Version)

	// Chromium setup
	binPath := cfg.BrowserBin
	if cfg.InstallChrome && cfg.BrowserURL == "" {
		installed, err := browser.InstallChrome(context.Background(), 0)
		if err != nil {
			log.Fatalf("Failed to install Chrome: %v", err)
		}
		binPath = installed
	}

	surface := browser.NewChromeSurface(browser.SurfaceConfig{
		BinPath:    binPath,
		ControlURL: cfg.BrowserURL,
	})
	if err := surface.Start(); err != nil {
		log.Fatalf("Failed to start browser: %v", err)
	}
	defer func() {
		if err := surface.Stop(); err != nil {
			log.Printf("Failed to stop browser: %v", err)
		}
	}()

	// NATS event sink setup
	var sink events.Sink
	var natsServer *nats.Server

	if cfg.WithNats {
		log.Printf("Setting up NATS event sink...")

		var err error
		natsServer, err = nats.NewServer(nats.ServerConfig{
			BinPath:  cfg.NatsBin,
			StoreDir: cfg.NatsStore,
			URL:      cfg.NatsURL,
			AutoDL:   cfg.NatsAutoDL,
		})
		if err != nil {
			log.Fatalf("Failed to create NATS server: %v", err)
		}

		if err := natsServer.Start(context.Background()); err != nil {
			log.Fatalf("Failed to start NATS server: %v", err)
		}
		defer func() { _ = natsServer.Stop() }()

		sink = natsServer
	}

	// Engine components
	hub := events.NewHub(sink)
	defer hub.Close()

	sessions := session.NewManager(surface, hub)
	defer sessions.Shutdown()

	monitor := network.NewMonitor(hub, network.Creator{
		Name:    config.AppName,
		Version: config.Version,
	})

	comparator, err := visual.NewComparator(cfg.BaselineDir)
	if err != nil {
		log.Fatalf("Failed to initialize baseline storage: %v", err)
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      config.AppName,
		ErrorHandler: api.ErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	// Setup routes
	handler := api.NewHandler(surface, sessions, monitor, comparator, hub)
	api.SetupRoutesWithConfig(app, handler, api.RouteConfig{
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		IdempotencyTTL:    cfg.IdempotencyTTL,
	})

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		sessions.Shutdown()
		if err := app.Shutdown(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	log.Printf("Starting server on %s", addr)
	log.Printf("Browser CDP endpoint: %s", surface.GetEndpoint())
	if cfg.WithNats {
		log.Printf("NATS event sink at %s", cfg.NatsURL)
	}

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

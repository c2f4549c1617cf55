package config

import (
	"flag"
	"fmt"
	"os"
	"time"
)

const (
	// Version is the current version of TabPilot
	Version = "1"
	// AppName is the application name
	AppName = "TabPilot Server"
)

// Config holds all configuration options for the TabPilot server
type Config struct {
	// Server
	Host    string
	Port    int
	BaseURL string // Full base URL for API responses (e.g., http://localhost:8000)

	// Browser (Chromium over CDP)
	BrowserBin    string // path to a local Chromium binary; empty uses rod's managed one
	BrowserURL    string // attach to an already running CDP endpoint instead of launching
	InstallChrome bool   // download Chromium before starting

	// Visual baselines
	BaselineDir string

	// Events (NATS)
	WithNats   bool
	NatsURL    string
	NatsStore  string
	NatsAutoDL bool
	NatsBin    string

	// Security
	RateLimitRequests int           // requests per window
	RateLimitWindow   time.Duration // time window for rate limiting
	IdempotencyTTL    time.Duration // TTL for idempotency keys

	// Flags
	ShowVersion bool
	ShowHelp    bool
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Host:              "0.0.0.0",
		Port:              8000,
		BaseURL:           "", // Will be auto-generated if empty
		BrowserBin:        "",
		BrowserURL:        "",
		InstallChrome:     false,
		BaselineDir:       "./data/baselines",
		WithNats:          true,
		NatsURL:           "nats://127.0.0.1:4222",
		NatsStore:         "./data/nats",
		NatsAutoDL:        true,
		NatsBin:           "./bin/nats-server",
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
		IdempotencyTTL:    24 * time.Hour,
		ShowVersion:       false,
		ShowHelp:          false,
	}
}

// ParseFlags parses command line flags and returns the config
func ParseFlags() *Config {
	cfg := DefaultConfig()

	// Server flags
	flag.StringVar(&cfg.Host, "host", cfg.Host, "Host address to bind the server")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "Port number for the server")
	flag.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Base URL for API responses (e.g., http://localhost:8000)")

	// Browser flags
	flag.StringVar(&cfg.BrowserBin, "browser-bin", cfg.BrowserBin, "Path to a Chromium binary (empty uses the managed one)")
	flag.StringVar(&cfg.BrowserURL, "browser-url", cfg.BrowserURL, "Attach to a running CDP endpoint (e.g., ws://127.0.0.1:9222)")
	flag.BoolVar(&cfg.InstallChrome, "install-chrome", cfg.InstallChrome, "Download Chromium before starting")

	// Visual flags
	flag.StringVar(&cfg.BaselineDir, "baseline-dir", cfg.BaselineDir, "Directory for visual baseline images")

	// NATS flags
	flag.BoolVar(&cfg.WithNats, "with-nats", cfg.WithNats, "Publish browser events to NATS")
	flag.StringVar(&cfg.NatsURL, "nats-url", cfg.NatsURL, "NATS server URL")
	flag.StringVar(&cfg.NatsStore, "nats-store", cfg.NatsStore, "NATS storage directory")
	flag.BoolVar(&cfg.NatsAutoDL, "nats-autodl", cfg.NatsAutoDL, "Auto-download NATS server binary")
	flag.StringVar(&cfg.NatsBin, "nats-bin", cfg.NatsBin, "Path to NATS server binary")

	// Security flags
	flag.IntVar(&cfg.RateLimitRequests, "rate-limit", cfg.RateLimitRequests, "Rate limit requests per minute")

	// Other flags
	flag.BoolVar(&cfg.ShowVersion, "version", cfg.ShowVersion, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", cfg.ShowHelp, "Show help message")

	// Custom usage function
	flag.Usage = func() {
		PrintHelp()
	}

	flag.Parse()

	// Auto-generate BaseURL if not provided
	if cfg.BaseURL == "" {
		host := cfg.Host
		if host == "0.0.0.0" {
			host = "localhost"
		}
		cfg.BaseURL = fmt.Sprintf("http://%s:%d", host, cfg.Port)
	}

	// Validate
	if cfg.RateLimitRequests < 1 {
		cfg.RateLimitRequests = 100
	}

	return cfg
}

// PrintVersion prints version information
func PrintVersion() {
	fmt.Printf("%s v%s\n", AppName, Version)
}

// PrintHelp prints help information
func PrintHelp() {
	fmt.Printf(`%s v%s (Tab + Pilot)

Usage:
  ./server [flags]

Server:
  --host            %s
  --port            %d
  --base-url        %s (auto-generated if empty)

Browser (Chromium CDP):
  --browser-bin     path to Chromium binary (managed if empty)
  --browser-url     attach to a running CDP endpoint
  --install-chrome  %v

Visual:
  --baseline-dir    %s

Events (NATS):
  --with-nats        %v
  --nats-url         %s
  --nats-store       %s
  --nats-autodl      %v
  --nats-bin         %s

Security:
  --rate-limit       %d (requests per minute)

Other:
  --version         show version
  --help            show this help

`, AppName, Version,
		"0.0.0.0", 8000, "http://localhost:8000",
		false,
		"./data/baselines",
		true, "nats://127.0.0.1:4222", "./data/nats", true, "./bin/nats-server",
		100)
}

// HandleFlags handles version and help flags, exits if needed
func HandleFlags(cfg *Config) {
	if cfg.ShowVersion {
		PrintVersion()
		os.Exit(0)
	}

	if cfg.ShowHelp {
		PrintHelp()
		os.Exit(0)
	}
}

package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ahrdadan/tabpilot/internal/events"
)

// Subjects engine events are published under.
const (
	SubjectNavigation   = "browser.navigation"
	SubjectTabCreated   = "browser.tabs.created"
	SubjectTabClosed    = "browser.tabs.closed"
	SubjectNetworkEntry = "browser.network.entry"
	SubjectError        = "browser.error"
)

// Server manages a local NATS server instance and the connection used
// to publish engine events.
type Server struct {
	binPath   string
	storeDir  string
	url       string
	cmd       *exec.Cmd
	nc        *nats.Conn
	mu        sync.Mutex
	isRunning bool
}

// ServerConfig holds configuration for the NATS server
type ServerConfig struct {
	BinPath  string
	StoreDir string
	URL      string
	AutoDL   bool
}

// NewServer creates a new NATS server manager
func NewServer(cfg ServerConfig) (*Server, error) {
	// Ensure binary exists
	binPath, err := EnsureNATSBinary(cfg.BinPath, cfg.AutoDL)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure NATS binary: %w", err)
	}

	return &Server{
		binPath:  binPath,
		storeDir: cfg.StoreDir,
		url:      cfg.URL,
	}, nil
}

// Start starts the NATS server if not already running
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	// Check if NATS is already running at the URL
	if s.isReachable() {
		log.Printf("NATS server already running at %s", s.url)
		if err := s.connect(); err != nil {
			return err
		}
		s.isRunning = true
		return nil
	}

	// Create store directory
	absStoreDir, err := filepath.Abs(s.storeDir)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for store dir: %w", err)
	}

	if err := os.MkdirAll(absStoreDir, 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	// Parse host and port from URL
	host, port, err := parseNatsURL(s.url)
	if err != nil {
		return fmt.Errorf("failed to parse NATS URL: %w", err)
	}

	s.cmd = exec.CommandContext(ctx, s.binPath,
		"-sd", absStoreDir,
		"-a", host,
		"-p", port,
	)
	s.cmd.Stdout = os.Stdout
	s.cmd.Stderr = os.Stderr

	if err := s.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start NATS server: %w", err)
	}

	// Wait for server to be ready
	time.Sleep(2 * time.Second)

	if err := s.connect(); err != nil {
		_ = s.stopLocked()
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	s.isRunning = true
	log.Printf("NATS server started at %s", s.url)
	return nil
}

// Stop stops the NATS server
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Server) stopLocked() error {
	if !s.isRunning && s.cmd == nil && s.nc == nil {
		return nil
	}

	if s.nc != nil {
		s.nc.Close()
		s.nc = nil
	}

	if s.cmd != nil && s.cmd.Process != nil {
		if err := s.cmd.Process.Kill(); err != nil {
			log.Printf("Warning: failed to kill NATS process: %v", err)
		}
		if err := s.cmd.Wait(); err != nil {
			log.Printf("Warning: failed to wait for NATS process: %v", err)
		}
	}

	s.cmd = nil
	s.isRunning = false

	log.Println("NATS server stopped")
	return nil
}

// IsRunning returns true if NATS server is running
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// GetConnection returns the NATS connection
func (s *Server) GetConnection() *nats.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nc
}

// Publish forwards an engine event to its subject. Implements
// events.Sink. Publishing before Start or after Stop is a no-op so a
// degraded broker never stalls automation.
func (s *Server) Publish(event events.Event) error {
	s.mu.Lock()
	nc := s.nc
	s.mu.Unlock()

	if nc == nil {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return nc.Publish(subjectFor(event.Type), data)
}

func subjectFor(t events.Type) string {
	switch t {
	case events.TypeNavigation:
		return SubjectNavigation
	case events.TypeTabCreated:
		return SubjectTabCreated
	case events.TypeTabClosed:
		return SubjectTabClosed
	case events.TypeNetworkEntry:
		return SubjectNetworkEntry
	case events.TypeError:
		return SubjectError
	}
	return "browser." + string(t)
}

func (s *Server) isReachable() bool {
	host, port, err := parseNatsURL(s.url)
	if err != nil {
		return false
	}

	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%s", host, port), 2*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (s *Server) connect() error {
	nc, err := nats.Connect(s.url)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	s.nc = nc
	return nil
}

func parseNatsURL(natsURL string) (host, port string, err error) {
	// Remove nats:// prefix
	url := strings.TrimPrefix(natsURL, "nats://")

	// Split host and port
	parts := strings.Split(url, ":")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid NATS URL format: %s", natsURL)
	}

	return parts[0], parts[1], nil
}

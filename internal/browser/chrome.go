package browser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// ChromeSurface drives a Chromium instance over CDP and implements Surface.
// It either launches its own browser process or attaches to an already
// running CDP endpoint (e.g. a remote Chrome or a Lightpanda serve socket).
type ChromeSurface struct {
	binPath    string
	controlURL string
	mu         sync.Mutex
	restartMu  sync.Mutex
	launcher   *launcher.Launcher
	browser    *rod.Browser
	wsURL      string
	running    bool
}

// SurfaceConfig configures the Chrome surface.
type SurfaceConfig struct {
	// BinPath is the Chromium binary to launch. Empty uses rod's default
	// lookup. Ignored when ControlURL is set.
	BinPath string
	// ControlURL attaches to an existing CDP endpoint instead of
	// launching a browser.
	ControlURL string
}

// NewChromeSurface creates a Chrome surface manager.
func NewChromeSurface(cfg SurfaceConfig) *ChromeSurface {
	return &ChromeSurface{
		binPath:    cfg.BinPath,
		controlURL: cfg.ControlURL,
	}
}

// Start launches Chrome (or attaches to the configured endpoint) and
// connects via CDP.
func (s *ChromeSurface) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	var wsURL string
	var l *launcher.Launcher

	if s.controlURL != "" {
		wsURL = launcher.MustResolveURL(s.controlURL)
	} else {
		l = launcher.New()
		if s.binPath != "" {
			l.Bin(s.binPath)
		}

		launched, err := l.Launch()
		if err != nil {
			return fmt.Errorf("failed to launch chrome: %w", err)
		}
		wsURL = launched
	}

	browser := rod.New().ControlURL(wsURL)
	if err := browser.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return fmt.Errorf("failed to connect to browser: %w", err)
	}

	s.launcher = l
	s.browser = browser
	s.wsURL = wsURL
	s.running = true

	log.Printf("Browser surface connected at %s", wsURL)
	return nil
}

// Stop closes the CDP connection and kills the launched browser, if any.
func (s *ChromeSurface) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			log.Printf("Warning: failed to close browser: %v", err)
		}
	}

	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher.Cleanup()
	}

	s.launcher = nil
	s.browser = nil
	s.wsURL = ""
	s.running = false

	log.Println("Browser surface stopped")
	return nil
}

// IsRunning reports whether the surface is connected.
func (s *ChromeSurface) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// GetEndpoint returns the CDP endpoint URL.
func (s *ChromeSurface) GetEndpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wsURL
}

// OpenPage creates a new browsing context on the surface.
func (s *ChromeSurface) OpenPage(ctx context.Context) (Page, error) {
	if err := s.ensureStarted(); err != nil {
		return nil, fmt.Errorf("failed to start browser surface: %w", err)
	}

	s.mu.Lock()
	browser := s.browser
	s.mu.Unlock()

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		if !isConnectionError(err) {
			return nil, fmt.Errorf("failed to create page: %w", err)
		}

		if restartErr := s.restart(); restartErr != nil {
			return nil, fmt.Errorf("failed to restart browser after connection error: %w", restartErr)
		}

		s.mu.Lock()
		browser = s.browser
		s.mu.Unlock()

		page, err = browser.Context(ctx).Page(proto.TargetCreateTarget{})
		if err != nil {
			return nil, fmt.Errorf("failed to create page: %w", err)
		}
	}

	return newRodPage(page), nil
}

func (s *ChromeSurface) ensureStarted() error {
	if s.IsRunning() {
		return nil
	}

	s.restartMu.Lock()
	defer s.restartMu.Unlock()

	if s.IsRunning() {
		return nil
	}

	return s.Start()
}

func (s *ChromeSurface) restart() error {
	s.restartMu.Lock()
	defer s.restartMu.Unlock()

	if err := s.Stop(); err != nil {
		log.Printf("Warning: failed to stop browser before restart: %v", err)
	}

	return s.Start()
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "eof")
}

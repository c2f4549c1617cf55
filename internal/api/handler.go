package api

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ahrdadan/tabpilot/internal/browser"
	"github.com/ahrdadan/tabpilot/internal/config"
	"github.com/ahrdadan/tabpilot/internal/dom"
	"github.com/ahrdadan/tabpilot/internal/events"
	"github.com/ahrdadan/tabpilot/internal/network"
	"github.com/ahrdadan/tabpilot/internal/script"
	"github.com/ahrdadan/tabpilot/internal/security"
	"github.com/ahrdadan/tabpilot/internal/session"
	"github.com/ahrdadan/tabpilot/internal/visual"
)

// Handler handles API requests
type Handler struct {
	surface    browser.Surface
	sessions   *session.Manager
	evaluator  *dom.Evaluator
	bridge     *script.Bridge
	monitor    *network.Monitor
	comparator *visual.Comparator
	hub        *events.Hub

	idempotencyStore *security.IdempotencyStore
}

// NewHandler creates a new handler
func NewHandler(surface browser.Surface, sessions *session.Manager, monitor *network.Monitor, comparator *visual.Comparator, hub *events.Hub) *Handler {
	return &Handler{
		surface:    surface,
		sessions:   sessions,
		evaluator:  dom.NewEvaluator(),
		bridge:     script.NewBridge(),
		monitor:    monitor,
		comparator: comparator,
		hub:        hub,
	}
}

// Response represents a standard API response
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorKind string      `json:"error_kind,omitempty"`
}

// ErrorHandler is the custom error handler for Fiber
func ErrorHandler(c *fiber.Ctx, err error) error {
	if e, ok := err.(*fiber.Error); ok {
		return c.Status(e.Code).JSON(Response{
			Success: false,
			Error:   e.Message,
		})
	}

	code := browser.CodeOf(err)
	return c.Status(statusFor(code)).JSON(Response{
		Success:   false,
		Error:     err.Error(),
		ErrorKind: string(code),
	})
}

func statusFor(code browser.ErrorCode) int {
	switch code {
	case browser.CodeInvalidArgument:
		return fiber.StatusBadRequest
	case browser.CodeSessionNotFound, browser.CodeElementNotFound,
		browser.CodeNoBaseline, browser.CodeStaleElement:
		return fiber.StatusNotFound
	case browser.CodeTimeout:
		return fiber.StatusRequestTimeout
	case browser.CodeCancelled:
		return fiber.StatusConflict
	}
	return fiber.StatusInternalServerError
}

// HealthCheck returns health status
// GET /health
func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(Response{
		Success: true,
		Data: map[string]interface{}{
			"status":    "ok",
			"browser":   h.surface.IsRunning(),
			"tabs":      h.sessions.Count(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// Info reports server identity, capabilities, and the endpoint map
// GET /api/info
func (h *Handler) Info(c *fiber.Ctx) error {
	return c.JSON(Response{
		Success: true,
		Data: map[string]interface{}{
			"name":         config.AppName,
			"version":      config.Version,
			"capabilities": []string{"navigation", "tabs", "dom", "wait", "javascript", "screenshot", "visual", "network", "events"},
			"endpoints": map[string]string{
				"health":                "GET /health",
				"info":                  "GET /api/info",
				"navigate":              "POST /api/navigate",
				"tabs":                  "POST /api/tabs",
				"tabs_list":             "GET /api/tabs",
				"tabs_close":            "DELETE /api/tabs/:id",
				"element_find":          "POST /api/element/find",
				"element_interact":      "POST /api/element/interact",
				"element_highlight":     "POST /api/element/highlight",
				"element_wait":          "POST /api/element/wait",
				"javascript_execute":    "POST /api/javascript/execute",
				"page_info":             "GET /api/page/info",
				"screenshot":            "POST /api/screenshot",
				"visual_baseline":       "POST /api/visual/baseline",
				"visual_test":           "POST /api/visual/test",
				"network_start":         "POST /api/network/start",
				"network_stop":          "POST /api/network/stop",
				"network_filter":        "POST /api/network/filter",
				"network_clear_filters": "POST /api/network/clear-filters",
				"network_stats":         "GET /api/network/stats",
				"network_export":        "GET /api/network/export",
				"websocket":             "GET /ws",
			},
		},
	})
}

// resolve returns the addressed session, defaulting to the active tab.
func (h *Handler) resolve(sessionID string) (*session.Session, error) {
	if sessionID == "" {
		return h.sessions.Active()
	}
	return h.sessions.Session(sessionID)
}

func ok(c *fiber.Ctx, data interface{}) error {
	return c.JSON(Response{Success: true, Data: data})
}

// NavigateRequest represents a navigation request
type NavigateRequest struct {
	URL       string `json:"url"`
	SessionID string `json:"session_id,omitempty"`
}

// Navigate loads a URL in the addressed tab (the active tab by default,
// creating one when none exists)
// POST /api/navigate
func (h *Handler) Navigate(c *fiber.Ctx) error {
	var req NavigateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	snap, err := h.doNavigate(context.Background(), req)
	if err != nil {
		return err
	}
	return ok(c, snap)
}

func (h *Handler) doNavigate(ctx context.Context, req NavigateRequest) (session.Snapshot, error) {
	if req.URL == "" {
		return session.Snapshot{}, browser.NewError(browser.CodeInvalidArgument, "url is required")
	}
	if req.SessionID != "" {
		return h.sessions.Navigate(ctx, req.SessionID, req.URL)
	}
	return h.sessions.NavigateActive(ctx, req.URL)
}

// CreateTabRequest represents a tab creation request
type CreateTabRequest struct {
	URL string `json:"url"`
}

// CreateTab opens a new tab and makes it active
// POST /api/tabs
func (h *Handler) CreateTab(c *fiber.Ctx) error {
	var req CreateTabRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	// Replay cached responses for repeated creation requests
	idempotencyKey := c.Get("X-Idempotency-Key")
	if idempotencyKey != "" && h.idempotencyStore != nil {
		if entry, exists := h.idempotencyStore.Check(idempotencyKey); exists {
			c.Set("X-Idempotency-Hit", "true")
			return c.JSON(Response{Success: true, Data: entry.Response})
		}
	}

	snap, err := h.sessions.Create(context.Background(), req.URL)
	if err != nil {
		return err
	}

	if idempotencyKey != "" && h.idempotencyStore != nil {
		h.idempotencyStore.Store(idempotencyKey, snap.ID, snap)
	}

	return c.Status(fiber.StatusCreated).JSON(Response{Success: true, Data: snap})
}

// ListTabs returns a snapshot of every open tab
// GET /api/tabs
func (h *Handler) ListTabs(c *fiber.Ctx) error {
	tabs := h.sessions.List()
	return ok(c, map[string]interface{}{
		"tabs":  tabs,
		"count": len(tabs),
	})
}

// CloseTab destroys a tab and everything attached to it
// DELETE /api/tabs/:id
func (h *Handler) CloseTab(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Tab ID is required")
	}

	if err := h.doCloseTab(id); err != nil {
		return err
	}
	return ok(c, map[string]interface{}{"closed": id})
}

func (h *Handler) doCloseTab(id string) error {
	if err := h.sessions.Close(id); err != nil {
		return err
	}
	h.monitor.Drop(id)
	return nil
}

// FindRequest represents an element lookup request
type FindRequest struct {
	SessionID string       `json:"session_id,omitempty"`
	Selector  dom.Selector `json:"selector"`
}

// FindElement resolves a selector to an element handle
// POST /api/element/find
func (h *Handler) FindElement(c *fiber.Ctx) error {
	var req FindRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	result, err := h.doFind(context.Background(), req)
	if err != nil {
		return err
	}
	return ok(c, result)
}

// FindResult is a resolved handle plus the element's state at
// resolution time.
type FindResult struct {
	Handle dom.Handle         `json:"handle"`
	State  *browser.NodeState `json:"state,omitempty"`
}

func (h *Handler) doFind(ctx context.Context, req FindRequest) (*FindResult, error) {
	sess, err := h.resolve(req.SessionID)
	if err != nil {
		return nil, err
	}

	var result FindResult
	err = sess.View(func(page browser.Page) error {
		handle, err := h.evaluator.Find(ctx, page, sess.ID(), sess.Generation(), req.Selector)
		if err != nil {
			return err
		}
		result.Handle = handle
		result.State, _ = h.evaluator.State(ctx, page, sess.Generation(), handle)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// InteractRequest represents an element interaction request
type InteractRequest struct {
	SessionID   string         `json:"session_id,omitempty"`
	Selector    dom.Selector   `json:"selector"`
	Interaction browser.Action `json:"interaction"`
}

// InteractElement resolves a selector and dispatches an interaction
// against it. Resolution and dispatch run inside the session's mutation
// critical section so the handle cannot go stale in between.
// POST /api/element/interact
func (h *Handler) InteractElement(c *fiber.Ctx) error {
	var req InteractRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if err := h.doInteract(context.Background(), req); err != nil {
		return err
	}
	return ok(c, map[string]interface{}{"interacted": string(req.Interaction.Kind)})
}

func (h *Handler) doInteract(ctx context.Context, req InteractRequest) error {
	sess, err := h.resolve(req.SessionID)
	if err != nil {
		return err
	}

	return sess.Do(ctx, func(page browser.Page) error {
		handle, err := h.evaluator.Find(ctx, page, sess.ID(), sess.Generation(), req.Selector)
		if err != nil {
			return err
		}
		return h.evaluator.Interact(ctx, page, sess.Generation(), handle, req.Interaction)
	})
}

// HighlightRequest represents an element highlight request
type HighlightRequest struct {
	SessionID string       `json:"session_id,omitempty"`
	Selector  dom.Selector `json:"selector"`
	Color     string       `json:"color,omitempty"`
}

// HighlightElement draws a temporary outline around an element
// POST /api/element/highlight
func (h *Handler) HighlightElement(c *fiber.Ctx) error {
	var req HighlightRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if err := h.doHighlight(context.Background(), req); err != nil {
		return err
	}
	return ok(c, map[string]interface{}{"highlighted": req.Selector.Describe()})
}

func (h *Handler) doHighlight(ctx context.Context, req HighlightRequest) error {
	sess, err := h.resolve(req.SessionID)
	if err != nil {
		return err
	}

	return sess.View(func(page browser.Page) error {
		handle, err := h.evaluator.Find(ctx, page, sess.ID(), sess.Generation(), req.Selector)
		if err != nil {
			return err
		}
		return h.evaluator.Highlight(ctx, page, sess.Generation(), handle, req.Color)
	})
}

// WaitRequest represents a wait-condition request
type WaitRequest struct {
	SessionID string        `json:"session_id,omitempty"`
	Condition dom.Condition `json:"condition"`
}

// WaitResult reports a satisfied condition and how long it took.
type WaitResult struct {
	Met       bool  `json:"met"`
	ElapsedMS int64 `json:"elapsed_ms"`
}

// WaitForCondition polls a condition until it holds or the timeout
// elapses. The poll loop registers as session background work, so
// closing the tab cancels it.
// POST /api/element/wait
func (h *Handler) WaitForCondition(c *fiber.Ctx) error {
	var req WaitRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	result, err := h.doWait(req)
	if err != nil {
		return err
	}
	return ok(c, result)
}

func (h *Handler) doWait(req WaitRequest) (*WaitResult, error) {
	sess, err := h.resolve(req.SessionID)
	if err != nil {
		return nil, err
	}

	ctx, done, err := sess.Background()
	if err != nil {
		return nil, err
	}
	defer done()

	var elapsed time.Duration
	err = sess.View(func(page browser.Page) error {
		var waitErr error
		elapsed, waitErr = h.evaluator.Wait(ctx, page, req.Condition)
		return waitErr
	})
	if err != nil {
		return nil, err
	}
	return &WaitResult{Met: true, ElapsedMS: elapsed.Milliseconds()}, nil
}

// ExecuteRequest represents a script execution request
type ExecuteRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Script    string `json:"script"`
}

// ExecuteScript runs JavaScript in the addressed tab
// POST /api/javascript/execute
func (h *Handler) ExecuteScript(c *fiber.Ctx) error {
	var req ExecuteRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	result, err := h.doExecute(context.Background(), req)
	if err != nil {
		return err
	}
	return ok(c, result)
}

func (h *Handler) doExecute(ctx context.Context, req ExecuteRequest) (*script.Result, error) {
	sess, err := h.resolve(req.SessionID)
	if err != nil {
		return nil, err
	}

	var result *script.Result
	err = sess.Do(ctx, func(page browser.Page) error {
		var execErr error
		result, execErr = h.bridge.Execute(ctx, page, req.Script)
		return execErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetPageInfo returns the addressed tab's page metadata
// GET /api/page/info
func (h *Handler) GetPageInfo(c *fiber.Ctx) error {
	info, err := h.doPageInfo(context.Background(), c.Query("session_id"))
	if err != nil {
		return err
	}
	return ok(c, info)
}

func (h *Handler) doPageInfo(ctx context.Context, sessionID string) (*browser.PageInfo, error) {
	sess, err := h.resolve(sessionID)
	if err != nil {
		return nil, err
	}

	var info *browser.PageInfo
	err = sess.View(func(page browser.Page) error {
		var infoErr error
		info, infoErr = page.Info(ctx)
		return infoErr
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// ScreenshotRequest represents a screenshot request
type ScreenshotRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Options   struct {
		Format  string `json:"format,omitempty"`
		Quality *int   `json:"quality,omitempty"`
	} `json:"options"`
}

// Screenshot captures the addressed tab's viewport
// POST /api/screenshot
func (h *Handler) Screenshot(c *fiber.Ctx) error {
	var req ScreenshotRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	opts, err := visual.ParseFrameOptions(req.Options.Format, req.Options.Quality)
	if err != nil {
		return err
	}

	data, err := h.captureFrame(context.Background(), req.SessionID, opts)
	if err != nil {
		return err
	}

	return ok(c, map[string]interface{}{
		"screenshot": base64.StdEncoding.EncodeToString(data),
		"format":     string(opts.Format),
	})
}

func (h *Handler) captureFrame(ctx context.Context, sessionID string, opts browser.FrameOptions) ([]byte, error) {
	sess, err := h.resolve(sessionID)
	if err != nil {
		return nil, err
	}

	var data []byte
	err = sess.View(func(page browser.Page) error {
		var capErr error
		data, capErr = page.CaptureFrame(ctx, opts)
		return capErr
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// BaselineRequest represents a visual baseline capture request
type BaselineRequest struct {
	SessionID string `json:"session_id,omitempty"`
	TestName  string `json:"test_name"`
}

// CaptureBaseline captures the current viewport as the named baseline
// POST /api/visual/baseline
func (h *Handler) CaptureBaseline(c *fiber.Ctx) error {
	var req BaselineRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	// Baselines are always stored as PNG; lossy captures would leak
	// encoder noise into every later comparison.
	data, err := h.captureFrame(context.Background(), req.SessionID, browser.DefaultFrameOptions())
	if err != nil {
		return err
	}

	if err := h.comparator.SaveBaseline(req.TestName, data); err != nil {
		return err
	}
	return ok(c, map[string]interface{}{"baseline": req.TestName})
}

// VisualTestRequest represents a visual comparison request
type VisualTestRequest struct {
	SessionID string  `json:"session_id,omitempty"`
	TestName  string  `json:"test_name"`
	Tolerance float64 `json:"tolerance"`
}

// RunVisualTest captures the viewport and scores it against the named
// baseline
// POST /api/visual/test
func (h *Handler) RunVisualTest(c *fiber.Ctx) error {
	var req VisualTestRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	data, err := h.captureFrame(context.Background(), req.SessionID, browser.DefaultFrameOptions())
	if err != nil {
		return err
	}

	result, err := h.comparator.Compare(req.TestName, data, req.Tolerance)
	if err != nil {
		return err
	}
	return ok(c, result)
}

// SessionRequest addresses a session in monitor control requests
type SessionRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

// StartNetworkMonitor begins capturing the addressed tab's traffic
// POST /api/network/start
func (h *Handler) StartNetworkMonitor(c *fiber.Ctx) error {
	var req SessionRequest
	_ = c.BodyParser(&req)

	sess, err := h.resolve(req.SessionID)
	if err != nil {
		return err
	}

	err = sess.View(func(page browser.Page) error {
		return h.monitor.Start(sess.ID(), page, sess)
	})
	if err != nil {
		return err
	}
	return ok(c, map[string]interface{}{"monitoring": sess.ID()})
}

// StopNetworkMonitor halts capture; captured entries are retained
// POST /api/network/stop
func (h *Handler) StopNetworkMonitor(c *fiber.Ctx) error {
	var req SessionRequest
	_ = c.BodyParser(&req)

	sess, err := h.resolve(req.SessionID)
	if err != nil {
		return err
	}

	h.monitor.Stop(sess.ID())
	return ok(c, map[string]interface{}{"stopped": sess.ID()})
}

// FilterRequest represents a network filter request
type FilterRequest struct {
	SessionID string         `json:"session_id,omitempty"`
	Filter    network.Filter `json:"filter"`
}

// AddNetworkFilter narrows the visible view of captured entries
// POST /api/network/filter
func (h *Handler) AddNetworkFilter(c *fiber.Ctx) error {
	var req FilterRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	sess, err := h.resolve(req.SessionID)
	if err != nil {
		return err
	}

	h.monitor.AddFilter(sess.ID(), req.Filter)
	return ok(c, map[string]interface{}{"filtered": sess.ID()})
}

// ClearNetworkFilters reverts to the unfiltered view
// POST /api/network/clear-filters
func (h *Handler) ClearNetworkFilters(c *fiber.Ctx) error {
	var req SessionRequest
	_ = c.BodyParser(&req)

	sess, err := h.resolve(req.SessionID)
	if err != nil {
		return err
	}

	h.monitor.ClearFilters(sess.ID())
	return ok(c, map[string]interface{}{"cleared": sess.ID()})
}

// NetworkStats returns traffic aggregates over the filtered view
// GET /api/network/stats
func (h *Handler) NetworkStats(c *fiber.Ctx) error {
	sess, err := h.resolve(c.Query("session_id"))
	if err != nil {
		return err
	}

	stats := h.monitor.Stats(sess.ID())
	return ok(c, map[string]interface{}{
		"stats":   stats,
		"dropped": h.monitor.Dropped(sess.ID()),
	})
}

// ExportHAR exports the filtered view as a HAR 1.2 document
// GET /api/network/export
func (h *Handler) ExportHAR(c *fiber.Ctx) error {
	sess, err := h.resolve(c.Query("session_id"))
	if err != nil {
		return err
	}

	return ok(c, h.monitor.Export(sess.ID()))
}

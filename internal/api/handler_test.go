package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ahrdadan/tabpilot/internal/api"
	"github.com/ahrdadan/tabpilot/internal/browser"
	"github.com/ahrdadan/tabpilot/internal/events"
	"github.com/ahrdadan/tabpilot/internal/network"
	"github.com/ahrdadan/tabpilot/internal/session"
	"github.com/ahrdadan/tabpilot/internal/visual"
)

// mockPage is an in-memory Page; the gateway tests drive the real
// components against it.
type mockPage struct {
	mu    sync.Mutex
	url   string
	nodes map[string]bool
	frame []byte
	hook  func(browser.RequestRecord)
}

func newMockPage() *mockPage {
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{40, 80, 120, 255})
		}
	}
	_ = png.Encode(&buf, img)

	return &mockPage{
		nodes: map[string]bool{"h1": true},
		frame: buf.Bytes(),
	}
}

func (p *mockPage) Load(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if strings.Contains(url, "unreachable") {
		return browser.NewError(browser.CodeNavigation, "net::ERR_NAME_NOT_RESOLVED")
	}
	p.url = url
	return nil
}

func (p *mockPage) Info(ctx context.Context) (*browser.PageInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &browser.PageInfo{URL: p.url, Title: "Mock Page"}, nil
}

func (p *mockPage) Eval(ctx context.Context, script string) (interface{}, error) {
	if strings.Contains(script, "throw") {
		return nil, browser.NewError(browser.CodeScript, "Error: boom")
	}
	return "evaluated", nil
}

func (p *mockPage) QueryNode(ctx context.Context, kind browser.SelectorKind, expr string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.nodes[expr] {
		return "", browser.NewError(browser.CodeElementNotFound, "no element matches %s", expr)
	}
	return "token:" + expr, nil
}

func (p *mockPage) NodeState(ctx context.Context, token string) (*browser.NodeState, error) {
	return &browser.NodeState{Exists: true, Visible: true, Enabled: true, TagName: "h1"}, nil
}

func (p *mockPage) Interact(ctx context.Context, token string, action browser.Action) error {
	return nil
}

func (p *mockPage) Highlight(ctx context.Context, token, color string) error { return nil }

func (p *mockPage) CaptureFrame(ctx context.Context, opts browser.FrameOptions) ([]byte, error) {
	return p.frame, nil
}

func (p *mockPage) EnableNetwork(hook func(browser.RequestRecord)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hook = hook
	return nil
}

func (p *mockPage) DisableNetwork() {}
func (p *mockPage) Close() error    { return nil }

// emit feeds a synthetic record through the capture hook.
func (p *mockPage) emit(rec browser.RequestRecord) {
	p.mu.Lock()
	hook := p.hook
	p.mu.Unlock()
	if hook != nil {
		hook(rec)
	}
}

type mockSurface struct {
	mu    sync.Mutex
	pages []*mockPage
}

func (s *mockSurface) Start() error        { return nil }
func (s *mockSurface) Stop() error         { return nil }
func (s *mockSurface) IsRunning() bool     { return true }
func (s *mockSurface) GetEndpoint() string { return "ws://127.0.0.1:9222" }

func (s *mockSurface) OpenPage(ctx context.Context) (browser.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	page := newMockPage()
	s.pages = append(s.pages, page)
	return page, nil
}

func (s *mockSurface) lastPage() *mockPage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages[len(s.pages)-1]
}

func setupTestApp(t *testing.T) (*fiber.App, *mockSurface) {
	t.Helper()

	surface := &mockSurface{}
	hub := events.NewHub(nil)
	t.Cleanup(hub.Close)

	sessions := session.NewManager(surface, hub)
	t.Cleanup(sessions.Shutdown)

	monitor := network.NewMonitor(hub, network.Creator{Name: "tabpilot", Version: "test"})
	comparator, err := visual.NewComparator(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create comparator: %v", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: api.ErrorHandler,
	})
	api.SetupRoutes(app, api.NewHandler(surface, sessions, monitor, comparator, hub))
	return app, surface
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (int, api.Response) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, 10000)
	if err != nil {
		t.Fatalf("Failed to test request: %v", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var response api.Response
	if err := json.Unmarshal(raw, &response); err != nil {
		t.Fatalf("Failed to parse response %q: %v", raw, err)
	}
	return resp.StatusCode, response
}

func createTab(t *testing.T, app *fiber.App, url string) string {
	t.Helper()

	status, response := doJSON(t, app, "POST", "/api/tabs", `{"url": "`+url+`"}`)
	if status != 201 {
		t.Fatalf("Expected status 201 creating tab, got %d", status)
	}
	data := response.Data.(map[string]interface{})
	return data["id"].(string)
}

func TestHealthCheck(t *testing.T) {
	app, _ := setupTestApp(t)

	status, response := doJSON(t, app, "GET", "/health", "")
	if status != 200 {
		t.Errorf("Expected status 200, got %d", status)
	}
	if !response.Success {
		t.Errorf("Expected success to be true")
	}
}

func TestInfoReportsCapabilitiesAndEndpoints(t *testing.T) {
	app, _ := setupTestApp(t)

	status, response := doJSON(t, app, "GET", "/api/info", "")
	if status != 200 {
		t.Fatalf("Expected status 200, got %d", status)
	}

	data := response.Data.(map[string]interface{})
	if _, ok := data["capabilities"]; !ok {
		t.Errorf("Expected capabilities in info response")
	}
	if _, ok := data["endpoints"]; !ok {
		t.Errorf("Expected endpoints in info response")
	}
	if data["name"] == "" {
		t.Errorf("Expected server name in info response")
	}
}

func TestCreateAndListTabs(t *testing.T) {
	app, _ := setupTestApp(t)

	id := createTab(t, app, "https://example.test")
	if id == "" {
		t.Fatalf("Expected a session id")
	}

	status, response := doJSON(t, app, "GET", "/api/tabs", "")
	if status != 200 {
		t.Fatalf("Expected status 200, got %d", status)
	}
	data := response.Data.(map[string]interface{})
	if data["count"].(float64) != 1 {
		t.Errorf("Expected 1 tab, got %v", data["count"])
	}
}

func TestCreateTabIdempotency(t *testing.T) {
	app, _ := setupTestApp(t)

	send := func() (string, api.Response) {
		req := httptest.NewRequest("POST", "/api/tabs", strings.NewReader(`{"url": "https://example.test"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Idempotency-Key", "key-1")

		resp, err := app.Test(req, 10000)
		if err != nil {
			t.Fatalf("Failed to test request: %v", err)
		}
		defer resp.Body.Close()

		raw, _ := io.ReadAll(resp.Body)
		var response api.Response
		_ = json.Unmarshal(raw, &response)
		return resp.Header.Get("X-Idempotency-Hit"), response
	}

	_, first := send()
	hit, second := send()

	if hit != "true" {
		t.Errorf("Expected idempotency replay on second request")
	}
	firstID := first.Data.(map[string]interface{})["id"]
	secondID := second.Data.(map[string]interface{})["id"]
	if firstID != secondID {
		t.Errorf("Expected replayed tab id %v, got %v", firstID, secondID)
	}

	status, response := doJSON(t, app, "GET", "/api/tabs", "")
	if status != 200 {
		t.Fatalf("Expected status 200, got %d", status)
	}
	if count := response.Data.(map[string]interface{})["count"].(float64); count != 1 {
		t.Errorf("Expected 1 tab after replay, got %v", count)
	}
}

func TestNavigateMissingURL(t *testing.T) {
	app, _ := setupTestApp(t)

	status, response := doJSON(t, app, "POST", "/api/navigate", `{}`)
	if status != 400 {
		t.Errorf("Expected status 400, got %d", status)
	}
	if response.ErrorKind != "invalid_argument" {
		t.Errorf("Expected invalid_argument, got %q", response.ErrorKind)
	}
}

func TestNavigateCreatesActiveTab(t *testing.T) {
	app, _ := setupTestApp(t)

	status, response := doJSON(t, app, "POST", "/api/navigate", `{"url": "https://example.test"}`)
	if status != 200 {
		t.Fatalf("Expected status 200, got %d", status)
	}

	data := response.Data.(map[string]interface{})
	if data["url"] != "https://example.test" {
		t.Errorf("Expected navigation result, got %+v", data)
	}
	if data["active"] != true {
		t.Errorf("Expected the tab to be active")
	}
}

func TestNavigateFailure(t *testing.T) {
	app, _ := setupTestApp(t)
	createTab(t, app, "https://example.test")

	status, response := doJSON(t, app, "POST", "/api/navigate", `{"url": "https://unreachable.test"}`)
	if status != 500 {
		t.Errorf("Expected status 500, got %d", status)
	}
	if response.ErrorKind != "navigation_error" {
		t.Errorf("Expected navigation_error, got %q", response.ErrorKind)
	}
}

func TestFindElement(t *testing.T) {
	app, _ := setupTestApp(t)
	createTab(t, app, "https://example.test")

	status, response := doJSON(t, app, "POST", "/api/element/find", `{"selector": {"css": "h1"}}`)
	if status != 200 {
		t.Fatalf("Expected status 200, got %d", status)
	}

	data := response.Data.(map[string]interface{})
	handle := data["handle"].(map[string]interface{})
	if handle["token"] == "" {
		t.Errorf("Expected a handle token, got %+v", handle)
	}
}

func TestFindElementNotFound(t *testing.T) {
	app, _ := setupTestApp(t)
	createTab(t, app, "https://example.test")

	status, response := doJSON(t, app, "POST", "/api/element/find", `{"selector": {"css": "#missing"}}`)
	if status != 404 {
		t.Errorf("Expected status 404, got %d", status)
	}
	if response.ErrorKind != "element_not_found" {
		t.Errorf("Expected element_not_found, got %q", response.ErrorKind)
	}
}

func TestFindWithoutSession(t *testing.T) {
	app, _ := setupTestApp(t)

	status, response := doJSON(t, app, "POST", "/api/element/find", `{"selector": {"css": "h1"}}`)
	if status != 404 {
		t.Errorf("Expected status 404, got %d", status)
	}
	if response.ErrorKind != "session_not_found" {
		t.Errorf("Expected session_not_found, got %q", response.ErrorKind)
	}
}

func TestInteractElement(t *testing.T) {
	app, _ := setupTestApp(t)
	createTab(t, app, "https://example.test")

	status, _ := doJSON(t, app, "POST", "/api/element/interact",
		`{"selector": {"css": "h1"}, "interaction": {"kind": "click"}}`)
	if status != 200 {
		t.Errorf("Expected status 200, got %d", status)
	}

	status, response := doJSON(t, app, "POST", "/api/element/interact",
		`{"selector": {"css": "h1"}, "interaction": {"kind": "wiggle"}}`)
	if status != 400 {
		t.Errorf("Expected status 400 for unknown interaction, got %d", status)
	}
	if response.ErrorKind != "invalid_argument" {
		t.Errorf("Expected invalid_argument, got %q", response.ErrorKind)
	}
}

func TestWaitTimeout(t *testing.T) {
	app, _ := setupTestApp(t)
	createTab(t, app, "https://example.test")

	status, response := doJSON(t, app, "POST", "/api/element/wait",
		`{"condition": {"condition_type": "element_present", "selector": {"css": "#never"}, "timeout_ms": 100, "poll_interval_ms": 10}}`)
	if status != 408 {
		t.Errorf("Expected status 408, got %d", status)
	}
	if response.ErrorKind != "timeout" {
		t.Errorf("Expected timeout, got %q", response.ErrorKind)
	}
}

func TestWaitConditionMet(t *testing.T) {
	app, _ := setupTestApp(t)
	createTab(t, app, "https://example.test")

	status, response := doJSON(t, app, "POST", "/api/element/wait",
		`{"condition": {"condition_type": "element_visible", "selector": {"css": "h1"}, "timeout_ms": 1000}}`)
	if status != 200 {
		t.Fatalf("Expected status 200, got %d", status)
	}

	data := response.Data.(map[string]interface{})
	if data["met"] != true {
		t.Errorf("Expected condition met, got %+v", data)
	}
}

func TestExecuteScript(t *testing.T) {
	app, _ := setupTestApp(t)
	createTab(t, app, "https://example.test")

	status, response := doJSON(t, app, "POST", "/api/javascript/execute", `{"script": "() => 1 + 1"}`)
	if status != 200 {
		t.Fatalf("Expected status 200, got %d", status)
	}
	if response.Data.(map[string]interface{})["value"] != "evaluated" {
		t.Errorf("Expected script value, got %+v", response.Data)
	}

	status, response = doJSON(t, app, "POST", "/api/javascript/execute", `{"script": ""}`)
	if status != 400 {
		t.Errorf("Expected status 400 for empty script, got %d", status)
	}

	status, response = doJSON(t, app, "POST", "/api/javascript/execute", `{"script": "() => { throw new Error('boom') }"}`)
	if status != 500 {
		t.Errorf("Expected status 500, got %d", status)
	}
	if response.ErrorKind != "script_error" {
		t.Errorf("Expected script_error, got %q", response.ErrorKind)
	}
}

func TestGetPageInfo(t *testing.T) {
	app, _ := setupTestApp(t)
	createTab(t, app, "https://example.test")

	status, response := doJSON(t, app, "GET", "/api/page/info", "")
	if status != 200 {
		t.Fatalf("Expected status 200, got %d", status)
	}
	data := response.Data.(map[string]interface{})
	if data["title"] != "Mock Page" {
		t.Errorf("Expected page title, got %+v", data)
	}
}

func TestScreenshot(t *testing.T) {
	app, _ := setupTestApp(t)
	createTab(t, app, "https://example.test")

	status, response := doJSON(t, app, "POST", "/api/screenshot", `{"options": {"format": "png"}}`)
	if status != 200 {
		t.Fatalf("Expected status 200, got %d", status)
	}
	data := response.Data.(map[string]interface{})
	if data["format"] != "PNG" {
		t.Errorf("Expected PNG format, got %v", data["format"])
	}
	if data["screenshot"] == "" {
		t.Errorf("Expected base64 screenshot data")
	}
}

func TestScreenshotOptionValidation(t *testing.T) {
	app, _ := setupTestApp(t)
	createTab(t, app, "https://example.test")

	status, _ := doJSON(t, app, "POST", "/api/screenshot", `{"options": {"format": "bmp"}}`)
	if status != 400 {
		t.Errorf("Expected status 400 for unsupported format, got %d", status)
	}

	status, _ = doJSON(t, app, "POST", "/api/screenshot", `{"options": {"format": "png", "quality": 80}}`)
	if status != 400 {
		t.Errorf("Expected status 400 for quality on PNG, got %d", status)
	}

	status, _ = doJSON(t, app, "POST", "/api/screenshot", `{"options": {"format": "jpeg", "quality": 150}}`)
	if status != 400 {
		t.Errorf("Expected status 400 for out-of-range quality, got %d", status)
	}
}

func TestVisualBaselineAndTest(t *testing.T) {
	app, _ := setupTestApp(t)
	createTab(t, app, "https://example.test")

	status, _ := doJSON(t, app, "POST", "/api/visual/baseline", `{"test_name": "t1"}`)
	if status != 200 {
		t.Fatalf("Expected status 200 capturing baseline, got %d", status)
	}

	status, response := doJSON(t, app, "POST", "/api/visual/test", `{"test_name": "t1", "tolerance": 0.05}`)
	if status != 200 {
		t.Fatalf("Expected status 200 running test, got %d", status)
	}

	data := response.Data.(map[string]interface{})
	if data["passed"] != true {
		t.Errorf("Unchanged page should pass, got %+v", data)
	}
	if data["difference"].(float64) != 0 {
		t.Errorf("Unchanged page should score 0, got %v", data["difference"])
	}
}

func TestVisualTestMissingBaseline(t *testing.T) {
	app, _ := setupTestApp(t)
	createTab(t, app, "https://example.test")

	status, response := doJSON(t, app, "POST", "/api/visual/test", `{"test_name": "ghost", "tolerance": 0.05}`)
	if status != 404 {
		t.Errorf("Expected status 404, got %d", status)
	}
	if response.ErrorKind != "no_baseline" {
		t.Errorf("Expected no_baseline, got %q", response.ErrorKind)
	}
}

func TestNetworkMonitorLifecycle(t *testing.T) {
	app, surface := setupTestApp(t)
	createTab(t, app, "https://example.test")

	status, _ := doJSON(t, app, "POST", "/api/network/start", "")
	if status != 200 {
		t.Fatalf("Expected status 200 starting monitor, got %d", status)
	}

	now := time.Now().UTC()
	surface.lastPage().emit(browser.RequestRecord{
		ID: "r1", Method: "GET", URL: "https://example.test/app.js",
		Status: 200, Size: 512, Start: now, End: now.Add(10 * time.Millisecond),
	})
	surface.lastPage().emit(browser.RequestRecord{
		ID: "r2", Method: "GET", URL: "https://cdn.test/lib.js",
		Status: 200, Size: 1024, Start: now, End: now.Add(20 * time.Millisecond),
	})

	// The consumer drains the capture channel asynchronously.
	deadline := time.Now().Add(2 * time.Second)
	var count float64
	for time.Now().Before(deadline) {
		_, response := doJSON(t, app, "GET", "/api/network/stats", "")
		stats := response.Data.(map[string]interface{})["stats"].(map[string]interface{})
		count = stats["count"].(float64)
		if count == 2 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if count != 2 {
		t.Fatalf("Expected 2 captured entries, got %v", count)
	}

	status, _ = doJSON(t, app, "POST", "/api/network/stop", "")
	if status != 200 {
		t.Fatalf("Expected status 200 stopping monitor, got %d", status)
	}

	// Filter narrows the exported view without deleting entries.
	status, _ = doJSON(t, app, "POST", "/api/network/filter", `{"filter": {"url_pattern": "cdn.test"}}`)
	if status != 200 {
		t.Fatalf("Expected status 200 adding filter, got %d", status)
	}

	_, response := doJSON(t, app, "GET", "/api/network/export", "")
	har := response.Data.(map[string]interface{})["log"].(map[string]interface{})
	if got := len(har["entries"].([]interface{})); got != 1 {
		t.Errorf("Expected 1 filtered HAR entry, got %d", got)
	}

	status, _ = doJSON(t, app, "POST", "/api/network/clear-filters", "")
	if status != 200 {
		t.Fatalf("Expected status 200 clearing filters, got %d", status)
	}

	_, response = doJSON(t, app, "GET", "/api/network/export", "")
	har = response.Data.(map[string]interface{})["log"].(map[string]interface{})
	if got := len(har["entries"].([]interface{})); got != 2 {
		t.Errorf("Expected 2 HAR entries after clearFilters, got %d", got)
	}
	if har["version"] != "1.2" {
		t.Errorf("Expected HAR 1.2, got %v", har["version"])
	}
}

func TestCloseTab(t *testing.T) {
	app, _ := setupTestApp(t)
	id := createTab(t, app, "https://example.test")

	status, _ := doJSON(t, app, "DELETE", "/api/tabs/"+id, "")
	if status != 200 {
		t.Fatalf("Expected status 200 closing tab, got %d", status)
	}

	status, response := doJSON(t, app, "DELETE", "/api/tabs/"+id, "")
	if status != 404 {
		t.Errorf("Expected status 404 closing twice, got %d", status)
	}
	if response.ErrorKind != "session_not_found" {
		t.Errorf("Expected session_not_found, got %q", response.ErrorKind)
	}
}

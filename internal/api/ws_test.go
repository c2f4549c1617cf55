package api

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ahrdadan/tabpilot/internal/browser"
	"github.com/ahrdadan/tabpilot/internal/events"
	"github.com/ahrdadan/tabpilot/internal/network"
	"github.com/ahrdadan/tabpilot/internal/session"
	"github.com/ahrdadan/tabpilot/internal/visual"
)

type wsFakePage struct {
	url string
}

func (p *wsFakePage) Load(ctx context.Context, url string) error {
	p.url = url
	return nil
}

func (p *wsFakePage) Info(ctx context.Context) (*browser.PageInfo, error) {
	return &browser.PageInfo{URL: p.url, Title: "Fake Page"}, nil
}

func (p *wsFakePage) Eval(ctx context.Context, script string) (interface{}, error) {
	return "ok", nil
}

func (p *wsFakePage) QueryNode(ctx context.Context, kind browser.SelectorKind, expr string) (string, error) {
	if expr != "h1" {
		return "", browser.NewError(browser.CodeElementNotFound, "no element matches %q", expr)
	}
	return "node-1", nil
}

func (p *wsFakePage) NodeState(ctx context.Context, token string) (*browser.NodeState, error) {
	return &browser.NodeState{Exists: true, Visible: true, Enabled: true, TagName: "h1"}, nil
}

func (p *wsFakePage) Interact(ctx context.Context, token string, action browser.Action) error {
	return nil
}

func (p *wsFakePage) Highlight(ctx context.Context, token, color string) error {
	return nil
}

func (p *wsFakePage) CaptureFrame(ctx context.Context, opts browser.FrameOptions) ([]byte, error) {
	return []byte("frame"), nil
}

func (p *wsFakePage) EnableNetwork(hook func(browser.RequestRecord)) error { return nil }
func (p *wsFakePage) DisableNetwork()                                      {}
func (p *wsFakePage) Close() error                                         { return nil }

type wsFakeSurface struct{}

func (s *wsFakeSurface) Start() error        { return nil }
func (s *wsFakeSurface) Stop() error         { return nil }
func (s *wsFakeSurface) IsRunning() bool     { return true }
func (s *wsFakeSurface) GetEndpoint() string { return "ws://fake" }

func (s *wsFakeSurface) OpenPage(ctx context.Context) (browser.Page, error) {
	return &wsFakePage{}, nil
}

func newDispatchHandler(t *testing.T) *Handler {
	t.Helper()

	surface := &wsFakeSurface{}
	hub := events.NewHub(nil)
	t.Cleanup(hub.Close)

	comparator, err := visual.NewComparator(t.TempDir())
	if err != nil {
		t.Fatalf("NewComparator: %v", err)
	}

	sessions := session.NewManager(surface, hub)
	t.Cleanup(sessions.Shutdown)
	monitor := network.NewMonitor(hub, network.Creator{Name: "test", Version: "1"})

	return NewHandler(surface, sessions, monitor, comparator, hub)
}

func TestDispatchNavigateCreatesTab(t *testing.T) {
	h := newDispatchHandler(t)

	data, err := h.dispatch("navigate", json.RawMessage(`{"url":"https://example.com"}`))
	if err != nil {
		t.Fatalf("navigate: %v", err)
	}
	snap, ok := data.(session.Snapshot)
	if !ok {
		t.Fatalf("Expected session.Snapshot, got %T", data)
	}
	if snap.URL != "https://example.com" {
		t.Errorf("Expected navigated URL, got %q", snap.URL)
	}

	data, err = h.dispatch("list_tabs", nil)
	if err != nil {
		t.Fatalf("list_tabs: %v", err)
	}
	listing, ok := data.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected map listing, got %T", data)
	}
	if listing["count"] != 1 {
		t.Errorf("Expected 1 tab, got %v", listing["count"])
	}
}

func TestDispatchFind(t *testing.T) {
	h := newDispatchHandler(t)

	if _, err := h.dispatch("navigate", json.RawMessage(`{"url":"https://example.com"}`)); err != nil {
		t.Fatalf("navigate: %v", err)
	}

	data, err := h.dispatch("find", json.RawMessage(`{"selector":{"css":"h1"}}`))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	result, ok := data.(*FindResult)
	if !ok {
		t.Fatalf("Expected *FindResult, got %T", data)
	}
	if result.State == nil || result.State.TagName != "h1" {
		t.Errorf("Expected h1 element state, got %+v", result.State)
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	h := newDispatchHandler(t)

	_, err := h.dispatch("teleport", nil)
	if err == nil {
		t.Fatal("Expected error for unknown command")
	}
	if browser.CodeOf(err) != browser.CodeInvalidArgument {
		t.Errorf("Expected invalid_argument, got %s", browser.CodeOf(err))
	}
}

func TestDispatchInvalidParams(t *testing.T) {
	h := newDispatchHandler(t)

	_, err := h.dispatch("navigate", json.RawMessage(`{"url":12}`))
	if err == nil {
		t.Fatal("Expected error for malformed params")
	}
	if browser.CodeOf(err) != browser.CodeInvalidArgument {
		t.Errorf("Expected invalid_argument, got %s", browser.CodeOf(err))
	}
}

func TestDispatchCloseTabRequiresSession(t *testing.T) {
	h := newDispatchHandler(t)

	_, err := h.dispatch("close_tab", json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("Expected error for missing session_id")
	}
	if browser.CodeOf(err) != browser.CodeInvalidArgument {
		t.Errorf("Expected invalid_argument, got %s", browser.CodeOf(err))
	}
}

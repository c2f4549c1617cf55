package dom_test

import (
	"context"
	"testing"
	"time"

	"github.com/ahrdadan/tabpilot/internal/browser"
	"github.com/ahrdadan/tabpilot/internal/dom"
)

func TestWaitImmediateSuccess(t *testing.T) {
	page := newFakePage()
	page.setNode("h1", browser.NodeState{Exists: true, Visible: true})

	e := dom.NewEvaluator()
	elapsed, err := e.Wait(context.Background(), page, dom.Condition{
		Type:     dom.CondElementVisible,
		Selector: dom.Selector{CSS: "h1"},
	})
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if elapsed > time.Second {
		t.Errorf("Expected immediate success, took %s", elapsed)
	}
}

func TestWaitTimeoutBound(t *testing.T) {
	e := dom.NewEvaluator()
	timeout := 200 * time.Millisecond

	start := time.Now()
	_, err := e.Wait(context.Background(), newFakePage(), dom.Condition{
		Type:           dom.CondElementPresent,
		Selector:       dom.Selector{CSS: "#never"},
		TimeoutMS:      int(timeout.Milliseconds()),
		PollIntervalMS: 20,
	})
	wall := time.Since(start)

	if browser.CodeOf(err) != browser.CodeTimeout {
		t.Fatalf("Expected timeout, got %v", err)
	}
	if wall < timeout {
		t.Errorf("Wait returned before timeout: %s < %s", wall, timeout)
	}
	if wall > timeout+500*time.Millisecond {
		t.Errorf("Wait overshot timeout badly: %s", wall)
	}
}

func TestWaitTimeoutShorterThanPollInterval(t *testing.T) {
	e := dom.NewEvaluator()
	timeout := 50 * time.Millisecond

	start := time.Now()
	_, err := e.Wait(context.Background(), newFakePage(), dom.Condition{
		Type:           dom.CondElementPresent,
		Selector:       dom.Selector{CSS: "#never"},
		TimeoutMS:      int(timeout.Milliseconds()),
		PollIntervalMS: 1000,
	})
	wall := time.Since(start)

	if browser.CodeOf(err) != browser.CodeTimeout {
		t.Fatalf("Expected timeout, got %v", err)
	}
	if wall < timeout {
		t.Errorf("Wait returned before timeout: %s < %s", wall, timeout)
	}
	if wall > timeout+200*time.Millisecond {
		t.Errorf("Wait slept a full poll interval past the timeout: %s", wall)
	}
}

func TestWaitConditionBecomesTrue(t *testing.T) {
	page := newFakePage()
	e := dom.NewEvaluator()

	go func() {
		time.Sleep(50 * time.Millisecond)
		page.setNode("#late", browser.NodeState{Exists: true, Visible: true})
	}()

	_, err := e.Wait(context.Background(), page, dom.Condition{
		Type:           dom.CondElementVisible,
		Selector:       dom.Selector{CSS: "#late"},
		TimeoutMS:      2000,
		PollIntervalMS: 10,
	})
	if err != nil {
		t.Fatalf("Expected condition to be met: %v", err)
	}
}

func TestWaitElementAbsent(t *testing.T) {
	page := newFakePage()
	page.setNode("#spinner", browser.NodeState{Exists: true, Visible: true})

	go func() {
		time.Sleep(50 * time.Millisecond)
		page.removeNode("#spinner")
	}()

	e := dom.NewEvaluator()
	_, err := e.Wait(context.Background(), page, dom.Condition{
		Type:           dom.CondElementAbsent,
		Selector:       dom.Selector{CSS: "#spinner"},
		TimeoutMS:      2000,
		PollIntervalMS: 10,
	})
	if err != nil {
		t.Fatalf("Expected absence to be detected: %v", err)
	}
}

func TestWaitCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	e := dom.NewEvaluator()
	_, err := e.Wait(ctx, newFakePage(), dom.Condition{
		Type:           dom.CondElementPresent,
		Selector:       dom.Selector{CSS: "#never"},
		TimeoutMS:      5000,
		PollIntervalMS: 10,
	})
	if browser.CodeOf(err) != browser.CodeCancelled {
		t.Errorf("Expected cancelled, got %v", err)
	}
}

func TestWaitTextConditions(t *testing.T) {
	page := newFakePage()
	page.setNode(".status", browser.NodeState{Exists: true, Visible: true, Text: "upload complete"})

	e := dom.NewEvaluator()

	if _, err := e.Wait(context.Background(), page, dom.Condition{
		Type:     dom.CondTextEquals,
		Selector: dom.Selector{CSS: ".status"},
		Text:     "upload complete",
	}); err != nil {
		t.Errorf("text_equals should match: %v", err)
	}

	if _, err := e.Wait(context.Background(), page, dom.Condition{
		Type:     dom.CondTextContains,
		Selector: dom.Selector{CSS: ".status"},
		Text:     "complete",
	}); err != nil {
		t.Errorf("text_contains should match: %v", err)
	}
}

func TestWaitPageConditions(t *testing.T) {
	page := newFakePage()
	page.title = "Dashboard - Acme"
	page.url = "https://acme.test/dashboard"

	e := dom.NewEvaluator()

	if _, err := e.Wait(context.Background(), page, dom.Condition{
		Type: dom.CondTitleContains,
		Text: "Dashboard",
	}); err != nil {
		t.Errorf("page_title_contains should match: %v", err)
	}

	if _, err := e.Wait(context.Background(), page, dom.Condition{
		Type: dom.CondURLContains,
		Text: "/dashboard",
	}); err != nil {
		t.Errorf("url_contains should match: %v", err)
	}
}

func TestWaitCustomScript(t *testing.T) {
	page := newFakePage()
	page.evalFn = func(script string) (interface{}, error) { return true, nil }

	e := dom.NewEvaluator()
	if _, err := e.Wait(context.Background(), page, dom.Condition{
		Type:   dom.CondCustom,
		Script: "() => document.readyState === 'complete'",
	}); err != nil {
		t.Errorf("custom condition should pass on truthy result: %v", err)
	}
}

func TestWaitValidation(t *testing.T) {
	e := dom.NewEvaluator()
	page := newFakePage()

	tests := []struct {
		name string
		cond dom.Condition
	}{
		{"unknown type", dom.Condition{Type: "element_sparkles"}},
		{"element condition without selector", dom.Condition{Type: dom.CondElementVisible}},
		{"text condition without text", dom.Condition{Type: dom.CondTextEquals, Selector: dom.Selector{CSS: "p"}}},
		{"custom without script", dom.Condition{Type: dom.CondCustom}},
	}

	for _, tt := range tests {
		_, err := e.Wait(context.Background(), page, tt.cond)
		if browser.CodeOf(err) != browser.CodeInvalidArgument {
			t.Errorf("%s: expected invalid_argument, got %v", tt.name, err)
		}
	}
}

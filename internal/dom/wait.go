package dom

import (
	"context"
	"strings"
	"time"

	"github.com/ahrdadan/tabpilot/internal/browser"
)

// ConditionType names a wait predicate.
type ConditionType string

const (
	CondElementVisible ConditionType = "element_visible"
	CondElementHidden  ConditionType = "element_hidden"
	CondElementPresent ConditionType = "element_present"
	CondElementAbsent  ConditionType = "element_absent"
	CondElementEnabled ConditionType = "element_enabled"
	CondTextEquals     ConditionType = "element_text_equals"
	CondTextContains   ConditionType = "element_text_contains"
	CondTitleContains  ConditionType = "page_title_contains"
	CondURLContains    ConditionType = "url_contains"
	CondCustom         ConditionType = "custom"
)

const (
	// DefaultWaitTimeout bounds a wait when the caller gives none.
	DefaultWaitTimeout = 10 * time.Second
	// DefaultPollInterval is the gap between condition polls.
	DefaultPollInterval = 100 * time.Millisecond
)

// Condition is a poll-until predicate. It lives for one wait call.
type Condition struct {
	Type           ConditionType `json:"condition_type"`
	Selector       Selector      `json:"selector"`
	Text           string        `json:"text,omitempty"`
	Script         string        `json:"script,omitempty"`
	TimeoutMS      int           `json:"timeout_ms"`
	PollIntervalMS int           `json:"poll_interval_ms"`
}

func (c Condition) timeout() time.Duration {
	if c.TimeoutMS <= 0 {
		return DefaultWaitTimeout
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

func (c Condition) pollInterval() time.Duration {
	if c.PollIntervalMS <= 0 {
		return DefaultPollInterval
	}
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

func (c Condition) validate() error {
	switch c.Type {
	case CondElementVisible, CondElementHidden, CondElementPresent,
		CondElementAbsent, CondElementEnabled:
		_, _, err := c.Selector.Kind()
		return err
	case CondTextEquals, CondTextContains:
		if c.Text == "" {
			return browser.NewError(browser.CodeInvalidArgument, "%s requires text", c.Type)
		}
		_, _, err := c.Selector.Kind()
		return err
	case CondTitleContains, CondURLContains:
		if c.Text == "" {
			return browser.NewError(browser.CodeInvalidArgument, "%s requires text", c.Type)
		}
		return nil
	case CondCustom:
		if c.Script == "" {
			return browser.NewError(browser.CodeInvalidArgument, "custom condition requires script")
		}
		return nil
	}
	return browser.NewError(browser.CodeInvalidArgument, "unknown condition type %q", c.Type)
}

// Wait polls cond against the live DOM until it holds, the timeout
// elapses, or ctx is cancelled. The first poll happens immediately;
// polls never overlap. Cancellation (session close or explicit cancel)
// returns a cancelled outcome instead of leaking the loop.
func (e *Evaluator) Wait(ctx context.Context, page browser.Page, cond Condition) (time.Duration, error) {
	if err := cond.validate(); err != nil {
		return 0, err
	}

	timeout := cond.timeout()
	start := time.Now()

	ticker := time.NewTicker(cond.pollInterval())
	defer ticker.Stop()

	// The deadline timer wakes the loop at the timeout even when the
	// poll interval is longer than the timeout itself.
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		ok, err := e.check(ctx, page, cond)
		if err != nil {
			return time.Since(start), err
		}
		if ok {
			return time.Since(start), nil
		}

		if time.Since(start) >= timeout {
			return time.Since(start), browser.NewError(browser.CodeTimeout,
				"condition %s not met within %s", cond.Type, timeout)
		}

		select {
		case <-ctx.Done():
			return time.Since(start), browser.NewError(browser.CodeCancelled, "wait cancelled")
		case <-deadline.C:
			return time.Since(start), browser.NewError(browser.CodeTimeout,
				"condition %s not met within %s", cond.Type, timeout)
		case <-ticker.C:
		}
	}
}

// check evaluates the predicate once. Element-not-found is an answer,
// not an error: absent/hidden conditions treat it as true, the rest as
// false.
func (e *Evaluator) check(ctx context.Context, page browser.Page, cond Condition) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, browser.NewError(browser.CodeCancelled, "wait cancelled")
	}

	switch cond.Type {
	case CondTitleContains:
		info, err := page.Info(ctx)
		if err != nil {
			return false, err
		}
		return strings.Contains(info.Title, cond.Text), nil

	case CondURLContains:
		info, err := page.Info(ctx)
		if err != nil {
			return false, err
		}
		return strings.Contains(info.URL, cond.Text), nil

	case CondCustom:
		value, err := page.Eval(ctx, cond.Script)
		if err != nil {
			return false, err
		}
		truthy, _ := value.(bool)
		return truthy, nil
	}

	state, found, err := e.lookup(ctx, page, cond.Selector)
	if err != nil {
		return false, err
	}

	switch cond.Type {
	case CondElementPresent:
		return found, nil
	case CondElementAbsent:
		return !found, nil
	case CondElementVisible:
		return found && state.Visible, nil
	case CondElementHidden:
		return !found || !state.Visible, nil
	case CondElementEnabled:
		return found && state.Enabled, nil
	case CondTextEquals:
		return found && state.Text == cond.Text, nil
	case CondTextContains:
		return found && strings.Contains(state.Text, cond.Text), nil
	}
	return false, browser.NewError(browser.CodeInvalidArgument, "unknown condition type %q", cond.Type)
}

func (e *Evaluator) lookup(ctx context.Context, page browser.Page, sel Selector) (*browser.NodeState, bool, error) {
	kind, expr, err := sel.Kind()
	if err != nil {
		return nil, false, err
	}

	token, err := page.QueryNode(ctx, kind, expr)
	if err != nil {
		if browser.CodeOf(err) == browser.CodeElementNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}

	state, err := page.NodeState(ctx, token)
	if err != nil {
		return nil, false, err
	}
	if !state.Exists {
		return nil, false, nil
	}
	return state, true, nil
}

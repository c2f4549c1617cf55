package dom

import (
	"context"

	"github.com/ahrdadan/tabpilot/internal/browser"
)

// Evaluator resolves selectors and dispatches interactions against a
// page. It is stateless; callers supply the page and the session's
// current generation.
type Evaluator struct{}

// NewEvaluator creates an evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Find resolves sel on page and binds the handle to gen, the session
// generation at resolution time.
func (e *Evaluator) Find(ctx context.Context, page browser.Page, sessionID string, gen uint64, sel Selector) (Handle, error) {
	kind, expr, err := sel.Kind()
	if err != nil {
		return Handle{}, err
	}

	token, err := page.QueryNode(ctx, kind, expr)
	if err != nil {
		return Handle{}, err
	}

	return Handle{SessionID: sessionID, Generation: gen, Token: token}, nil
}

// Interact dispatches action against the element behind handle. The
// generation check happens before the surface is touched: a stale handle
// fails fast.
func (e *Evaluator) Interact(ctx context.Context, page browser.Page, currentGen uint64, handle Handle, action browser.Action) error {
	if err := checkGeneration(handle, currentGen); err != nil {
		return err
	}
	if !browser.ValidAction(action.Kind) {
		return browser.NewError(browser.CodeInvalidArgument, "unknown interaction kind %q", action.Kind)
	}

	return page.Interact(ctx, handle.Token, action)
}

// Highlight draws a temporary outline overlay on the element. The DOM's
// semantic state is not mutated.
func (e *Evaluator) Highlight(ctx context.Context, page browser.Page, currentGen uint64, handle Handle, color string) error {
	if err := checkGeneration(handle, currentGen); err != nil {
		return err
	}
	if color == "" {
		color = "#ff0000"
	}

	return page.Highlight(ctx, handle.Token, color)
}

// State returns the element's current state, failing fast on stale
// handles.
func (e *Evaluator) State(ctx context.Context, page browser.Page, currentGen uint64, handle Handle) (*browser.NodeState, error) {
	if err := checkGeneration(handle, currentGen); err != nil {
		return nil, err
	}
	return page.NodeState(ctx, handle.Token)
}

func checkGeneration(handle Handle, currentGen uint64) error {
	if handle.Generation != currentGen {
		return browser.NewError(browser.CodeStaleElement,
			"element handle from generation %d is stale (session is at generation %d)",
			handle.Generation, currentGen)
	}
	return nil
}

package script

import (
	"context"
	"strings"

	"github.com/ahrdadan/tabpilot/internal/browser"
)

// Bridge submits JavaScript to a page's execution context and returns a
// structured result. Exceptions thrown by the script come back as script
// errors, never as transport faults.
type Bridge struct{}

// NewBridge creates a script bridge.
func NewBridge() *Bridge {
	return &Bridge{}
}

// Result is the outcome of one script execution.
type Result struct {
	Value interface{} `json:"value"`
}

// Execute runs script in the page and returns its JSON-serializable
// value.
func (b *Bridge) Execute(ctx context.Context, page browser.Page, script string) (*Result, error) {
	if strings.TrimSpace(script) == "" {
		return nil, browser.NewError(browser.CodeInvalidArgument, "script is empty")
	}

	value, err := page.Eval(ctx, script)
	if err != nil {
		return nil, err
	}
	return &Result{Value: value}, nil
}

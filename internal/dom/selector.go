package dom

import (
	"github.com/ahrdadan/tabpilot/internal/browser"
)

// Selector is a tagged locator variant. Exactly one of CSS, XPath, or
// Text must be set. When a caller manages to set more than one, the
// resolution order is fixed: css, then xpath, then text.
type Selector struct {
	CSS   string `json:"css,omitempty"`
	XPath string `json:"xpath,omitempty"`
	Text  string `json:"text,omitempty"`
}

// Kind returns the query primitive this selector maps to.
func (s Selector) Kind() (browser.SelectorKind, string, error) {
	switch {
	case s.CSS != "":
		return browser.SelectorCSS, s.CSS, nil
	case s.XPath != "":
		return browser.SelectorXPath, s.XPath, nil
	case s.Text != "":
		return browser.SelectorText, s.Text, nil
	}
	return "", "", browser.NewError(browser.CodeInvalidArgument, "selector requires one of css, xpath, text")
}

// Describe returns a short human-readable form for error messages.
func (s Selector) Describe() string {
	kind, expr, err := s.Kind()
	if err != nil {
		return "<empty selector>"
	}
	return string(kind) + ":" + expr
}

// Handle is a resolved element reference. It is only usable while its
// generation matches the owning session's current generation; navigation
// invalidates it.
type Handle struct {
	SessionID  string `json:"session_id"`
	Generation uint64 `json:"generation"`
	Token      string `json:"token"`
}

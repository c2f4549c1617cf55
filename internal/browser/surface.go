package browser

import (
	"context"
	"time"
)

// Surface is the rendering engine as seen by the automation components.
// The production implementation drives Chromium over CDP; tests swap in
// in-memory fakes.
type Surface interface {
	Start() error
	Stop() error
	IsRunning() bool
	GetEndpoint() string
	OpenPage(ctx context.Context) (Page, error)
}

// Page is one browsing context on the surface. All DOM work goes through
// node tokens handed out by QueryNode; a token is only meaningful on the
// page that issued it.
type Page interface {
	Load(ctx context.Context, url string) error
	Info(ctx context.Context) (*PageInfo, error)
	Eval(ctx context.Context, script string) (interface{}, error)
	QueryNode(ctx context.Context, kind SelectorKind, expr string) (string, error)
	NodeState(ctx context.Context, token string) (*NodeState, error)
	Interact(ctx context.Context, token string, action Action) error
	Highlight(ctx context.Context, token, color string) error
	CaptureFrame(ctx context.Context, opts FrameOptions) ([]byte, error)
	EnableNetwork(hook func(RequestRecord)) error
	DisableNetwork()
	Close() error
}

// SelectorKind names the DOM-query primitive a selector maps to.
type SelectorKind string

const (
	SelectorCSS   SelectorKind = "css"
	SelectorXPath SelectorKind = "xpath"
	SelectorText  SelectorKind = "text"
)

// ActionKind enumerates element interactions.
type ActionKind string

const (
	ActionClick       ActionKind = "click"
	ActionDoubleClick ActionKind = "double_click"
	ActionHover       ActionKind = "hover"
	ActionFocus       ActionKind = "focus"
	ActionType        ActionKind = "type"
	ActionClear       ActionKind = "clear"
	ActionSelect      ActionKind = "select"
	ActionCheck       ActionKind = "check"
	ActionUncheck     ActionKind = "uncheck"
)

// Action is a tagged interaction variant. Text is set for type, Value
// for select; both are ignored otherwise.
type Action struct {
	Kind  ActionKind `json:"kind"`
	Text  string     `json:"text,omitempty"`
	Value string     `json:"value,omitempty"`
}

// ValidAction reports whether kind is a known interaction.
func ValidAction(kind ActionKind) bool {
	switch kind {
	case ActionClick, ActionDoubleClick, ActionHover, ActionFocus,
		ActionType, ActionClear, ActionSelect, ActionCheck, ActionUncheck:
		return true
	}
	return false
}

// NodeState is a point-in-time view of a resolved element.
type NodeState struct {
	Exists  bool   `json:"exists"`
	Visible bool   `json:"visible"`
	Enabled bool   `json:"enabled"`
	Text    string `json:"text"`
	TagName string `json:"tag_name"`
}

// PageInfo is basic page introspection data.
type PageInfo struct {
	URL          string `json:"url"`
	Title        string `json:"title"`
	ReadyState   string `json:"ready_state,omitempty"`
	ElementCount int    `json:"element_count,omitempty"`
}

// FrameFormat is the encoding for captured frames.
type FrameFormat string

const (
	FormatPNG  FrameFormat = "PNG"
	FormatJPEG FrameFormat = "JPEG"
)

// FrameOptions control frame capture. Quality applies to JPEG only.
type FrameOptions struct {
	Format  FrameFormat `json:"format"`
	Quality int         `json:"quality,omitempty"`
}

// DefaultFrameOptions returns the capture defaults.
func DefaultFrameOptions() FrameOptions {
	return FrameOptions{Format: FormatPNG}
}

// RequestRecord is one completed (or failed) network exchange reported by
// the surface's interception hook. Records are immutable after capture.
type RequestRecord struct {
	ID           string            `json:"id"`
	Method       string            `json:"method"`
	URL          string            `json:"url"`
	Headers      map[string]string `json:"headers,omitempty"`
	Status       int               `json:"status"`
	RespHeaders  map[string]string `json:"response_headers,omitempty"`
	Size         int64             `json:"size"`
	MimeType     string            `json:"mime_type,omitempty"`
	ResourceType string            `json:"resource_type,omitempty"`
	Start        time.Time         `json:"start"`
	End          time.Time         `json:"end"`
	Failed       bool              `json:"failed"`
	ErrorText    string            `json:"error_text,omitempty"`
}

// Duration returns the exchange's wall-clock duration.
func (r RequestRecord) Duration() time.Duration {
	if r.End.Before(r.Start) {
		return 0
	}
	return r.End.Sub(r.Start)
}

package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// rodPage adapts a rod CDP page to the Page interface. DOM operations run
// as injected JavaScript against an in-page node registry so element
// tokens stay valid exactly as long as the document does.
type rodPage struct {
	page *rod.Page

	netMu     sync.Mutex
	netCancel context.CancelFunc
}

func newRodPage(page *rod.Page) *rodPage {
	return &rodPage{page: page}
}

func (p *rodPage) Load(ctx context.Context, url string) error {
	pg := p.page.Context(ctx)

	if err := pg.Navigate(url); err != nil {
		return NewError(CodeNavigation, "failed to navigate to %s: %v", url, err)
	}
	if err := pg.WaitLoad(); err != nil {
		return NewError(CodeNavigation, "failed to wait for page load: %v", err)
	}
	return nil
}

func (p *rodPage) Info(ctx context.Context) (*PageInfo, error) {
	obj, err := p.page.Context(ctx).Eval(jsPageInfo)
	if err != nil {
		return nil, mapEvalError(err)
	}

	var info PageInfo
	if err := decodeValue(obj.Value.Raw(), &info); err != nil {
		return nil, fmt.Errorf("failed to decode page info: %w", err)
	}
	return &info, nil
}

func (p *rodPage) Eval(ctx context.Context, script string) (interface{}, error) {
	obj, err := p.page.Context(ctx).Eval(script)
	if err != nil {
		return nil, mapEvalError(err)
	}
	return obj.Value.Raw(), nil
}

func (p *rodPage) QueryNode(ctx context.Context, kind SelectorKind, expr string) (string, error) {
	obj, err := p.page.Context(ctx).Eval(jsQueryNode, string(kind), expr)
	if err != nil {
		return "", mapEvalError(err)
	}

	token := obj.Value.Str()
	if token == "" {
		return "", NewError(CodeElementNotFound, "no element matches %s selector %q", kind, expr)
	}
	return token, nil
}

func (p *rodPage) NodeState(ctx context.Context, token string) (*NodeState, error) {
	obj, err := p.page.Context(ctx).Eval(jsNodeState, token)
	if err != nil {
		return nil, mapEvalError(err)
	}

	var state NodeState
	if err := decodeValue(obj.Value.Raw(), &state); err != nil {
		return nil, fmt.Errorf("failed to decode node state: %w", err)
	}
	return &state, nil
}

func (p *rodPage) Interact(ctx context.Context, token string, action Action) error {
	obj, err := p.page.Context(ctx).Eval(jsInteract, token, string(action.Kind), action.Text, action.Value)
	if err != nil {
		return mapEvalError(err)
	}

	var result struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := decodeValue(obj.Value.Raw(), &result); err != nil {
		return fmt.Errorf("failed to decode interaction result: %w", err)
	}
	if !result.Success {
		return NewError(CodeInteractionFailed, "%s", result.Error)
	}
	return nil
}

func (p *rodPage) Highlight(ctx context.Context, token, color string) error {
	obj, err := p.page.Context(ctx).Eval(jsHighlight, token, color)
	if err != nil {
		return mapEvalError(err)
	}
	if !obj.Value.Bool() {
		return NewError(CodeInteractionFailed, "highlight target no longer attached")
	}
	return nil
}

func (p *rodPage) CaptureFrame(ctx context.Context, opts FrameOptions) ([]byte, error) {
	req := &proto.PageCaptureScreenshot{}
	switch opts.Format {
	case FormatJPEG:
		req.Format = proto.PageCaptureScreenshotFormatJpeg
		if opts.Quality > 0 {
			q := opts.Quality
			req.Quality = &q
		}
	default:
		req.Format = proto.PageCaptureScreenshotFormatPng
	}

	data, err := p.page.Context(ctx).Screenshot(false, req)
	if err != nil {
		return nil, NewError(CodeCapture, "failed to capture frame: %v", err)
	}
	return data, nil
}

// EnableNetwork subscribes to CDP network events and reports completed
// exchanges to hook. Request/response/finish events are paired by CDP
// request id; a record is emitted once loading finishes or fails.
func (p *rodPage) EnableNetwork(hook func(RequestRecord)) error {
	p.netMu.Lock()
	defer p.netMu.Unlock()

	if p.netCancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(p.page.GetContext())
	pg := p.page.Context(ctx)

	if err := (proto.NetworkEnable{}).Call(pg); err != nil {
		cancel()
		return fmt.Errorf("failed to enable network domain: %w", err)
	}

	pending := make(map[proto.NetworkRequestID]*RequestRecord)
	var pendingMu sync.Mutex

	wait := pg.EachEvent(
		func(ev *proto.NetworkRequestWillBeSent) {
			rec := &RequestRecord{
				ID:           string(ev.RequestID),
				Method:       ev.Request.Method,
				URL:          ev.Request.URL,
				Headers:      flattenHeaders(ev.Request.Headers),
				ResourceType: string(ev.Type),
				Start:        time.Now(),
			}
			pendingMu.Lock()
			pending[ev.RequestID] = rec
			pendingMu.Unlock()
		},
		func(ev *proto.NetworkResponseReceived) {
			pendingMu.Lock()
			if rec, ok := pending[ev.RequestID]; ok && ev.Response != nil {
				rec.Status = ev.Response.Status
				rec.RespHeaders = flattenHeaders(ev.Response.Headers)
				rec.MimeType = ev.Response.MIMEType
			}
			pendingMu.Unlock()
		},
		func(ev *proto.NetworkLoadingFinished) {
			pendingMu.Lock()
			rec, ok := pending[ev.RequestID]
			delete(pending, ev.RequestID)
			pendingMu.Unlock()
			if !ok {
				return
			}
			rec.End = time.Now()
			rec.Size = int64(ev.EncodedDataLength)
			hook(*rec)
		},
		func(ev *proto.NetworkLoadingFailed) {
			pendingMu.Lock()
			rec, ok := pending[ev.RequestID]
			delete(pending, ev.RequestID)
			pendingMu.Unlock()
			if !ok {
				return
			}
			rec.End = time.Now()
			rec.Failed = true
			rec.ErrorText = ev.ErrorText
			hook(*rec)
		},
	)

	go wait()

	p.netCancel = cancel
	return nil
}

// DisableNetwork stops the event loop started by EnableNetwork.
func (p *rodPage) DisableNetwork() {
	p.netMu.Lock()
	defer p.netMu.Unlock()

	if p.netCancel != nil {
		p.netCancel()
		p.netCancel = nil
	}
}

func (p *rodPage) Close() error {
	p.DisableNetwork()
	return p.page.Close()
}

func flattenHeaders(h proto.NetworkHeaders) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v.Str()
	}
	return out
}

func decodeValue(raw interface{}, dst interface{}) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// mapEvalError turns a thrown JS exception into a script error; transport
// and context failures pass through untouched.
func mapEvalError(err error) error {
	var evalErr *rod.EvalError
	if errors.As(err, &evalErr) {
		msg := evalErr.Text
		if evalErr.Exception != nil && evalErr.Exception.Description != "" {
			msg = evalErr.Exception.Description
		}
		return NewError(CodeScript, "%s", msg)
	}
	return err
}

package api

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/ahrdadan/tabpilot/internal/browser"
)

// wsReply is one command response frame. The command name echoes the
// envelope key so clients can correlate concurrent commands.
type wsReply struct {
	Command   string      `json:"command"`
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorKind string      `json:"error_kind,omitempty"`
}

// wsEventFrame wraps an asynchronous event pushed to every subscriber.
type wsEventFrame struct {
	Event interface{} `json:"event"`
}

// wsConn serializes writes; fasthttp/websocket connections tolerate one
// writer at a time and commands run concurrently.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsConn) writeJSON(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(v)
}

// HandleWebSocket runs the command loop for one WebSocket client.
// Incoming frames are JSON envelopes with exactly one top-level key
// naming the command, e.g. {"navigate": {"url": "https://example.com"}}.
// Each command runs in its own goroutine; ordering guarantees come from
// the per-session mutation lock, not the connection. Asynchronous
// engine events are pushed as {"event": {...}} frames.
func (h *Handler) HandleWebSocket(c *websocket.Conn) {
	conn := &wsConn{conn: c}

	subID := uuid.New().String()
	eventCh := h.hub.Subscribe(subID)
	defer h.hub.Unsubscribe(subID)

	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case <-done:
				return
			case event, ok := <-eventCh:
				if !ok {
					return
				}
				if err := conn.writeJSON(wsEventFrame{Event: event}); err != nil {
					return
				}
			}
		}
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			return
		}

		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope) != 1 {
			_ = conn.writeJSON(wsReply{
				Command:   "",
				Error:     "expected a JSON object with exactly one command key",
				ErrorKind: string(browser.CodeInvalidArgument),
			})
			continue
		}

		for command, params := range envelope {
			wg.Add(1)
			go func(command string, params json.RawMessage) {
				defer wg.Done()
				data, err := h.dispatch(command, params)
				conn.reply(command, data, err)
			}(command, params)
		}
	}
}

func (w *wsConn) reply(command string, data interface{}, err error) {
	if err != nil {
		_ = w.writeJSON(wsReply{
			Command:   command,
			Error:     err.Error(),
			ErrorKind: string(browser.CodeOf(err)),
		})
		return
	}
	_ = w.writeJSON(wsReply{Command: command, Success: true, Data: data})
}

// dispatch routes one WS command to the same internals the HTTP
// handlers use.
func (h *Handler) dispatch(command string, params json.RawMessage) (interface{}, error) {
	ctx := context.Background()

	switch command {
	case "navigate":
		var req NavigateRequest
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		return h.doNavigate(ctx, req)

	case "create_tab":
		var req CreateTabRequest
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		return h.sessions.Create(ctx, req.URL)

	case "close_tab":
		var req SessionRequest
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		if req.SessionID == "" {
			return nil, browser.NewError(browser.CodeInvalidArgument, "session_id is required")
		}
		if err := h.doCloseTab(req.SessionID); err != nil {
			return nil, err
		}
		return map[string]interface{}{"closed": req.SessionID}, nil

	case "list_tabs":
		tabs := h.sessions.List()
		return map[string]interface{}{"tabs": tabs, "count": len(tabs)}, nil

	case "find":
		var req FindRequest
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		return h.doFind(ctx, req)

	case "interact":
		var req InteractRequest
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		if err := h.doInteract(ctx, req); err != nil {
			return nil, err
		}
		return map[string]interface{}{"interacted": string(req.Interaction.Kind)}, nil

	case "highlight":
		var req HighlightRequest
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		if err := h.doHighlight(ctx, req); err != nil {
			return nil, err
		}
		return map[string]interface{}{"highlighted": req.Selector.Describe()}, nil

	case "wait":
		var req WaitRequest
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		return h.doWait(req)

	case "execute":
		var req ExecuteRequest
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		return h.doExecute(ctx, req)

	case "page_info":
		var req SessionRequest
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		return h.doPageInfo(ctx, req.SessionID)
	}

	return nil, browser.NewError(browser.CodeInvalidArgument, "unknown command %q", command)
}

func decodeParams(params json.RawMessage, v interface{}) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return browser.NewError(browser.CodeInvalidArgument, "invalid command params: %v", err)
	}
	return nil
}

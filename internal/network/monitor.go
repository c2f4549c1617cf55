package network

import (
	"context"
	"sync"

	"github.com/ahrdadan/tabpilot/internal/browser"
	"github.com/ahrdadan/tabpilot/internal/events"
)

const (
	// maxEntries caps the per-session buffer. Beyond the cap the oldest
	// entry is dropped; capture never blocks the live network path.
	maxEntries = 1000

	// captureChanCap bounds the hook-to-consumer channel. A full channel
	// drops the record (counted) instead of stalling the surface.
	captureChanCap = 256
)

// Backgrounder ties a capture consumer to its session's lifetime.
// *session.Session satisfies it.
type Backgrounder interface {
	Background() (ctx context.Context, done func(), err error)
}

// Monitor captures network traffic per session. The surface's
// interception hook produces into a bounded channel; one consumer
// goroutine per session appends to the entry buffer, so readers never
// contend with the capture path.
type Monitor struct {
	hub     *events.Hub
	creator Creator

	mu       sync.RWMutex
	captures map[string]*capture
}

// Creator identifies this engine in exported HAR documents.
type Creator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type capture struct {
	page browser.Page

	mu      sync.RWMutex
	entries []browser.RequestRecord
	filters []Filter
	running bool
	dropped uint64

	ch   chan browser.RequestRecord
	stop context.CancelFunc
}

// NewMonitor creates a network monitor. hub may be nil.
func NewMonitor(hub *events.Hub, creator Creator) *Monitor {
	return &Monitor{
		hub:      hub,
		creator:  creator,
		captures: make(map[string]*capture),
	}
}

// Start begins capturing traffic for the session. Starting an already
// started monitor is a no-op.
func (m *Monitor) Start(sessionID string, page browser.Page, bg Backgrounder) error {
	c := m.capture(sessionID)

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.page = page
	c.ch = make(chan browser.RequestRecord, captureChanCap)
	c.mu.Unlock()

	sessCtx, done, err := bg.Background()
	if err != nil {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return err
	}

	ctx, cancel := context.WithCancel(sessCtx)
	c.mu.Lock()
	c.stop = cancel
	ch := c.ch
	c.mu.Unlock()

	go m.consume(ctx, sessionID, c, ch, done)

	if err := page.EnableNetwork(func(rec browser.RequestRecord) {
		select {
		case ch <- rec:
		default:
			c.mu.Lock()
			c.dropped++
			c.mu.Unlock()
		}
	}); err != nil {
		cancel()
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return err
	}

	return nil
}

// Stop halts capture for the session. Captured entries are retained
// until explicitly cleared. Stopping a never-started or already stopped
// monitor is a no-op.
func (m *Monitor) Stop(sessionID string) {
	m.mu.RLock()
	c, ok := m.captures[sessionID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	c.mu.Lock()
	running := c.running
	c.running = false
	page := c.page
	stop := c.stop
	c.stop = nil
	c.mu.Unlock()

	if !running {
		return
	}
	if page != nil {
		page.DisableNetwork()
	}
	if stop != nil {
		stop()
	}
}

// consume drains the capture channel into the entry buffer. It exits
// when the session closes or Stop cancels the context, acknowledging
// via done.
func (m *Monitor) consume(ctx context.Context, sessionID string, c *capture, ch <-chan browser.RequestRecord, done func()) {
	defer done()

	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-ch:
			c.append(rec)
			if m.hub != nil {
				m.hub.Emit(events.Event{
					Type:      events.TypeNetworkEntry,
					SessionID: sessionID,
					URL:       rec.URL,
					Payload:   rec,
				})
			}
		}
	}
}

func (c *capture) append(rec browser.RequestRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = append(c.entries, rec)
	if len(c.entries) > maxEntries {
		c.entries = c.entries[len(c.entries)-maxEntries:]
	}
}

// AddFilter appends a filter to the session's ordered set. Duplicates
// are allowed; existing entries are never deleted, only the filtered
// view changes.
func (m *Monitor) AddFilter(sessionID string, f Filter) {
	c := m.capture(sessionID)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters = append(c.filters, f)
}

// ClearFilters removes all filters, reverting to the unfiltered view.
// Captured entries are untouched.
func (m *Monitor) ClearFilters(sessionID string) {
	m.mu.RLock()
	c, ok := m.captures[sessionID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters = nil
}

// Clear deletes all captured entries for the session. Filters remain
// active.
func (m *Monitor) Clear(sessionID string) {
	m.mu.RLock()
	c, ok := m.captures[sessionID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
}

// Entries returns the filtered view of captured entries. A session with
// no capture state yields an empty slice, not an error.
func (m *Monitor) Entries(sessionID string) []browser.RequestRecord {
	m.mu.RLock()
	c, ok := m.captures[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]browser.RequestRecord, 0, len(c.entries))
	for _, rec := range c.entries {
		if matchesAny(c.filters, rec) {
			out = append(out, rec)
		}
	}
	return out
}

// Dropped returns how many records were lost to a full capture channel.
func (m *Monitor) Dropped(sessionID string) uint64 {
	m.mu.RLock()
	c, ok := m.captures[sessionID]
	m.mu.RUnlock()
	if !ok {
		return 0
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dropped
}

// Drop releases all capture state for a closed session.
func (m *Monitor) Drop(sessionID string) {
	m.Stop(sessionID)

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.captures, sessionID)
}

// record appends an entry directly, bypassing the capture channel. Test
// seam and internal entry point for synthetic entries.
func (m *Monitor) record(sessionID string, rec browser.RequestRecord) {
	m.capture(sessionID).append(rec)
}

func (m *Monitor) capture(sessionID string) *capture {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.captures[sessionID]
	if !ok {
		c = &capture{}
		m.captures[sessionID] = c
	}
	return c
}

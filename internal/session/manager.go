package session

import (
	"context"
	"sync"

	"github.com/ahrdadan/tabpilot/internal/browser"
	"github.com/ahrdadan/tabpilot/internal/events"
	"github.com/google/uuid"
)

// Manager owns the arena of sessions. At most one session exists per id;
// create and destroy are the only lifecycle transitions.
type Manager struct {
	surface browser.Surface
	hub     *events.Hub

	mu       sync.RWMutex
	sessions map[string]*Session
	active   string
}

// NewManager creates a session manager. hub may be nil.
func NewManager(surface browser.Surface, hub *events.Hub) *Manager {
	return &Manager{
		surface:  surface,
		hub:      hub,
		sessions: make(map[string]*Session),
	}
}

// Create opens a new tab, navigates it to url, and makes it the active
// tab.
func (m *Manager) Create(ctx context.Context, url string) (Snapshot, error) {
	page, err := m.surface.OpenPage(context.Background())
	if err != nil {
		return Snapshot{}, browser.NewError(browser.CodeNavigation, "failed to open page: %v", err)
	}

	sess := newSession(uuid.New().String(), page)

	m.mu.Lock()
	m.sessions[sess.id] = sess
	m.active = sess.id
	m.mu.Unlock()

	if url != "" {
		if _, err := m.Navigate(ctx, sess.id, url); err != nil {
			// The tab stays open on a failed initial load; callers can
			// retry navigation against the blank page.
			m.emit(events.Event{Type: events.TypeError, SessionID: sess.id, Payload: err.Error()})
		}
	}

	m.emit(events.Event{Type: events.TypeTabCreated, SessionID: sess.id, URL: url})
	return m.snapshot(sess), nil
}

// Navigate loads url in the session. The generation counter increments
// before the surface starts loading, so handles resolved against the old
// document are invalid the moment navigation begins — and stay invalid
// even if the load fails.
func (m *Manager) Navigate(ctx context.Context, id, url string) (Snapshot, error) {
	sess, err := m.Session(id)
	if err != nil {
		return Snapshot{}, err
	}

	err = sess.Do(ctx, func(page browser.Page) error {
		sess.bumpGeneration()

		if err := page.Load(ctx, url); err != nil {
			return err
		}

		title := ""
		if info, infoErr := page.Info(ctx); infoErr == nil {
			title = info.Title
		}
		sess.setLocation(url, title)
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}

	m.emit(events.Event{Type: events.TypeNavigation, SessionID: id, URL: url})
	return m.snapshot(sess), nil
}

// NavigateActive navigates the active tab, creating one when none
// exists.
func (m *Manager) NavigateActive(ctx context.Context, url string) (Snapshot, error) {
	m.mu.RLock()
	active := m.active
	m.mu.RUnlock()

	if active == "" {
		return m.Create(ctx, url)
	}
	return m.Navigate(ctx, active, url)
}

// Close destroys a session: cancels its background work, waits for
// acknowledged termination, closes the page, removes it from the arena.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return browser.NewError(browser.CodeSessionNotFound, "session %s not found", id)
	}
	delete(m.sessions, id)
	if m.active == id {
		m.active = ""
		for other := range m.sessions {
			m.active = other
			break
		}
	}
	m.mu.Unlock()

	sess.close()
	m.emit(events.Event{Type: events.TypeTabClosed, SessionID: id})
	return nil
}

// Session returns the live session for id.
func (m *Manager) Session(id string) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, browser.NewError(browser.CodeSessionNotFound, "session %s not found", id)
	}
	return sess, nil
}

// Active returns the active session, if any.
func (m *Manager) Active() (*Session, error) {
	m.mu.RLock()
	active := m.active
	m.mu.RUnlock()

	if active == "" {
		return nil, browser.NewError(browser.CodeSessionNotFound, "no active session")
	}
	return m.Session(active)
}

// Get returns a snapshot of the session.
func (m *Manager) Get(id string) (Snapshot, error) {
	sess, err := m.Session(id)
	if err != nil {
		return Snapshot{}, err
	}
	return m.snapshot(sess), nil
}

// List returns snapshots of all sessions.
func (m *Manager) List() []Snapshot {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.mu.RUnlock()

	out := make([]Snapshot, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, m.snapshot(sess))
	}
	return out
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown closes every session.
func (m *Manager) Shutdown() {
	for _, snap := range m.List() {
		_ = m.Close(snap.ID)
	}
}

func (m *Manager) snapshot(sess *Session) Snapshot {
	snap := sess.Snapshot()
	m.mu.RLock()
	snap.Active = m.active == sess.id
	m.mu.RUnlock()
	return snap
}

func (m *Manager) emit(event events.Event) {
	if m.hub != nil {
		m.hub.Emit(event)
	}
}

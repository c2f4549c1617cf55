package session

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ahrdadan/tabpilot/internal/browser"
)

// State is a session's lifecycle state.
type State string

const (
	StateReady  State = "ready"
	StateClosed State = "closed"
)

// Snapshot is a consistent point-in-time view of a session.
type Snapshot struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	State      State     `json:"state"`
	Generation uint64    `json:"generation"`
	History    []string  `json:"history"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

// Session is one browsing context. Mutating operations (navigate,
// interact, execute-script) serialize on the mutation lock; snapshot
// reads take the state lock only, so they never wait behind a slow page
// load.
type Session struct {
	id        string
	page      browser.Page
	createdAt time.Time

	generation atomic.Uint64

	opMu sync.Mutex // mutation critical section

	stateMu sync.RWMutex
	url     string
	title   string
	history []string
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup // in-flight wait loops and capture consumers
}

func newSession(id string, page browser.Page) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:        id,
		page:      page,
		createdAt: time.Now().UTC(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Generation returns the current handle generation.
func (s *Session) Generation() uint64 { return s.generation.Load() }

// Snapshot returns a consistent copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()

	state := StateReady
	if s.closed {
		state = StateClosed
	}
	history := make([]string, len(s.history))
	copy(history, s.history)

	return Snapshot{
		ID:         s.id,
		URL:        s.url,
		Title:      s.title,
		State:      state,
		Generation: s.generation.Load(),
		History:    history,
		CreatedAt:  s.createdAt,
	}
}

// Do runs fn inside the session's mutation critical section. A second
// mutating call against the same session blocks until the first
// completes; sessions run independently of each other.
func (s *Session) Do(ctx context.Context, fn func(page browser.Page) error) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.isClosed() {
		return browser.NewError(browser.CodeSessionNotFound, "session %s is closed", s.id)
	}
	if err := ctx.Err(); err != nil {
		return browser.NewError(browser.CodeCancelled, "operation cancelled: %v", err)
	}
	return fn(s.page)
}

// View runs fn against the page without taking the mutation lock. Used
// for non-mutating reads that may overlap a pending mutation.
func (s *Session) View(fn func(page browser.Page) error) error {
	if s.isClosed() {
		return browser.NewError(browser.CodeSessionNotFound, "session %s is closed", s.id)
	}
	return fn(s.page)
}

// Background registers a background task (wait loop, network consumer)
// tied to the session lifetime. The returned context is cancelled when
// the session closes; done must be called when the task exits so Close
// can wait for acknowledged termination.
func (s *Session) Background() (ctx context.Context, done func(), err error) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()

	if s.closed {
		return nil, nil, browser.NewError(browser.CodeSessionNotFound, "session %s is closed", s.id)
	}

	s.bg.Add(1)
	var once sync.Once
	return s.ctx, func() { once.Do(s.bg.Done) }, nil
}

// bumpGeneration invalidates all outstanding element handles.
func (s *Session) bumpGeneration() uint64 {
	return s.generation.Add(1)
}

func (s *Session) setLocation(url, title string) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.url = url
	s.title = title
	s.history = append(s.history, url)
}

func (s *Session) isClosed() bool {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.closed
}

// close cancels background work, waits for it to acknowledge, and
// releases the page.
func (s *Session) close() {
	s.stateMu.Lock()
	if s.closed {
		s.stateMu.Unlock()
		return
	}
	s.closed = true
	s.stateMu.Unlock()

	s.cancel()
	s.bg.Wait()

	if err := s.page.Close(); err != nil {
		log.Printf("Warning: failed to close page for session %s: %v", s.id, err)
	}
}

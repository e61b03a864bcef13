package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/shehryarbajwa/visitrace/internal/activity"
	"github.com/shehryarbajwa/visitrace/internal/clock"
	"github.com/shehryarbajwa/visitrace/internal/enrichment"
	"github.com/shehryarbajwa/visitrace/internal/environment"
	"github.com/shehryarbajwa/visitrace/internal/events"
	"github.com/shehryarbajwa/visitrace/internal/flush"
	"github.com/shehryarbajwa/visitrace/internal/identity"
	"github.com/shehryarbajwa/visitrace/internal/payload"
	"github.com/shehryarbajwa/visitrace/internal/sink"
	"github.com/shehryarbajwa/visitrace/internal/storage"
	"github.com/shehryarbajwa/visitrace/pkg/models"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTooManyTabs     = errors.New("too many tracked tabs")
)

// Dependencies are shared by every tracked tab
type Dependencies struct {
	Persistent storage.Store
	Enricher   flush.Enricher
	Sink       sink.Sink
	Clock      clock.Clock
}

// Options tune tab tracking
type Options struct {
	IdleThreshold  time.Duration
	FlushOnce      bool
	SessionTTL     time.Duration // how long a closed tab's session storage survives
	MaxTabsPerHost int
}

// StartRequest describes a page load announced by the shim
type StartRequest struct {
	TabID      string
	RemoteHost string
	Page       models.Page
	Cookie     string
	Env        *models.EnvReport
}

// scope is the session storage of one browser tab. Page loads of the tab
// (reloads, duplicated tabs) share it along with one concurrency slot.
type scope struct {
	store  *storage.MemoryStore
	expiry clock.Timer
	live   int    // attached page loads
	host   string // holder of the slot while live > 0
}

// Manager tracks every connected tab
type Manager struct {
	sessions    sync.Map // sessionID -> latest *Tab
	tabs        sync.Map // *Tab -> struct{}, every attached page load
	scopes      sync.Map // tabID -> *scope
	concurrency map[string]*semaphore.Weighted
	mu          sync.Mutex
	deps        Dependencies
	opts        Options
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewManager creates a new session manager
func NewManager(deps Dependencies, opts Options) *Manager {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Persistent == nil {
		deps.Persistent = storage.NewMemoryStore()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * time.Minute
	}
	if opts.MaxTabsPerHost <= 0 {
		opts.MaxTabsPerHost = 10
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		concurrency: make(map[string]*semaphore.Weighted),
		deps:        deps,
		opts:        opts,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// StartSession wires identity, activity tracking and the flush trigger for a
// page load. source delivers the page's events; locator, if non-nil, answers
// device geolocation requests.
func (m *Manager) StartSession(req StartRequest, source events.Source, locator enrichment.Locator) (*Tab, error) {
	if req.Page.URL == "" {
		return nil, fmt.Errorf("page url is required")
	}
	if req.TabID == "" {
		req.TabID = uuid.New().String()
	}

	// Check concurrency limit
	sc, err := m.attachScope(req.TabID, req.RemoteHost)
	if err != nil {
		return nil, err
	}

	resolver := identity.NewResolver(sc.store, m.deps.Persistent, req.Cookie)
	sessionID := resolver.GetOrCreateSessionID()
	now := m.deps.Clock.Now()
	visitor := resolver.RecordVisit(now)

	if previous, err := m.GetSession(sessionID); err == nil && previous.open() {
		log.Printf("♻️ Tab %s has another page load attached, sharing its session", shortID(req.TabID))
	}

	tab := &Tab{
		info: models.Session{
			ID:          sessionID,
			TabID:       req.TabID,
			RemoteHost:  req.RemoteHost,
			Status:      models.StatusRunning,
			URL:         req.Page.URL,
			StartedAt:   now,
			LastEventAt: now,
		},
		scope:        sc,
		page:         req.Page,
		resolver:     resolver,
		visitor:      visitor,
		capabilities: environment.FromReport(req.Env).Inspect(),
		tracker:      activity.NewTracker(m.deps.Clock, m.opts.IdleThreshold),
		clock:        m.deps.Clock,
	}

	pipeline := &flush.Pipeline{
		Enricher: m.deps.Enricher,
		Locator:  locator,
		Gather:   tab.gather,
		Sink:     m.deps.Sink,
	}
	tab.trigger = flush.NewTrigger(m.ctx, pipeline, m.opts.FlushOnce, tab.recordFlush)

	tab.tracker.Attach(source)
	tab.trigger.Attach(source)
	tab.unsubscribe = source.Subscribe(tab.touch,
		events.KindMouseMove, events.KindKeyDown, events.KindScroll, events.KindClick,
		events.KindMouseLeave, events.KindVisibilityChange, events.KindPageHide)

	m.sessions.Store(sessionID, tab)
	m.tabs.Store(tab, struct{}{})
	log.Printf("✅ Tracking session %s (visit #%d) on %s", shortID(sessionID), visitor.VisitCount, req.Page.URL)

	return tab, nil
}

// GetSession retrieves a tab by session id
func (m *Manager) GetSession(id string) (*Tab, error) {
	value, ok := m.sessions.Load(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return value.(*Tab), nil
}

// ListSessions returns all tracked tabs, optionally filtered by status
func (m *Manager) ListSessions(status models.SessionStatus) []models.Session {
	sessions := []models.Session{}

	m.sessions.Range(func(key, value interface{}) bool {
		info := value.(*Tab).Info()
		if status != "" && info.Status != status {
			return true
		}
		sessions = append(sessions, info)
		return true
	})

	return sessions
}

// EndSession stops tracking the latest page load of a session. Flushes
// already running are allowed to finish.
func (m *Manager) EndSession(id string) error {
	tab, err := m.GetSession(id)
	if err != nil {
		return err
	}
	return m.EndTab(tab)
}

// EndTab stops tracking one page load. Other page loads sharing its session
// are left attached.
func (m *Manager) EndTab(tab *Tab) error {
	if !tab.open() {
		return fmt.Errorf("session is not running")
	}

	m.closeTab(tab, true)
	return nil
}

// closeTab detaches the tab and waits for its flushes. The last page load of
// a tab frees the slot and, with expire set, starts the session storage TTL.
func (m *Manager) closeTab(tab *Tab, expire bool) {
	if !tab.close() {
		return
	}

	tab.trigger.Wait()
	m.tabs.Delete(tab)
	m.detachScope(tab.Info().TabID, tab.scope, expire)
}

// Close stops every tab and cancels in-flight flushes
func (m *Manager) Close() {
	m.cancel()
	m.tabs.Range(func(key, _ interface{}) bool {
		m.closeTab(key.(*Tab), false)
		return true
	})
}

// attachScope returns the tab's session storage, reviving it if it was
// waiting to expire. The first attached page load takes a concurrency slot
// for host; later ones share it.
func (m *Manager) attachScope(tabID, host string) (*scope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, _ := m.scopes.LoadOrStore(tabID, &scope{store: storage.NewMemoryStore()})
	s := value.(*scope)

	if s.live == 0 {
		if err := m.acquireSlot(host); err != nil {
			if s.expiry == nil {
				m.armExpiry(tabID, s)
			}
			return nil, err
		}
		s.host = host
	}
	s.live++

	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
	return s, nil
}

// detachScope drops one page load from the tab's scope
func (m *Manager) detachScope(tabID string, s *scope, expire bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s.live--
	if s.live > 0 {
		return
	}
	m.releaseSlot(s.host)
	if expire {
		m.armExpiry(tabID, s)
	}
}

// armExpiry discards a tab's session storage after the TTL unless the tab
// reconnects first. Caller holds mu.
func (m *Manager) armExpiry(tabID string, s *scope) {
	if s.expiry != nil {
		s.expiry.Stop()
	}
	s.expiry = m.deps.Clock.AfterFunc(m.opts.SessionTTL, func() { m.expireScope(tabID, s) })
}

// expireScope ends the browsing session of a tab that never came back
func (m *Manager) expireScope(tabID string, s *scope) {
	m.mu.Lock()
	if s.expiry == nil || s.live > 0 {
		// revived by a reconnect
		m.mu.Unlock()
		return
	}
	s.expiry = nil
	m.scopes.CompareAndDelete(tabID, s)
	m.mu.Unlock()

	m.sessions.Range(func(key, value interface{}) bool {
		tab := value.(*Tab)
		if tab.Info().TabID == tabID {
			tab.setStatus(models.StatusExpired)
			m.sessions.Delete(key)
		}
		return true
	})
	log.Printf("⌛ Session storage for tab %s expired", shortID(tabID))
}

// acquireSlot tries to acquire a concurrency slot for the remote host.
// Caller holds mu.
func (m *Manager) acquireSlot(host string) error {
	sem, exists := m.concurrency[host]
	if !exists {
		sem = semaphore.NewWeighted(int64(m.opts.MaxTabsPerHost))
		m.concurrency[host] = sem
	}

	if !sem.TryAcquire(1) {
		return fmt.Errorf("%w for host %s", ErrTooManyTabs, host)
	}

	return nil
}

// releaseSlot releases a concurrency slot for the remote host. Caller
// holds mu.
func (m *Manager) releaseSlot(host string) {
	sem := m.concurrency[host]

	if sem != nil {
		sem.Release(1)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Tab is one tracked page load
type Tab struct {
	mu          sync.Mutex
	info        models.Session
	lastPayload *models.Payload
	closed      bool

	scope        *scope
	page         models.Page
	resolver     *identity.Resolver
	visitor      identity.Visitor
	capabilities environment.Capabilities
	tracker      *activity.Tracker
	trigger      *flush.Trigger
	clock        clock.Clock
	unsubscribe  func()
}

// open reports whether the tab is still attached to its page
func (t *Tab) open() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

// Info returns the agent's view of the tab
func (t *Tab) Info() models.Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.info
}

// LastPayload returns the most recently flushed payload
func (t *Tab) LastPayload() (models.Payload, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastPayload == nil {
		return models.Payload{}, false
	}
	return *t.lastPayload, true
}

// Flush runs the flush sequence outside of a lifecycle signal, subject to
// the same single-fire guard
func (t *Tab) Flush() bool {
	return t.trigger.Fire("manual")
}

// WaitFlushes blocks until running flushes finish
func (t *Tab) WaitFlushes() {
	t.trigger.Wait()
}

// gather reads everything but enrichment for the assembler
func (t *Tab) gather() payload.Input {
	return payload.Input{
		SessionID:   t.Info().ID,
		Token:       t.resolver.UserToken(),
		Page:        t.page,
		Visitor:     t.visitor,
		Activity:    t.tracker.Snapshot(),
		Environment: t.capabilities,
	}
}

func (t *Tab) recordFlush(p models.Payload) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastPayload = &p
	t.info.Flushes++
	if t.info.Status == models.StatusRunning {
		t.info.Status = models.StatusFlushed
	}
}

func (t *Tab) touch(events.Event) {
	now := t.clock.Now()
	t.mu.Lock()
	t.info.LastEventAt = now
	t.mu.Unlock()
}

func (t *Tab) setStatus(status models.SessionStatus) {
	t.mu.Lock()
	t.info.Status = status
	t.mu.Unlock()
}

// close detaches the tab from its event source. It reports false if the tab
// was already closed.
func (t *Tab) close() bool {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	t.closed = true
	t.info.Status = models.StatusClosed
	unsubscribe := t.unsubscribe
	t.mu.Unlock()

	t.tracker.Stop()
	t.trigger.Detach()
	if unsubscribe != nil {
		unsubscribe()
	}
	return true
}

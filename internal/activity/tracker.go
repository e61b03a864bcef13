package activity

import (
	"sync"
	"time"

	"github.com/shehryarbajwa/visitrace/internal/clock"
	"github.com/shehryarbajwa/visitrace/internal/events"
)

// DefaultIdleThreshold is how long without input before time stops counting
// as active
const DefaultIdleThreshold = 30 * time.Second

// qualifying events re-arm the idle timer
var qualifying = []events.Kind{
	events.KindMouseMove,
	events.KindKeyDown,
	events.KindScroll,
	events.KindClick,
}

// VisibilityChange is one entry of the visibility log
type VisibilityChange struct {
	At    time.Time
	State string
}

// Snapshot is a read of the accumulator at a point in time
type Snapshot struct {
	LoadedAt          time.Time
	TakenAt           time.Time
	TimeSpent         time.Duration
	ActiveTime        time.Duration
	ClickCount        int
	ScrollDepth       float64
	ExitIntent        bool
	VisibilityChanges []VisibilityChange
}

// Tracker accumulates engagement for one page load
type Tracker struct {
	mu        sync.Mutex
	clock     clock.Clock
	threshold time.Duration

	loadedAt     time.Time
	lastActivity time.Time
	active       time.Duration
	open         bool // an active interval is running and the idle timer is armed
	timer        clock.Timer
	generation   int

	clicks      int
	scrollDepth float64
	visibility  []VisibilityChange
	exitIntent  bool

	unsubscribe []func()
}

// NewTracker starts a tracker at the clock's current time. A zero threshold
// means DefaultIdleThreshold.
func NewTracker(c clock.Clock, threshold time.Duration) *Tracker {
	if threshold <= 0 {
		threshold = DefaultIdleThreshold
	}
	now := c.Now()
	return &Tracker{
		clock:        c,
		threshold:    threshold,
		loadedAt:     now,
		lastActivity: now,
	}
}

// Attach subscribes the tracker to src
func (t *Tracker) Attach(src events.Source) {
	kinds := make([]events.Kind, 0, len(qualifying)+2)
	kinds = append(kinds, qualifying...)
	kinds = append(kinds, events.KindVisibilityChange, events.KindMouseLeave)
	unsub := src.Subscribe(t.Handle, kinds...)

	t.mu.Lock()
	t.unsubscribe = append(t.unsubscribe, unsub)
	t.mu.Unlock()
}

// Handle applies one event to the accumulator
func (t *Tracker) Handle(ev events.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Kind {
	case events.KindMouseMove, events.KindKeyDown, events.KindScroll, events.KindClick:
		t.recordActivity()
		if ev.Kind == events.KindClick {
			t.clicks++
		}
		if ev.Kind == events.KindScroll && ev.Depth > t.scrollDepth {
			t.scrollDepth = min(ev.Depth, 100)
		}
	case events.KindVisibilityChange:
		at := ev.Time
		if at.IsZero() {
			at = t.clock.Now()
		}
		if n := len(t.visibility); n > 0 && at.Before(t.visibility[n-1].At) {
			at = t.visibility[n-1].At
		}
		t.visibility = append(t.visibility, VisibilityChange{At: at, State: ev.State})
	case events.KindMouseLeave:
		if ev.Y < 0 {
			t.exitIntent = true
		}
	}
}

// recordActivity folds the running interval and re-arms the idle timer.
// Caller holds mu.
func (t *Tracker) recordActivity() {
	now := t.clock.Now()
	if t.open {
		t.active += now.Sub(t.lastActivity)
	}
	if t.timer != nil {
		t.timer.Stop()
	}

	t.lastActivity = now
	t.open = true
	t.generation++
	generation := t.generation
	t.timer = t.clock.AfterFunc(t.threshold, func() { t.idle(generation) })
}

// idle closes the active interval when the timer fires
func (t *Tracker) idle(generation int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if generation != t.generation || !t.open {
		return
	}
	t.active += t.clock.Now().Sub(t.lastActivity)
	t.open = false
	t.timer = nil
}

// Snapshot reads the accumulator. An open interval is counted up to now
// without being closed, so repeated snapshots never double count.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	active := t.active
	if t.open {
		if pending := now.Sub(t.lastActivity); pending < t.threshold {
			active += pending
		} else {
			active += t.threshold
		}
	}

	visibility := make([]VisibilityChange, len(t.visibility))
	copy(visibility, t.visibility)

	return Snapshot{
		LoadedAt:          t.loadedAt,
		TakenAt:           now,
		TimeSpent:         now.Sub(t.loadedAt),
		ActiveTime:        active,
		ClickCount:        t.clicks,
		ScrollDepth:       t.scrollDepth,
		ExitIntent:        t.exitIntent,
		VisibilityChanges: visibility,
	}
}

// Stop cancels the idle timer and detaches from the event source
func (t *Tracker) Stop() {
	t.mu.Lock()
	unsubscribe := t.unsubscribe
	t.unsubscribe = nil
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.generation++
	t.mu.Unlock()

	for _, unsub := range unsubscribe {
		unsub()
	}
}

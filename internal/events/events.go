package events

import (
	"sync"
	"time"
)

// Kind names a page event, using DOM event names
type Kind string

const (
	KindMouseMove        Kind = "mousemove"
	KindKeyDown          Kind = "keydown"
	KindScroll           Kind = "scroll"
	KindClick            Kind = "click"
	KindMouseLeave       Kind = "mouseleave"
	KindVisibilityChange Kind = "visibilitychange"
	KindPageHide         Kind = "pagehide"
)

// Visibility states reported with KindVisibilityChange
const (
	StateVisible = "visible"
	StateHidden  = "hidden"
)

// Event is one page event
type Event struct {
	Kind  Kind
	Time  time.Time
	Y     float64 // pointer y for KindMouseLeave
	State string  // visibility state for KindVisibilityChange
	Depth float64 // scroll depth percent for KindScroll
}

// Handler receives events it subscribed to
type Handler func(Event)

// Source is anything page events can be subscribed on
type Source interface {
	// Subscribe registers h for the given kinds and returns a func that
	// removes it
	Subscribe(h Handler, kinds ...Kind) (unsubscribe func())
}

type subscription struct {
	handler Handler
	kinds   map[Kind]bool
}

// Emitter is an in-process Source. Dispatch delivers to handlers in
// subscription order, one event at a time.
type Emitter struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*subscription
	order  []int
}

// NewEmitter creates an Emitter with no subscribers
func NewEmitter() *Emitter {
	return &Emitter{subs: make(map[int]*subscription)}
}

// Subscribe implements Source
func (e *Emitter) Subscribe(h Handler, kinds ...Kind) func() {
	sub := &subscription{handler: h, kinds: make(map[Kind]bool, len(kinds))}
	for _, kind := range kinds {
		sub.kinds[kind] = true
	}

	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = sub
	e.order = append(e.order, id)
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.subs, id)
			for i, existing := range e.order {
				if existing == id {
					e.order = append(e.order[:i], e.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Dispatch delivers ev to every handler subscribed to its kind
func (e *Emitter) Dispatch(ev Event) {
	e.mu.RLock()
	var handlers []Handler
	for _, id := range e.order {
		if sub := e.subs[id]; sub.kinds[ev.Kind] {
			handlers = append(handlers, sub.handler)
		}
	}
	e.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

// Subscribers returns the number of live subscriptions
func (e *Emitter) Subscribers() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs)
}

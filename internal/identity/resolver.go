package identity

import (
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shehryarbajwa/visitrace/internal/storage"
)

// Storage keys shared with the browser shim
const (
	KeySessionID  = "session_id"
	KeyUserToken  = "user_token"
	KeyFirstVisit = "first_visit"
	KeyVisitCount = "visit_count"
)

// Incrementer is implemented by stores that can bump a counter atomically
type Incrementer interface {
	Increment(key string) (int, error)
}

// Visitor is the persistent identity of a device across sessions
type Visitor struct {
	FirstVisit time.Time
	VisitCount int
}

// Resolver derives session and visitor identity from the two storage scopes
// plus the page's cookie header
type Resolver struct {
	session    storage.Store
	persistent storage.Store
	cookie     string
	newID      func() string
}

// NewResolver creates a resolver. cookie is the raw document cookie string.
func NewResolver(session, persistent storage.Store, cookie string) *Resolver {
	return &Resolver{
		session:    session,
		persistent: persistent,
		cookie:     cookie,
		newID:      func() string { return uuid.New().String() },
	}
}

// GetOrCreateSessionID returns the tab's session id, generating and storing
// one on first use
func (r *Resolver) GetOrCreateSessionID() string {
	sessionID, err := r.session.Get(KeySessionID)
	if err == nil && sessionID != "" {
		return sessionID
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Printf("⚠️ Failed to read session id: %v", err)
	}

	sessionID = r.newID()
	if err := r.session.Set(KeySessionID, sessionID); err != nil {
		log.Printf("⚠️ Failed to store session id: %v", err)
	}
	return sessionID
}

// UserToken returns the auth token from persistent storage, falling back to
// the cookie. A nil result means the visitor is anonymous.
func (r *Resolver) UserToken() *string {
	token, err := r.persistent.Get(KeyUserToken)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Printf("⚠️ Failed to read user token: %v", err)
	}
	if token != "" {
		return &token
	}

	if cookieToken, ok := Cookie(r.cookie, KeyUserToken); ok {
		return &cookieToken
	}
	return nil
}

// RecordVisit stamps the first visit if missing and increments the visit
// counter
func (r *Resolver) RecordVisit(now time.Time) Visitor {
	visitor := Visitor{FirstVisit: now}

	raw, err := r.persistent.Get(KeyFirstVisit)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Printf("⚠️ Failed to read first visit: %v", err)
	}
	if first, parseErr := time.Parse(time.RFC3339Nano, raw); raw != "" && parseErr == nil {
		visitor.FirstVisit = first
	} else if err := r.persistent.Set(KeyFirstVisit, now.UTC().Format(time.RFC3339Nano)); err != nil {
		log.Printf("⚠️ Failed to store first visit: %v", err)
	}

	visitor.VisitCount = r.incrementVisits()
	return visitor
}

func (r *Resolver) incrementVisits() int {
	if counter, ok := r.persistent.(Incrementer); ok {
		count, err := counter.Increment(KeyVisitCount)
		if err == nil {
			return count
		}
		log.Printf("⚠️ Failed to increment visit count: %v", err)
		return 1
	}

	raw, _ := r.persistent.Get(KeyVisitCount)
	count, _ := strconv.Atoi(raw)
	count++
	if err := r.persistent.Set(KeyVisitCount, strconv.Itoa(count)); err != nil {
		log.Printf("⚠️ Failed to store visit count: %v", err)
	}
	return count
}

// Cookie returns the value of the named cookie from a "a=1; b=2" header. A
// name set more than once (e.g. on two paths) is ambiguous and not found.
func Cookie(header, name string) (string, bool) {
	var match string
	matches := 0
	for _, part := range strings.Split(header, ";") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if found && key == name {
			match = value
			matches++
		}
	}
	if matches != 1 {
		return "", false
	}
	return match, true
}

package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shehryarbajwa/visitrace/internal/enrichment"
	"github.com/shehryarbajwa/visitrace/internal/events"
	"github.com/shehryarbajwa/visitrace/internal/session"
	"github.com/shehryarbajwa/visitrace/pkg/models"
)

const (
	helloTimeout = 10 * time.Second
	writeTimeout = 5 * time.Second
	maxFrameSize = 64 << 10
)

var errConnectionClosed = errors.New("tracking connection closed")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// pageEvents maps shim frame types onto page event kinds
var pageEvents = map[string]events.Kind{
	string(events.KindMouseMove):        events.KindMouseMove,
	string(events.KindKeyDown):          events.KindKeyDown,
	string(events.KindScroll):           events.KindScroll,
	string(events.KindClick):            events.KindClick,
	string(events.KindMouseLeave):       events.KindMouseLeave,
	string(events.KindVisibilityChange): events.KindVisibilityChange,
	string(events.KindPageHide):         events.KindPageHide,
}

// Server accepts tracking connections from the browser shim
type Server struct {
	sessionMgr *session.Manager
}

func NewServer(sessionMgr *session.Manager) *Server {
	return &Server{
		sessionMgr: sessionMgr,
	}
}

// HandleTrack upgrades the request and tracks the page until the connection
// closes
func (s *Server) HandleTrack(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}
	defer wsConn.Close()
	wsConn.SetReadLimit(maxFrameSize)

	hello, err := readHello(wsConn)
	if err != nil {
		log.Printf("❌ Rejected tracking connection: %v", err)
		closeWithReason(wsConn, websocket.ClosePolicyViolation, err.Error())
		return
	}

	cookie := hello.Cookie
	if cookie == "" {
		cookie = r.Header.Get("Cookie")
	}

	conn := newConnection(wsConn)
	emitter := events.NewEmitter()

	tab, err := s.sessionMgr.StartSession(session.StartRequest{
		TabID:      hello.Tab,
		RemoteHost: remoteHost(r),
		Page:       *hello.Page,
		Cookie:     cookie,
		Env:        hello.Env,
	}, emitter, conn)
	if err != nil {
		log.Printf("❌ Failed to start session: %v", err)
		closeWithReason(wsConn, websocket.CloseTryAgainLater, err.Error())
		return
	}
	sessionID := tab.Info().ID

	if err := conn.send(models.ServerFrame{Type: models.FrameSession, SessionID: sessionID}); err != nil {
		log.Printf("Failed to announce session %s: %v", sessionID, err)
	}

	err = conn.readLoop(emitter)
	if err != nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
		log.Printf("WebSocket error for session %s: %v", sessionID, err)
	}

	// end this page load only; a reload of the tab may already share the session
	if err := s.sessionMgr.EndTab(tab); err != nil {
		log.Printf("Session %s already ended: %v", sessionID, err)
	}
	log.Printf("Tab disconnected from session %s", sessionID)
}

func readHello(wsConn *websocket.Conn) (models.Frame, error) {
	var hello models.Frame

	wsConn.SetReadDeadline(time.Now().Add(helloTimeout))
	defer wsConn.SetReadDeadline(time.Time{})

	if err := wsConn.ReadJSON(&hello); err != nil {
		return hello, fmt.Errorf("failed to read hello: %w", err)
	}
	if hello.Type != models.FrameHello {
		return hello, fmt.Errorf("expected hello frame, got %q", hello.Type)
	}
	if hello.Page == nil || hello.Page.URL == "" {
		return hello, fmt.Errorf("hello frame is missing the page url")
	}
	return hello, nil
}

func closeWithReason(wsConn *websocket.Conn, code int, reason string) {
	message := websocket.FormatCloseMessage(code, reason)
	wsConn.WriteControl(websocket.CloseMessage, message, time.Now().Add(writeTimeout))
}

// remoteHost strips the port from the request's remote address
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// connection is one shim socket. It doubles as the tab's device Locator.
type connection struct {
	ws *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	waiters []chan models.Frame
	done    chan struct{}
	closed  bool
}

func newConnection(ws *websocket.Conn) *connection {
	return &connection{
		ws:   ws,
		done: make(chan struct{}),
	}
}

func (c *connection) send(frame any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(frame)
}

// readLoop dispatches page events until the socket fails or closes
func (c *connection) readLoop(emitter *events.Emitter) error {
	defer c.shutdown()

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}

		var frame models.Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			log.Printf("Ignoring malformed frame: %v", err)
			continue
		}

		switch frame.Type {
		case models.FramePosition, models.FramePositionError:
			c.deliver(frame)
		default:
			kind, ok := pageEvents[frame.Type]
			if !ok {
				log.Printf("Ignoring unknown frame type %q", frame.Type)
				continue
			}
			emitter.Dispatch(toEvent(kind, frame))
		}
	}
}

func toEvent(kind events.Kind, frame models.Frame) events.Event {
	ev := events.Event{
		Kind:  kind,
		Y:     frame.Y,
		State: strings.ToLower(frame.State),
		Depth: frame.Depth,
	}
	if frame.TS > 0 {
		ev.Time = time.UnixMilli(frame.TS)
	} else {
		ev.Time = time.Now()
	}
	return ev
}

// Locate asks the shim for device coordinates and waits for its answer
func (c *connection) Locate(ctx context.Context) (enrichment.Position, error) {
	reply := make(chan models.Frame, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return enrichment.Position{}, errConnectionClosed
	}
	c.waiters = append(c.waiters, reply)
	c.mu.Unlock()

	if err := c.send(models.ServerFrame{Type: models.FrameGeolocate}); err != nil {
		c.forget(reply)
		return enrichment.Position{}, fmt.Errorf("failed to request geolocation: %w", err)
	}

	select {
	case frame := <-reply:
		if frame.Type == models.FramePositionError {
			if frame.Message == "" {
				return enrichment.Position{}, enrichment.ErrUnavailable
			}
			return enrichment.Position{}, fmt.Errorf("%w: %s", enrichment.ErrUnavailable, frame.Message)
		}
		return enrichment.Position{
			Latitude:  frame.Latitude,
			Longitude: frame.Longitude,
			Accuracy:  frame.Accuracy,
		}, nil
	case <-c.done:
		c.forget(reply)
		return enrichment.Position{}, errConnectionClosed
	case <-ctx.Done():
		c.forget(reply)
		return enrichment.Position{}, ctx.Err()
	}
}

// deliver hands a geolocation answer to the oldest waiting request
func (c *connection) deliver(frame models.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.waiters) == 0 {
		log.Printf("Ignoring unsolicited %s frame", frame.Type)
		return
	}
	reply := c.waiters[0]
	c.waiters = c.waiters[1:]
	reply <- frame
}

func (c *connection) forget(reply chan models.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, waiter := range c.waiters {
		if waiter == reply {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

func (c *connection) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.done)
	}
}

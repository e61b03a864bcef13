package api

import (
	_ "embed"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/visitrace/internal/session"
	"github.com/shehryarbajwa/visitrace/pkg/models"
)

//go:embed static/tracker.js
var trackerScript string

const endpointPlaceholder = "__VISITRACE_ENDPOINT__"

// Handler holds dependencies for HTTP handlers
type Handler struct {
	sessionMgr *session.Manager
}

// NewHandler creates a new HTTP handler
func NewHandler(sessionMgr *session.Manager) *Handler {
	return &Handler{
		sessionMgr: sessionMgr,
	}
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

// TrackerScript handles GET /tracker.js
func (h *Handler) TrackerScript(w http.ResponseWriter, r *http.Request) {
	script := strings.Replace(trackerScript, endpointPlaceholder, trackEndpoint(r), 1)

	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write([]byte(script))
}

// trackEndpoint is the WebSocket URL the shim should dial back to
func trackEndpoint(r *http.Request) string {
	scheme := "ws"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "wss"
	}
	return scheme + "://" + r.Host + "/v1/track"
}

// ListSessions handles GET /v1/sessions
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	statusStr := r.URL.Query().Get("status")

	var status models.SessionStatus
	if statusStr != "" {
		status = models.SessionStatus(strings.ToUpper(statusStr))
	}

	sessions := h.sessionMgr.ListSessions(status)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sessions)
}

// GetSession handles GET /v1/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	tab, err := h.sessionMgr.GetSession(id)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tab.Info())
}

// GetPayload handles GET /v1/sessions/{id}/payload
func (h *Handler) GetPayload(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	tab, err := h.sessionMgr.GetSession(id)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	payload, ok := tab.LastPayload()
	if !ok {
		http.Error(w, "Session has not flushed yet", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

func writeSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrSessionNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

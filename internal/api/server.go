package api

import (
	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/visitrace/internal/ingest"
	"github.com/shehryarbajwa/visitrace/internal/ratelimit"
)

// SetupRoutes configures all HTTP routes
func (h *Handler) SetupRoutes(ingestServer *ingest.Server, rateLimiter *ratelimit.Limiter, requestsPerHour int) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.Health).Methods("GET")
	r.HandleFunc("/tracker.js", h.TrackerScript).Methods("GET")

	// API v1 routes
	api := r.PathPrefix("/v1").Subrouter()

	// Tracking connections are rate limited per remote host
	tracked := api.PathPrefix("/track").Subrouter()
	tracked.Use(RateLimitMiddleware(rateLimiter, requestsPerHour))
	tracked.HandleFunc("", ingestServer.HandleTrack).Methods("GET")

	// Session inspection (not rate limited)
	api.HandleFunc("/sessions", h.ListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", h.GetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}/payload", h.GetPayload).Methods("GET")

	// CORS middleware
	r.Use(corsMiddleware)

	return r
}

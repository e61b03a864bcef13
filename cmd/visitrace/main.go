package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shehryarbajwa/visitrace/internal/api"
	"github.com/shehryarbajwa/visitrace/internal/config"
	"github.com/shehryarbajwa/visitrace/internal/enrichment"
	"github.com/shehryarbajwa/visitrace/internal/ingest"
	"github.com/shehryarbajwa/visitrace/internal/ratelimit"
	"github.com/shehryarbajwa/visitrace/internal/session"
	"github.com/shehryarbajwa/visitrace/internal/sink"
	"github.com/shehryarbajwa/visitrace/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Println("Starting Visitrace...")

	// Open the visitor store
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}
	store, err := storage.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open visitor store: %v", err)
	}
	defer store.Close()
	log.Printf("✓ Visitor store opened at %s", cfg.DatabasePath)

	// Payloads go to stdout as JSON lines
	payloadSink, err := sink.NewStdout()
	if err != nil {
		log.Fatalf("Failed to create payload sink: %v", err)
	}
	defer payloadSink.Sync()

	fetcher := enrichment.NewFetcher(&http.Client{Timeout: cfg.HTTPTimeout}, cfg.IPLookupURL, cfg.GeoLookupURL, cfg.GeolocationTimeout)
	log.Println("✓ Enrichment fetcher initialized")

	// Initialize session manager
	sessionMgr := session.NewManager(session.Dependencies{
		Persistent: store,
		Enricher:   fetcher,
		Sink:       payloadSink,
	}, session.Options{
		IdleThreshold:  cfg.IdleThreshold,
		FlushOnce:      cfg.FlushOnce,
		SessionTTL:     cfg.SessionTTL,
		MaxTabsPerHost: cfg.MaxTabsPerHost,
	})
	log.Println("✓ Session manager initialized")

	ingestServer := ingest.NewServer(sessionMgr)
	log.Println("✓ Tracking endpoint initialized")

	rateLimiter := ratelimit.NewLimiter(cfg.RateLimitPerHour, cfg.RateLimitBurst)
	log.Printf("✓ Rate limiter initialized (%d req/hour per host)", cfg.RateLimitPerHour)

	handler := api.NewHandler(sessionMgr)
	router := handler.SetupRoutes(ingestServer, rateLimiter, cfg.RateLimitPerHour)
	log.Println("✓ HTTP routes configured")

	// WriteTimeout stays unset: tracking sockets are long lived
	srv := &http.Server{
		Addr:        cfg.Address,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("🚀 Server starting on http://%s", cfg.Address)
		log.Printf("📜 Tracker script at http://%s/tracker.js", cfg.Address)
		log.Printf("⏱️  Idle threshold: %v, single-fire flush: %v", cfg.IdleThreshold, cfg.FlushOnce)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("\n⏳ Shutting down server gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	sessionMgr.Close()

	log.Println("✅ Server stopped cleanly")
}

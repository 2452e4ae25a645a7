// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/community-hub/event-ledger/internal/config"
	"github.com/community-hub/event-ledger/internal/database"
	"github.com/community-hub/event-ledger/internal/handler"
	"github.com/community-hub/event-ledger/internal/identity"
	"github.com/community-hub/event-ledger/internal/logger"
	"github.com/community-hub/event-ledger/internal/messaging"
	"github.com/community-hub/event-ledger/internal/repository"
	"github.com/community-hub/event-ledger/internal/service"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/nats-io/nats.go"
)

func main() {
	ctx := context.Background()
	cfg := config.Load()
	log := logger.New()

	// ── 1. Connect to PostgreSQL ──────────────────────────────────────────
	pool, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("schema: %v", err)
	}
	log.Info("connected to postgres")

	// ── 2. Connect to NATS (optional) ─────────────────────────────────────
	// Lifecycle notifications and reconciliation are best-effort: without
	// a broker the service still serves registrations, it just skips them.
	var publisher messaging.Publisher
	var subs []*nats.Subscription
	regRepo := repository.NewRegistrationRepository(pool)
	if client, err := messaging.ConnectWithRetry(cfg.NATS.URL, cfg.NATS.Stream, 10*time.Second); err != nil {
		log.WithField("error", err.Error()).Warn("nats unavailable, running without notifications")
	} else {
		defer client.Close()
		publisher = messaging.JetStreamPublisher{JS: client.JS}
		reconciler := messaging.NewReconciler(regRepo, log)
		subs, err = reconciler.Start(client.JS)
		if err != nil {
			log.Fatalf("reconciler: %v", err)
		}
		log.Info("connected to nats, reconciler running")
	}
	defer func() {
		for _, sub := range subs {
			_ = sub.Drain()
		}
	}()

	// ── 3. Wire up layers ────────────────────────────────────────────────
	eventRepo := repository.NewEventRepository(pool)
	profileRepo := repository.NewProfileRepository(pool)
	resolver := identity.NewResolver(profileRepo, cfg.Profiles.CacheTTL, log)
	eventSvc := service.NewEventService(eventRepo, regRepo, resolver, publisher, log)
	eventHandler := handler.NewEventHandler(eventSvc)

	// ── 4. Build the router ───────────────────────────────────────────────
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(handler.Logger(log))     // structured access log
	r.Use(handler.CORS)            // permissive CORS for browser clients

	// API routes (health included)
	r.Mount("/", eventHandler.Routes())

	// ── 5. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTP.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Run in background goroutine so we can listen for shutdown signal.
	go func() {
		log.WithField("port", cfg.HTTP.Port).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("graceful shutdown failed: %v", err)
	}
	log.Info("server stopped")
}

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"streamroom/internal/admission"
	"streamroom/internal/config"
	"streamroom/internal/domain"
	"streamroom/internal/generation"
	"streamroom/internal/handler"
	"streamroom/internal/hub"
	"streamroom/internal/middleware"
	"streamroom/internal/moderation"
	"streamroom/internal/observability"
	"streamroom/internal/orchestrator"
	"streamroom/internal/relay"
	"streamroom/internal/store/memory"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logFormat := os.Getenv("LOG_FORMAT")
	if logFormat == "" {
		logFormat = "json"
	}
	observability.InitLogger(logLevel, logFormat)

	slog.Info("starting room server")

	messageStore := memory.NewMessageStore()
	presenceStore := memory.NewPresenceStore(cfg.PresenceTimeout)
	roomStore := memory.NewRoomStore()

	broadcastHub := hub.New()

	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go func() {
		if err := broadcastHub.Run(hubCtx); err != nil && err != context.Canceled {
			slog.Error("hub error", slog.String("error", err.Error()))
		}
	}()
	slog.Info("broadcast hub started")

	// By default the orchestrator fans out through the in-process hub. With
	// INGEST_URL set it relays through another server's ingestion endpoint
	// instead, for deployments where orchestration runs out of process.
	var broadcaster domain.Broadcaster = broadcastHub
	if cfg.IngestURL != "" {
		broadcaster = relay.NewClient(cfg.IngestURL)
		slog.Info("relaying events through ingestion endpoint", slog.String("url", cfg.IngestURL))
	}

	admissionCtrl := admission.NewController(roomStore)
	generator := generation.NewClient(cfg.GenerationURL)
	orch := orchestrator.New(messageStore, roomStore, admissionCtrl, generator, broadcaster)
	moderationSvc := moderation.NewService(messageStore, roomStore, broadcaster)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go startPresenceSweeper(ctx, presenceStore, cfg.PresenceTimeout)
	slog.Info("presence sweeper started")

	messageHandler := handler.NewMessageHandler(orch, messageStore, presenceStore, broadcaster)
	adminHandler := handler.NewAdminHandler(moderationSvc)
	ingestHandler := handler.NewIngestHandler(broadcastHub)
	healthHandler := handler.NewHealthHandler(broadcastHub)
	wsHandler := handler.NewWebSocketHandler(broadcastHub, presenceStore, cfg.DefaultRoom, cfg.AllowedOrigins)

	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.CORS(middleware.ParseOrigins(cfg.AllowedOrigins)))
	r.Use(middleware.Metrics())

	r.Get("/health", healthHandler.Health)
	r.Handle("/metrics", promhttp.Handler())

	// Server-to-server; not behind the per-IP limiter.
	r.Post("/internal/broadcast", ingestHandler.Broadcast)

	r.Route("/api/v1", func(r chi.Router) {
		apiLimiter := middleware.NewIPRateLimiter(20, 50)

		r.Group(func(r chi.Router) {
			r.Use(apiLimiter.Middleware())

			r.Get("/rooms/{room_id}/messages", messageHandler.List)
			r.Post("/rooms/{room_id}/messages", messageHandler.Submit)
			r.Get("/rooms/{room_id}/presence", messageHandler.Presence)
			r.Post("/messages/{message_id}/reactions", messageHandler.ToggleReaction)
			r.Post("/messages/{message_id}/pin", messageHandler.SetPinned)
			r.Delete("/messages/{message_id}", messageHandler.Delete)

			r.Get("/admin/rooms/{room_id}", adminHandler.RoomOverview)
			r.Patch("/admin/rooms/{room_id}/settings", adminHandler.UpdateSettings)
			r.Post("/admin/messages/{message_id}/resolve", adminHandler.ResolveFlags)
			r.Post("/admin/messages/{message_id}/hide", adminHandler.Hide)
			r.Post("/admin/messages/{message_id}/unhide", adminHandler.Unhide)
		})
	})

	r.Get("/ws/rooms/{room_id}", wsHandler.Subscribe)
	r.Get("/ws", wsHandler.Subscribe)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("room server listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	cancel()
	hubCancel()

	time.Sleep(100 * time.Millisecond)

	slog.Info("server stopped gracefully")
}

// startPresenceSweeper periodically drops presence records that stopped
// heartbeating. Reads already purge lazily; this keeps abandoned rooms from
// pinning records forever.
func startPresenceSweeper(ctx context.Context, store domain.PresenceStore, timeout time.Duration) {
	ticker := time.NewTicker(timeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping presence sweeper")
			return
		case <-ticker.C:
			purged, err := store.PurgeStale(ctx, timeout)
			if err != nil {
				slog.Error("presence sweep failed", slog.String("error", err.Error()))
			} else if purged > 0 {
				slog.Info("presence sweep completed", slog.Int("records_purged", purged))
			}
		}
	}
}

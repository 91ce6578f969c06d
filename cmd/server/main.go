// chatwire - one-to-one chat server with live presence and delivery.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/chatwire/internal/api"
	"github.com/ashureev/chatwire/internal/auth"
	"github.com/ashureev/chatwire/internal/chat"
	"github.com/ashureev/chatwire/internal/config"
	"github.com/ashureev/chatwire/internal/middleware"
	"github.com/ashureev/chatwire/internal/presence"
	"github.com/ashureev/chatwire/internal/store"
	"github.com/ashureev/chatwire/internal/upload"
	"github.com/ashureev/chatwire/internal/ws"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	uploader, err := upload.NewLocalStore(cfg.MediaDir, cfg.MediaBaseURL)
	if err != nil {
		slog.Error("Failed to initialize media store", "error", err)
		os.Exit(1)
	}

	// Initialize services. The presence registry is empty on every start;
	// it only tracks live connections of this process.
	registry := presence.NewRegistry()
	svc := chat.NewService(repo, registry, uploader)

	// Initialize handlers.
	authHandler := api.NewAuthHandler(repo, uploader, cfg)
	convHandler := api.NewConversationHandler(svc)
	healthHandler := api.NewHealthHandler(repo)
	wsHandler := ws.NewHandler(registry, cfg.FrontendURL, cfg.IsDevelopment())

	authed := auth.Middleware(repo, cfg.JWTSecret)
	sendLimit := middleware.PerUserRateLimit(cfg.SendRate, cfg.SendBurst, auth.UserIDFromRequest)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))

	corsOrigins := []string{"*"}
	if cfg.FrontendURL != "" {
		corsOrigins = []string{cfg.FrontendURL}
	}
	r.Use(middleware.CORS(corsOrigins))

	// Public routes.
	healthHandler.RegisterRoutes(r)
	authHandler.RegisterRoutes(r, authed)
	r.Handle("/metrics", promhttp.Handler())

	// Uploaded images.
	r.Handle(cfg.MediaBaseURL+"/*", http.StripPrefix(cfg.MediaBaseURL+"/",
		http.FileServer(http.Dir(uploader.Dir()))))

	// Conversation routes require a valid token.
	r.Group(func(r chi.Router) {
		r.Use(authed)
		convHandler.RegisterRoutes(r, sendLimit)
	})

	// Live channel. Identification happens via the userId query
	// parameter on the handshake, not via the token middleware.
	r.Get("/ws", wsHandler.ServeHTTP)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // 0 = no timeout; live connections stay open indefinitely
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

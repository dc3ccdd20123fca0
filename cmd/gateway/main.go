package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/tjfontaine/chat-responses-gateway/internal/auth"
	"github.com/tjfontaine/chat-responses-gateway/internal/config"
	"github.com/tjfontaine/chat-responses-gateway/internal/gateway"
	"github.com/tjfontaine/chat-responses-gateway/internal/recording"
	"github.com/tjfontaine/chat-responses-gateway/internal/server"
	"github.com/tjfontaine/chat-responses-gateway/internal/telemetry"
	"github.com/tjfontaine/chat-responses-gateway/internal/tokens"
	"github.com/tjfontaine/chat-responses-gateway/internal/upstream"
)

// modelsTimeout bounds the non-streaming routes.
const modelsTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML config file")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize OpenTelemetry
	shutdownTracer, err := telemetry.InitTracer(cfg.Telemetry, nil, logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	var recorder recording.Recorder = recording.Nop{}
	if cfg.Recording.Enabled {
		store, err := recording.Open(cfg.Recording.Path)
		if err != nil {
			log.Fatalf("Failed to open recording store: %v", err)
		}
		recorder = store
		logger.Info("traffic recording enabled", slog.String("path", cfg.Recording.Path))
	}
	defer recorder.Close()

	gw := gateway.New(cfg.Azure, upstream.New(), logger,
		gateway.WithRecorder(recorder),
		gateway.WithTokenCounter(tokens.NewCounter()),
		gateway.WithLogRedaction(cfg.Log.Redact),
	)

	srv := server.New(cfg.Server, logger)
	srv.Router.Get("/health", server.HealthHandler)
	srv.Router.Group(func(r chi.Router) {
		r.Use(server.AuthMiddleware(auth.NewAuthenticator(cfg.Server.APIKey)))

		r.With(server.TimeoutMiddleware(modelsTimeout)).Get("/models", gateway.ModelsHandler(cfg.Models))
		r.With(server.TimeoutMiddleware(modelsTimeout)).Get("/v1/models", gateway.ModelsHandler(cfg.Models))

		// Every other path and method goes through the translator, which
		// answers non-POST requests itself.
		r.Handle("/*", gw.Handler())
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("gateway started",
		slog.String("upstream", cfg.Azure.ResponsesURL()),
		slog.String("deployment", cfg.Azure.Deployment),
		slog.Bool("recording", cfg.Recording.Enabled),
	)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		return
	case <-sigChan:
	}

	logger.Info("Shutdown signal received, stopping gateway...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("Gateway shutdown complete")
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/tendant/image-notify/pkg/imagenotify"
	"github.com/tendant/image-notify/pkg/imagenotify/api"
	"github.com/tendant/image-notify/pkg/imagenotify/config"
)

func main() {
	envHelp := flag.Bool("env-help", false, "print supported environment variables and exit")
	flag.Parse()

	if *envHelp {
		usage, err := config.Usage()
		if err != nil {
			slog.Error("Failed to describe environment", "err", err)
			os.Exit(1)
		}
		fmt.Println(usage)
		return
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "err", err)
	}

	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		slog.Error("Invalid configuration", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Environment)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := cfg.BuildService(ctx, logger)
	if err != nil {
		logger.Error("Failed to build service", "err", err)
		os.Exit(1)
	}
	defer cleanup()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	if cfg.Environment == "development" {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			MaxAge:         300,
		}))
	}
	r.Mount("/", api.NewImageHandler(svc, logger).Routes())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var wg sync.WaitGroup
	if cfg.WorkerEnabled {
		worker := imagenotify.NewWorker(svc, cfg.PollInterval, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(ctx)
		}()
	}

	go func() {
		logger.Info("Server starting",
			"port", cfg.Port,
			"environment", cfg.Environment,
			"storage", cfg.StorageBackend,
			"queue", cfg.QueueBackend,
			"topic", cfg.TopicBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "err", err)
	}

	// The worker finishes the batch it already received.
	wg.Wait()
	logger.Info("Server stopped")
}

func newLogger(environment string) *slog.Logger {
	if environment == "development" {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ferhatknd/alan-dal-ders-sub000/internal/api"
	"github.com/ferhatknd/alan-dal-ders-sub000/internal/console"
	"github.com/ferhatknd/alan-dal-ders-sub000/internal/editor"
	"github.com/ferhatknd/alan-dal-ders-sub000/internal/platform/cache"
	"github.com/ferhatknd/alan-dal-ders-sub000/internal/platform/config"
	"github.com/ferhatknd/alan-dal-ders-sub000/internal/upstream"
	"github.com/ferhatknd/alan-dal-ders-sub000/internal/viewer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	client := upstream.NewClient(
		upstream.WithBaseURL(cfg.Upstream.URL),
		upstream.WithTimeout(cfg.Upstream.Timeout),
	)

	// The cache is optional; without it every read goes to the backend.
	var store *cache.Cache
	if cfg.Cache.URL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		store, err = cache.New(ctx, cfg.Cache.URL)
		cancel()
		if err != nil {
			slog.Error("failed to connect cache", "error", err)
			os.Exit(1)
		}
		defer store.Close()
		slog.Info("cache connected", "url", cfg.Cache.URL)
	}

	ops, err := console.LoadOperations(cfg.OpsCatalogPath)
	if err != nil {
		slog.Error("failed to load operations catalog", "error", err, "path", cfg.OpsCatalogPath)
		os.Exit(1)
	}
	cons := console.New(client, ops, slog.Default())
	defer cons.Close()

	viewerOpts := []viewer.Option{viewer.WithWaitLimit(cfg.Viewer.ConvertWait)}
	if store != nil {
		viewerOpts = append(viewerOpts, viewer.WithCache(cache.NewConversions(store, cfg.Cache.TTL)))
	}

	server := api.NewServer(api.Deps{
		Upstream:     client,
		Sessions:     editor.NewManager(client),
		Console:      cons,
		Viewer:       viewer.New(client, viewerOpts...),
		Cache:        store,
		CacheTTL:     cfg.Cache.TTL,
		AdminKeyHash: cfg.Auth.KeyHash,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // streams and downloads run long
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "upstream", cfg.Upstream.URL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/variantlabs/imagesync/internal/catalog"
	"github.com/variantlabs/imagesync/internal/cdn"
	"github.com/variantlabs/imagesync/internal/config"
	"github.com/variantlabs/imagesync/internal/core"
	"github.com/variantlabs/imagesync/internal/logging"
	"github.com/variantlabs/imagesync/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"cdn_configured", cfg.CDN.Configured(),
		"rate_limit_enabled", cfg.Rate.Enabled,
	)
	if !cfg.CDN.Configured() {
		slog.Warn("image service integration not configured; upload, relink, origin delete, and purge will reject with missing_env")
	}

	// Parse and configure connection pool
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	// Connect to database
	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	// The delivery base is resolved once here and injected everywhere the
	// stored shape needs to be interpreted; nothing re-detects it later.
	norm := catalog.NewNormalizer(cfg.CDN.DeliveryBaseURL)
	store := catalog.NewStore(pool, norm)

	cdnClient := cdn.New(cdn.Config{
		AccountID:       cfg.CDN.AccountID,
		APIToken:        cfg.CDN.APIToken,
		BaseURL:         cfg.CDN.BaseURL,
		DeliveryBaseURL: cfg.CDN.DeliveryBaseURL,
		PurgeZoneID:     cfg.CDN.PurgeZoneID,
		Timeout:         cfg.CDN.Timeout,
	})

	service := core.NewService(store, cdnClient, norm, core.Options{
		MaxFileSize:          cfg.Upload.MaxFileSize,
		DefaultVariant:       cfg.CDN.DefaultVariant,
		RelinkMaxBytes:       cfg.Relink.MaxDownloadSize,
		BulkWorkers:          cfg.Bulk.Workers,
		MaxBulkRows:          cfg.Bulk.MaxRows,
		MaxConcurrentUploads: cfg.Upload.MaxConcurrent,
		UploadWaitTime:       cfg.Upload.MaxWaitTime,
	})

	server := web.NewServer(service, cfg)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Let in-flight CDN transfers commit their catalog writes
		limiter := service.Limiter()
		if limiter.ActiveCount() > 0 {
			slog.Info("waiting for uploads to complete", "active", limiter.ActiveCount())
			if err := limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("uploads did not complete in time", "error", err)
			} else {
				slog.Info("all uploads completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}

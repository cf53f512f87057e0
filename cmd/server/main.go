package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/thermoextract/internal/analysis"
	"github.com/JonMunkholm/thermoextract/internal/config"
	"github.com/JonMunkholm/thermoextract/internal/core"
	"github.com/JonMunkholm/thermoextract/internal/core/tables" // registers the EarthBank mappings
	"github.com/JonMunkholm/thermoextract/internal/logging"
	"github.com/JonMunkholm/thermoextract/internal/metrics"
	"github.com/JonMunkholm/thermoextract/internal/pdf"
	"github.com/JonMunkholm/thermoextract/internal/storage"
	"github.com/JonMunkholm/thermoextract/internal/store"
	"github.com/JonMunkholm/thermoextract/internal/web"
)

// gaugeTimeout bounds the session count query behind each metrics scrape.
const gaugeTimeout = 5 * time.Second

// objectStore is an object store the readiness probe can ping.
type objectStore interface {
	core.ObjectStore
	web.Pinger
}

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	if err := run(cfg); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx := context.Background()
	var readiness []web.Option

	// Field mappings
	n, err := tables.LoadOverrides(cfg.Registry.OverridesPath)
	if err != nil {
		return err
	}
	slog.Info("mappings registered", "count", len(core.All()), "overridden", n)

	// Session store
	var sessions core.Store
	switch strings.ToLower(cfg.Database.Driver) {
	case "memory":
		slog.Warn("using in-memory session store; sessions are lost on restart")
		sessions = core.NewMemoryStore()
	default:
		pool, err := store.Connect(ctx, store.PoolConfig{
			URL:             cfg.Database.URL,
			MaxConns:        int32(cfg.Database.MaxConns),
			MinConns:        int32(cfg.Database.MinConns),
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		})
		if err != nil {
			return err
		}
		defer pool.Close()

		// Log which database we connected to
		if u, err := url.Parse(cfg.Database.URL); err == nil {
			slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
		}

		pg := store.New(pool)
		if cfg.Database.Migrate {
			if err := pg.Migrate(ctx); err != nil {
				return err
			}
		}
		sessions = pg
		readiness = append(readiness, web.WithReadinessCheck("database", pg))
	}

	// Object storage
	objects, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	readiness = append(readiness, web.WithReadinessCheck("storage", objects))

	m := metrics.New()
	svc, err := core.NewService(core.Deps{
		Store:   sessions,
		Objects: objects,
		Analyzer: analysis.New(analysis.Config{
			BaseURL: cfg.Analysis.URL,
			APIKey:  cfg.Analysis.APIKey,
			Model:   cfg.Analysis.Model,
		}),
		PDF:      pdf.NewInspector(cfg.Pipeline.MaxPages),
		Recorder: m,
		Limiter:  core.NewStageLimiter(cfg.Pipeline.MaxConcurrent, cfg.Pipeline.MaxWait),
	}, cfg.ServiceConfig())
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}
	m.RegisterSessionGauge(svc, gaugeTimeout)

	server := web.NewServer(svc, cfg, append(readiness, web.WithMetrics(m))...)

	// Background sweep of orphaned staging and stuck sessions
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()
	go func() {
		if err := svc.StartScheduler(jobCtx, cfg.Pipeline.SweepSchedule); err != nil {
			slog.Error("maintenance scheduler failed", "error", err)
		}
	}()

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Let running stages finish so no session is left in progress
		if status := svc.LimiterStatus(); status.Active > 0 {
			slog.Info("waiting for pipeline stages to complete", "active", status.Active)
			if err := svc.Limiter().WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("stages did not complete in time", "error", err)
			} else {
				slog.Info("all stages completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		return err
	}
	<-stopped
	slog.Info("server stopped")
	return nil
}

func openStorage(ctx context.Context, cfg config.StorageConfig) (objectStore, error) {
	if strings.ToLower(cfg.Driver) == "s3" {
		s, err := storage.NewS3(ctx, storage.S3Config{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			PublicURL: cfg.PublicURL,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("using s3 storage", "bucket", cfg.Bucket, "endpoint", cfg.Endpoint)
		return s, nil
	}

	l, err := storage.NewLocal(cfg.LocalDir, cfg.PublicURL)
	if err != nil {
		return nil, err
	}
	slog.Info("using local storage", "dir", cfg.LocalDir)
	return l, nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"subsync/internal/api"
	"subsync/internal/config"
	"subsync/internal/database"
	"subsync/internal/domain"
	"subsync/internal/events"
	"subsync/internal/export"
	"subsync/internal/gateway"
	"subsync/internal/logging"
	"subsync/internal/metrics"
	"subsync/internal/provision"
	"subsync/internal/repository"
	syncengine "subsync/internal/sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	metrics.Register()

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("init entry store: %w", err)
	}
	defer db.Close()
	logger.Info().Str("path", cfg.Database.Path).Msg("entry store initialized")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobStateStore := initJobStateStore(ctx, cfg, &logger)

	gatewayClient := gateway.New(cfg.Gateway, &logger)

	eventBus := events.NewEventBus()
	subscribeSyncEvents(eventBus, &logger)

	job := syncengine.NewSubscriptionJob(cfg.Sync.JobID, cfg.Sync.FormIDs, db, gatewayClient, eventBus, &logger)
	runner := syncengine.NewRunner(job, jobStateStore, db, eventBus, cfg.Sync.Interval, &logger)

	initialDelay := cfg.Sync.Interval
	if cfg.Sync.RunOnStart {
		initialDelay = 0
	}
	if _, err := runner.Schedule(ctx, initialDelay); err != nil {
		logger.Error().Err(err).Msg("failed to schedule initial run")
	}
	go runner.Start(ctx)

	if cfg.API.Enabled {
		orchestrator := provision.NewOrchestrator(gatewayClient, eventBus, cfg.Gateway.LocationID, &logger)
		exporter := export.NewExporter(cfg.Exports.Path, &logger)
		apiServer := api.NewHTTPServer(cfg.API, runner, db, exporter, &logger).
			WithProvisioning(orchestrator, db)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("API server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = apiServer.Shutdown(shutdownCtx)
		}()
	}

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
		go backupService.Start(ctx)
	}

	if cfg.Monitoring.PrometheusEnabled {
		go serveMetrics(cfg.Monitoring.PrometheusPort, &logger)
	}

	logger.Info().
		Str("job_id", cfg.Sync.JobID).
		Dur("interval", cfg.Sync.Interval).
		Msg("subsync daemon started")

	<-ctx.Done()
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}
	logger := baseLogger.With().Str("component", "syncd-main").Logger()

	if dir := filepath.Dir(cfg.Database.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, zerolog.Logger{}, closer, fmt.Errorf("create data directory: %w", err)
		}
	}

	return cfg, logger, closer, nil
}

// initJobStateStore wires the persisted advisory lock: Redis when reachable,
// with automatic failover to the in-memory store.
func initJobStateStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) domain.JobStateStore {
	memory := repository.NewMemoryJobStateStore()
	if cfg.Redis.Address == "" {
		logger.Warn().Msg("redis not configured, job state will not survive restarts")
		return memory
	}

	client := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		logger.Error().Err(err).Msg("redis unreachable at startup, starting on memory store")
	}

	return repository.NewFailoverJobStateStore(
		repository.NewRedisJobStateStore(client),
		memory,
		logger,
	)
}

func subscribeSyncEvents(bus *events.EventBus, logger *zerolog.Logger) {
	bus.Subscribe(events.EventSubscriptionCanceled, func(event *events.Event) error {
		logger.Info().RawJSON("payload", event.Payload).Msg("subscription canceled locally")
		return nil
	})
	bus.Subscribe(events.EventSyncCompleted, func(event *events.Event) error {
		logger.Info().RawJSON("payload", event.Payload).Msg("reconciliation run recorded")
		return nil
	})
}

func serveMetrics(port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	logger.Info().Str("addr", addr).Msg("metrics listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/semmidev/dbtoolkit/internal/adapter/compressor"
	"github.com/semmidev/dbtoolkit/internal/adapter/connector"
	"github.com/semmidev/dbtoolkit/internal/adapter/database"
	"github.com/semmidev/dbtoolkit/internal/adapter/storage"
	"github.com/semmidev/dbtoolkit/internal/adapter/system"
	"github.com/semmidev/dbtoolkit/internal/api"
	"github.com/semmidev/dbtoolkit/internal/config"
	"github.com/semmidev/dbtoolkit/internal/domain"
	"github.com/semmidev/dbtoolkit/internal/infrastructure/logger"
	"github.com/semmidev/dbtoolkit/internal/infrastructure/metrics"
	"github.com/semmidev/dbtoolkit/internal/infrastructure/scheduler"
	"github.com/semmidev/dbtoolkit/internal/infrastructure/store"
	"github.com/semmidev/dbtoolkit/internal/infrastructure/worker"
	"github.com/semmidev/dbtoolkit/internal/usecase"
)

type App struct {
	config    *config.Config
	logger    *logger.Logger
	store     *store.SQLiteStore
	pool      *worker.Pool
	scheduler *scheduler.Scheduler
	backups   *usecase.BackupManager
	cleanup   *usecase.Cleanup
	monitor   *usecase.Monitor
	server    *http.Server
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log, err := logger.New(logger.Options{
		Level:      cfg.App.LogLevel,
		File:       cfg.App.LogFile,
		MaxSizeMB:  cfg.App.Log.MaxSizeMB,
		MaxBackups: cfg.App.Log.MaxBackups,
		MaxAgeDays: cfg.App.Log.MaxAgeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	log.Infof("Starting %s", cfg.App.Name)

	st, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	collector := metrics.New()

	backupLog := log.Named("backup")
	var backups *usecase.BackupManager
	pool := worker.New(worker.Config{
		Workers:   cfg.Backup.Workers,
		QueueSize: cfg.Backup.QueueSize,
		OnError: func(key string, err error) {
			backups.FailFromPanic(key, err)
		},
	})
	collector.RegisterPool(pool.Stats)

	uploadTargets := initializeUploadTargets(ctx, cfg, log)

	backups = usecase.NewBackupManager(usecase.BackupManagerDeps{
		Store:      st,
		Conns:      st,
		Dumpers:    database.NewDefaultRegistry(cfg.Backup.Tools, backupLog),
		Compressor: compressor.NewGzipLevel(cfg.Backup.CompressionLevel),
		Queue:      pool,
		Replicator: usecase.NewReplicator(uploadTargets, log.Named("replication")),
		BackupDir:  cfg.Backup.LocalPath,
		Logger:     backupLog,
		Observer:   collector,
	})

	monitor := usecase.NewMonitor(
		system.NewSampler(cfg.Monitor.DiskPath),
		usecase.NewMetricsHistory(cfg.Monitor.HistoryWindow, cfg.Monitor.HistorySize),
		log.Named("monitor"),
	)

	gin.SetMode(cfg.Server.Mode)
	router := api.NewRouter(api.Deps{
		Connections: st,
		Connectors:  connector.New,
		Queries:     usecase.NewQueryExecutor(connector.New, cfg.Query, log.Named("query"), collector),
		Backups:     backups,
		Migrator:    usecase.NewMigratorExecutor(cfg.Migrator, log.Named("migrator")),
		Monitor:     monitor,
		Issues:      usecase.NewIssueStore(cfg.Monitor.IssueCapacity, log.Named("issues")),
		Metrics:     collector,
		Health:      st.Ping,
		Logger:      log.Named("http"),
	})

	return &App{
		config:    cfg,
		logger:    log,
		store:     st,
		pool:      pool,
		scheduler: scheduler.New(log.Named("scheduler")),
		backups:   backups,
		cleanup:   usecase.NewCleanup(backups, uploadTargets, log.Named("cleanup"), cfg.Backup.RetentionDays),
		monitor:   monitor,
		server: &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func initializeUploadTargets(ctx context.Context, cfg *config.Config, log *logger.Logger) []usecase.UploadTarget {
	var targets []usecase.UploadTarget

	for _, targetCfg := range cfg.GetEnabledUploadTargets() {
		name := storage.TargetName(targetCfg)
		stor, err := storage.NewTarget(ctx, targetCfg)
		if err != nil {
			log.Errorf("Failed to initialize upload target %s: %v", name, err)
			continue
		}
		log.Infof("Upload target enabled: %s (%s)", name, targetCfg.Type)

		targets = append(targets, usecase.UploadTarget{
			Name:    name,
			Storage: stor,
		})
	}

	return targets
}

// schedule registers the cron jobs: retention cleanup, metric sampling and
// configured backups.
func (a *App) schedule() error {
	if a.config.Backup.RetentionDays > 0 {
		if _, err := a.scheduler.AddJob("cleanup", a.config.Backup.CleanupSchedule, a.cleanup.Execute); err != nil {
			return err
		}
		a.logger.Infof("Scheduled cleanup: %s", a.config.Backup.CleanupSchedule)
	}

	if a.config.Monitor.SampleSchedule != "" {
		if _, err := a.scheduler.AddJob("metrics", a.config.Monitor.SampleSchedule, a.monitor.Record); err != nil {
			return err
		}
	}

	for _, sc := range a.config.Schedules {
		req := usecase.CreateBackupRequest{
			Name:       sc.Name,
			BackupType: domain.BackupType(sc.BackupType),
			Tables:     sc.Tables,
			Compress:   sc.Compress,
		}
		name := "backup:" + sc.ConnectionID
		_, err := a.scheduler.AddJob(name, sc.Cron, func(ctx context.Context) error {
			a.logger.Infof("Triggered scheduled backup for connection %s", sc.ConnectionID)
			_, err := a.backups.BackupConnection(ctx, sc.ConnectionID, req)
			return err
		})
		if err != nil {
			return err
		}
		a.logger.Infof("Scheduled backup for connection %s: %s", sc.ConnectionID, sc.Cron)
	}
	return nil
}

// Run serves the API until ctx is cancelled or the listener fails.
func (a *App) Run(ctx context.Context) error {
	if err := a.schedule(); err != nil {
		return err
	}

	a.pool.Start()
	a.scheduler.Start()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Infof("Listening on %s", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}

// Shutdown stops intake first, then drains running backups within the
// configured timeout. Jobs still running at the deadline are cancelled.
func (a *App) Shutdown() {
	a.logger.Infof("Shutting down application...")

	ctx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Warnf("HTTP shutdown: %v", err)
	}
	a.scheduler.Stop()
	if err := a.pool.Stop(ctx); err != nil {
		a.logger.Warnf("Backup workers did not drain in time: %v", err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warnf("Closing store: %v", err)
	}
	a.logger.Close()
}

// Package app wires the mapper's components from a Config. The server and
// the offline batch command share it.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/control-mapper/internal/async"
	"github.com/joseph-ayodele/control-mapper/internal/catalog"
	"github.com/joseph-ayodele/control-mapper/internal/claude"
	"github.com/joseph-ayodele/control-mapper/internal/common"
	"github.com/joseph-ayodele/control-mapper/internal/export"
	"github.com/joseph-ayodele/control-mapper/internal/ingest"
	"github.com/joseph-ayodele/control-mapper/internal/jobs"
	"github.com/joseph-ayodele/control-mapper/internal/prompt"
	repo "github.com/joseph-ayodele/control-mapper/internal/repository"
	"github.com/joseph-ayodele/control-mapper/internal/services/configure"
	mapsvc "github.com/joseph-ayodele/control-mapper/internal/services/mapping"
	"github.com/joseph-ayodele/control-mapper/internal/services/upload"
)

type App struct {
	Config *common.Config
	DB     *repo.DB

	Jobs        repo.JobRepository
	Catalog     *catalog.Catalog
	Invoker     *claude.Invoker
	Coordinator *jobs.Coordinator

	Uploads   *upload.Service
	Configure *configure.Service
	Mapping   *mapsvc.Service

	pool   *async.Pool
	logger *slog.Logger
}

// New opens and migrates the database, fails jobs a previous process left
// running, and builds every service. Close releases what it opened.
func New(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	db, err := repo.Open(ctx, repo.Config{
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		return nil, common.WrapError(err, "open database")
	}
	fail := func(err error, op string) (*App, error) {
		repo.Close(db, logger)
		return nil, common.WrapError(err, op)
	}
	if err := repo.HealthCheck(ctx, db, 5*time.Second, logger); err != nil {
		return fail(err, "ping database")
	}
	if err := repo.Migrate(ctx, db, logger); err != nil {
		return fail(err, "migrate database")
	}

	uploadRepo := repo.NewUploadRepository(db.Driver(), logger)
	configRepo := repo.NewConfigurationRepository(db.Driver(), logger)
	batchRepo := repo.NewBatchRepository(db.Driver(), logger)
	jobRepo := repo.NewJobRepository(db.Driver(), logger)

	// in-flight state does not survive a restart
	if _, err := jobs.RecoverAbandoned(ctx, jobRepo, logger); err != nil {
		return fail(err, "recover abandoned jobs")
	}

	exporter, err := export.NewService(cfg.Storage.OutputDir, logger)
	if err != nil {
		return fail(err, "prepare output directory")
	}

	pool := async.NewPool(logger,
		async.WithWorkers(cfg.Claude.Workers),
		async.WithQueueSize(cfg.Claude.QueueSize),
	)
	runner := claude.ExecRunner{Dir: cfg.Claude.WorkDir, Logger: logger}
	invoker := claude.NewInvoker(claude.Config{
		Binary:       cfg.Claude.Binary,
		AllowedTools: cfg.Claude.AllowedTools,
		Timeout:      cfg.Claude.Timeout,
	}, runner, pool, logger)

	cat := catalog.New(cfg.Storage.ProvidersDir, logger)
	executor := jobs.NewExecutor(logger, jobs.ExecutorConfig{Timeout: cfg.Claude.Timeout},
		jobRepo, uploadRepo, configRepo, cat, prompt.NewBuilder(cfg.Storage.PromptsDir, logger), invoker, exporter)
	coord := jobs.NewCoordinator(logger, executor, batchRepo, jobRepo)
	extractor := ingest.NewExtractor(ingest.Config{Pdftotext: cfg.Ingest.Pdftotext}, runner, logger)

	return &App{
		Config:      cfg,
		DB:          db,
		Jobs:        jobRepo,
		Catalog:     cat,
		Invoker:     invoker,
		Coordinator: coord,
		Uploads: upload.NewService(upload.Config{
			Dir:     cfg.Storage.UploadDir,
			MaxSize: cfg.Storage.MaxUploadSize,
		}, uploadRepo, extractor, logger),
		Configure: configure.NewService(uploadRepo, configRepo, cat, logger),
		Mapping:   mapsvc.NewService(uploadRepo, configRepo, batchRepo, jobRepo, coord, logger),
		pool:      pool,
		logger:    logger,
	}, nil
}

// WatchCatalog reloads checks on file changes when enabled in the config.
// It returns immediately; the watcher stops with ctx.
func (a *App) WatchCatalog(ctx context.Context) {
	if !a.Config.Storage.WatchProviders {
		return
	}
	go func() {
		if err := a.Catalog.Watch(ctx, 0); err != nil {
			a.logger.Warn("provider watch stopped", "error", err)
		}
	}()
}

// Close stops running jobs, drains the tool pool and closes the database.
func (a *App) Close(ctx context.Context) {
	a.Coordinator.Shutdown(ctx)
	a.pool.Shutdown(ctx)
	repo.Close(a.DB, a.logger)
}

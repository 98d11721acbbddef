// Package app wires the store, indexes and services from a Config. The
// server and the CLI share it.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/sublatesublate-design/legal-database/cache"
	"github.com/sublatesublate-design/legal-database/config"
	"github.com/sublatesublate-design/legal-database/logger"
	"github.com/sublatesublate-design/legal-database/metrics"
	"github.com/sublatesublate-design/legal-database/pool"
	"github.com/sublatesublate-design/legal-database/repository"
	"github.com/sublatesublate-design/legal-database/resolver"
	"github.com/sublatesublate-design/legal-database/search"
	"github.com/sublatesublate-design/legal-database/service"
	"github.com/sublatesublate-design/legal-database/storage"
)

// App holds every long-lived component
type App struct {
	Config   *config.Config
	Log      *logger.Logger
	Store    repository.Store
	Engine   *search.Engine
	Resolver *resolver.Resolver
	Cache    *cache.Cache
	Pool     *pool.Pool
	Metrics  *metrics.Metrics
	Archive  storage.Archive
	Laws     *service.LawService
	Ingest   *service.IngestService
}

// StoreName describes the configured backend for logs
func (a *App) StoreName() string {
	if a.Config.UseMemoryStore() {
		return config.MemoryDatabase
	}
	return "postgres"
}

// New opens the store, loads the corpus into memory and builds the services
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.Nop()
	}
	a := &App{
		Config:  cfg,
		Log:     log,
		Metrics: metrics.New(),
	}

	if cfg.UseMemoryStore() {
		a.Store = repository.NewMemoryStore()
		log.Warn().Msg("DATABASE_URL not set, using in-memory store")
	} else {
		db, err := repository.OpenPostgres(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres: %w", err)
		}
		if err := repository.Migrate(ctx, db, func(name string) {
			log.Debug().Str("step", name).Msg("schema applied")
		}); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate schema: %w", err)
		}
		a.Store = repository.NewPostgresStore(db)
	}

	archive, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		a.Store.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.Archive = archive

	a.Engine = search.NewEngine(search.WithWeights(cfg.Ranking))
	a.Resolver = resolver.New(a.Store, a.Engine, cfg.Resolver)
	a.Cache = cache.New(cfg.Cache)
	a.Pool = pool.New(cfg.Pool, a.Metrics)

	n, err := service.LoadCorpus(ctx, a.Store, a.Engine, a.Resolver, log.Component("corpus"))
	if err != nil {
		a.Store.Close()
		return nil, err
	}
	log.Info().Int("laws", n).Msg("corpus loaded")

	a.Laws, err = service.NewLawService(
		service.WithStore(a.Store),
		service.WithEngine(a.Engine),
		service.WithResolver(a.Resolver),
		service.WithCache(a.Cache),
		service.WithPool(a.Pool),
		service.WithMetrics(a.Metrics),
		service.WithLogger(log),
		service.WithThresholds(cfg.Verify),
		service.WithRequestTimeout(cfg.RequestTimeout),
	)
	if err != nil {
		a.Store.Close()
		return nil, err
	}

	opts := []service.IngestServiceOption{
		service.IngestWithStore(a.Store),
		service.IngestWithEngine(a.Engine),
		service.IngestWithResolver(a.Resolver),
		service.IngestWithCache(a.Cache),
		service.IngestWithPool(a.Pool),
		service.IngestWithMetrics(a.Metrics),
		service.IngestWithLogger(log),
	}
	if archive != nil {
		opts = append(opts, service.IngestWithArchive(archive))
	}
	a.Ingest, err = service.NewIngestService(opts...)
	if err != nil {
		a.Store.Close()
		return nil, err
	}

	a.Metrics.WatchCache(a.Cache.Stats)
	a.Metrics.WatchIndex(a.Engine.Stats)

	if cfg.SeedFile != "" {
		if err := a.ApplySeedFile(ctx, cfg.SeedFile); err != nil {
			a.Store.Close()
			return nil, err
		}
	}
	return a, nil
}

// ApplySeedFile loads curated aliases and synonyms from a YAML file
func (a *App) ApplySeedFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	seeds, err := service.ParseSeeds(f)
	if err != nil {
		return fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	report, err := a.Ingest.ApplySeeds(ctx, seeds)
	if err != nil {
		return err
	}
	for _, skipped := range report.Skipped {
		a.Log.Warn().Str("file", path).Msg("seed skipped: " + skipped)
	}
	a.Log.Info().
		Str("file", path).
		Int("aliases", report.Aliases).
		Int("synonyms", report.Synonyms).
		Int("skipped", len(report.Skipped)).
		Msg("seeds applied")
	return nil
}

// Close releases the store
func (a *App) Close() {
	a.Store.Close()
}

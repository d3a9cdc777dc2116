package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"jobmate/watch-service/internal/catalog"
	"jobmate/watch-service/internal/config"
	"jobmate/watch-service/internal/db"
	"jobmate/watch-service/internal/events"
	"jobmate/watch-service/internal/matcher"
	"jobmate/watch-service/internal/metrics"
	"jobmate/watch-service/internal/runner"
	"jobmate/watch-service/internal/scanner"
	"jobmate/watch-service/internal/store"
)

// app bundles the wired collaborators of one process.
type app struct {
	registry *prometheus.Registry
	runner   *runner.Runner
	closers  []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func buildApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	a := &app{registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(a.registry)

	// ── Catalog ─────────────────────────────────────────────────────────────
	var cat catalog.Catalog
	if cfg.Catalog.File != "" {
		mem, err := catalog.LoadFile(cfg.Catalog.File)
		if err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
		log.Info("catalog loaded from file", zap.String("file", cfg.Catalog.File), zap.Int("listings", mem.Len()))
		cat = mem
	} else {
		cat = catalog.NewHTTPClient(cfg.Catalog.URL, cfg.Catalog.APIKey,
			catalog.WithRateLimit(cfg.Catalog.RateLimit, cfg.Catalog.Burst),
			catalog.WithLogger(log.Named("catalog")),
		)
	}

	// ── Store ───────────────────────────────────────────────────────────────
	var st store.Store
	switch cfg.Store.Type {
	case config.StorePostgres:
		log.Info("connecting to PostgreSQL")
		pg, err := db.NewPostgres(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		if cfg.Store.AutoMigrate {
			if err := db.Migrate(pg); err != nil {
				_ = a.Close()
				return nil, err
			}
		}
		st = store.NewPostgres(pg)
	default:
		log.Warn("using in-memory store; watches are lost on restart")
		st = store.NewMemory()
	}

	// ── Redis ───────────────────────────────────────────────────────────────
	opts := []runner.Option{runner.WithLogger(log.Named("runner")), runner.WithMetrics(m)}
	if cfg.Redis.URL != "" {
		log.Info("connecting to Redis")
		rdb, err := db.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)
		opts = append(opts,
			runner.WithNotifier(events.NewRedisNotifier(rdb, log.Named("events"))),
			runner.WithStatusRecorder(events.NewRedisStatus(rdb)),
		)
	} else {
		opts = append(opts, runner.WithStatusRecorder(&events.MemoryStatus{}))
	}

	sc := scanner.New(cat, matcher.New(), scanner.Config{
		PageSize:            cfg.Catalog.PageSize,
		MaxEnumerationPages: cfg.Catalog.MaxEnumerationPages,
	}, log.Named("scanner"), m)

	a.runner = runner.New(st, sc, runner.Config{
		GuestTTL:         cfg.Watch.GuestTTL,
		MaxCommitRetries: cfg.Watch.MaxCommitRetries,
		MatchRetention:   cfg.Watch.MatchRetention,
	}, opts...)
	return a, nil
}

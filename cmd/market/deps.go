package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"MiniMarket/internal/config"
	"MiniMarket/internal/locker"
	"MiniMarket/internal/market"
	"MiniMarket/internal/storage"
	"MiniMarket/pkg/kit"
)

type app struct {
	cfg   *config.Config
	log   *zap.Logger
	store *market.Store
	close func()
}

// setup loads configuration and builds the store on the configured adapter.
// reg may be nil when no metrics are wanted.
func setup(ctx context.Context, configPath string, reg prometheus.Registerer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, err := kit.NewLogger(service, cfg.Log.Level)
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}

	persist, closePersist, err := openPersister(ctx, cfg.Storage, log)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}

	var metrics *market.Metrics
	if reg != nil {
		metrics = market.NewMetrics(reg)
	}

	store := market.New(market.Deps{
		Persist:     persist,
		Locks:       locker.New(cfg.Locks.Dir, cfg.Locks.RetryDelay),
		Log:         log,
		Metrics:     metrics,
		LockTimeout: cfg.Locks.AcquireTimeout,
	})

	return &app{
		cfg:   cfg,
		log:   log,
		store: store,
		close: func() {
			closePersist()
			_ = log.Sync()
		},
	}, nil
}

func openPersister(ctx context.Context, cfg config.Storage, log *zap.Logger) (storage.Persister, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := storage.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.ConnectAttempts, log)
		if err != nil {
			return nil, nil, errors.Wrap(err, "connect postgres")
		}
		ps := storage.NewPostgresStore(pool)
		if err := ps.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, errors.Wrap(err, "ensure schema")
		}
		log.Info("using postgres storage")
		return ps, pool.Close, nil
	default:
		log.Info("using file storage", zap.String("dir", cfg.Dir))
		return storage.NewFileStore(afero.NewOsFs(), cfg.Dir), func() {}, nil
	}
}

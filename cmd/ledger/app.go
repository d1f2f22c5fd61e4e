package main

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"solana-wallet-ledger/internal/classifier"
	"solana-wallet-ledger/internal/config"
	"solana-wallet-ledger/internal/ingestion"
	"solana-wallet-ledger/internal/lock"
	"solana-wallet-ledger/internal/lots"
	"solana-wallet-ledger/internal/pipeline"
	"solana-wallet-ledger/internal/resolver"
	"solana-wallet-ledger/internal/solana"
	"solana-wallet-ledger/internal/storage"
	chstore "solana-wallet-ledger/internal/storage/clickhouse"
	"solana-wallet-ledger/internal/storage/memory"
	"solana-wallet-ledger/internal/storage/migrations"
	pgstore "solana-wallet-ledger/internal/storage/postgres"
)

// app holds the wired stores and services for one CLI run.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	ledger  storage.TradeLedger
	lots    storage.ClosedLotStore
	mirror  storage.ClosedLotStore
	cursors storage.BackfillCursorStore
	locker  lock.Locker

	recompute *lots.Service
	pipeline  *pipeline.Pipeline

	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, autoRecompute bool) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if err := a.openStores(ctx); err != nil {
		a.close()
		return nil, err
	}

	if cfg.Redis.Enabled {
		rdb, err := lock.NewRedisClient(ctx, lock.RedisConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
		})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		a.locker = lock.NewRedisLocker(rdb, cfg.Recompute.LockPrefix)
		logger.Info("distributed recompute lock enabled", zap.String("addr", cfg.Redis.Addr))
	}

	a.recompute = lots.NewService(lots.ServiceOptions{
		Ledger:      a.ledger,
		Lots:        a.lots,
		Mirror:      a.mirror,
		Locker:      a.locker,
		LockTTL:     cfg.Recompute.LockTTL.Duration,
		Parallelism: cfg.Recompute.Parallelism,
		Match: lots.Options{
			AccountingBases: cfg.Matcher.AccountingBases,
			DustThreshold:   cfg.Matcher.DustThreshold,
		},
		Logger: logger.Named("lots"),
	})

	bases := cfg.BaseSet()
	floor := decimal.NewFromFloat(cfg.Resolver.NoiseFloor)
	cls := classifier.New(classifier.Config{
		KnownSources: cfg.Classifier.KnownSources,
		Bases:        bases,
		NoiseFloor:   floor,
	})
	a.pipeline = pipeline.New(cls, resolver.New(bases, floor), a.ledger, logger.Named("pipeline")).
		WithWorkers(cfg.Pipeline.Workers)
	if autoRecompute {
		a.pipeline.WithOnTouched(a.recompute.RecomputeTokens)
	}

	return a, nil
}

func (a *app) openStores(ctx context.Context) error {
	cfg := a.cfg

	if cfg.Postgres.DSN == "" {
		a.logger.Warn("no postgres dsn configured, using in-memory stores")
		a.ledger = memory.NewTradeLedger()
		a.lots = memory.NewClosedLotStore()
		a.cursors = memory.NewBackfillCursorStore()
	} else {
		pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN, pgstore.WithMaxConns(int32(cfg.Postgres.MaxConns)))
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)

		if cfg.Postgres.RunMigrations {
			applied, err := migrations.RunPostgresMigrations(ctx, pool)
			if err != nil {
				return fmt.Errorf("postgres migrations: %w", err)
			}
			a.logger.Info("postgres migrations applied", zap.Strings("versions", applied))
		}
		a.ledger = pgstore.NewTradeLedger(pool)
		a.lots = pgstore.NewClosedLotStore(pool)
		a.cursors = pgstore.NewBackfillCursorStore(pool)
	}

	if cfg.ClickHouse.Enabled {
		var conn *chstore.Conn
		var err error
		if cfg.ClickHouse.RunMigrations {
			conn, err = migrations.RunClickhouseMigrations(ctx, cfg.ClickHouse.DSN)
		} else {
			conn, err = chstore.NewConn(ctx, cfg.ClickHouse.DSN)
		}
		if err != nil {
			return fmt.Errorf("connect clickhouse: %w", err)
		}
		a.closers = append(a.closers, func() { _ = conn.Close() })
		a.mirror = chstore.NewClosedLotStore(conn)
		a.logger.Info("clickhouse closed lot mirror enabled")
	}

	return nil
}

func (a *app) backfiller() *ingestion.Backfiller {
	s := a.cfg.Solana
	rpc := solana.NewHTTPClient(s.RPCURL,
		solana.WithTimeout(s.Timeout.Duration),
		solana.WithMaxRetries(s.MaxRetries),
		solana.WithLogger(a.logger.Named("rpc")),
	)
	return ingestion.NewBackfiller(ingestion.BackfillOptions{
		RPC:       rpc,
		Cursors:   a.cursors,
		Processor: a.pipeline,
		PageSize:  s.PageSize,
		MaxPages:  s.MaxPages,
		Logger:    a.logger.Named("backfill"),
	})
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

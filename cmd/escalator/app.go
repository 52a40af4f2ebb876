package main

import (
	"context"
	"fmt"

	"github.com/ecociel/escalator/clock"
	"github.com/ecociel/escalator/config"
	"github.com/ecociel/escalator/gateway/kafka"
	"github.com/ecociel/escalator/lib/kafkaclient"
	"github.com/ecociel/escalator/lock"
	"github.com/ecociel/escalator/metrics"
	"github.com/ecociel/escalator/repos/postgres"
	"github.com/ecociel/escalator/repos/sqlite"
	"github.com/ecociel/escalator/uc"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type store interface {
	uc.DueItemStore
	Migrate(ctx context.Context) error
}

// app owns every external client; the use cases only see interfaces.
type app struct {
	cfg       config.Config
	log       *zap.SugaredLogger
	store     store
	publisher uc.EventPublisher
	locker    uc.Locker
	registry  *prometheus.Registry
	metrics   metrics.CycleMetrics
	closers   []func()
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: logger.Sugar()}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	if err := a.openStore(ctx); err != nil {
		a.close()
		return nil, err
	}
	if err := a.openPublisher(); err != nil {
		a.close()
		return nil, err
	}
	a.openLocker()

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.NewPromMetrics(a.registry)
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.DbDriver {
	case config.DriverSqlite:
		repo, err := sqlite.Open(a.cfg.DbConnectionUri)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = repo.Close() })
		a.store = repo
	default:
		pool, err := pgxpool.New(ctx, a.cfg.DbConnectionUri)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		a.store = postgres.New(pool)
	}
	a.log.Infow("store opened", "driver", a.cfg.DbDriver)
	return nil
}

func (a *app) openPublisher() error {
	if len(a.cfg.QueueHostPorts) == 0 {
		a.log.Infow("no brokers configured, escalation events are not published")
		a.publisher = kafka.Nop{}
		return nil
	}
	client, err := kafkaclient.NewProducer(a.cfg.QueueHostPorts, a.cfg.EventsTopic)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, client.Close)
	a.publisher = kafka.NewPublisher(client, a.cfg.EventsTopic)
	return nil
}

func (a *app) openLocker() {
	if a.cfg.RedisAddr == "" {
		a.locker = lock.Nop{}
		return
	}
	client := redis.NewClient(&redis.Options{Addr: a.cfg.RedisAddr})
	a.closers = append(a.closers, func() { _ = client.Close() })
	a.locker = lock.NewRedis(client, a.cfg.LockKey, a.cfg.LockTtl)
}

func (a *app) cycle() uc.RunCycleUseCase {
	run := uc.MakeRunCycleUseCase(a.store, a.publisher, clock.System{}, a.metrics, a.log, uc.CycleConfig{
		PageSize:  a.cfg.PageSize,
		BatchSize: a.cfg.BatchSize,
	})
	return uc.MakeLockedRunCycleUseCase(a.locker, run, a.log)
}

// close releases clients in reverse order of creation.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

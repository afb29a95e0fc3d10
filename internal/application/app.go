// Package application wires configuration into a running sync service: it
// opens the configured store, loads the entity catalog, and builds the
// notification pipeline. cmd/server and cmd/syncctl share it.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/storesync/internal/config"
	"github.com/JonMunkholm/storesync/internal/core"
	"github.com/JonMunkholm/storesync/internal/core/tables"
	"github.com/JonMunkholm/storesync/internal/notify"
	"github.com/JonMunkholm/storesync/internal/store/postgres"
	"github.com/JonMunkholm/storesync/internal/store/sqlite"
)

// App holds the service and everything that must be closed with it.
type App struct {
	Config  *config.Config
	Service *core.Service
	Store   core.Store

	logger  *slog.Logger
	closers []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// New opens the store and notification sinks described by cfg. On error,
// anything already opened is closed.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, logger: logger}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	a.Store = store

	if cfg.Sync.CatalogPath != "" {
		n, err := tables.LoadCatalog(cfg.Sync.CatalogPath)
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("load entity catalog: %w", err)
		}
		logger.Info("entity catalog loaded", "path", cfg.Sync.CatalogPath, "entities", n)
	}

	notifier, err := a.openNotifier(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	a.Service = core.NewService(store, notifier, core.ServiceConfig{
		ChunkSize:     cfg.Sync.ChunkSize,
		StripFields:   cfg.Sync.StripFields,
		MaxConcurrent: cfg.Sync.MaxConcurrent,
		MaxWait:       cfg.Sync.MaxWait,
		ChangesLimit:  cfg.Sync.ChangesLimit,
		Logger:        logger,
	})

	logger.Info("entities registered",
		"count", core.EntityCount(),
		"groups", len(core.Groups()),
	)
	for _, group := range core.Groups() {
		logger.Debug("entity group", "group", group, "entities", len(core.ByGroup(group)))
	}
	return a, nil
}

func (a *App) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

func (a *App) openStore(ctx context.Context) (core.Store, error) {
	db := a.Config.Database
	switch strings.ToLower(db.Driver) {
	case "sqlite":
		store, err := sqlite.Open(db.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", db.SQLitePath, err)
		}
		a.onClose("sqlite", func(context.Context) error { return store.Close() })
		a.logger.Info("connected to database", "driver", "sqlite", "path", db.SQLitePath)
		return store, nil

	case "postgres", "":
		poolConfig, err := pgxpool.ParseConfig(db.URL)
		if err != nil {
			return nil, fmt.Errorf("parse database URL: %w", err)
		}
		poolConfig.MaxConns = int32(db.MaxConns)
		poolConfig.MinConns = int32(db.MinConns)
		poolConfig.MaxConnLifetime = db.MaxConnLifetime
		poolConfig.MaxConnIdleTime = db.MaxConnIdleTime

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		a.onClose("postgres", func(context.Context) error {
			pool.Close()
			return nil
		})
		a.logger.Info("connected to database", "driver", "postgres", "name", databaseName(db.URL))
		return postgres.New(pool), nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", db.Driver)
	}
}

func databaseName(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}

// openNotifier builds the configured sinks behind a Dispatcher. It returns a
// nil notifier when no sink is enabled.
func (a *App) openNotifier(ctx context.Context) (core.Notifier, error) {
	cfg := a.Config.Notify
	var sinks notify.Fanout

	for _, name := range cfg.Sinks {
		switch name {
		case "none":
		case "log":
			sinks = append(sinks, notify.NewLogSink(a.logger))

		case "kafka":
			sink, err := notify.NewKafkaSink(notify.KafkaConfig{
				Brokers:  cfg.KafkaBrokers,
				Topic:    cfg.KafkaTopic,
				ClientID: cfg.KafkaClientID,
				TLS:      cfg.KafkaTLS,
			})
			if err != nil {
				return nil, fmt.Errorf("kafka sink: %w", err)
			}
			a.onClose("kafka", func(context.Context) error {
				sink.Close()
				return nil
			})
			sinks = append(sinks, sink)

		case "amqp":
			sink, err := notify.NewAMQPSink(notify.AMQPConfig{
				URL:      cfg.AMQPURL,
				Exchange: cfg.AMQPExchange,
			})
			if err != nil {
				return nil, fmt.Errorf("amqp sink: %w", err)
			}
			a.onClose("amqp", func(context.Context) error { return sink.Close() })
			sinks = append(sinks, sink)

		case "mongo":
			sink, err := notify.NewMongoSink(ctx, notify.MongoConfig{
				URI:        cfg.MongoURI,
				Database:   cfg.MongoDatabase,
				Collection: cfg.MongoCollection,
			})
			if err != nil {
				return nil, fmt.Errorf("mongo sink: %w", err)
			}
			a.onClose("mongo", sink.Close)
			sinks = append(sinks, sink)

		default:
			return nil, fmt.Errorf("unknown notification sink %q", name)
		}
	}

	if len(sinks) == 0 {
		return nil, nil
	}
	a.logger.Info("notifications enabled", "sinks", cfg.Sinks, "queue_size", cfg.QueueSize)

	var sink core.Notifier = sinks
	if len(sinks) == 1 {
		sink = sinks[0]
	}
	dispatcher := notify.NewDispatcher(sink, cfg.QueueSize, cfg.SendTimeout, a.logger)
	a.onClose("dispatcher", dispatcher.Close)
	return dispatcher, nil
}

// Shutdown waits for running batches, then closes the dispatcher, the sinks
// and the store in that order. ctx bounds the whole sequence.
func (a *App) Shutdown(ctx context.Context) error {
	if a.Service != nil {
		status := a.Service.LimiterStatus()
		if status.Active > 0 {
			a.logger.Info("waiting for batches to complete", "active", status.Active)
			if err := a.Service.WaitForBatches(ctx); err != nil {
				a.logger.Warn("batches did not complete in time", "error", err)
			}
		}
	}
	return a.Close(ctx)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Warn("close failed", "resource", c.name, "error", err)
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

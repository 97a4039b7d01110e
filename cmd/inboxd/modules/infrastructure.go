// Package modules holds the fx wiring of the inboxd server.
package modules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.uber.org/fx"

	schema "github.com/memohai/inboxd/db"
	"github.com/memohai/inboxd/internal/accounts"
	"github.com/memohai/inboxd/internal/boot"
	"github.com/memohai/inboxd/internal/config"
	"github.com/memohai/inboxd/internal/contacts"
	"github.com/memohai/inboxd/internal/db"
	"github.com/memohai/inboxd/internal/db/memstore"
	"github.com/memohai/inboxd/internal/db/pgstore"
	"github.com/memohai/inboxd/internal/logger"
	"github.com/memohai/inboxd/internal/message"
	"github.com/memohai/inboxd/internal/message/event"
	"github.com/memohai/inboxd/internal/storage"
	"github.com/memohai/inboxd/internal/telemetry"
	"github.com/memohai/inboxd/internal/tickets"
	"github.com/memohai/inboxd/internal/version"
)

// ConfigPath is the TOML file the process was started with.
type ConfigPath string

var InfraModule = fx.Module(
	"infra",
	fx.Provide(
		provideConfig,
		provideLogger,
		boot.ProvideRuntimeConfig,
		provideStores,
		provideTelemetry,
		provideMetrics,
		provideHub,
		fx.Annotate(provideUploads, fx.As(new(storage.Provider))),
	),
)

// ---------------------------------------------------------------------------
// infrastructure providers
// ---------------------------------------------------------------------------

func provideConfig(path ConfigPath) (config.Config, error) {
	cfg, err := config.Load(string(path))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

type storesOut struct {
	fx.Out

	Accounts accounts.Store
	Contacts contacts.Store
	Tickets  tickets.Store
	Messages message.Store
}

// provideStores selects the repository backend from storage.driver.
func provideStores(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (storesOut, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "memory":
		log.Warn("using in-memory storage; data is lost on restart")
		store := memstore.New()
		return storesOut{Accounts: store, Contacts: store, Tickets: store, Messages: store}, nil
	case "", "postgres":
		pool, err := db.Open(context.Background(), logger.Component(log, "db"), cfg.Postgres)
		if err != nil {
			return storesOut{}, fmt.Errorf("db connect: %w", err)
		}
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				pool.Close()
				return nil
			},
		})
		if cfg.Postgres.AutoMigrate {
			if err := migrateOnBoot(logger.Component(log, "migrate"), cfg.Postgres); err != nil {
				return storesOut{}, err
			}
		}
		store := pgstore.New(pool)
		return storesOut{Accounts: store, Contacts: store, Tickets: store, Messages: store}, nil
	default:
		return storesOut{}, fmt.Errorf("unknown storage driver %q (use postgres or memory)", cfg.Storage.Driver)
	}
}

func migrateOnBoot(log *slog.Logger, cfg config.PostgresConfig) error {
	files, err := schema.Migrations()
	if err != nil {
		return err
	}
	g, err := db.NewMigrator(log, cfg, files)
	if err != nil {
		return err
	}
	defer func() { _ = g.Close() }()
	st, err := g.Up()
	if err != nil {
		return err
	}
	if st.Dirty {
		return fmt.Errorf("schema version %d is dirty; run inboxd migrate force", st.Version)
	}
	log.Info("schema ready", slog.Uint64("version", uint64(st.Version)))
	return nil
}

func provideTelemetry(lc fx.Lifecycle, cfg config.Config) (*telemetry.Provider, error) {
	provider, err := telemetry.Init(context.Background(), cfg.Telemetry, version.Get().Version)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: provider.Shutdown,
	})
	return provider, nil
}

func provideMetrics(provider *telemetry.Provider) (*telemetry.Metrics, error) {
	return telemetry.NewMetrics(provider.Meter())
}

// provideHub builds the event bus. Closing it on stop ends every open stream.
func provideHub(lc fx.Lifecycle, metrics *telemetry.Metrics) *event.Hub {
	hub := event.NewHub(event.WithDropHook(func(t event.Type) {
		metrics.EventDropped(context.Background(), string(t))
	}))
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			hub.Close()
			return nil
		},
	})
	return hub
}

func provideUploads(cfg config.Config) (*storage.LocalFS, error) {
	return storage.NewLocalFS(cfg.Media.UploadsDir, cfg.Media.URLPrefix)
}

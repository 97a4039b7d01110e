package modules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.uber.org/fx"

	"github.com/memohai/inboxd/internal/accounts"
	"github.com/memohai/inboxd/internal/boot"
	"github.com/memohai/inboxd/internal/config"
	"github.com/memohai/inboxd/internal/server"
	"github.com/memohai/inboxd/internal/version"
)

var ServerModule = fx.Module(
	"server",
	fx.Provide(
		provideServer,
	),
	fx.Invoke(startServer),
)

// ---------------------------------------------------------------------------
// server
// ---------------------------------------------------------------------------

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	RuntimeConfig  *boot.RuntimeConfig
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	opts := server.DefaultOptions()
	if prefix := strings.TrimRight(params.Config.Media.URLPrefix, "/"); prefix != "" && prefix != config.DefaultUploadsPrefix {
		opts.PublicPrefixes = append(opts.PublicPrefixes, prefix+"/")
	}
	return server.NewServer(params.Logger, params.RuntimeConfig.ServerAddr, params.RuntimeConfig.JwtSecret, opts, params.ServerHandlers...)
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner, cfg config.Config, accountService *accounts.Service) {
	log.Info("starting inboxd", slog.String("version", version.Get().String()))

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := ensureAdmin(ctx, log, accountService, cfg.Admin); err != nil {
				return err
			}
			go func() {
				if err := srv.Start(); err != nil {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}

func ensureAdmin(ctx context.Context, log *slog.Logger, accountService *accounts.Service, cfg config.AdminConfig) error {
	username := strings.TrimSpace(cfg.Username)
	password := strings.TrimSpace(cfg.Password)
	if username == "" || password == "" {
		return fmt.Errorf("admin username/password required in config.toml")
	}
	if password == config.Default().Admin.Password {
		log.Warn("admin password uses default placeholder; please update config.toml")
	}
	if _, err := accountService.EnsureAdmin(ctx, username, password, cfg.DisplayName); err != nil {
		return fmt.Errorf("ensure admin: %w", err)
	}
	return nil
}

package modules

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/memohai/inboxd/internal/accounts"
	"github.com/memohai/inboxd/internal/boot"
	"github.com/memohai/inboxd/internal/config"
	"github.com/memohai/inboxd/internal/handlers"
	"github.com/memohai/inboxd/internal/ingest"
	"github.com/memohai/inboxd/internal/message/event"
	"github.com/memohai/inboxd/internal/server"
	"github.com/memohai/inboxd/internal/telemetry"
)

var HandlersModule = fx.Module(
	"handlers",
	fx.Provide(
		// Handlers needing config extraction
		annotateHandler(provideAuthHandler),
		annotateHandler(provideStreamHandler),
		annotateHandler(provideWebhookHandler),
		annotateHandler(provideUploadsHandler),

		// Simple handlers from handlers package
		annotateHandler(handlers.NewPingHandler),
		annotateHandler(handlers.NewSwaggerHandler),
		annotateHandler(handlers.NewInboxHandler),
		annotateHandler(handlers.NewContactsHandler),
		annotateHandler(handlers.NewWhatsAppHandler),
	),
)

// annotateHandler wraps a handler provider function with fx.Annotate
// to register it as a server.Handler with the correct group tag
func annotateHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

// ---------------------------------------------------------------------------
// handler providers (interface adaptation / config extraction)
// ---------------------------------------------------------------------------

func provideAuthHandler(log *slog.Logger, accountService *accounts.Service, rc *boot.RuntimeConfig) *handlers.AuthHandler {
	return handlers.NewAuthHandler(log, accountService, rc.JwtSecret, rc.JwtExpiresIn)
}

func provideStreamHandler(log *slog.Logger, hub *event.Hub, rc *boot.RuntimeConfig, cfg config.Config, metrics *telemetry.Metrics) *handlers.StreamHandler {
	return handlers.NewStreamHandler(log, hub, rc.JwtSecret, rc.KeepAlive, cfg.Inbox.StreamBuffer, metrics)
}

func provideWebhookHandler(log *slog.Logger, rc *boot.RuntimeConfig, dispatcher *ingest.Dispatcher) *handlers.WebhookHandler {
	if rc.Development && rc.AppSecret == "" {
		log.Warn("webhook signature check disabled in development")
	}
	return handlers.NewWebhookHandler(log, handlers.WebhookConfig{
		VerifyToken:   rc.VerifyToken,
		AppSecret:     rc.AppSecret,
		SkipSignature: rc.Development,
	}, dispatcher)
}

func provideUploadsHandler(log *slog.Logger, cfg config.Config) *handlers.UploadsHandler {
	return handlers.NewUploadsHandler(log, cfg.Media.URLPrefix, cfg.Media.UploadsDir)
}

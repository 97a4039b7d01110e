package modules

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/memohai/inboxd/internal/accounts"
	"github.com/memohai/inboxd/internal/boot"
	"github.com/memohai/inboxd/internal/config"
	"github.com/memohai/inboxd/internal/contacts"
	"github.com/memohai/inboxd/internal/ingest"
	"github.com/memohai/inboxd/internal/media"
	"github.com/memohai/inboxd/internal/message"
	"github.com/memohai/inboxd/internal/message/event"
	"github.com/memohai/inboxd/internal/outbound"
	"github.com/memohai/inboxd/internal/telemetry"
	"github.com/memohai/inboxd/internal/tickets"
	"github.com/memohai/inboxd/internal/whatsapp"
)

var DomainModule = fx.Module(
	"domain",
	fx.Provide(
		accounts.NewService,
		contacts.NewService,
		media.NewService,
		provideTicketService,
		provideWhatsAppClient,
		provideOutboundService,
		providePipeline,
		provideDispatcher,
	),
)

// ---------------------------------------------------------------------------
// domain providers
// ---------------------------------------------------------------------------

func provideTicketService(log *slog.Logger, store tickets.Store, messages message.Store, cfg config.Config) *tickets.Service {
	return tickets.NewService(log, store, messages, cfg.Inbox.MaxPageSize)
}

func provideWhatsAppClient(log *slog.Logger, cfg config.Config, rc *boot.RuntimeConfig) *whatsapp.Client {
	client := whatsapp.NewClient(log, whatsapp.Config{
		BaseURL:       cfg.WhatsApp.GraphBaseURL,
		Version:       cfg.WhatsApp.GraphVersion,
		AccessToken:   rc.AccessToken,
		PhoneNumberID: rc.PhoneNumberID,
		Timeout:       rc.ProviderTimeout,
		Rate:          cfg.WhatsApp.SendRate,
		Burst:         cfg.WhatsApp.SendBurst,
	})
	if rc.AccessToken == "" || rc.PhoneNumberID == "" {
		log.Warn("whatsapp credentials missing; outbound sends will fail with 503")
	}
	return client
}

func provideOutboundService(
	log *slog.Logger,
	contactStore contacts.Store,
	ticketStore tickets.Store,
	messageStore message.Store,
	client *whatsapp.Client,
	hub *event.Hub,
	metrics *telemetry.Metrics,
	cfg config.Config,
	rc *boot.RuntimeConfig,
) *outbound.Service {
	return outbound.NewService(log, contactStore, ticketStore, messageStore, client, outbound.Options{
		Window:        rc.Window,
		PublicBaseURL: cfg.Media.PublicBaseURL,
		Publisher:     hub,
		Metrics:       metrics,
	})
}

func providePipeline(
	log *slog.Logger,
	contactStore contacts.Store,
	ticketStore tickets.Store,
	messageStore message.Store,
	client *whatsapp.Client,
	hub *event.Hub,
	metrics *telemetry.Metrics,
	cfg config.Config,
	rc *boot.RuntimeConfig,
) *ingest.Pipeline {
	return ingest.NewPipeline(log, contactStore, ticketStore, messageStore, ingest.Options{
		Window:         rc.Window,
		PublishInbound: cfg.Inbox.PublishInbound,
		Media:          client,
		Publisher:      hub,
		Metrics:        metrics,
	})
}

// provideDispatcher runs webhook batches off the request path. Workers drain the
// queue on stop.
func provideDispatcher(lc fx.Lifecycle, log *slog.Logger, pipeline *ingest.Pipeline, cfg config.Config) *ingest.Dispatcher {
	dispatcher := ingest.NewDispatcher(log, pipeline, cfg.Inbox.WebhookWorkers, 0)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			dispatcher.Start(context.Background())
			return nil
		},
		OnStop: dispatcher.Stop,
	})
	return dispatcher
}

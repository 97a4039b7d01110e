// Package ingest turns provider webhook deliveries into contacts, tickets and messages.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/containerd/errdefs"

	"github.com/memohai/inboxd/internal/contacts"
	"github.com/memohai/inboxd/internal/logger"
	"github.com/memohai/inboxd/internal/message"
	"github.com/memohai/inboxd/internal/message/event"
	"github.com/memohai/inboxd/internal/telemetry"
	"github.com/memohai/inboxd/internal/tickets"
)

const (
	// DefaultWindow is how long a free-form reply stays allowed after contact activity.
	DefaultWindow = 24 * time.Hour

	mediaResolveTimeout = 5 * time.Second
)

// MediaResolver turns a provider media id into a download URL.
type MediaResolver interface {
	MediaURL(ctx context.Context, mediaID string) (string, error)
}

// Options tunes a Pipeline.
type Options struct {
	Window time.Duration
	// PublishInbound emits message.created for stored inbound messages.
	PublishInbound bool
	Media          MediaResolver
	Publisher      event.Publisher
	Metrics        *telemetry.Metrics
	// Now stamps events without a timestamp; defaults to time.Now.
	Now func() time.Time
}

// Pipeline stores inbound messages idempotently and applies status callbacks.
type Pipeline struct {
	contacts contacts.Store
	tickets  tickets.Store
	messages message.Store
	statuses *message.Service
	opts     Options
	logger   *slog.Logger
}

// Result describes the outcome of one Ingest call.
type Result struct {
	Message message.Message
	Ticket  tickets.Ticket
	// Duplicate is true when the provider message id was already stored.
	Duplicate bool
	// TicketCreated is true when the message opened a new ticket.
	TicketCreated bool
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(log *slog.Logger, contactStore contacts.Store, ticketStore tickets.Store, messageStore message.Store, opts Options) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{
		contacts: contactStore,
		tickets:  ticketStore,
		messages: messageStore,
		statuses: message.NewService(log, messageStore),
		opts:     opts,
		logger:   log.With(slog.String("service", "ingest")),
	}
}

// Ingest records one inbound event. Redelivery of a stored provider message id returns
// the stored message with Duplicate set and changes nothing.
func (p *Pipeline) Ingest(ctx context.Context, in Inbound) (Result, error) {
	if in == nil {
		return Result{}, fmt.Errorf("%w: inbound event is required", errdefs.ErrInvalidArgument)
	}
	env := in.envelope()
	if strings.TrimSpace(env.FromWaID) == "" || strings.TrimSpace(env.ProviderMessageID) == "" {
		return Result{}, fmt.Errorf("%w: sender and provider message id are required", errdefs.ErrInvalidArgument)
	}

	if existing, err := p.messages.GetMessageByProviderID(ctx, env.ProviderMessageID); err == nil {
		return p.duplicate(ctx, existing)
	} else if !errors.Is(err, errdefs.ErrNotFound) {
		return Result{}, fmt.Errorf("lookup provider message: %w", err)
	}

	var name *string
	if n := strings.TrimSpace(env.ContactName); n != "" {
		name = &n
	}
	contact, err := p.contacts.UpsertContact(ctx, env.FromWaID, name)
	if err != nil {
		return Result{}, fmt.Errorf("upsert contact: %w", err)
	}

	at := env.OccurredAt
	if at.IsZero() {
		at = p.opts.Now()
	}
	windowUntil := at.Add(p.opts.Window)
	ticket, created, err := p.tickets.FindOrCreateActiveTicket(ctx, contact.ID, at, windowUntil)
	if err != nil {
		return Result{}, fmt.Errorf("resolve ticket: %w", err)
	}

	input := p.messageInput(ctx, ticket.ID, at, in)
	stored, err := p.messages.CreateMessage(ctx, input)
	if err != nil {
		if errors.Is(err, errdefs.ErrAlreadyExists) {
			existing, lookupErr := p.messages.GetMessageByProviderID(ctx, env.ProviderMessageID)
			if lookupErr != nil {
				return Result{}, fmt.Errorf("lookup duplicate message: %w", lookupErr)
			}
			return p.duplicate(ctx, existing)
		}
		return Result{}, fmt.Errorf("store inbound message: %w", err)
	}

	ticket, err = p.tickets.TouchTicket(ctx, tickets.TouchParams{
		TicketID:    ticket.ID,
		At:          at,
		WindowUntil: windowUntil,
		Reopen:      true,
	})
	if err != nil {
		return Result{}, fmt.Errorf("touch ticket: %w", err)
	}

	p.opts.Metrics.InboundIngested(ctx, string(stored.Type))
	p.logger.Info("inbound stored",
		slog.String("wa_message_id", env.ProviderMessageID),
		logger.Phone("wa_id", env.FromWaID),
		slog.String("ticket_id", ticket.ID),
		slog.String("type", string(stored.Type)),
		slog.Bool("ticket_created", created),
	)
	if p.opts.PublishInbound {
		p.publish(ctx, ticket.ID, stored)
	}
	return Result{Message: stored, Ticket: ticket, TicketCreated: created}, nil
}

// ApplyStatus moves an outbound message forward on a provider callback.
func (p *Pipeline) ApplyStatus(ctx context.Context, ev StatusEvent) (bool, error) {
	updated, applied, err := p.statuses.ApplyStatus(ctx, ev.ProviderMessageID, ev.Status)
	if err != nil {
		return false, err
	}
	if applied {
		p.opts.Metrics.StatusUpdated(ctx, string(updated.Status))
		p.logger.Debug("status applied",
			slog.String("wa_message_id", ev.ProviderMessageID),
			slog.String("status", string(updated.Status)),
		)
	}
	return applied, nil
}

// Handle processes a whole delivery. Each event is independent: failures are
// logged and returned joined, the rest of the batch still runs.
func (p *Pipeline) Handle(ctx context.Context, batch Batch) error {
	var errs []error
	for _, in := range batch.Messages {
		if _, err := p.Ingest(ctx, in); err != nil {
			env := in.envelope()
			p.logger.Error("ingest inbound failed",
				slog.String("wa_message_id", env.ProviderMessageID),
				slog.Any("error", err),
			)
			errs = append(errs, err)
		}
	}
	for _, st := range batch.Statuses {
		if _, err := p.ApplyStatus(ctx, st); err != nil {
			p.logger.Error("apply status failed",
				slog.String("wa_message_id", st.ProviderMessageID),
				slog.Any("error", err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Pipeline) duplicate(ctx context.Context, existing message.Message) (Result, error) {
	p.opts.Metrics.InboundDuplicate(ctx)
	ticket, err := p.tickets.GetTicket(ctx, existing.TicketID)
	if err != nil {
		return Result{}, fmt.Errorf("load ticket of duplicate: %w", err)
	}
	return Result{Message: existing, Ticket: ticket, Duplicate: true}, nil
}

func (p *Pipeline) messageInput(ctx context.Context, ticketID string, at time.Time, in Inbound) message.CreateInput {
	env := in.envelope()
	providerID := env.ProviderMessageID
	input := message.CreateInput{
		TicketID:          ticketID,
		Direction:         message.DirectionIn,
		ProviderMessageID: &providerID,
		Status:            message.StatusReceived,
		CreatedAt:         at,
	}
	switch ev := in.(type) {
	case Text:
		input.Type = message.TypeText
		input.Text = message.Ptr(ev.Body)
	case Media:
		input.Type = ev.Kind
		input.Text = message.Ptr(ev.Caption)
		input.MimeType = message.Ptr(ev.MimeType)
		input.MediaURL = message.Ptr(p.resolveMedia(ctx, ev.MediaID))
	case Unknown:
		input.Type = message.TypeUnknown
	}
	return input
}

// resolveMedia is best effort: any failure leaves the URL empty.
func (p *Pipeline) resolveMedia(ctx context.Context, mediaID string) string {
	if p.opts.Media == nil || strings.TrimSpace(mediaID) == "" {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, mediaResolveTimeout)
	defer cancel()
	url, err := p.opts.Media.MediaURL(ctx, mediaID)
	if err != nil {
		p.logger.Warn("resolve media url failed", slog.String("media_id", mediaID), slog.Any("error", err))
		return ""
	}
	return url
}

func (p *Pipeline) publish(ctx context.Context, ticketID string, msg message.Message) {
	if p.opts.Publisher == nil {
		return
	}
	view, err := p.tickets.GetTicketView(ctx, ticketID)
	if err != nil {
		p.logger.Warn("load ticket for event failed", slog.String("ticket_id", ticketID), slog.Any("error", err))
		return
	}
	ev, err := event.NewMessageCreated(event.SourceWebhook, view, msg)
	if err != nil {
		p.logger.Warn("encode inbound event failed", slog.Any("error", err))
		return
	}
	p.opts.Publisher.Publish(ev)
}

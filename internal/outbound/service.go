// Package outbound sends agent messages through the provider and records the result.
package outbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/containerd/errdefs"

	"github.com/memohai/inboxd/internal/contacts"
	"github.com/memohai/inboxd/internal/identity"
	"github.com/memohai/inboxd/internal/logger"
	"github.com/memohai/inboxd/internal/message"
	"github.com/memohai/inboxd/internal/message/event"
	"github.com/memohai/inboxd/internal/telemetry"
	"github.com/memohai/inboxd/internal/tickets"
	"github.com/memohai/inboxd/internal/whatsapp"
)

const defaultWindow = 24 * time.Hour

// Options tunes a Service.
type Options struct {
	Window time.Duration
	// PublicBaseURL prefixes relative attachment links sent to the provider.
	PublicBaseURL string
	Publisher     event.Publisher
	Metrics       *telemetry.Metrics
	Now           func() time.Time
}

// Service runs the outbound pipeline: authorize, check the window, send, store, bump, publish.
type Service struct {
	contacts contacts.Store
	tickets  tickets.Store
	messages message.Store
	provider Provider
	opts     Options
	logger   *slog.Logger
}

// NewService creates an outbound service.
func NewService(log *slog.Logger, contactStore contacts.Store, ticketStore tickets.Store, messageStore message.Store, provider Provider, opts Options) *Service {
	if log == nil {
		log = slog.Default()
	}
	if opts.Window <= 0 {
		opts.Window = defaultWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		contacts: contactStore,
		tickets:  ticketStore,
		messages: messageStore,
		provider: provider,
		opts:     opts,
		logger:   log.With(slog.String("service", "outbound")),
	}
}

// delivery is one provider call and the message recorded for it.
type delivery struct {
	kind   string
	source string
	ticket tickets.View
	input  message.CreateInput
	send   func(ctx context.Context, to string) (whatsapp.SendResult, error)
}

// SendText sends free-form text on a ticket. The actor must be allowed to reply and the
// reply window must still be open.
func (s *Service) SendText(ctx context.Context, actor identity.Actor, ticketID, text string) (Result, error) {
	text, err := validateText(text)
	if err != nil {
		return Result{}, err
	}
	view, err := s.replyTarget(ctx, actor, ticketID)
	if err != nil {
		return Result{}, err
	}
	if err := tickets.CheckWindow(view.Ticket, s.opts.Now()); err != nil {
		return Result{}, err
	}
	return s.deliverOnTicket(ctx, delivery{
		kind:   "text",
		source: event.SourceInboxSend,
		ticket: view,
		input:  message.CreateInput{Type: message.TypeText, Text: &text},
		send: func(ctx context.Context, to string) (whatsapp.SendResult, error) {
			return s.provider.SendText(ctx, to, text)
		},
	})
}

// SendTemplate sends a template on a ticket. Templates are allowed outside the window.
func (s *Service) SendTemplate(ctx context.Context, actor identity.Actor, ticketID string, req TemplateRequest) (Result, error) {
	tmpl, err := normalizeTemplate(req)
	if err != nil {
		return Result{}, err
	}
	view, err := s.replyTarget(ctx, actor, ticketID)
	if err != nil {
		return Result{}, err
	}
	return s.deliverOnTicket(ctx, templateDelivery(s.provider, event.SourceInboxSend, view, tmpl))
}

// SendVoice sends an uploaded voice attachment on a ticket by link. Allowed outside the window.
func (s *Service) SendVoice(ctx context.Context, actor identity.Actor, ticketID string, req VoiceRequest) (Result, error) {
	mediaURL := strings.TrimSpace(req.MediaURL)
	if mediaURL == "" {
		return Result{}, fmt.Errorf("%w: mediaUrl is required", errdefs.ErrInvalidArgument)
	}
	link, err := s.publicLink(mediaURL)
	if err != nil {
		return Result{}, err
	}
	view, err := s.replyTarget(ctx, actor, ticketID)
	if err != nil {
		return Result{}, err
	}
	return s.deliverOnTicket(ctx, delivery{
		kind:   "voice",
		source: event.SourceInboxSend,
		ticket: view,
		input: message.CreateInput{
			Type:       message.TypeAudio,
			MediaURL:   &mediaURL,
			MimeType:   message.Ptr(strings.TrimSpace(req.MimeType)),
			SizeBytes:  req.SizeBytes,
			DurationMs: req.DurationMs,
		},
		send: func(ctx context.Context, to string) (whatsapp.SendResult, error) {
			return s.provider.SendAudio(ctx, to, link)
		},
	})
}

// SendToContact sends free-form text to a stored contact, reusing or opening its ticket.
func (s *Service) SendToContact(ctx context.Context, actor identity.Actor, contactID, toWaID, text string) (DirectResult, error) {
	text, err := validateText(text)
	if err != nil {
		return DirectResult{}, err
	}
	if err := contacts.ValidateWaID(toWaID); err != nil {
		return DirectResult{}, err
	}
	if err := actor.Validate(); err != nil {
		return DirectResult{}, err
	}
	contact, err := s.contacts.GetContact(ctx, strings.TrimSpace(contactID))
	if err != nil {
		return DirectResult{}, err
	}
	if contact.WaID != strings.TrimSpace(toWaID) {
		return DirectResult{}, fmt.Errorf("%w: toWaId does not belong to contact", errdefs.ErrInvalidArgument)
	}
	return s.sendDirectText(ctx, actor, contact, text)
}

// SendTextByPhone sends free-form text to a WhatsApp id, creating the contact when new.
func (s *Service) SendTextByPhone(ctx context.Context, actor identity.Actor, toWaID, text, name string) (DirectResult, error) {
	text, err := validateText(text)
	if err != nil {
		return DirectResult{}, err
	}
	if err := contacts.ValidateWaID(toWaID); err != nil {
		return DirectResult{}, err
	}
	if err := actor.Validate(); err != nil {
		return DirectResult{}, err
	}
	contact, err := s.upsertContact(ctx, toWaID, name)
	if err != nil {
		return DirectResult{}, err
	}
	return s.sendDirectText(ctx, actor, contact, text)
}

// SendTemplateByPhone sends a template to a WhatsApp id, creating the contact when new.
func (s *Service) SendTemplateByPhone(ctx context.Context, actor identity.Actor, toWaID string, req TemplateRequest, name string) (DirectResult, error) {
	if err := contacts.ValidateWaID(toWaID); err != nil {
		return DirectResult{}, err
	}
	tmpl, err := normalizeTemplate(req)
	if err != nil {
		return DirectResult{}, err
	}
	if err := actor.Validate(); err != nil {
		return DirectResult{}, err
	}
	contact, err := s.upsertContact(ctx, toWaID, name)
	if err != nil {
		return DirectResult{}, err
	}
	view, err := s.directTicket(ctx, actor, contact)
	if err != nil {
		return DirectResult{}, err
	}
	return s.deliverDirect(ctx, contact, templateDelivery(s.provider, event.SourceWhatsAppSend, view, tmpl))
}

func (s *Service) sendDirectText(ctx context.Context, actor identity.Actor, contact contacts.Contact, text string) (DirectResult, error) {
	view, err := s.directTicket(ctx, actor, contact)
	if err != nil {
		return DirectResult{}, err
	}
	if err := tickets.CheckWindow(view.Ticket, s.opts.Now()); err != nil {
		return DirectResult{}, err
	}
	return s.deliverDirect(ctx, contact, delivery{
		kind:   "text",
		source: event.SourceWhatsAppSend,
		ticket: view,
		input:  message.CreateInput{Type: message.TypeText, Text: &text},
		send: func(ctx context.Context, to string) (whatsapp.SendResult, error) {
			return s.provider.SendText(ctx, to, text)
		},
	})
}

// replyTarget loads a ticket and checks the actor may send on it.
// CheckReply reports whether actor may send on the ticket now, without sending.
func (s *Service) CheckReply(ctx context.Context, actor identity.Actor, ticketID string) error {
	_, err := s.replyTarget(ctx, actor, ticketID)
	return err
}

func (s *Service) replyTarget(ctx context.Context, actor identity.Actor, ticketID string) (tickets.View, error) {
	if err := actor.Validate(); err != nil {
		return tickets.View{}, err
	}
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return tickets.View{}, fmt.Errorf("%w: ticket id is required", errdefs.ErrInvalidArgument)
	}
	view, err := s.tickets.GetTicketView(ctx, ticketID)
	if err != nil {
		return tickets.View{}, err
	}
	if err := tickets.CanReply(actor, view.Ticket); err != nil {
		return tickets.View{}, err
	}
	return view, nil
}

// directTicket resolves the contact's active ticket, opening one when needed.
func (s *Service) directTicket(ctx context.Context, actor identity.Actor, contact contacts.Contact) (tickets.View, error) {
	now := s.opts.Now()
	ticket, created, err := s.tickets.FindOrCreateActiveTicket(ctx, contact.ID, now, now.Add(s.opts.Window))
	if err != nil {
		return tickets.View{}, fmt.Errorf("resolve ticket: %w", err)
	}
	if err := tickets.CanAccess(actor, ticket); err != nil {
		return tickets.View{}, err
	}
	if created {
		s.logger.Info("ticket opened by outbound send", slog.String("ticket_id", ticket.ID), slog.String("actor_id", actor.ID))
	}
	return s.tickets.GetTicketView(ctx, ticket.ID)
}

func (s *Service) upsertContact(ctx context.Context, waID, name string) (contacts.Contact, error) {
	var namePtr *string
	if n := strings.TrimSpace(name); n != "" {
		namePtr = &n
	}
	contact, err := s.contacts.UpsertContact(ctx, strings.TrimSpace(waID), namePtr)
	if err != nil {
		return contacts.Contact{}, fmt.Errorf("upsert contact: %w", err)
	}
	return contact, nil
}

func (s *Service) deliverOnTicket(ctx context.Context, d delivery) (Result, error) {
	stored, view, _, err := s.deliver(ctx, d)
	if err != nil {
		return Result{}, err
	}
	return Result{Ticket: view, Message: stored}, nil
}

func (s *Service) deliverDirect(ctx context.Context, contact contacts.Contact, d delivery) (DirectResult, error) {
	stored, view, sent, err := s.deliver(ctx, d)
	if err != nil {
		return DirectResult{}, err
	}
	return DirectResult{
		Contact:           contact,
		Ticket:            view,
		ContactID:         contact.ID,
		TicketID:          view.ID,
		ProviderMessageID: sent.MessageID,
		Message:           stored,
		Raw:               sent.Raw,
	}, nil
}

// deliver calls the provider, stores the outcome and, on success, bumps the ticket and publishes.
// A rejected send is stored as FAILED and returned as *ProviderFailure without bump or publish.
func (s *Service) deliver(ctx context.Context, d delivery) (message.Message, tickets.View, whatsapp.SendResult, error) {
	to := d.ticket.Contact.WaID
	sent, sendErr := d.send(ctx, to)
	now := s.opts.Now()

	input := d.input
	input.TicketID = d.ticket.ID
	input.Direction = message.DirectionOut
	input.CreatedAt = now

	if sendErr != nil {
		failure := classifyProviderError(sendErr)
		input.Status = message.StatusFailed
		if stored, err := s.messages.CreateMessage(ctx, input); err != nil {
			s.logger.Error("store failed outbound message", slog.String("ticket_id", d.ticket.ID), slog.Any("error", err))
		} else {
			failure.Stored = &stored
		}
		s.opts.Metrics.OutboundFailed(ctx, d.kind, failure.Status)
		s.logger.Warn("provider send failed",
			slog.String("ticket_id", d.ticket.ID),
			slog.String("kind", d.kind),
			slog.Int("status", failure.Status),
			slog.Any("error", sendErr),
		)
		return message.Message{}, tickets.View{}, whatsapp.SendResult{}, failure
	}

	input.Status = message.StatusSent
	input.ProviderMessageID = message.Ptr(sent.MessageID)
	stored, err := s.messages.CreateMessage(ctx, input)
	if err != nil {
		return message.Message{}, tickets.View{}, whatsapp.SendResult{}, fmt.Errorf("store outbound message: %w", err)
	}
	if _, err := s.tickets.TouchTicket(ctx, tickets.TouchParams{
		TicketID:    d.ticket.ID,
		At:          now,
		WindowUntil: now.Add(s.opts.Window),
	}); err != nil {
		return message.Message{}, tickets.View{}, whatsapp.SendResult{}, fmt.Errorf("bump ticket window: %w", err)
	}
	view, err := s.tickets.GetTicketView(ctx, d.ticket.ID)
	if err != nil {
		return message.Message{}, tickets.View{}, whatsapp.SendResult{}, fmt.Errorf("reload ticket: %w", err)
	}

	s.opts.Metrics.OutboundSent(ctx, d.kind)
	s.logger.Info("outbound sent",
		slog.String("ticket_id", view.ID),
		slog.String("kind", d.kind),
		slog.String("wa_message_id", sent.MessageID),
		logger.Phone("to", to),
	)
	s.publish(d.source, view, stored)
	return stored, view, sent, nil
}

func (s *Service) publish(source string, view tickets.View, msg message.Message) {
	if s.opts.Publisher == nil {
		return
	}
	ev, err := event.NewMessageCreated(source, view, msg)
	if err != nil {
		s.logger.Warn("encode message.created failed", slog.Any("error", err))
		return
	}
	s.opts.Publisher.Publish(ev)
}

func (s *Service) publicLink(mediaURL string) (string, error) {
	parsed, err := url.Parse(mediaURL)
	if err != nil {
		return "", fmt.Errorf("%w: invalid mediaUrl: %v", errdefs.ErrInvalidArgument, err)
	}
	if parsed.IsAbs() {
		return mediaURL, nil
	}
	base := strings.TrimSpace(s.opts.PublicBaseURL)
	if base == "" {
		return "", fmt.Errorf("%w: mediaUrl must be absolute when no public base url is configured", errdefs.ErrInvalidArgument)
	}
	return url.JoinPath(base, parsed.Path)
}

func templateDelivery(provider Provider, source string, view tickets.View, tmpl whatsapp.Template) delivery {
	label := "[TEMPLATE:" + tmpl.Name + "]"
	return delivery{
		kind:   "template",
		source: source,
		ticket: view,
		input:  message.CreateInput{Type: message.TypeText, Text: &label},
		send: func(ctx context.Context, to string) (whatsapp.SendResult, error) {
			return provider.SendTemplate(ctx, to, tmpl)
		},
	}
}

func validateText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: text is required", errdefs.ErrInvalidArgument)
	}
	if len([]rune(text)) > MaxTextLength {
		return "", fmt.Errorf("%w: text exceeds %d characters", errdefs.ErrInvalidArgument, MaxTextLength)
	}
	return text, nil
}

func normalizeTemplate(req TemplateRequest) (whatsapp.Template, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = DefaultTemplateName
	}
	lang := strings.TrimSpace(req.LanguageCode)
	if lang == "" {
		lang = DefaultTemplateLanguage
	}
	if len(lang) < 2 {
		return whatsapp.Template{}, fmt.Errorf("%w: languageCode is too short", errdefs.ErrInvalidArgument)
	}
	return whatsapp.Template{Name: name, LanguageCode: lang, Components: req.Components}, nil
}

// IsWindowExpired reports whether err is the closed-window conflict.
func IsWindowExpired(err error) bool {
	return errors.Is(err, tickets.ErrWindowExpired)
}

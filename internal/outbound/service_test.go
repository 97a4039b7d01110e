package outbound_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/inboxd/internal/accounts"
	"github.com/memohai/inboxd/internal/db/memstore"
	"github.com/memohai/inboxd/internal/identity"
	"github.com/memohai/inboxd/internal/message"
	"github.com/memohai/inboxd/internal/message/event"
	"github.com/memohai/inboxd/internal/outbound"
	"github.com/memohai/inboxd/internal/tickets"
	"github.com/memohai/inboxd/internal/whatsapp"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type sentCall struct {
	Kind string
	To   string
	Body string
}

type fakeProvider struct {
	mu    sync.Mutex
	calls []sentCall
	err   error
	id    string
}

func (f *fakeProvider) record(kind, to, body string) (whatsapp.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sentCall{Kind: kind, To: to, Body: body})
	if f.err != nil {
		return whatsapp.SendResult{}, f.err
	}
	id := f.id
	if id == "" {
		id = "wamid.out.1"
	}
	return whatsapp.SendResult{MessageID: id, Raw: json.RawMessage(`{"messages":[{"id":"` + id + `"}]}`)}, nil
}

func (f *fakeProvider) SendText(_ context.Context, to, body string) (whatsapp.SendResult, error) {
	return f.record("text", to, body)
}

func (f *fakeProvider) SendTemplate(_ context.Context, to string, tmpl whatsapp.Template) (whatsapp.SendResult, error) {
	return f.record("template", to, tmpl.Name+"/"+tmpl.LanguageCode)
}

func (f *fakeProvider) SendAudio(_ context.Context, to, link string) (whatsapp.SendResult, error) {
	return f.record("audio", to, link)
}

func (f *fakeProvider) Calls() []sentCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentCall(nil), f.calls...)
}

type fixture struct {
	store    *memstore.Store
	provider *fakeProvider
	hub      *event.Hub
	svc      *outbound.Service
	now      time.Time
	admin    identity.Actor
	agent1   identity.Actor
	agent2   identity.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    memstore.New(),
		provider: &fakeProvider{},
		hub:      event.NewHub(),
		now:      t0.Add(time.Hour),
	}
	t.Cleanup(f.hub.Close)
	f.svc = outbound.NewService(nil, f.store, f.store, f.store, f.provider, outbound.Options{
		PublicBaseURL: "https://inbox.example.com",
		Publisher:     f.hub,
		Now:           func() time.Time { return f.now },
	})
	f.admin = f.account(t, "admin", identity.RoleAdmin)
	f.agent1 = f.account(t, "u1", identity.RoleAgent)
	f.agent2 = f.account(t, "u2", identity.RoleAgent)
	return f
}

func (f *fixture) account(t *testing.T, username string, role identity.Role) identity.Actor {
	t.Helper()
	acc, err := f.store.CreateAccount(context.Background(), accounts.CreateParams{
		Username:     username,
		PasswordHash: "x",
		DisplayName:  username,
		Role:         role,
		IsActive:     true,
	})
	require.NoError(t, err)
	return acc.Actor()
}

// ticket creates an active ticket whose window closes at windowUntil, optionally assigned.
func (f *fixture) ticket(t *testing.T, waID string, windowUntil time.Time, assignee string) tickets.Ticket {
	t.Helper()
	ctx := context.Background()
	contact, err := f.store.UpsertContact(ctx, waID, nil)
	require.NoError(t, err)
	ticket, _, err := f.store.FindOrCreateActiveTicket(ctx, contact.ID, t0, windowUntil)
	require.NoError(t, err)
	if assignee != "" {
		ticket, err = f.store.AssignTicket(ctx, ticket.ID, assignee, tickets.Owner{})
		require.NoError(t, err)
	}
	return ticket
}

func (f *fixture) subscribe(t *testing.T) <-chan event.Event {
	t.Helper()
	_, ch, cancel := f.hub.Subscribe(event.TypeMessageCreated, 8)
	t.Cleanup(cancel)
	return ch
}

func assertNoEvent(t *testing.T, ch <-chan event.Event) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %s", ev.Type)
	default:
	}
}

func TestSendTextSuccess(t *testing.T) {
	f := newFixture(t)
	ticket := f.ticket(t, "5511999990001", t0.Add(24*time.Hour), f.agent1.ID)
	events := f.subscribe(t)

	res, err := f.svc.SendText(context.Background(), f.agent1, ticket.ID, "  Olá!  ")
	require.NoError(t, err)

	assert.Equal(t, message.DirectionOut, res.Message.Direction)
	assert.Equal(t, message.StatusSent, res.Message.Status)
	require.NotNil(t, res.Message.Text)
	assert.Equal(t, "Olá!", *res.Message.Text)
	require.NotNil(t, res.Message.ProviderMessageID)
	assert.Equal(t, "wamid.out.1", *res.Message.ProviderMessageID)
	assert.Equal(t, []sentCall{{Kind: "text", To: "5511999990001", Body: "Olá!"}}, f.provider.Calls())

	require.NotNil(t, res.Ticket.WaWindowUntil)
	assert.Equal(t, f.now.Add(24*time.Hour), *res.Ticket.WaWindowUntil)
	assert.Equal(t, f.now, *res.Ticket.LastMessageAt)

	select {
	case ev := <-events:
		assert.Equal(t, event.TypeMessageCreated, ev.Type)
		var payload struct {
			Source  string          `json:"source"`
			Ticket  tickets.View    `json:"ticket"`
			Message message.Message `json:"message"`
		}
		require.NoError(t, json.Unmarshal(ev.Data, &payload))
		assert.Equal(t, event.SourceInboxSend, payload.Source)
		assert.Equal(t, ticket.ID, payload.Ticket.ID)
		assert.Equal(t, res.Message.ID, payload.Message.ID)
	default:
		t.Fatal("expected message.created")
	}
}

func TestSendTextWindowExpired(t *testing.T) {
	f := newFixture(t)
	ticket := f.ticket(t, "5511999990001", t0, f.agent1.ID)
	events := f.subscribe(t)

	_, err := f.svc.SendText(context.Background(), f.agent1, ticket.ID, "oi")
	require.Error(t, err)
	assert.True(t, errdefs.IsConflict(err))
	assert.True(t, outbound.IsWindowExpired(err))
	assert.Contains(t, err.Error(), "template required")
	assert.Empty(t, f.provider.Calls())
	assertNoEvent(t, events)

	msgs, err := f.store.ListMessagesByTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSendTextForbiddenForOtherAgent(t *testing.T) {
	f := newFixture(t)
	ticket := f.ticket(t, "5511999990001", t0.Add(24*time.Hour), f.agent1.ID)
	events := f.subscribe(t)

	_, err := f.svc.SendText(context.Background(), f.agent2, ticket.ID, "oi")
	require.Error(t, err)
	assert.True(t, errdefs.IsPermissionDenied(err))
	assert.Empty(t, f.provider.Calls())
	assertNoEvent(t, events)
}

func TestSendTextUnassignedRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	ticket := f.ticket(t, "5511999990001", t0.Add(24*time.Hour), "")

	_, err := f.svc.SendText(context.Background(), f.agent1, ticket.ID, "oi")
	assert.True(t, errdefs.IsPermissionDenied(err))

	_, err = f.svc.SendText(context.Background(), f.admin, ticket.ID, "oi")
	require.NoError(t, err)
}

func TestSendTextValidation(t *testing.T) {
	f := newFixture(t)
	ticket := f.ticket(t, "5511999990001", t0.Add(24*time.Hour), f.agent1.ID)
	ctx := context.Background()

	_, err := f.svc.SendText(ctx, f.agent1, ticket.ID, "   ")
	assert.True(t, errdefs.IsInvalidArgument(err))

	long := make([]rune, outbound.MaxTextLength+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = f.svc.SendText(ctx, f.agent1, ticket.ID, string(long))
	assert.True(t, errdefs.IsInvalidArgument(err))

	_, err = f.svc.SendText(ctx, f.agent1, "missing", "oi")
	assert.True(t, errdefs.IsNotFound(err))

	_, err = f.svc.SendText(ctx, identity.Actor{}, ticket.ID, "oi")
	assert.True(t, errdefs.IsUnauthorized(err))
}

func TestSendTextProviderAuthFailureBecomesBadGateway(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			f := newFixture(t)
			ticket := f.ticket(t, "5511999990001", t0.Add(24*time.Hour), f.agent1.ID)
			events := f.subscribe(t)
			f.provider.err = &whatsapp.APIError{
				StatusCode: status,
				Message:    "Invalid OAuth access token",
				Details:    json.RawMessage(`{"code":190}`),
			}

			_, err := f.svc.SendText(context.Background(), f.agent1, ticket.ID, "oi")
			pf, ok := outbound.AsProviderFailure(err)
			require.True(t, ok)
			assert.Equal(t, http.StatusBadGateway, pf.Status)
			assert.Equal(t, "Invalid OAuth access token", pf.Message)
			assert.JSONEq(t, `{"code":190}`, string(pf.Details))
			require.NotNil(t, pf.Stored)
			assert.Equal(t, message.StatusFailed, pf.Stored.Status)
			assertNoEvent(t, events)

			msgs, err := f.store.ListMessagesByTicket(context.Background(), ticket.ID)
			require.NoError(t, err)
			require.Len(t, msgs, 1)
			assert.Equal(t, message.StatusFailed, msgs[0].Status)

			// A failed send does not extend the window.
			got, err := f.store.GetTicket(context.Background(), ticket.ID)
			require.NoError(t, err)
			assert.Equal(t, t0.Add(24*time.Hour), *got.WaWindowUntil)
		})
	}
}

func TestSendTextProviderClientErrorPassesThrough(t *testing.T) {
	f := newFixture(t)
	ticket := f.ticket(t, "5511999990001", t0.Add(24*time.Hour), f.agent1.ID)
	f.provider.err = &whatsapp.APIError{
		StatusCode: http.StatusBadRequest,
		Message:    "Invalid parameter",
		Details:    json.RawMessage(`{"code":100}`),
	}

	_, err := f.svc.SendText(context.Background(), f.agent1, ticket.ID, "oi")
	pf, ok := outbound.AsProviderFailure(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, pf.Status)
	assert.JSONEq(t, `{"code":100}`, string(pf.Details))
}

func TestSendTextTransportErrorBecomesBadGateway(t *testing.T) {
	f := newFixture(t)
	ticket := f.ticket(t, "5511999990001", t0.Add(24*time.Hour), f.agent1.ID)
	f.provider.err = errors.New("dial tcp: connection refused")

	_, err := f.svc.SendText(context.Background(), f.agent1, ticket.ID, "oi")
	pf, ok := outbound.AsProviderFailure(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, pf.Status)
}

func TestSendTemplateIgnoresWindow(t *testing.T) {
	f := newFixture(t)
	ticket := f.ticket(t, "5511999990001", t0, f.agent1.ID)

	res, err := f.svc.SendTemplate(context.Background(), f.agent1, ticket.ID, outbound.TemplateRequest{})
	require.NoError(t, err)
	require.NotNil(t, res.Message.Text)
	assert.Equal(t, "[TEMPLATE:hello_world]", *res.Message.Text)
	assert.Equal(t, []sentCall{{Kind: "template", To: "5511999990001", Body: "hello_world/en_US"}}, f.provider.Calls())
	assert.Equal(t, f.now.Add(24*time.Hour), *res.Ticket.WaWindowUntil)
}

func TestSendVoiceJoinsRelativeLink(t *testing.T) {
	f := newFixture(t)
	ticket := f.ticket(t, "5511999990001", t0, f.agent1.ID)
	size := int64(2048)

	res, err := f.svc.SendVoice(context.Background(), f.agent1, ticket.ID, outbound.VoiceRequest{
		MediaURL:  "/uploads/voice.ogg",
		MimeType:  "audio/ogg",
		SizeBytes: &size,
	})
	require.NoError(t, err)
	assert.Equal(t, message.TypeAudio, res.Message.Type)
	require.NotNil(t, res.Message.MediaURL)
	assert.Equal(t, "/uploads/voice.ogg", *res.Message.MediaURL)
	assert.Equal(t, []sentCall{{Kind: "audio", To: "5511999990001", Body: "https://inbox.example.com/uploads/voice.ogg"}}, f.provider.Calls())

	_, err = f.svc.SendVoice(context.Background(), f.agent1, ticket.ID, outbound.VoiceRequest{})
	assert.True(t, errdefs.IsInvalidArgument(err))
}

func TestSendTextByPhoneCreatesContactAndTicket(t *testing.T) {
	f := newFixture(t)
	events := f.subscribe(t)

	res, err := f.svc.SendTextByPhone(context.Background(), f.admin, "5511988887777", "bem-vindo", "Bia")
	require.NoError(t, err)
	assert.NotEmpty(t, res.ContactID)
	assert.NotEmpty(t, res.TicketID)
	assert.Equal(t, "wamid.out.1", res.ProviderMessageID)
	require.NotNil(t, res.Contact.Name)
	assert.Equal(t, "Bia", *res.Contact.Name)

	contactCount, ticketCount, messageCount := f.store.Counts()
	assert.Equal(t, 1, contactCount)
	assert.Equal(t, 1, ticketCount)
	assert.Equal(t, 1, messageCount)

	select {
	case ev := <-events:
		var payload event.MessageCreatedPayload
		require.NoError(t, json.Unmarshal(ev.Data, &payload))
		assert.Equal(t, event.SourceWhatsAppSend, payload.Source)
	default:
		t.Fatal("expected message.created")
	}

	_, err = f.svc.SendTextByPhone(context.Background(), f.admin, "123", "oi", "")
	assert.True(t, errdefs.IsInvalidArgument(err))
}

func TestSendTextByPhoneRespectsOwnership(t *testing.T) {
	f := newFixture(t)
	f.ticket(t, "5511999990001", t0.Add(24*time.Hour), f.agent1.ID)

	_, err := f.svc.SendTextByPhone(context.Background(), f.agent2, "5511999990001", "oi", "")
	assert.True(t, errdefs.IsPermissionDenied(err))
	assert.Empty(t, f.provider.Calls())
}

func TestSendToContactRejectsMismatchedWaID(t *testing.T) {
	f := newFixture(t)
	ticket := f.ticket(t, "5511999990001", t0.Add(24*time.Hour), "")
	ctx := context.Background()

	_, err := f.svc.SendToContact(ctx, f.admin, ticket.ContactID, "5511999990002", "oi")
	assert.True(t, errdefs.IsInvalidArgument(err))

	_, err = f.svc.SendToContact(ctx, f.admin, "missing", "5511999990001", "oi")
	assert.True(t, errdefs.IsNotFound(err))

	res, err := f.svc.SendToContact(ctx, f.admin, ticket.ContactID, "5511999990001", "oi")
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, res.TicketID)
}

func TestSendTemplateByPhoneIgnoresWindow(t *testing.T) {
	f := newFixture(t)
	f.ticket(t, "5511999990001", t0, "")

	res, err := f.svc.SendTemplateByPhone(context.Background(), f.admin, "5511999990001", outbound.TemplateRequest{
		Name:         "order_update",
		LanguageCode: "pt_BR",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "[TEMPLATE:order_update]", *res.Message.Text)
	assert.Equal(t, "template", f.provider.Calls()[0].Kind)
}

// Package memstore is an in-process implementation of the inbox repositories.
// It enforces the same uniqueness rules as the Postgres schema and backs tests
// and the "memory" storage driver.
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/containerd/errdefs"
	"github.com/google/uuid"

	"github.com/memohai/inboxd/internal/accounts"
	"github.com/memohai/inboxd/internal/contacts"
	"github.com/memohai/inboxd/internal/message"
	"github.com/memohai/inboxd/internal/tickets"
)

var (
	_ accounts.Store = (*Store)(nil)
	_ contacts.Store = (*Store)(nil)
	_ tickets.Store  = (*Store)(nil)
	_ message.Store  = (*Store)(nil)
)

// Store keeps every record in maps guarded by one mutex.
type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	accounts       map[string]accounts.Account
	contacts       map[string]contacts.Contact
	contactsByWaID map[string]string
	tickets        map[string]tickets.Ticket
	messages       map[string]message.Message
	messageByWamID map[string]string
	ticketMessages map[string][]string
	usernameToID   map[string]string
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for created/updated timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		now:            time.Now,
		accounts:       map[string]accounts.Account{},
		contacts:       map[string]contacts.Contact{},
		contactsByWaID: map[string]string{},
		tickets:        map[string]tickets.Ticket{},
		messages:       map[string]message.Message{},
		messageByWamID: map[string]string{},
		ticketMessages: map[string][]string{},
		usernameToID:   map[string]string{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", errdefs.ErrNotFound, kind, id)
}

// Accounts

func (s *Store) GetAccount(_ context.Context, id string) (accounts.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return accounts.Account{}, notFound("account", id)
	}
	return a, nil
}

func (s *Store) GetAccountByUsername(_ context.Context, username string) (accounts.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usernameToID[strings.ToLower(username)]
	if !ok {
		return accounts.Account{}, notFound("account", username)
	}
	return s.accounts[id], nil
}

func (s *Store) CreateAccount(_ context.Context, params accounts.CreateParams) (accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(params.Username)
	if _, ok := s.usernameToID[key]; ok {
		return accounts.Account{}, fmt.Errorf("%w: username %s", errdefs.ErrAlreadyExists, params.Username)
	}
	now := s.now()
	a := accounts.Account{
		ID:           uuid.NewString(),
		Username:     params.Username,
		DisplayName:  params.DisplayName,
		Role:         params.Role,
		IsActive:     params.IsActive,
		PasswordHash: params.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.accounts[a.ID] = a
	s.usernameToID[key] = a.ID
	return a, nil
}

func (s *Store) CountAccounts(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts), nil
}

func (s *Store) TouchAccountLogin(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return notFound("account", id)
	}
	a.LastLoginAt = &at
	s.accounts[id] = a
	return nil
}

// Contacts

func (s *Store) GetContact(_ context.Context, id string) (contacts.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contacts[id]
	if !ok {
		return contacts.Contact{}, notFound("contact", id)
	}
	return c, nil
}

func (s *Store) UpsertContact(_ context.Context, waID string, name *string) (contacts.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	phone := waID
	if id, ok := s.contactsByWaID[waID]; ok {
		c := s.contacts[id]
		if name != nil {
			c.Name = copyString(name)
		}
		c.Phone = &phone
		c.UpdatedAt = now
		s.contacts[id] = c
		return c, nil
	}
	c := contacts.Contact{
		ID:        uuid.NewString(),
		WaID:      waID,
		Name:      copyString(name),
		Phone:     &phone,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.contacts[c.ID] = c
	s.contactsByWaID[waID] = c.ID
	return c, nil
}

func (s *Store) UpdateContactName(_ context.Context, id string, name *string) (contacts.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[id]
	if !ok {
		return contacts.Contact{}, notFound("contact", id)
	}
	c.Name = copyString(name)
	c.UpdatedAt = s.now()
	s.contacts[id] = c
	return c, nil
}

// Tickets

func (s *Store) GetTicket(_ context.Context, id string) (tickets.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	if !ok {
		return tickets.Ticket{}, notFound("ticket", id)
	}
	return t, nil
}

func (s *Store) GetTicketView(_ context.Context, id string) (tickets.View, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	if !ok {
		return tickets.View{}, notFound("ticket", id)
	}
	return s.viewLocked(t, false), nil
}

func (s *Store) ListTickets(_ context.Context, filter tickets.Filter) ([]tickets.View, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := s.matchLocked(filter)
	slices.SortFunc(matched, compareQueueOrder)
	if filter.Skip >= len(matched) {
		return []tickets.View{}, nil
	}
	matched = matched[filter.Skip:]
	if filter.Take > 0 && filter.Take < len(matched) {
		matched = matched[:filter.Take]
	}
	out := make([]tickets.View, 0, len(matched))
	for _, t := range matched {
		out = append(out, s.viewLocked(t, true))
	}
	return out, nil
}

func (s *Store) CountTickets(_ context.Context, filter tickets.Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matchLocked(filter)), nil
}

func (s *Store) FindOrCreateActiveTicket(_ context.Context, contactID string, at, windowUntil time.Time) (tickets.Ticket, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contacts[contactID]; !ok {
		return tickets.Ticket{}, false, notFound("contact", contactID)
	}
	if t, ok := s.activeTicketLocked(contactID); ok {
		return t, false, nil
	}
	now := s.now()
	t := tickets.Ticket{
		ID:            uuid.NewString(),
		ContactID:     contactID,
		Status:        tickets.StatusOpen,
		Channel:       tickets.ChannelWhatsApp,
		LastMessageAt: &at,
		WaWindowUntil: &windowUntil,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.tickets[t.ID] = t
	return t, true, nil
}

func (s *Store) TouchTicket(_ context.Context, params tickets.TouchParams) (tickets.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[params.TicketID]
	if !ok {
		return tickets.Ticket{}, notFound("ticket", params.TicketID)
	}
	if params.Reopen && !t.Status.Active() {
		if other, ok := s.activeTicketLocked(t.ContactID); ok && other.ID != t.ID {
			return tickets.Ticket{}, fmt.Errorf("%w: contact already has an active ticket", errdefs.ErrConflict)
		}
	}
	t.LastMessageAt = laterOf(t.LastMessageAt, params.At)
	t.WaWindowUntil = laterOf(t.WaWindowUntil, params.WindowUntil)
	if params.Reopen {
		t.Status = tickets.StatusOpen
	}
	t.UpdatedAt = s.now()
	s.tickets[t.ID] = t
	return t, nil
}

func (s *Store) AssignTicket(_ context.Context, id, assigneeID string, owner tickets.Owner) (tickets.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return tickets.Ticket{}, notFound("ticket", id)
	}
	if !owner.Matches(t) {
		return tickets.Ticket{}, tickets.ErrOwnershipChanged
	}
	if _, ok := s.accounts[assigneeID]; !ok {
		return tickets.Ticket{}, notFound("account", assigneeID)
	}
	if !t.Status.Active() {
		if other, ok := s.activeTicketLocked(t.ContactID); ok && other.ID != t.ID {
			return tickets.Ticket{}, fmt.Errorf("%w: contact already has an active ticket", errdefs.ErrConflict)
		}
	}
	assignee := assigneeID
	t.AssignedToID = &assignee
	t.Status = tickets.StatusOpen
	t.UpdatedAt = s.now()
	s.tickets[id] = t
	return t, nil
}

func (s *Store) CloseTicket(_ context.Context, id string, owner tickets.Owner) (tickets.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return tickets.Ticket{}, notFound("ticket", id)
	}
	if !owner.Matches(t) {
		return tickets.Ticket{}, tickets.ErrOwnershipChanged
	}
	t.Status = tickets.StatusClosed
	t.UpdatedAt = s.now()
	s.tickets[id] = t
	return t, nil
}

// Messages

func (s *Store) CreateMessage(_ context.Context, input message.CreateInput) (message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[input.TicketID]; !ok {
		return message.Message{}, notFound("ticket", input.TicketID)
	}
	if input.ProviderMessageID != nil {
		if _, ok := s.messageByWamID[*input.ProviderMessageID]; ok {
			return message.Message{}, fmt.Errorf("%w: provider message %s", errdefs.ErrAlreadyExists, *input.ProviderMessageID)
		}
	}
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	m := message.Message{
		ID:                uuid.NewString(),
		TicketID:          input.TicketID,
		Direction:         input.Direction,
		Type:              input.Type,
		Text:              copyString(input.Text),
		MediaURL:          copyString(input.MediaURL),
		MimeType:          copyString(input.MimeType),
		SizeBytes:         copyInt(input.SizeBytes),
		DurationMs:        copyInt(input.DurationMs),
		ProviderMessageID: copyString(input.ProviderMessageID),
		Status:            input.Status,
		CreatedAt:         createdAt,
	}
	s.messages[m.ID] = m
	if m.ProviderMessageID != nil {
		s.messageByWamID[*m.ProviderMessageID] = m.ID
	}
	s.ticketMessages[m.TicketID] = append(s.ticketMessages[m.TicketID], m.ID)
	return m, nil
}

func (s *Store) GetMessageByProviderID(_ context.Context, providerMessageID string) (message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.messageByWamID[providerMessageID]
	if !ok {
		return message.Message{}, notFound("message", providerMessageID)
	}
	return s.messages[id], nil
}

func (s *Store) ListMessagesByTicket(_ context.Context, ticketID string) ([]message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.ticketMessages[ticketID]
	out := make([]message.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.messages[id])
	}
	slices.SortStableFunc(out, func(a, b message.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (s *Store) UpdateMessageStatus(_ context.Context, messageID string, status message.Status, from []message.Status) (message.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok {
		return message.Message{}, false, notFound("message", messageID)
	}
	if !slices.Contains(from, m.Status) {
		return m, false, nil
	}
	m.Status = status
	s.messages[messageID] = m
	return m, true, nil
}

// Counts reports the number of stored contacts, tickets and messages.
func (s *Store) Counts() (contactCount, ticketCount, messageCount int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contacts), len(s.tickets), len(s.messages)
}

func (s *Store) activeTicketLocked(contactID string) (tickets.Ticket, bool) {
	var (
		found tickets.Ticket
		ok    bool
	)
	for _, t := range s.tickets {
		if t.ContactID != contactID || !t.Status.Active() {
			continue
		}
		if !ok || t.CreatedAt.After(found.CreatedAt) {
			found, ok = t, true
		}
	}
	return found, ok
}

func (s *Store) matchLocked(filter tickets.Filter) []tickets.Ticket {
	out := make([]tickets.Ticket, 0)
	for _, t := range s.tickets {
		if filter.Matches(t) {
			out = append(out, t)
		}
	}
	return out
}

func (s *Store) viewLocked(t tickets.Ticket, withLast bool) tickets.View {
	v := tickets.View{Ticket: t, Contact: s.contacts[t.ContactID]}
	if t.AssignedToID != nil {
		if a, ok := s.accounts[*t.AssignedToID]; ok {
			name := a.DisplayName
			if name == "" {
				name = a.Username
			}
			v.AssignedTo = &tickets.Assignee{ID: a.ID, Name: name, Role: a.Role}
		}
	}
	if withLast {
		var last *message.Message
		for _, id := range s.ticketMessages[t.ID] {
			m := s.messages[id]
			if last == nil || !m.CreatedAt.Before(last.CreatedAt) {
				last = &m
			}
		}
		v.LastMessage = last
	}
	return v
}

// compareQueueOrder sorts by lastMessageAt desc (nulls last), then updatedAt desc.
func compareQueueOrder(a, b tickets.Ticket) int {
	switch {
	case a.LastMessageAt == nil && b.LastMessageAt != nil:
		return 1
	case a.LastMessageAt != nil && b.LastMessageAt == nil:
		return -1
	case a.LastMessageAt != nil && b.LastMessageAt != nil:
		if c := b.LastMessageAt.Compare(*a.LastMessageAt); c != 0 {
			return c
		}
	}
	if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func laterOf(current *time.Time, next time.Time) *time.Time {
	if current != nil && current.After(next) {
		t := *current
		return &t
	}
	return &next
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

func copyInt(v *int64) *int64 {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

package tickets

import (
	"context"
	"time"

	"github.com/memohai/inboxd/internal/contacts"
	"github.com/memohai/inboxd/internal/identity"
	"github.com/memohai/inboxd/internal/message"
)

// Status is the lifecycle state of a ticket.
type Status string

const (
	StatusOpen    Status = "OPEN"
	StatusPending Status = "PENDING"
	StatusClosed  Status = "CLOSED"
)

// Active reports whether the status counts toward the single active ticket of a contact.
func (s Status) Active() bool {
	return s == StatusOpen || s == StatusPending
}

// ChannelWhatsApp is the only channel tag written today.
const ChannelWhatsApp = "whatsapp"

// Ticket is one conversation session with a contact.
type Ticket struct {
	ID            string     `json:"id"`
	ContactID     string     `json:"contactId"`
	Status        Status     `json:"status"`
	AssignedToID  *string    `json:"assignedToId"`
	Channel       string     `json:"channel"`
	LastMessageAt *time.Time `json:"lastMessageAt"`
	WaWindowUntil *time.Time `json:"waWindowUntil"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// AssignedTo reports whether the ticket is owned by actorID.
func (t Ticket) AssignedTo(actorID string) bool {
	return t.AssignedToID != nil && *t.AssignedToID == actorID
}

// Unassigned reports whether the ticket waits in the shared queue.
func (t Ticket) Unassigned() bool {
	return t.AssignedToID == nil || *t.AssignedToID == ""
}

// WindowOpen reports whether free-form text may still be sent at now.
func (t Ticket) WindowOpen(now time.Time) bool {
	return t.WaWindowUntil != nil && t.WaWindowUntil.After(now)
}

// Assignee is the public summary of the account owning a ticket.
type Assignee struct {
	ID   string        `json:"id"`
	Name string        `json:"name"`
	Role identity.Role `json:"role"`
}

// View is a ticket with the records the inbox renders next to it.
type View struct {
	Ticket
	Contact     contacts.Contact `json:"contact"`
	AssignedTo  *Assignee        `json:"assignedTo"`
	LastMessage *message.Message `json:"lastMessage,omitempty"`
}

// TouchParams records conversation activity on a ticket.
type TouchParams struct {
	TicketID    string
	At          time.Time
	WindowUntil time.Time
	// Reopen forces the status to OPEN.
	Reopen bool
}

// Store persists tickets. Lookups return errdefs.ErrNotFound when absent.
type Store interface {
	GetTicket(ctx context.Context, id string) (Ticket, error)
	GetTicketView(ctx context.Context, id string) (View, error)
	ListTickets(ctx context.Context, filter Filter) ([]View, error)
	CountTickets(ctx context.Context, filter Filter) (int, error)
	// FindOrCreateActiveTicket returns the contact's OPEN/PENDING ticket or atomically creates
	// an OPEN one with lastMessageAt=at and waWindowUntil=windowUntil.
	FindOrCreateActiveTicket(ctx context.Context, contactID string, at, windowUntil time.Time) (Ticket, bool, error)
	// TouchTicket moves lastMessageAt and waWindowUntil forward, never backward.
	TouchTicket(ctx context.Context, params TouchParams) (Ticket, error)
	// AssignTicket and CloseTicket apply only while the ticket still satisfies owner,
	// and return ErrOwnershipChanged otherwise.
	AssignTicket(ctx context.Context, id, assigneeID string, owner Owner) (Ticket, error)
	CloseTicket(ctx context.Context, id string, owner Owner) (Ticket, error)
}

// Owner is the ownership a write was authorized against. The zero value places no condition.
type Owner struct {
	ActorID string
	// AllowUnassigned also accepts a ticket with no assignee.
	AllowUnassigned bool
}

// Matches reports whether t is still owned as expected.
func (o Owner) Matches(t Ticket) bool {
	if o.ActorID == "" || t.AssignedTo(o.ActorID) {
		return true
	}
	return o.AllowUnassigned && t.Unassigned()
}

// ListResult is one page of a queue.
type ListResult struct {
	Items []View   `json:"items"`
	Total int      `json:"total"`
	Meta  ListMeta `json:"meta"`
}

// ListMeta echoes the normalized list parameters.
type ListMeta struct {
	Queue Queue `json:"queue"`
	Take  int   `json:"take"`
	Skip  int   `json:"skip"`
}

// Package tickets owns the ticket lifecycle, queue views and per-role access rules.
package tickets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/containerd/errdefs"
	"golang.org/x/sync/errgroup"

	"github.com/memohai/inboxd/internal/identity"
	"github.com/memohai/inboxd/internal/message"
)

// Paging defaults for queue listings.
const (
	DefaultTake = 30
	MaxTake     = 100
)

// Service applies ticket transitions after checking the acting role.
type Service struct {
	store    Store
	messages message.Store
	maxTake  int
	logger   *slog.Logger
}

// NewService creates a ticket service. maxTake <= 0 uses MaxTake.
func NewService(log *slog.Logger, store Store, messages message.Store, maxTake int) *Service {
	if log == nil {
		log = slog.Default()
	}
	if maxTake <= 0 || maxTake > MaxTake {
		maxTake = MaxTake
	}
	return &Service{
		store:    store,
		messages: messages,
		maxTake:  maxTake,
		logger:   log.With(slog.String("service", "tickets")),
	}
}

// ListParams selects one page of a queue.
type ListParams struct {
	Queue Queue
	Take  int
	Skip  int
}

// List returns one page of the actor's queue together with its total size.
func (s *Service) List(ctx context.Context, actor identity.Actor, params ListParams) (ListResult, error) {
	if err := actor.Validate(); err != nil {
		return ListResult{}, err
	}
	take := params.Take
	if take <= 0 {
		take = DefaultTake
	}
	if take > s.maxTake {
		take = s.maxTake
	}
	skip := max(params.Skip, 0)
	queue := ParseQueue(string(params.Queue))

	filter := FilterFor(queue, actor)
	filter.Take = take
	filter.Skip = skip

	var (
		total int
		items []View
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.store.CountTickets(gctx, filter)
		if err != nil {
			return fmt.Errorf("count tickets: %w", err)
		}
		total = n
		return nil
	})
	g.Go(func() error {
		rows, err := s.store.ListTickets(gctx, filter)
		if err != nil {
			return fmt.Errorf("list tickets: %w", err)
		}
		items = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return ListResult{}, err
	}
	if items == nil {
		items = []View{}
	}
	return ListResult{
		Items: items,
		Total: total,
		Meta:  ListMeta{Queue: queue, Take: take, Skip: skip},
	}, nil
}

// Get returns a ticket with its contact and assignee.
func (s *Service) Get(ctx context.Context, ticketID string) (View, error) {
	if strings.TrimSpace(ticketID) == "" {
		return View{}, fmt.Errorf("%w: ticket id is required", errdefs.ErrInvalidArgument)
	}
	return s.store.GetTicketView(ctx, ticketID)
}

// Assign gives the ticket to targetID, or to the actor when targetID is empty, and reopens it.
func (s *Service) Assign(ctx context.Context, actor identity.Actor, ticketID, targetID string) (View, error) {
	if err := actor.Validate(); err != nil {
		return View{}, err
	}
	ticket, err := s.Get(ctx, ticketID)
	if err != nil {
		return View{}, err
	}
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		targetID = actor.ID
	}
	if err := CanAssign(actor, ticket.Ticket, targetID); err != nil {
		return View{}, err
	}
	if _, err := s.store.AssignTicket(ctx, ticket.ID, targetID, AssignOwner(actor)); err != nil {
		return View{}, err
	}
	s.logger.Info("ticket assigned",
		slog.String("ticket_id", ticket.ID),
		slog.String("actor_id", actor.ID),
		slog.String("assignee_id", targetID),
	)
	return s.store.GetTicketView(ctx, ticket.ID)
}

// Close marks the ticket CLOSED. Closing a closed ticket is a no-op.
func (s *Service) Close(ctx context.Context, actor identity.Actor, ticketID string) (View, error) {
	if err := actor.Validate(); err != nil {
		return View{}, err
	}
	ticket, err := s.Get(ctx, ticketID)
	if err != nil {
		return View{}, err
	}
	if err := CanClose(actor, ticket.Ticket); err != nil {
		return View{}, err
	}
	if ticket.Status == StatusClosed {
		return ticket, nil
	}
	if _, err := s.store.CloseTicket(ctx, ticket.ID, CloseOwner(actor)); err != nil {
		return View{}, err
	}
	s.logger.Info("ticket closed", slog.String("ticket_id", ticket.ID), slog.String("actor_id", actor.ID))
	return s.store.GetTicketView(ctx, ticket.ID)
}

// Messages returns the ticket's conversation, oldest first.
func (s *Service) Messages(ctx context.Context, actor identity.Actor, ticketID string) ([]message.Message, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	ticket, err := s.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := CanAccess(actor, ticket.Ticket); err != nil {
		return nil, err
	}
	items, err := s.messages.ListMessagesByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []message.Message{}
	}
	return items, nil
}

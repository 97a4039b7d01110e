// Package message holds the message model, the store contract and provider status handling.
package message

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/containerd/errdefs"
)

// Service reads messages and applies provider status callbacks.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a message service.
func NewService(log *slog.Logger, store Store) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:  store,
		logger: log.With(slog.String("service", "message")),
	}
}

// ListByTicket returns a ticket's messages ordered oldest first.
func (s *Service) ListByTicket(ctx context.Context, ticketID string) ([]Message, error) {
	if strings.TrimSpace(ticketID) == "" {
		return nil, fmt.Errorf("%w: ticket id is required", errdefs.ErrInvalidArgument)
	}
	return s.store.ListMessagesByTicket(ctx, ticketID)
}

// ApplyStatus moves the message identified by providerMessageID to status.
// It returns applied=false without error when the message is unknown or the transition is not forward.
func (s *Service) ApplyStatus(ctx context.Context, providerMessageID string, status Status) (Message, bool, error) {
	providerMessageID = strings.TrimSpace(providerMessageID)
	if providerMessageID == "" {
		return Message{}, false, fmt.Errorf("%w: provider message id is required", errdefs.ErrInvalidArgument)
	}
	current, err := s.store.GetMessageByProviderID(ctx, providerMessageID)
	if err != nil {
		if errors.Is(err, errdefs.ErrNotFound) {
			s.logger.Debug("status for unknown message", slog.String("wa_message_id", providerMessageID))
			return Message{}, false, nil
		}
		return Message{}, false, err
	}
	if current.Status == status || !CanTransition(current.Status, status) {
		return current, false, nil
	}
	// The store re-checks the transition so concurrent callbacks never move a status back.
	updated, applied, err := s.store.UpdateMessageStatus(ctx, current.ID, status, Predecessors(status))
	if err != nil {
		return Message{}, false, fmt.Errorf("update message status: %w", err)
	}
	return updated, applied, nil
}

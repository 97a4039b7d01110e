// Package contacts manages the external parties tickets are opened for.
package contacts

import (
	"context"
	"fmt"
	"strings"

	"github.com/containerd/errdefs"
)

// MinWaIDLength is the shortest accepted WhatsApp id.
const MinWaIDLength = 8

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) Get(ctx context.Context, id string) (Contact, error) {
	if strings.TrimSpace(id) == "" {
		return Contact{}, fmt.Errorf("%w: contact id is required", errdefs.ErrInvalidArgument)
	}
	return s.store.GetContact(ctx, id)
}

// Upsert resolves the contact for waID. A blank name never overwrites a stored one.
func (s *Service) Upsert(ctx context.Context, waID, name string) (Contact, error) {
	waID = strings.TrimSpace(waID)
	if waID == "" {
		return Contact{}, fmt.Errorf("%w: wa id is required", errdefs.ErrInvalidArgument)
	}
	return s.store.UpsertContact(ctx, waID, normalizeName(name))
}

// Rename sets the display name; an empty name clears it.
func (s *Service) Rename(ctx context.Context, id, name string) (Contact, error) {
	if strings.TrimSpace(id) == "" {
		return Contact{}, fmt.Errorf("%w: contact id is required", errdefs.ErrInvalidArgument)
	}
	return s.store.UpdateContactName(ctx, id, normalizeName(name))
}

// ValidateWaID checks the minimum shape of a recipient id.
func ValidateWaID(waID string) error {
	if len(strings.TrimSpace(waID)) < MinWaIDLength {
		return fmt.Errorf("%w: toWaId must have at least %d characters", errdefs.ErrInvalidArgument, MinWaIDLength)
	}
	return nil
}

func normalizeName(name string) *string {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	return &name
}

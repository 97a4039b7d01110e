package contacts

import (
	"context"
	"time"
)

// Contact is an external conversation partner identified by its WhatsApp id.
type Contact struct {
	ID        string    `json:"id"`
	WaID      string    `json:"waId"`
	Name      *string   `json:"name"`
	Phone     *string   `json:"phone"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists contacts. Lookups return errdefs.ErrNotFound when absent.
type Store interface {
	GetContact(ctx context.Context, id string) (Contact, error)
	// UpsertContact creates the contact for waID, or updates its name when name is non-nil.
	UpsertContact(ctx context.Context, waID string, name *string) (Contact, error)
	// UpdateContactName sets the name; nil clears it.
	UpdateContactName(ctx context.Context, id string, name *string) (Contact, error)
}

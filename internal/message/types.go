package message

import (
	"context"
	"time"
)

// Direction tells whether a message came from the contact or was sent by an agent.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// Type is the normalized content type of a message.
type Type string

const (
	TypeText     Type = "TEXT"
	TypeImage    Type = "IMAGE"
	TypeAudio    Type = "AUDIO"
	TypeDocument Type = "DOCUMENT"
	TypeVideo    Type = "VIDEO"
	TypeSticker  Type = "STICKER"
	TypeUnknown  Type = "UNKNOWN"
)

// Status is the delivery state of a message.
type Status string

const (
	StatusReceived  Status = "RECEIVED"
	StatusSent      Status = "SENT"
	StatusFailed    Status = "FAILED"
	StatusDelivered Status = "DELIVERED"
	StatusRead      Status = "READ"
)

// Message is one persisted turn of a ticket conversation.
type Message struct {
	ID                string    `json:"id"`
	TicketID          string    `json:"ticketId"`
	Direction         Direction `json:"direction"`
	Type              Type      `json:"type"`
	Text              *string   `json:"text"`
	MediaURL          *string   `json:"mediaUrl"`
	MimeType          *string   `json:"mimeType"`
	SizeBytes         *int64    `json:"sizeBytes"`
	DurationMs        *int64    `json:"durationMs"`
	ProviderMessageID *string   `json:"waMessageId"`
	Status            Status    `json:"status"`
	CreatedAt         time.Time `json:"createdAt"`
}

// CreateInput is the data needed to persist a message.
type CreateInput struct {
	TicketID          string
	Direction         Direction
	Type              Type
	Text              *string
	MediaURL          *string
	MimeType          *string
	SizeBytes         *int64
	DurationMs        *int64
	ProviderMessageID *string
	Status            Status
	CreatedAt         time.Time
}

// Store persists messages. CreateMessage returns errdefs.ErrAlreadyExists when the
// provider message id was already recorded.
type Store interface {
	CreateMessage(ctx context.Context, input CreateInput) (Message, error)
	GetMessageByProviderID(ctx context.Context, providerMessageID string) (Message, error)
	ListMessagesByTicket(ctx context.Context, ticketID string) ([]Message, error)
	// UpdateMessageStatus sets status only while the stored status is one of from,
	// reporting applied=false and the stored message otherwise.
	UpdateMessageStatus(ctx context.Context, messageID string, status Status, from []Status) (Message, bool, error)
}

// ParseStatus maps a provider status name to a Status.
func ParseStatus(raw string) (Status, bool) {
	switch raw {
	case "sent", "SENT":
		return StatusSent, true
	case "delivered", "DELIVERED":
		return StatusDelivered, true
	case "read", "READ":
		return StatusRead, true
	case "failed", "FAILED":
		return StatusFailed, true
	default:
		return "", false
	}
}

// CanTransition reports whether a provider callback may move a message from one status to another.
// Statuses only move forward: SENT -> DELIVERED -> READ, and SENT or DELIVERED -> FAILED.
// Received messages are never changed.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusSent:
		return to == StatusDelivered || to == StatusRead || to == StatusFailed
	case StatusDelivered:
		return to == StatusRead || to == StatusFailed
	default:
		return false
	}
}

// Predecessors lists the statuses CanTransition allows to move to to.
func Predecessors(to Status) []Status {
	out := make([]Status, 0, 2)
	for _, from := range []Status{StatusSent, StatusDelivered} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// Ptr returns a pointer to s, or nil when s is empty.
func Ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

package ingest

import (
	"time"

	"github.com/memohai/inboxd/internal/message"
)

// Envelope is what every inbound variant carries.
type Envelope struct {
	FromWaID          string
	ProviderMessageID string
	ContactName       string
	OccurredAt        time.Time
}

// Inbound is the closed set of inbound events: Text, Media or Unknown.
type Inbound interface {
	envelope() Envelope
}

// Text is an inbound free-form text message.
type Text struct {
	Envelope
	Body string
}

// Media is an inbound image, audio, document, video or sticker.
type Media struct {
	Envelope
	Kind     message.Type
	MediaID  string
	MimeType string
	Caption  string
}

// Unknown is an inbound message of a type the inbox does not render.
type Unknown struct {
	Envelope
	RawType string
}

func (e Text) envelope() Envelope    { return e.Envelope }
func (e Media) envelope() Envelope   { return e.Envelope }
func (e Unknown) envelope() Envelope { return e.Envelope }

// EnvelopeOf returns the common fields of an inbound event.
func EnvelopeOf(in Inbound) Envelope {
	return in.envelope()
}

// StatusEvent is a delivery callback for an outbound message.
type StatusEvent struct {
	ProviderMessageID string
	Status            message.Status
	RecipientWaID     string
	OccurredAt        time.Time
}

// Batch is everything decoded from one webhook delivery.
type Batch struct {
	Messages []Inbound
	Statuses []StatusEvent
}

// Empty reports whether the batch carries nothing to process.
func (b Batch) Empty() bool {
	return len(b.Messages) == 0 && len(b.Statuses) == 0
}

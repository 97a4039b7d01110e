// Package event provides the in-process bus that fans ticket activity out to live streams.
package event

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const (
	// DefaultBufferSize is the default per-subscriber channel buffer.
	DefaultBufferSize = 64
)

// Type names an event published on the bus.
type Type string

const (
	// TypeMessageCreated is emitted after an agent-visible message is persisted.
	TypeMessageCreated Type = "message.created"
)

// Sources reported in message.created payloads.
const (
	SourceInboxSend    = "inbox.send"
	SourceWhatsAppSend = "whatsapp.send"
	SourceWebhook      = "webhook"
)

// Event is one published frame; Data is the already serialized payload.
type Event struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MessageCreatedPayload is the body of a message.created event.
type MessageCreatedPayload struct {
	Source  string `json:"source"`
	Ticket  any    `json:"ticket"`
	Message any    `json:"message"`
}

// NewMessageCreated serializes a message.created event.
func NewMessageCreated(source string, ticket, message any) (Event, error) {
	data, err := json.Marshal(MessageCreatedPayload{Source: source, Ticket: ticket, Message: message})
	if err != nil {
		return Event{}, fmt.Errorf("encode message.created: %w", err)
	}
	return Event{Type: TypeMessageCreated, Data: data}, nil
}

// Publisher publishes events to subscribers.
type Publisher interface {
	Publish(event Event)
}

// Subscriber registers listeners for one event type.
type Subscriber interface {
	Subscribe(eventType Type, buffer int) (string, <-chan Event, func())
}

// Hub is an in-process pub/sub dispatcher keyed by event type.
// Publish never blocks: a subscriber whose buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	streams map[Type]map[string]chan Event
	closed  bool
	onDrop  func(Type)
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithDropHook registers fn to be called whenever an event is dropped for a slow subscriber.
func WithDropHook(fn func(Type)) HubOption {
	return func(h *Hub) {
		h.onDrop = fn
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		streams: map[Type]map[string]chan Event{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish broadcasts one event to every subscriber of its type registered at call time.
func (h *Hub) Publish(event Event) {
	if h == nil {
		return
	}
	eventType := Type(strings.TrimSpace(string(event.Type)))
	if eventType == "" {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for _, ch := range h.streams[eventType] {
		select {
		case ch <- event:
		default:
			if h.onDrop != nil {
				h.onDrop(eventType)
			}
		}
	}
}

// Subscribe registers one listener for eventType.
// It returns a stream ID, a read-only event channel and a cancel function that
// deregisters the listener and closes the channel. Cancel is safe to call more than once.
func (h *Hub) Subscribe(eventType Type, buffer int) (string, <-chan Event, func()) {
	if h == nil {
		return closedStream()
	}
	eventType = Type(strings.TrimSpace(string(eventType)))
	if eventType == "" {
		return closedStream()
	}
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}

	streamID := uuid.NewString()
	ch := make(chan Event, buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return closedStream()
	}
	streams, ok := h.streams[eventType]
	if !ok {
		streams = map[string]chan Event{}
		h.streams[eventType] = streams
	}
	streams[streamID] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			streams := h.streams[eventType]
			if streams == nil {
				return
			}
			if current, ok := streams[streamID]; ok {
				delete(streams, streamID)
				close(current)
			}
			if len(streams) == 0 {
				delete(h.streams, eventType)
			}
		})
	}

	return streamID, ch, cancel
}

// Count returns the number of listeners registered for eventType.
func (h *Hub) Count(eventType Type) int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams[eventType])
}

// Close closes every subscriber channel and rejects further subscriptions.
func (h *Hub) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for eventType, streams := range h.streams {
		for id, ch := range streams {
			close(ch)
			delete(streams, id)
		}
		delete(h.streams, eventType)
	}
}

func closedStream() (string, <-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return "", ch, func() {}
}

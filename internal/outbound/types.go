package outbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/memohai/inboxd/internal/contacts"
	"github.com/memohai/inboxd/internal/message"
	"github.com/memohai/inboxd/internal/tickets"
	"github.com/memohai/inboxd/internal/whatsapp"
)

// MaxTextLength is the longest free-form text the provider accepts.
const MaxTextLength = 4096

// Template defaults used by the by-phone API.
const (
	DefaultTemplateName     = "hello_world"
	DefaultTemplateLanguage = "en_US"
)

// Provider sends messages to the external channel.
type Provider interface {
	SendText(ctx context.Context, to, body string) (whatsapp.SendResult, error)
	SendTemplate(ctx context.Context, to string, tmpl whatsapp.Template) (whatsapp.SendResult, error)
	SendAudio(ctx context.Context, to, link string) (whatsapp.SendResult, error)
}

// TemplateRequest names a template invocation.
type TemplateRequest struct {
	Name         string            `json:"templateName"`
	LanguageCode string            `json:"languageCode"`
	Components   []json.RawMessage `json:"components,omitempty"`
}

// VoiceRequest references an already uploaded voice attachment.
type VoiceRequest struct {
	MediaURL   string `json:"mediaUrl"`
	MimeType   string `json:"mimeType"`
	SizeBytes  *int64 `json:"sizeBytes,omitempty"`
	DurationMs *int64 `json:"durationMs,omitempty"`
}

// Result is the outcome of a ticket-scoped send.
type Result struct {
	Ticket  tickets.View    `json:"ticket"`
	Message message.Message `json:"message"`
}

// DirectResult is the outcome of a send addressed by WhatsApp id.
type DirectResult struct {
	Contact           contacts.Contact `json:"-"`
	Ticket            tickets.View     `json:"-"`
	ContactID         string           `json:"contactId"`
	TicketID          string           `json:"ticketId"`
	ProviderMessageID string           `json:"messageId"`
	Message           message.Message  `json:"message"`
	Raw               json.RawMessage  `json:"raw,omitempty"`
}

// ProviderFailure is a send the provider rejected or that never reached it.
// Status is the HTTP status to surface: provider auth failures (401/403) and
// transport errors become 502 so they never read as a local auth failure.
type ProviderFailure struct {
	Status  int
	Message string
	Details json.RawMessage
	// Stored is the FAILED message persisted for the attempt.
	Stored *message.Message
	Err    error
}

func (e *ProviderFailure) Error() string {
	return fmt.Sprintf("provider send failed (%d): %s", e.Status, e.Message)
}

func (e *ProviderFailure) Unwrap() error {
	return e.Err
}

// AsProviderFailure unwraps a *ProviderFailure from err.
func AsProviderFailure(err error) (*ProviderFailure, bool) {
	var pf *ProviderFailure
	if errors.As(err, &pf) {
		return pf, true
	}
	return nil, false
}

// classifyProviderError maps a provider error to the status surfaced to callers.
func classifyProviderError(err error) *ProviderFailure {
	if apiErr, ok := whatsapp.AsAPIError(err); ok {
		status := apiErr.StatusCode
		switch status {
		case http.StatusUnauthorized, http.StatusForbidden:
			status = http.StatusBadGateway
		}
		if status < 400 {
			status = http.StatusBadGateway
		}
		return &ProviderFailure{
			Status:  status,
			Message: apiErr.Message,
			Details: apiErr.Details,
			Err:     err,
		}
	}
	return &ProviderFailure{
		Status:  http.StatusBadGateway,
		Message: err.Error(),
		Err:     err,
	}
}

package whatsapp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config holds the Cloud API endpoint and credentials.
type Config struct {
	BaseURL       string
	Version       string
	AccessToken   string
	PhoneNumberID string
	Timeout       time.Duration
	// Rate is the sustained number of Graph calls per second; Burst the bucket size.
	Rate  float64
	Burst int
}

// Template is a pre-approved message template invocation.
type Template struct {
	Name         string
	LanguageCode string
	Components   []json.RawMessage
}

// SendResult is the provider acknowledgement of an outbound message.
type SendResult struct {
	MessageID string
	Raw       json.RawMessage
}

// APIError is a non-2xx answer from the Graph API.
type APIError struct {
	StatusCode int
	Message    string
	// Details is the provider "error" object, or the whole body when absent.
	Details json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp api error (status %d): %s", e.StatusCode, e.Message)
}

type sendRequest struct {
	MessagingProduct string           `json:"messaging_product"`
	To               string           `json:"to"`
	Type             string           `json:"type"`
	Text             *textBody        `json:"text,omitempty"`
	Template         *templateBody    `json:"template,omitempty"`
	Audio            *mediaLinkObject `json:"audio,omitempty"`
}

type textBody struct {
	Body string `json:"body"`
}

type templateBody struct {
	Name       string            `json:"name"`
	Language   templateLanguage  `json:"language"`
	Components []json.RawMessage `json:"components,omitempty"`
}

type templateLanguage struct {
	Code string `json:"code"`
}

type mediaLinkObject struct {
	Link string `json:"link"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type mediaResponse struct {
	URL string `json:"url"`
}

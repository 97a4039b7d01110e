// Package whatsapp is the WhatsApp Cloud API (Graph) client and webhook verification.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"golang.org/x/time/rate"
)

// Defaults for an empty Config.
const (
	DefaultBaseURL = "https://graph.facebook.com"
	DefaultVersion = "v20.0"
	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 1 << 20
)

// ErrNotConfigured is returned by send calls when credentials are missing.
var ErrNotConfigured = fmt.Errorf("%w: whatsapp credentials are not configured", errdefs.ErrUnavailable)

// Client sends messages through the Graph API. Calls are throttled by a token bucket.
type Client struct {
	baseURL       string
	version       string
	accessToken   string
	phoneNumberID string
	limiter       *rate.Limiter
	logger        *slog.Logger
	http          *http.Client
}

// NewClient creates a Graph API client.
func NewClient(log *slog.Logger, cfg Config) *Client {
	if log == nil {
		log = slog.Default()
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	version := strings.Trim(strings.TrimSpace(cfg.Version), "/")
	if version == "" {
		version = DefaultVersion
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		baseURL:       baseURL,
		version:       version,
		accessToken:   strings.TrimSpace(cfg.AccessToken),
		phoneNumberID: strings.TrimSpace(cfg.PhoneNumberID),
		limiter:       rate.NewLimiter(limit, burst),
		logger:        log.With(slog.String("client", "whatsapp")),
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// SendText sends free-form text to a WhatsApp id.
func (c *Client) SendText(ctx context.Context, to, body string) (SendResult, error) {
	return c.send(ctx, sendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             &textBody{Body: body},
	})
}

// SendTemplate sends a template message.
func (c *Client) SendTemplate(ctx context.Context, to string, tmpl Template) (SendResult, error) {
	return c.send(ctx, sendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template: &templateBody{
			Name:       tmpl.Name,
			Language:   templateLanguage{Code: tmpl.LanguageCode},
			Components: tmpl.Components,
		},
	})
}

// SendAudio sends an audio message by public link.
func (c *Client) SendAudio(ctx context.Context, to, link string) (SendResult, error) {
	return c.send(ctx, sendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "audio",
		Audio:            &mediaLinkObject{Link: link},
	})
}

// MediaURL resolves a media id received on the webhook to its download URL.
func (c *Client) MediaURL(ctx context.Context, mediaID string) (string, error) {
	mediaID = strings.TrimSpace(mediaID)
	if mediaID == "" {
		return "", fmt.Errorf("%w: media id is required", errdefs.ErrInvalidArgument)
	}
	if c.accessToken == "" {
		return "", ErrNotConfigured
	}
	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, c.version, url.PathEscape(mediaID))
	data, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	var parsed mediaResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("decode media response: %w", err)
	}
	if parsed.URL == "" {
		return "", fmt.Errorf("%w: media %s has no url", errdefs.ErrNotFound, mediaID)
	}
	return parsed.URL, nil
}

func (c *Client) send(ctx context.Context, req sendRequest) (SendResult, error) {
	if c.accessToken == "" || c.phoneNumberID == "" {
		return SendResult{}, ErrNotConfigured
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return SendResult{}, err
	}
	endpoint := fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.version, url.PathEscape(c.phoneNumberID))
	data, err := c.do(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return SendResult{}, err
	}
	var parsed sendResponse
	if len(data) > 0 {
		if err := json.Unmarshal(data, &parsed); err != nil {
			return SendResult{}, fmt.Errorf("decode send response: %w", err)
		}
	}
	result := SendResult{Raw: json.RawMessage(data)}
	if len(parsed.Messages) > 0 {
		result.MessageID = parsed.Messages[0].ID
	}
	c.logger.Debug("message sent", slog.String("type", req.Type), slog.String("wa_message_id", result.MessageID))
	return result, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, data)
	}
	return data, nil
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Message: "WhatsApp API error"}
	if len(body) == 0 {
		return apiErr
	}
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		apiErr.Details, _ = json.Marshal(string(body))
		return apiErr
	}
	if len(envelope.Error) == 0 {
		apiErr.Details = json.RawMessage(body)
		return apiErr
	}
	apiErr.Details = envelope.Error
	var detail struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(envelope.Error, &detail); err == nil && detail.Message != "" {
		apiErr.Message = detail.Message
	}
	return apiErr
}

// AsAPIError unwraps an *APIError from err.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

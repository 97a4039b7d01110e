package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/memohai/inboxd/internal/ingest"
	"github.com/memohai/inboxd/internal/whatsapp"
)

const (
	// WebhookPath receives provider deliveries and the subscription handshake.
	WebhookPath = "/webhooks/whatsapp"

	maxWebhookBody = 2 << 20
	submitTimeout  = 5 * time.Second
)

// BatchSubmitter queues decoded deliveries for background processing.
type BatchSubmitter interface {
	Submit(ctx context.Context, batch ingest.Batch) error
}

// WebhookConfig carries the provider secrets.
type WebhookConfig struct {
	VerifyToken string
	AppSecret   string
	// SkipSignature disables HMAC checks (development only).
	SkipSignature bool
}

// WebhookHandler acknowledges provider deliveries and hands them to the ingest dispatcher.
type WebhookHandler struct {
	cfg       WebhookConfig
	submitter BatchSubmitter
	now       func() time.Time
	logger    *slog.Logger
}

// NewWebhookHandler creates the webhook handler.
func NewWebhookHandler(log *slog.Logger, cfg WebhookConfig, submitter BatchSubmitter) *WebhookHandler {
	return &WebhookHandler{
		cfg:       cfg,
		submitter: submitter,
		now:       time.Now,
		logger:    log.With(slog.String("handler", "webhook")),
	}
}

// Register mounts GET and POST /webhooks/whatsapp.
func (h *WebhookHandler) Register(e *echo.Echo) {
	e.GET(WebhookPath, h.Verify)
	e.POST(WebhookPath, h.Receive)
}

// Verify answers the subscription handshake by echoing hub.challenge.
func (h *WebhookHandler) Verify(c echo.Context) error {
	challenge, err := whatsapp.VerifyChallenge(
		c.QueryParam("hub.mode"),
		c.QueryParam("hub.verify_token"),
		c.QueryParam("hub.challenge"),
		h.cfg.VerifyToken,
	)
	if err != nil {
		h.logger.Warn("webhook verification rejected", slog.String("remote_ip", c.RealIP()))
		return echo.NewHTTPError(http.StatusForbidden, "verification failed")
	}
	return c.String(http.StatusOK, challenge)
}

// Receive checks the signature, acknowledges with 200 and queues the delivery.
// Processing failures are logged, never reported back to the provider.
func (h *WebhookHandler) Receive(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read body failed")
	}
	if len(body) > maxWebhookBody {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "payload too large")
	}
	if !h.cfg.SkipSignature {
		if err := whatsapp.VerifySignature(h.cfg.AppSecret, body, c.Request().Header.Get(whatsapp.SignatureHeader)); err != nil {
			h.logger.Warn("webhook signature rejected", slog.String("remote_ip", c.RealIP()), slog.Any("error", err))
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid signature")
		}
	}

	if err := c.NoContent(http.StatusOK); err != nil {
		return err
	}
	c.Response().Flush()

	batch, err := ingest.ParseWebhook(body, h.now())
	if err != nil {
		h.logger.Warn("webhook payload ignored", slog.Any("error", err))
		return nil
	}
	if batch.Empty() || h.submitter == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), submitTimeout)
	defer cancel()
	if err := h.submitter.Submit(ctx, batch); err != nil {
		h.logger.Error("webhook batch dropped",
			slog.Int("messages", len(batch.Messages)),
			slog.Int("statuses", len(batch.Statuses)),
			slog.Any("error", err),
		)
	}
	return nil
}

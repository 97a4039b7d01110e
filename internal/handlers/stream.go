package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/memohai/inboxd/internal/auth"
	"github.com/memohai/inboxd/internal/message/event"
	"github.com/memohai/inboxd/internal/telemetry"
)

// Stream defaults.
const (
	DefaultKeepAlive    = 15 * time.Second
	defaultStreamBuffer = event.DefaultBufferSize
)

// StreamHandler serves the live inbox feed as Server-Sent Events.
type StreamHandler struct {
	events    event.Subscriber
	jwtSecret string
	keepAlive time.Duration
	buffer    int
	metrics   *telemetry.Metrics
	logger    *slog.Logger
}

// NewStreamHandler creates the SSE handler. keepAlive and buffer <= 0 use defaults.
func NewStreamHandler(log *slog.Logger, events event.Subscriber, jwtSecret string, keepAlive time.Duration, buffer int, metrics *telemetry.Metrics) *StreamHandler {
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	if buffer <= 0 {
		buffer = defaultStreamBuffer
	}
	return &StreamHandler{
		events:    events,
		jwtSecret: jwtSecret,
		keepAlive: keepAlive,
		buffer:    buffer,
		metrics:   metrics,
		logger:    log.With(slog.String("handler", "stream")),
	}
}

// Register mounts GET /api/v1/inbox/stream. The route carries its own JWT middleware
// that also accepts ?access_token=.
func (h *StreamHandler) Register(e *echo.Echo) {
	e.GET(StreamPath, h.Stream, auth.StreamJWTMiddleware(h.jwtSecret))
}

// StreamPath is skipped by the global JWT middleware.
const StreamPath = "/api/v1/inbox/stream"

func writeSSEEvent(writer *bufio.Writer, flusher http.Flusher, name string, data []byte) error {
	if _, err := fmt.Fprintf(writer, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func writeSSEJSON(writer *bufio.Writer, flusher http.Flusher, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return writeSSEEvent(writer, flusher, name, data)
}

func writeSSEComment(writer *bufio.Writer, flusher http.Flusher, comment string) error {
	if _, err := fmt.Fprintf(writer, ": %s\n\n", comment); err != nil {
		return err
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// Stream sends a hello frame, then every message.created event and a ": ping" comment on each keep-alive tick.
// The subscription is released when the client goes away.
func (h *StreamHandler) Stream(c echo.Context) error {
	actor, err := RequireActor(c)
	if err != nil {
		return err
	}
	if h.events == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "event stream not configured")
	}

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming not supported")
	}
	header := c.Response().Header()
	header.Set(echo.HeaderContentType, "text/event-stream; charset=utf-8")
	header.Set(echo.HeaderCacheControl, "no-cache, no-transform")
	header.Set(echo.HeaderConnection, "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)
	writer := bufio.NewWriter(c.Response().Writer)

	ctx := c.Request().Context()
	streamID, stream, cancel := h.events.Subscribe(event.TypeMessageCreated, h.buffer)
	defer cancel()
	h.metrics.StreamOpened(ctx)
	defer h.metrics.StreamClosed(ctx)
	h.logger.Debug("stream opened", slog.String("stream_id", streamID), slog.String("user_id", actor.ID))
	defer h.logger.Debug("stream closed", slog.String("stream_id", streamID), slog.String("user_id", actor.ID))

	if err := writeSSEJSON(writer, flusher, "hello", map[string]any{"ok": true, "userId": actor.ID}); err != nil {
		return nil
	}

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-keepAlive.C:
			if err := writeSSEComment(writer, flusher, "ping"); err != nil {
				return nil
			}
		case ev, ok := <-stream:
			if !ok {
				return nil
			}
			if len(ev.Data) == 0 {
				continue
			}
			if err := writeSSEEvent(writer, flusher, string(ev.Type), ev.Data); err != nil {
				return nil
			}
		}
	}
}

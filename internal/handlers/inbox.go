package handlers

import (
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/memohai/inboxd/internal/media"
	"github.com/memohai/inboxd/internal/outbound"
	"github.com/memohai/inboxd/internal/tickets"
)

// InboxHandler serves the agent ticket API under /api/v1/inbox.
type InboxHandler struct {
	tickets  *tickets.Service
	outbound *outbound.Service
	media    *media.Service
	logger   *slog.Logger
}

// NewInboxHandler creates the ticket API handler. mediaService may be nil, which disables voice uploads.
func NewInboxHandler(log *slog.Logger, ticketService *tickets.Service, outboundService *outbound.Service, mediaService *media.Service) *InboxHandler {
	return &InboxHandler{
		tickets:  ticketService,
		outbound: outboundService,
		media:    mediaService,
		logger:   log.With(slog.String("handler", "inbox")),
	}
}

// Register mounts the ticket routes on the Echo instance.
func (h *InboxHandler) Register(e *echo.Echo) {
	group := e.Group("/api/v1/inbox/tickets")
	group.GET("", h.List)
	group.GET("/:id/messages", h.ListMessages)
	group.PATCH("/:id/assign", h.Assign)
	group.PATCH("/:id/close", h.Close)
	group.POST("/:id/messages", h.SendMessage)
	group.POST("/:id/template", h.SendTemplate)
	group.POST("/:id/voice", h.SendVoice)
}

// AssignRequest is the body for PATCH /tickets/:id/assign. An empty userId assigns to the caller.
type AssignRequest struct {
	UserID string `json:"userId"`
}

// SendMessageRequest is the body for POST /tickets/:id/messages.
type SendMessageRequest struct {
	Text string `json:"text"`
}

// List returns one page of a queue.
// Query: queue=meus|espera|todos (default meus), take (default 30, max 100), skip (default 0).
// @Summary List tickets
// @Tags inbox
// @Security BearerAuth
// @Param queue query string false "meus, espera or todos"
// @Param take query int false "Page size"
// @Param skip query int false "Offset"
// @Success 200 {object} tickets.ListResult
// @Failure 401 {object} ErrorResponse
// @Router /inbox/tickets [get]
func (h *InboxHandler) List(c echo.Context) error {
	actor, err := RequireActor(c)
	if err != nil {
		return err
	}
	result, err := h.tickets.List(c.Request().Context(), actor, tickets.ListParams{
		Queue: tickets.Queue(c.QueryParam("queue")),
		Take:  parseIntOr(c.QueryParam("take"), tickets.DefaultTake),
		Skip:  parseIntOr(c.QueryParam("skip"), 0),
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// ListMessages returns the ticket conversation, oldest first.
// @Summary List ticket messages
// @Tags inbox
// @Security BearerAuth
// @Param id path string true "Ticket ID"
// @Success 200 {object} map[string][]message.Message
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /inbox/tickets/{id}/messages [get]
func (h *InboxHandler) ListMessages(c echo.Context) error {
	actor, err := RequireActor(c)
	if err != nil {
		return err
	}
	ticketID, err := requireParam(c, "id", "ticket id")
	if err != nil {
		return err
	}
	items, err := h.tickets.Messages(c.Request().Context(), actor, ticketID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// Assign gives the ticket to userId, or to the caller.
// @Summary Assign ticket
// @Tags inbox
// @Security BearerAuth
// @Param id path string true "Ticket ID"
// @Param payload body AssignRequest false "Target agent; defaults to the caller"
// @Success 200 {object} map[string]tickets.View
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /inbox/tickets/{id}/assign [patch]
func (h *InboxHandler) Assign(c echo.Context) error {
	actor, err := RequireActor(c)
	if err != nil {
		return err
	}
	ticketID, err := requireParam(c, "id", "ticket id")
	if err != nil {
		return err
	}
	var req AssignRequest
	if c.Request().ContentLength != 0 {
		if err := bindJSON(c, &req); err != nil {
			return err
		}
	}
	view, err := h.tickets.Assign(c.Request().Context(), actor, ticketID, req.UserID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"ticket": view})
}

// Close marks the ticket CLOSED.
// @Summary Close ticket
// @Tags inbox
// @Security BearerAuth
// @Param id path string true "Ticket ID"
// @Success 200 {object} map[string]tickets.View
// @Failure 403 {object} ErrorResponse
// @Router /inbox/tickets/{id}/close [patch]
func (h *InboxHandler) Close(c echo.Context) error {
	actor, err := RequireActor(c)
	if err != nil {
		return err
	}
	ticketID, err := requireParam(c, "id", "ticket id")
	if err != nil {
		return err
	}
	view, err := h.tickets.Close(c.Request().Context(), actor, ticketID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"ticket": view})
}

// SendMessage sends free-form text on the ticket. Fails with 409 once the reply window closed.
// @Summary Send text on ticket
// @Tags inbox
// @Security BearerAuth
// @Param id path string true "Ticket ID"
// @Param payload body SendMessageRequest true "Message"
// @Success 201 {object} map[string]message.Message
// @Failure 409 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /inbox/tickets/{id}/messages [post]
func (h *InboxHandler) SendMessage(c echo.Context) error {
	actor, err := RequireActor(c)
	if err != nil {
		return err
	}
	ticketID, err := requireParam(c, "id", "ticket id")
	if err != nil {
		return err
	}
	var req SendMessageRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}
	res, err := h.outbound.SendText(c.Request().Context(), actor, ticketID, req.Text)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"message": res.Message})
}

// SendTemplate sends a template on the ticket; allowed outside the reply window.
// @Summary Send template on ticket
// @Tags inbox
// @Security BearerAuth
// @Param id path string true "Ticket ID"
// @Param payload body outbound.TemplateRequest false "Template"
// @Success 201 {object} map[string]message.Message
// @Failure 502 {object} ErrorResponse
// @Router /inbox/tickets/{id}/template [post]
func (h *InboxHandler) SendTemplate(c echo.Context) error {
	actor, err := RequireActor(c)
	if err != nil {
		return err
	}
	ticketID, err := requireParam(c, "id", "ticket id")
	if err != nil {
		return err
	}
	var req outbound.TemplateRequest
	if c.Request().ContentLength != 0 {
		if err := bindJSON(c, &req); err != nil {
			return err
		}
	}
	res, err := h.outbound.SendTemplate(c.Request().Context(), actor, ticketID, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"message": res.Message})
}

// SendVoice sends a voice note on the ticket. It accepts either a multipart upload
// (field "file", optional "durationMs") or JSON referencing an uploaded file.
// @Summary Send voice note on ticket
// @Tags inbox
// @Security BearerAuth
// @Accept multipart/form-data
// @Param id path string true "Ticket ID"
// @Param file formData file false "Audio file"
// @Param durationMs formData int false "Duration in milliseconds"
// @Success 201 {object} map[string]message.Message
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /inbox/tickets/{id}/voice [post]
func (h *InboxHandler) SendVoice(c echo.Context) error {
	actor, err := RequireActor(c)
	if err != nil {
		return err
	}
	ticketID, err := requireParam(c, "id", "ticket id")
	if err != nil {
		return err
	}
	var req outbound.VoiceRequest
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		// Nothing is stored for an actor who could not send it.
		if err := h.outbound.CheckReply(c.Request().Context(), actor, ticketID); err != nil {
			return httpError(err)
		}
		req, err = h.uploadVoice(c)
		if err != nil {
			return err
		}
	} else if err := bindJSON(c, &req); err != nil {
		return err
	}
	res, err := h.outbound.SendVoice(c.Request().Context(), actor, ticketID, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"message": res.Message})
}

func (h *InboxHandler) uploadVoice(c echo.Context) (outbound.VoiceRequest, error) {
	if h.media == nil {
		return outbound.VoiceRequest{}, echo.NewHTTPError(http.StatusServiceUnavailable, "voice uploads not configured")
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return outbound.VoiceRequest{}, echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	asset, err := h.ingestUpload(c, fileHeader)
	if err != nil {
		return outbound.VoiceRequest{}, httpError(err)
	}
	size := asset.SizeBytes
	req := outbound.VoiceRequest{
		MediaURL:  asset.URL,
		MimeType:  asset.Mime,
		SizeBytes: &size,
	}
	if raw := strings.TrimSpace(c.FormValue("durationMs")); raw != "" {
		duration, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || duration < 0 {
			return outbound.VoiceRequest{}, echo.NewHTTPError(http.StatusBadRequest, "invalid durationMs")
		}
		req.DurationMs = &duration
	}
	return req, nil
}

func (h *InboxHandler) ingestUpload(c echo.Context, fileHeader *multipart.FileHeader) (media.Asset, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return media.Asset{}, err
	}
	defer func() {
		_ = file.Close()
	}()
	return h.media.Ingest(c.Request().Context(), media.IngestInput{
		Kind:     media.KindVoice,
		Mime:     fileHeader.Header.Get(echo.HeaderContentType),
		Filename: fileHeader.Filename,
		Reader:   file,
	})
}

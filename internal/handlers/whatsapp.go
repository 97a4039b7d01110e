package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/inboxd/internal/outbound"
)

// WhatsAppHandler serves the direct send API under /api/v1/whatsapp/messages.
type WhatsAppHandler struct {
	outbound *outbound.Service
	logger   *slog.Logger
}

// NewWhatsAppHandler creates the direct send handler.
func NewWhatsAppHandler(log *slog.Logger, outboundService *outbound.Service) *WhatsAppHandler {
	return &WhatsAppHandler{
		outbound: outboundService,
		logger:   log.With(slog.String("handler", "whatsapp")),
	}
}

// Register mounts the send routes on the Echo instance.
func (h *WhatsAppHandler) Register(e *echo.Echo) {
	group := e.Group("/api/v1/whatsapp/messages")
	group.POST("/text", h.SendText)
	group.POST("/text-by-phone", h.SendTextByPhone)
	group.POST("/template", h.SendTemplate)
}

// SendTextRequest is the body for POST /messages/text.
type SendTextRequest struct {
	ContactID string `json:"contactId"`
	ToWaID    string `json:"toWaId"`
	Text      string `json:"text"`
}

// SendTextByPhoneRequest is the body for POST /messages/text-by-phone.
type SendTextByPhoneRequest struct {
	ToWaID string `json:"toWaId"`
	Text   string `json:"text"`
	Name   string `json:"name,omitempty"`
}

// SendTemplateRequest is the body for POST /messages/template.
type SendTemplateRequest struct {
	ToWaID string `json:"toWaId"`
	Name   string `json:"name,omitempty"`
	outbound.TemplateRequest
}

// SendResponse is returned by every direct send.
type SendResponse struct {
	OK bool `json:"ok"`
	outbound.DirectResult
}

// SendText sends free-form text to a known contact.
// @Summary Send text to contact
// @Tags whatsapp
// @Security BearerAuth
// @Param payload body SendTextRequest true "Message"
// @Success 200 {object} SendResponse
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /whatsapp/messages/text [post]
func (h *WhatsAppHandler) SendText(c echo.Context) error {
	actor, err := RequireActor(c)
	if err != nil {
		return err
	}
	var req SendTextRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if req.ContactID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "contactId is required")
	}
	res, err := h.outbound.SendToContact(c.Request().Context(), actor, req.ContactID, req.ToWaID, req.Text)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, SendResponse{OK: true, DirectResult: res})
}

// SendTextByPhone sends free-form text to a WhatsApp id, creating the contact when new.
// @Summary Send text by WhatsApp id
// @Tags whatsapp
// @Security BearerAuth
// @Param payload body SendTextByPhoneRequest true "Message"
// @Success 200 {object} SendResponse
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /whatsapp/messages/text-by-phone [post]
func (h *WhatsAppHandler) SendTextByPhone(c echo.Context) error {
	actor, err := RequireActor(c)
	if err != nil {
		return err
	}
	var req SendTextByPhoneRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	res, err := h.outbound.SendTextByPhone(c.Request().Context(), actor, req.ToWaID, req.Text, req.Name)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, SendResponse{OK: true, DirectResult: res})
}

// SendTemplate sends a template to a WhatsApp id; templateName defaults to hello_world, languageCode to en_US.
// @Summary Send template by WhatsApp id
// @Tags whatsapp
// @Security BearerAuth
// @Param payload body SendTemplateRequest true "Template"
// @Success 200 {object} SendResponse
// @Failure 502 {object} ErrorResponse
// @Router /whatsapp/messages/template [post]
func (h *WhatsAppHandler) SendTemplate(c echo.Context) error {
	actor, err := RequireActor(c)
	if err != nil {
		return err
	}
	var req SendTemplateRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	res, err := h.outbound.SendTemplateByPhone(c.Request().Context(), actor, req.ToWaID, req.TemplateRequest, req.Name)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, SendResponse{OK: true, DirectResult: res})
}

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/inboxd/internal/contacts"
)

// ContactsHandler serves contact edits under /api/v1/inbox/contacts.
type ContactsHandler struct {
	service *contacts.Service
	logger  *slog.Logger
}

// NewContactsHandler creates a contacts handler.
func NewContactsHandler(log *slog.Logger, service *contacts.Service) *ContactsHandler {
	return &ContactsHandler{
		service: service,
		logger:  log.With(slog.String("handler", "contacts")),
	}
}

// Register mounts PATCH /api/v1/inbox/contacts/:id.
func (h *ContactsHandler) Register(e *echo.Echo) {
	e.PATCH("/api/v1/inbox/contacts/:id", h.Update)
}

// UpdateContactRequest is the body for PATCH /contacts/:id. An empty name clears it.
type UpdateContactRequest struct {
	Name string `json:"name"`
}

// Update renames a contact.
// @Summary Rename contact
// @Tags inbox
// @Security BearerAuth
// @Param id path string true "Contact ID"
// @Param payload body UpdateContactRequest true "Name; empty clears it"
// @Success 200 {object} map[string]contacts.Contact
// @Failure 404 {object} ErrorResponse
// @Router /inbox/contacts/{id} [patch]
func (h *ContactsHandler) Update(c echo.Context) error {
	if _, err := RequireActor(c); err != nil {
		return err
	}
	contactID, err := requireParam(c, "id", "contact id")
	if err != nil {
		return err
	}
	var req UpdateContactRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	contact, err := h.service.Rename(c.Request().Context(), contactID, req.Name)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"contact": contact})
}

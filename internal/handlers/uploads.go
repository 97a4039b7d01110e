package handlers

import (
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"
)

// UploadsHandler serves stored attachments (voice notes) as static files.
type UploadsHandler struct {
	prefix string
	root   string
	logger *slog.Logger
}

// NewUploadsHandler serves root at prefix, e.g. "/uploads".
func NewUploadsHandler(log *slog.Logger, prefix, root string) *UploadsHandler {
	return &UploadsHandler{
		prefix: "/" + strings.Trim(strings.TrimSpace(prefix), "/"),
		root:   root,
		logger: log.With(slog.String("handler", "uploads")),
	}
}

// Register mounts the static route. Nothing is served when no root is configured.
func (h *UploadsHandler) Register(e *echo.Echo) {
	if strings.TrimSpace(h.root) == "" || h.prefix == "/" {
		return
	}
	e.Static(h.prefix, h.root)
}

// Prefix returns the URL prefix the files are served under.
func (h *UploadsHandler) Prefix() string {
	return h.prefix
}

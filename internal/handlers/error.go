package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/labstack/echo/v4"

	"github.com/memohai/inboxd/internal/outbound"
)

// ErrorResponse is the standard API error body. Details carries the upstream error of a failed provider call.
type ErrorResponse struct {
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

// kinds maps error kinds to HTTP status codes, most specific first.
var kinds = []struct {
	sentinel error
	status   int
}{
	{errdefs.ErrInvalidArgument, http.StatusBadRequest},
	{errdefs.ErrUnauthenticated, http.StatusUnauthorized},
	{errdefs.ErrPermissionDenied, http.StatusForbidden},
	{errdefs.ErrNotFound, http.StatusNotFound},
	{errdefs.ErrConflict, http.StatusConflict},
	{errdefs.ErrAlreadyExists, http.StatusConflict},
	{errdefs.ErrFailedPrecondition, http.StatusConflict},
	{errdefs.ErrUnavailable, http.StatusServiceUnavailable},
}

// httpError converts a service error into an echo.HTTPError. Unclassified errors become 500
// without leaking their text.
func httpError(err error) error {
	if err == nil {
		return nil
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	if pf, ok := outbound.AsProviderFailure(err); ok {
		return echo.NewHTTPError(pf.Status, ErrorResponse{Message: pf.Message, Details: pf.Details}).SetInternal(err)
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return echo.NewHTTPError(k.status, publicMessage(err, k.sentinel)).SetInternal(err)
		}
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}

// publicMessage drops the "<kind>: " prefix added when wrapping a sentinel.
func publicMessage(err, sentinel error) string {
	msg := err.Error()
	if trimmed := strings.TrimPrefix(msg, sentinel.Error()+": "); trimmed != "" {
		return trimmed
	}
	return msg
}

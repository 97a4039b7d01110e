package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/memohai/inboxd/internal/auth"
	"github.com/memohai/inboxd/internal/identity"
)

// RequireActor extracts the authenticated actor from the request context.
func RequireActor(c echo.Context) (identity.Actor, error) {
	return auth.ActorFromContext(c)
}

// requireParam returns a trimmed path parameter or a 400.
func requireParam(c echo.Context, name, label string) (string, error) {
	value := strings.TrimSpace(c.Param(name))
	if value == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, label+" is required")
	}
	return value, nil
}

func parseIntOr(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return n
}

func bindJSON(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}

// Package handlers provides the HTTP API handlers of the inbox server.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/labstack/echo/v4"

	"github.com/memohai/inboxd/internal/accounts"
	"github.com/memohai/inboxd/internal/auth"
)

// AuthHandler issues agent tokens and reports who a token belongs to.
type AuthHandler struct {
	accounts  *accounts.Service
	secret    string
	expiresIn time.Duration
	logger    *slog.Logger
}

// LoginRequest is the body of POST /api/v1/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the bearer token and the account it was issued to.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   string `json:"expires_at"`
	UserID      string `json:"user_id"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
	Username    string `json:"username"`
}

// MeResponse describes the account behind the request token.
type MeResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"name"`
	Role        string `json:"role"`
}

func NewAuthHandler(log *slog.Logger, accountService *accounts.Service, jwtSecret string, expiresIn time.Duration) *AuthHandler {
	return &AuthHandler{
		accounts:  accountService,
		secret:    jwtSecret,
		expiresIn: expiresIn,
		logger:    log.With(slog.String("handler", "auth")),
	}
}

func (h *AuthHandler) Register(e *echo.Echo) {
	e.POST("/api/v1/auth/login", h.Login)
	e.GET("/api/v1/auth/me", h.Me)
}

func (h *AuthHandler) ready() error {
	switch {
	case h.accounts == nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "account service not configured")
	case strings.TrimSpace(h.secret) == "":
		return echo.NewHTTPError(http.StatusInternalServerError, "jwt secret not configured")
	case h.expiresIn <= 0:
		return echo.NewHTTPError(http.StatusInternalServerError, "jwt expiry not configured")
	}
	return nil
}

// Login exchanges agent credentials for a bearer token carrying id and role.
// @Summary Login
// @Description Validate credentials and issue a JWT
// @Tags auth
// @Param payload body LoginRequest true "Login request"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	if err := h.ready(); err != nil {
		return err
	}
	var req LoginRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || strings.TrimSpace(req.Password) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "username and password are required")
	}

	account, err := h.accounts.Login(c.Request().Context(), username, req.Password)
	switch {
	case errors.Is(err, accounts.ErrInvalidCredentials):
		h.logger.Warn("login rejected", slog.String("username", username))
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, accounts.ErrInactiveAccount):
		return echo.NewHTTPError(http.StatusUnauthorized, "user is inactive")
	case err != nil:
		return httpError(err)
	}

	token, expiresAt, err := auth.GenerateToken(account.Actor(), h.secret, h.expiresIn)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.logger.Info("login", slog.String("user_id", account.ID), slog.String("role", account.Role.String()))
	return c.JSON(http.StatusOK, LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt.UTC().Format(time.RFC3339),
		UserID:      account.ID,
		Username:    account.Username,
		Role:        account.Role.String(),
		DisplayName: account.DisplayName,
	})
}

// Me returns the account behind the bearer token. A token for a removed
// account is treated as unauthenticated.
// @Summary Current account
// @Tags auth
// @Security BearerAuth
// @Success 200 {object} MeResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/me [get]
func (h *AuthHandler) Me(c echo.Context) error {
	actor, err := RequireActor(c)
	if err != nil {
		return err
	}
	if h.accounts == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "account service not configured")
	}
	account, err := h.accounts.Get(c.Request().Context(), actor.ID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return echo.NewHTTPError(http.StatusUnauthorized, "account no longer exists")
		}
		return httpError(err)
	}
	return c.JSON(http.StatusOK, MeResponse{
		ID:          account.ID,
		Username:    account.Username,
		DisplayName: account.DisplayName,
		Role:        account.Role.String(),
	})
}

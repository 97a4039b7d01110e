// Package auth issues and verifies the bearer tokens used by the inbox API.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/memohai/inboxd/internal/identity"
)

// ContextKey is where the verified *jwt.Token is stored on the echo context.
const ContextKey = "user"

// Token lookups: the API uses the Authorization header, the stream also accepts ?access_token=.
const (
	headerLookup = "header:Authorization:Bearer "
	streamLookup = headerLookup + ",query:access_token"
)

// Claims carries the actor id (sub) and role.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken signs an HS256 token for actor.
func GenerateToken(actor identity.Actor, secret string, expiresIn time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, errors.New("jwt secret is required")
	}
	if err := actor.Validate(); err != nil {
		return "", time.Time{}, err
	}
	if expiresIn <= 0 {
		return "", time.Time{}, errors.New("jwt expiry must be positive")
	}
	now := time.Now().UTC()
	expiresAt := now.Add(expiresIn)
	claims := Claims{
		Role: actor.Role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// JWTMiddleware verifies header bearer tokens on every route not matched by skipper.
func JWTMiddleware(secret string, skipper middleware.Skipper) echo.MiddlewareFunc {
	return newMiddleware(secret, headerLookup, skipper)
}

// StreamJWTMiddleware also accepts the token as ?access_token=, since EventSource cannot set headers.
func StreamJWTMiddleware(secret string) echo.MiddlewareFunc {
	return newMiddleware(secret, streamLookup, nil)
}

func newMiddleware(secret, lookup string, skipper middleware.Skipper) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		Skipper:       skipper,
		SigningKey:    []byte(secret),
		SigningMethod: jwt.SigningMethodHS256.Name,
		TokenLookup:   lookup,
		ContextKey:    ContextKey,
		NewClaimsFunc: func(echo.Context) jwt.Claims {
			return new(Claims)
		},
		ErrorHandler: func(_ echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing or invalid token").SetInternal(err)
		},
	})
}

// ActorFromContext returns the actor of a verified request.
func ActorFromContext(c echo.Context) (identity.Actor, error) {
	token, ok := c.Get(ContextKey).(*jwt.Token)
	if !ok || token == nil || !token.Valid {
		return identity.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "missing token")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return identity.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
	}
	role, err := identity.ParseRole(claims.Role)
	if err != nil {
		return identity.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token role")
	}
	actor := identity.Actor{ID: strings.TrimSpace(claims.Subject), Role: role}
	if err := actor.Validate(); err != nil {
		return identity.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token subject")
	}
	return actor, nil
}

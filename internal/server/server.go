// Package server provides the HTTP server and Echo setup for the inbox API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/memohai/inboxd/internal/auth"
)

const defaultBodyLimit = "2M"

// Server is the HTTP server (Echo) with JWT middleware and registered handlers.
type Server struct {
	echo   *echo.Echo
	addr   string
	logger *slog.Logger
}

// Handler registers routes on the Echo instance.
type Handler interface {
	Register(e *echo.Echo)
}

// Options configures routes exempt from the global JWT check.
type Options struct {
	// PublicPaths are matched exactly.
	PublicPaths []string
	// PublicPrefixes are matched as path prefixes.
	PublicPrefixes []string
}

// DefaultOptions lists the routes reachable without a bearer token. The stream
// route checks its own token.
func DefaultOptions() Options {
	return Options{
		PublicPaths:    []string{"/ping", "/health", "/api/v1/auth/login", "/api/v1/inbox/stream", "/api/swagger.json", "/api/docs", "/api/docs/"},
		PublicPrefixes: []string{"/webhooks/", "/uploads/"},
	}
}

// NewServer builds the Echo server with recovery, request logging, CORS, JWT auth, and the given handlers.
func NewServer(log *slog.Logger, addr, jwtSecret string, opts Options,
	handlers ...Handler,
) *Server {
	if addr == "" {
		addr = ":8080"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				slog.String("method", v.Method),
				slog.String("uri", redactToken(v.URI)),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", c.RealIP()),
			}
			if v.Error != nil && v.Status >= http.StatusInternalServerError {
				log.Error("request", append(attrs, slog.Any("error", v.Error))...)
				return nil
			}
			log.Info("request", attrs...)
			return nil
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderAccept},
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPatch, http.MethodOptions},
	}))
	e.Use(middleware.BodyLimitWithConfig(middleware.BodyLimitConfig{
		Limit: defaultBodyLimit,
		Skipper: func(c echo.Context) bool {
			return strings.HasSuffix(c.Request().URL.Path, "/voice")
		},
	}))
	e.Use(auth.JWTMiddleware(jwtSecret, opts.skipper))

	for _, h := range handlers {
		if h != nil {
			h.Register(e)
		}
	}

	return &Server{
		echo:   e,
		addr:   addr,
		logger: log.With(slog.String("component", "server")),
	}
}

func (o Options) skipper(c echo.Context) bool {
	path := c.Request().URL.Path
	if c.Request().Method == http.MethodOptions {
		return true
	}
	for _, p := range o.PublicPaths {
		if path == p {
			return true
		}
	}
	for _, p := range o.PublicPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// redactToken hides ?access_token= values from request logs.
func redactToken(uri string) string {
	idx := strings.Index(uri, "access_token=")
	if idx < 0 {
		return uri
	}
	start := idx + len("access_token=")
	end := strings.IndexByte(uri[start:], '&')
	if end < 0 {
		return uri[:start] + "REDACTED"
	}
	return uri[:start] + "REDACTED" + uri[start+end:]
}

// Echo exposes the underlying router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server (blocks until shutdown).
func (s *Server) Start() error {
	s.logger.Info("http server listening", slog.String("addr", s.addr))
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server using the given context.
func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

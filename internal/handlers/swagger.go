package handlers

// @title inboxd API
// @version 1.0.0
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/labstack/echo/v4"
)

//go:generate go run github.com/swaggo/swag/cmd/swag@latest init -g swagger.go -o ../../docs --parseDependency --parseInternal

// Swagger routes, kept outside the JWT check.
const (
	SwaggerSpecPath = "/api/swagger.json"
	SwaggerUIPath   = "/api/docs"
)

// DefaultSwaggerFile is where swag writes the generated document.
const DefaultSwaggerFile = "docs/swagger.json"

// SwaggerHandler serves the generated OpenAPI document and a Swagger UI page.
type SwaggerHandler struct {
	file   string
	once   sync.Once
	spec   []byte
	err    error
	logger *slog.Logger
}

func NewSwaggerHandler(log *slog.Logger) *SwaggerHandler {
	return &SwaggerHandler{
		file:   DefaultSwaggerFile,
		logger: log.With(slog.String("handler", "swagger")),
	}
}

func (h *SwaggerHandler) Register(e *echo.Echo) {
	e.GET(SwaggerSpecPath, h.Spec)
	e.GET(SwaggerUIPath, h.UI)
	e.GET(SwaggerUIPath+"/", h.UI)
}

// Spec returns the document, or 404 when swag has not been run.
func (h *SwaggerHandler) Spec(c echo.Context) error {
	h.once.Do(func() {
		h.spec, h.err = os.ReadFile(h.file)
	})
	if h.err != nil {
		if errors.Is(h.err, fs.ErrNotExist) {
			return echo.NewHTTPError(http.StatusNotFound, "api document not generated")
		}
		h.logger.Error("read api document failed", slog.Any("error", h.err))
		return echo.NewHTTPError(http.StatusInternalServerError, "read api document failed")
	}
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, h.spec)
}

func (h *SwaggerHandler) UI(c echo.Context) error {
	return c.HTML(http.StatusOK, swaggerUIHTML)
}

const swaggerUIHTML = `<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width,initial-scale=1" />
    <title>inboxd API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.onload = () => {
        window.ui = SwaggerUIBundle({
          url: '/api/swagger.json',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`

package web

import (
	_ "embed"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ocr-menu-detector/backend/internal/report"
)

//go:embed docs/usage.md
var usageMarkdown []byte

// DocsHTML renders the embedded usage guide as a standalone HTML page.
func DocsHTML() ([]byte, error) {
	return report.RenderHTML(usageMarkdown)
}

// RegisterDocsRoutes serves the usage guide at /docs. Register before the
// static catch-all so it is not shadowed by the SPA fallback.
func RegisterDocsRoutes(e *echo.Echo) {
	e.GET("/docs", func(c echo.Context) error {
		html, err := DocsHTML()
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to render docs")
		}
		return c.HTMLBlob(http.StatusOK, html)
	})
	e.GET("/docs/usage.md", func(c echo.Context) error {
		return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", usageMarkdown)
	})
}

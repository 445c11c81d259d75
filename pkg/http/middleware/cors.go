package middleware

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
)

const (
	corsMethods = "GET, POST, OPTIONS"
	corsHeaders = "Origin, Content-Type, Accept"
)

// CORS lets the dashboard page read the API from the given origins. "*"
// admits any origin. Requests from other origins pass through without CORS
// headers, so the browser blocks them.
func CORS(origins []string) echo.MiddlewareFunc {
	wildcard := slices.Contains(origins, "*")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			origin := c.Request().Header.Get(echo.HeaderOrigin)
			if origin == "" || (!wildcard && !slices.Contains(origins, origin)) {
				return next(c)
			}

			h := c.Response().Header()
			h.Add(echo.HeaderVary, echo.HeaderOrigin)
			h.Set(echo.HeaderAccessControlAllowOrigin, origin)

			if c.Request().Method != http.MethodOptions {
				return next(c)
			}
			h.Set(echo.HeaderAccessControlAllowMethods, corsMethods)
			h.Set(echo.HeaderAccessControlAllowHeaders, corsHeaders)
			return c.NoContent(http.StatusNoContent)
		}
	}
}

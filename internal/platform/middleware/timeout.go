package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/fhirindex/internal/platform/fhir"
)

// RequestTimeout puts a deadline on each request's context. Handlers run on
// the request goroutine; when one gives up because the deadline passed and
// nothing has been written yet, the client gets a 504 OperationOutcome.
// Paths under any of skip get no deadline.
//
// Full reindexes run as background jobs detached from the request context,
// so they are not bounded by this deadline.
func RequestTimeout(timeout time.Duration, skip ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			for _, prefix := range skip {
				if strings.HasPrefix(path, prefix) {
					return next(c)
				}
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if !errors.Is(ctx.Err(), context.DeadlineExceeded) || c.Response().Committed {
				return err
			}
			if err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return c.JSON(http.StatusGatewayTimeout, fhir.NewOperationOutcome("error", "timeout",
				"request exceeded "+timeout.String()))
		}
	}
}

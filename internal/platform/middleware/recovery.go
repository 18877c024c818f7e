package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/fhirindex/internal/platform/fhir"
)

// Recovery turns a handler panic into a 500 OperationOutcome. Aborted
// handlers (http.ErrAbortHandler) are re-panicked for net/http to handle.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				panicErr, ok := r.(error)
				if !ok {
					panicErr = fmt.Errorf("%v", r)
				}
				if errors.Is(panicErr, http.ErrAbortHandler) {
					panic(r)
				}

				logger.Error().
					Err(panicErr).
					Interface("request_id", c.Get("request_id")).
					Str("route", c.Path()).
					Bytes("stack", debug.Stack()).
					Msg("handler panicked")

				if c.Response().Committed {
					err = echo.NewHTTPError(http.StatusInternalServerError).SetInternal(panicErr)
					return
				}
				err = c.JSON(http.StatusInternalServerError, fhir.InternalErrorOutcome("internal server error"))
			}()
			return next(c)
		}
	}
}

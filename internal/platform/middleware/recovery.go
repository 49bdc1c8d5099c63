package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const maxStackBytes = 4096

// Recovery turns a handler panic into a 500 and logs it with the request's
// identifying fields. The panic value rides along as the error's internal
// cause so the request logger records it too.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				cause, ok := r.(error)
				if !ok {
					cause = fmt.Errorf("panic: %v", r)
				}
				stack := make([]byte, maxStackBytes)
				stack = stack[:runtime.Stack(stack, false)]

				req := c.Request()
				logger.Error().
					Err(cause).
					Str("request_id", RequestIDFrom(c)).
					Str("method", req.Method).
					Str("path", req.URL.Path).
					Str("route", c.Path()).
					Str("remote_ip", c.RealIP()).
					Bytes("stack", stack).
					Msg("panic recovered")

				err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(cause)
			}()
			return next(c)
		}
	}
}

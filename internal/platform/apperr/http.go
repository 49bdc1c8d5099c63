package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// HTTP converts a domain error into the echo error returned by handlers.
// Store failures are reported with a generic message; the detail is left for
// the request logger.
func HTTP(err error) *echo.HTTPError {
	var (
		ve *ValidationError
		ce *ConflictError
		ne *NotFoundError
		se *StoreError
	)
	switch {
	case errors.As(err, &ve):
		he := echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]interface{}{"errors": ve.Reasons})
		return he.SetInternal(err)
	case errors.As(err, &ce):
		return echo.NewHTTPError(http.StatusConflict, ce.Error()).SetInternal(err)
	case errors.As(err, &ne):
		return echo.NewHTTPError(http.StatusNotFound, ne.Error()).SetInternal(err)
	case errors.Is(err, ErrCancelled):
		return echo.NewHTTPError(http.StatusPreconditionRequired, "confirmation required").SetInternal(err)
	case errors.As(err, &se):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "storage unavailable, please retry").SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
}

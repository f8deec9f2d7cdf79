package apierror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mindmate/mindmate/internal/platform/response"
)

// Handler returns an echo.HTTPErrorHandler that writes every error as
// {success:false, message, field?}. Internal failures are logged; their cause
// is included as "error" only when dev is true.
func Handler(logger zerolog.Logger, dev bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		apiErr := From(err)
		status := apiErr.Status()

		body := response.Envelope{
			Success: false,
			Message: apiErr.Message,
			Field:   apiErr.Field,
		}

		if apiErr.Kind == KindInternal {
			rid, _ := c.Get("request_id").(string)
			logger.Error().
				Err(err).
				Str("request_id", rid).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
			if dev && apiErr.Err != nil {
				body.Error = apiErr.Err.Error()
			}
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, body)
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("write error response")
		}
	}
}

// From converts any error into an *Error. echo.HTTPError values keep their
// status; anything unrecognised becomes an internal error.
func From(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := fmt.Sprint(he.Message)
		if he.Code >= http.StatusInternalServerError {
			cause := he.Internal
			if cause == nil {
				cause = errors.New(msg)
			}
			return Internal(cause)
		}
		return &Error{Kind: kindForStatus(he.Code), Message: msg, status: he.Code}
	}

	return Internal(err)
}

func kindForStatus(code int) Kind {
	switch code {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidation
	case http.StatusUnauthorized:
		return KindAuth
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	}
	return ""
}

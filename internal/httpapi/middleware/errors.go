package middleware

import (
	"errors"

	"github.com/labstack/echo/v4"
)

// ErrorResponse is the JSON shape of every error response the broker's
// ingress returns.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HandleHTTPError is echo's centralised error handler: it flattens any
// error, including echo's own *echo.HTTPError, into ErrorResponse.
func HandleHTTPError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := 500
	message := err.Error()

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if msg, ok := he.Message.(string); ok {
			message = msg
		}
	}

	if jsonErr := c.JSON(code, ErrorResponse{Error: message}); jsonErr != nil {
		c.Logger().Errorf("failed to send error response: %v", jsonErr)
	}
}

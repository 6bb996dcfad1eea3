package middleware

import (
	"errors"
	"net/http"

	"github.com/OFFIS-RIT/kgraph/pkg/common"
	"github.com/OFFIS-RIT/kgraph/pkg/logger"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

type Message struct {
	Message string `json:"message"`
}

// StatusFor maps an error from the components to an HTTP status.
func StatusFor(err error) int {
	var he *echo.HTTPError
	var ve validator.ValidationErrors
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.As(err, &ve),
		errors.Is(err, common.ErrInvalidInput),
		errors.Is(err, common.ErrUnsupportedAlgorithm):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// ErrorJSON writes err as a {message} body. Internal errors are logged and
// not echoed to the client.
func ErrorJSON(c echo.Context, err error) error {
	status := StatusFor(err)
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if s, ok := he.Message.(string); ok {
			msg = s
		}
	}
	if status >= http.StatusInternalServerError {
		logger.Error("[Server] Request failed", "path", c.Path(), "err", err)
		msg = http.StatusText(status)
	}
	return c.JSON(status, Message{Message: msg})
}

// BadRequest answers with 400 and msg.
func BadRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, Message{Message: msg})
}

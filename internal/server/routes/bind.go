package routes

import (
	"github.com/OFFIS-RIT/kgraph/internal/server/middleware"

	"github.com/labstack/echo/v4"
)

// bindAndValidate binds the request into params and runs the validator.
// It writes the 400 response itself and reports whether handling may go on.
func bindAndValidate(c echo.Context, params any) (bool, error) {
	if err := c.Bind(params); err != nil {
		return false, middleware.BadRequest(c, "Invalid request params")
	}
	if err := c.Validate(params); err != nil {
		return false, middleware.BadRequest(c, err.Error())
	}
	return true, nil
}

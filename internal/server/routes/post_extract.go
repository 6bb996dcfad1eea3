package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/kgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/kgraph/pkg/extract"
	"github.com/OFFIS-RIT/kgraph/pkg/relate"

	"github.com/labstack/echo/v4"
)

func ExtractEntitiesHandler(c echo.Context) error {
	type extractParams struct {
		Text    string           `json:"text" validate:"required"`
		Options *extract.Options `json:"options"`
	}

	// Fields missing from the request keep their defaults.
	a := middleware.GetApp(c)
	defaults := a.ExtractOptions.Clone()
	params := &extractParams{Options: &defaults}
	if ok, err := bindAndValidate(c, params); !ok {
		return err
	}

	opts := a.ExtractOptions
	if params.Options != nil {
		opts = *params.Options
	}

	res, err := a.Extractor.Extract(c.Request().Context(), params.Text, opts)
	if err != nil {
		return middleware.ErrorJSON(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func BuildRelationshipsHandler(c echo.Context) error {
	type buildParams struct {
		DocumentIDs []string        `json:"document_ids" validate:"required,min=1"`
		Options     *relate.Options `json:"options"`
	}

	defaults := relate.DefaultOptions()
	params := &buildParams{Options: &defaults}
	if ok, err := bindAndValidate(c, params); !ok {
		return err
	}

	opts := relate.DefaultOptions()
	if params.Options != nil {
		opts = *params.Options
	}

	a := middleware.GetApp(c)
	res, err := a.Builder.Build(c.Request().Context(), params.DocumentIDs, opts)
	if err != nil {
		return middleware.ErrorJSON(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

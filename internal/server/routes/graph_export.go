package routes

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/OFFIS-RIT/kgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/kgraph/internal/storage"
	"github.com/OFFIS-RIT/kgraph/pkg/graph/interchange"

	"github.com/labstack/echo/v4"
)

const destinationS3 = "s3"

type exportResponse struct {
	Format interchange.Format `json:"format"`
	Key    string             `json:"key"`
	URL    string             `json:"url,omitempty"`
}

func ExportGraphHandler(c echo.Context) error {
	type exportParams struct {
		Format      string `query:"format"`
		Destination string `query:"destination" validate:"omitempty,oneof=s3"`
	}

	params := new(exportParams)
	if ok, err := bindAndValidate(c, params); !ok {
		return err
	}
	format, err := interchange.ParseFormat(params.Format)
	if err != nil {
		return middleware.ErrorJSON(c, err)
	}

	a := middleware.GetApp(c)
	if params.Destination == destinationS3 && a.Bucket == nil {
		return middleware.BadRequest(c, storage.ErrDisabled.Error())
	}

	ctx := c.Request().Context()
	buf := new(bytes.Buffer)
	if err := a.Graph.Export(ctx, format, buf); err != nil {
		return middleware.ErrorJSON(c, err)
	}

	if params.Destination != destinationS3 {
		filename := "graph" + format.Extension()
		c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
		return c.Blob(http.StatusOK, format.ContentType(), buf.Bytes())
	}

	key := storage.ExportKey(format.Extension())
	if err := a.Bucket.Put(ctx, key, format.ContentType(), buf.Bytes()); err != nil {
		return middleware.ErrorJSON(c, err)
	}
	link, err := a.Bucket.DownloadLink(ctx, key)
	if err != nil {
		return middleware.ErrorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, exportResponse{Format: format, Key: key, URL: link})
}

func ImportGraphHandler(c echo.Context) error {
	type importParams struct {
		Format string `query:"format"`
		Source string `query:"source" validate:"omitempty,oneof=s3"`
		Key    string `query:"key"`
	}

	// Bind would try to decode the body, only the query carries parameters.
	params := new(importParams)
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, params); err != nil {
		return middleware.BadRequest(c, "Invalid request params")
	}
	if err := c.Validate(params); err != nil {
		return middleware.BadRequest(c, err.Error())
	}
	format, err := interchange.ParseFormat(params.Format)
	if err != nil {
		return middleware.ErrorJSON(c, err)
	}
	if !format.Importable() {
		return middleware.BadRequest(c, fmt.Sprintf("format %s cannot be imported", format))
	}

	a := middleware.GetApp(c)
	ctx := c.Request().Context()

	var body io.Reader = c.Request().Body
	if params.Source == destinationS3 {
		if a.Bucket == nil {
			return middleware.BadRequest(c, storage.ErrDisabled.Error())
		}
		if params.Key == "" {
			return middleware.BadRequest(c, "key is required for s3 imports")
		}
		data, err := a.Bucket.Get(ctx, params.Key)
		if err != nil {
			return middleware.ErrorJSON(c, err)
		}
		body = bytes.NewReader(data)
	}

	res, err := a.Graph.Import(ctx, format, body)
	if err != nil {
		return middleware.ErrorJSON(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

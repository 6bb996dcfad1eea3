package routes

import (
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/OFFIS-RIT/kgraph/internal/queue"
	"github.com/OFFIS-RIT/kgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/kgraph/internal/storage"
	"github.com/OFFIS-RIT/kgraph/internal/util"
	"github.com/OFFIS-RIT/kgraph/pkg/common"
	"github.com/OFFIS-RIT/kgraph/pkg/pipeline"
	"github.com/OFFIS-RIT/kgraph/pkg/relate"

	"github.com/labstack/echo/v4"
)

type queuedResponse struct {
	Queued bool   `json:"queued"`
	Queue  string `json:"queue"`
}

// runInline reports whether a request asks to skip the queue or no queue is
// configured.
func runInline(c echo.Context, a *middleware.App) bool {
	return a.Queue == nil || c.QueryParam("sync") == "true"
}

func CreateDocumentHandler(c echo.Context) error {
	type createDocumentParams struct {
		ID       string `json:"id"`
		Title    string `json:"title"`
		Content  string `json:"content"`
		FileType string `json:"file_type"`
		// SourceKey reads the content from the configured bucket.
		SourceKey string `json:"source_key"`
	}

	params := new(createDocumentParams)
	if ok, err := bindAndValidate(c, params); !ok {
		return err
	}

	a := middleware.GetApp(c)
	ctx := c.Request().Context()
	if params.Content == "" && params.SourceKey != "" {
		if a.Bucket == nil {
			return middleware.BadRequest(c, storage.ErrDisabled.Error())
		}
		data, err := a.Bucket.Get(ctx, params.SourceKey)
		if err != nil {
			return middleware.ErrorJSON(c, err)
		}
		params.Content = string(data)
		if params.FileType == "" {
			params.FileType = strings.TrimPrefix(path.Ext(params.SourceKey), ".")
		}
	}
	if params.Content == "" {
		return middleware.BadRequest(c, "content or source_key is required")
	}

	doc := common.Document{
		ID:        params.ID,
		Title:     params.Title,
		Content:   params.Content,
		FileType:  params.FileType,
		CreatedAt: time.Now().UTC(),
	}
	if doc.ID == "" {
		doc.ID = util.NewID("doc")
	}

	if err := a.Store.SaveDocument(ctx, doc); err != nil {
		return middleware.ErrorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, doc)
}

func ProcessDocumentHandler(c echo.Context) error {
	type processParams struct {
		DocumentID string            `param:"id" validate:"required"`
		Options    *pipeline.Options `json:"options"`
	}

	a := middleware.GetApp(c)
	defaults := a.PipelineOptions()
	params := &processParams{Options: &defaults}
	if ok, err := bindAndValidate(c, params); !ok {
		return err
	}

	opts := a.PipelineOptions()
	if params.Options != nil {
		opts = *params.Options
	}

	ctx := c.Request().Context()
	if !runInline(c, a) {
		msg := queue.ProcessMsg{DocumentID: params.DocumentID, Options: &opts}
		if err := queue.PublishJSON(ctx, a.Queue, queue.ProcessQueue, msg); err != nil {
			return middleware.ErrorJSON(c, err)
		}
		return c.JSON(http.StatusAccepted, queuedResponse{Queued: true, Queue: queue.ProcessQueue})
	}

	res, err := a.Pipeline.ProcessDocument(ctx, params.DocumentID, opts)
	if err != nil {
		return middleware.ErrorJSON(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func LinkDocumentsHandler(c echo.Context) error {
	type linkParams struct {
		DocumentIDs []string        `json:"document_ids"`
		Options     *relate.Options `json:"options"`
	}

	defaults := relate.DefaultOptions()
	params := &linkParams{Options: &defaults}
	if ok, err := bindAndValidate(c, params); !ok {
		return err
	}

	opts := relate.DefaultOptions()
	if params.Options != nil {
		opts = *params.Options
	}

	a := middleware.GetApp(c)
	ctx := c.Request().Context()
	if !runInline(c, a) {
		msg := queue.LinkMsg{DocumentIDs: params.DocumentIDs, Options: &opts}
		if err := queue.PublishJSON(ctx, a.Queue, queue.LinkQueue, msg); err != nil {
			return middleware.ErrorJSON(c, err)
		}
		return c.JSON(http.StatusAccepted, queuedResponse{Queued: true, Queue: queue.LinkQueue})
	}

	res, err := a.Pipeline.Link(ctx, params.DocumentIDs, opts)
	if err != nil {
		return middleware.ErrorJSON(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func DeleteDocumentHandler(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return middleware.BadRequest(c, "Invalid request params")
	}

	a := middleware.GetApp(c)
	ctx := c.Request().Context()
	if !runInline(c, a) {
		if err := queue.PublishJSON(ctx, a.Queue, queue.DeleteQueue, queue.DeleteMsg{DocumentID: id}); err != nil {
			return middleware.ErrorJSON(c, err)
		}
		return c.JSON(http.StatusAccepted, queuedResponse{Queued: true, Queue: queue.DeleteQueue})
	}

	if err := a.Pipeline.DeleteDocument(ctx, id); err != nil {
		return middleware.ErrorJSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

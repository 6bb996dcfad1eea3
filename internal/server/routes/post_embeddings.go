package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/kgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/kgraph/pkg/embed"

	"github.com/labstack/echo/v4"
)

func EmbedHandler(c echo.Context) error {
	type embedParams struct {
		Text  string   `json:"text"`
		Texts []string `json:"texts"`
		Model string   `json:"model"`
	}

	params := new(embedParams)
	if ok, err := bindAndValidate(c, params); !ok {
		return err
	}

	a := middleware.GetApp(c)
	ctx := c.Request().Context()
	switch {
	case len(params.Texts) > 0:
		res, err := a.Engine.EmbedBatch(ctx, params.Texts, params.Model)
		if err != nil {
			return middleware.ErrorJSON(c, err)
		}
		return c.JSON(http.StatusOK, res)
	case params.Text == "":
		return middleware.BadRequest(c, "text or texts is required")
	}

	res, err := a.Engine.Embed(ctx, params.Text, params.Model)
	if err != nil {
		return middleware.ErrorJSON(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func SearchHandler(c echo.Context) error {
	type searchParams struct {
		Query   string              `json:"query" validate:"required"`
		Options embed.SearchOptions `json:"options"`
	}

	params := new(searchParams)
	if ok, err := bindAndValidate(c, params); !ok {
		return err
	}

	a := middleware.GetApp(c)
	res, err := a.Engine.SemanticSearch(c.Request().Context(), params.Query, params.Options)
	if err != nil {
		return middleware.ErrorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"results": res})
}

func ChunkDocumentHandler(c echo.Context) error {
	type chunkParams struct {
		DocumentID  string `param:"id" validate:"required"`
		Content     string `json:"content"`
		ChunkSize   int    `json:"chunk_size" validate:"gte=0"`
		OverlapSize int    `json:"overlap_size" validate:"gte=0"`
	}

	params := new(chunkParams)
	if ok, err := bindAndValidate(c, params); !ok {
		return err
	}
	if params.ChunkSize == 0 {
		params.ChunkSize = embed.DefaultChunkSize
		if params.OverlapSize == 0 {
			params.OverlapSize = embed.DefaultOverlapSize
		}
	}

	a := middleware.GetApp(c)
	ctx := c.Request().Context()

	if params.Content != "" {
		ids, err := a.Engine.ChunkAndEmbed(ctx, params.DocumentID, params.Content, params.ChunkSize, params.OverlapSize)
		if err != nil {
			return middleware.ErrorJSON(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"ids": ids})
	}

	docs, err := a.Store.GetDocuments(ctx, []string{params.DocumentID})
	if err != nil {
		return middleware.ErrorJSON(c, err)
	}
	ids, err := a.Engine.ChunkAndEmbedDocument(ctx, docs[0], params.ChunkSize, params.OverlapSize)
	if err != nil {
		return middleware.ErrorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"ids": ids})
}

package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/kgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/kgraph/pkg/common"
	"github.com/OFFIS-RIT/kgraph/pkg/graph"
	"github.com/OFFIS-RIT/kgraph/pkg/store"

	"github.com/labstack/echo/v4"
)

func CreateRelationshipHandler(c echo.Context) error {
	params := new(graph.RelationshipInput)
	if ok, err := bindAndValidate(c, params); !ok {
		return err
	}

	a := middleware.GetApp(c)
	rels, err := a.Graph.CreateRelationship(c.Request().Context(), *params)
	if err != nil {
		return middleware.ErrorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"relationships": rels})
}

func UpdateRelationshipHandler(c echo.Context) error {
	type patchParams struct {
		ID         string                       `param:"id" validate:"required"`
		Type       *common.RelationshipType     `json:"relationship_type"`
		Confidence *float64                     `json:"confidence" validate:"omitempty,gte=0,lte=1"`
		Strength   *float64                     `json:"strength" validate:"omitempty,gte=0,lte=1"`
		Evidence   []common.Evidence            `json:"evidence"`
		Metadata   *common.RelationshipMetadata `json:"metadata"`
	}

	params := new(patchParams)
	if ok, err := bindAndValidate(c, params); !ok {
		return err
	}

	a := middleware.GetApp(c)
	rel, err := a.Graph.UpdateRelationship(c.Request().Context(), params.ID, store.RelationshipPatch{
		Type:       params.Type,
		Confidence: params.Confidence,
		Strength:   params.Strength,
		Evidence:   params.Evidence,
		Metadata:   params.Metadata,
	})
	if err != nil {
		return middleware.ErrorJSON(c, err)
	}
	return c.JSON(http.StatusOK, rel)
}

func DeleteRelationshipHandler(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return middleware.BadRequest(c, "Invalid request params")
	}

	a := middleware.GetApp(c)
	if err := a.Graph.DeleteRelationship(c.Request().Context(), id); err != nil {
		return middleware.ErrorJSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func MergeEntitiesHandler(c echo.Context) error {
	type mergeParams struct {
		TargetID  string   `json:"target_id" validate:"required"`
		SourceIDs []string `json:"source_ids" validate:"required,min=1,dive,required"`
	}

	params := new(mergeParams)
	if ok, err := bindAndValidate(c, params); !ok {
		return err
	}

	a := middleware.GetApp(c)
	entity, err := a.Graph.MergeEntities(c.Request().Context(), params.TargetID, params.SourceIDs)
	if err != nil {
		return middleware.ErrorJSON(c, err)
	}
	return c.JSON(http.StatusOK, entity)
}

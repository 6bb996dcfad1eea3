package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/kgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/kgraph/pkg/common"
	"github.com/OFFIS-RIT/kgraph/pkg/graph"
	"github.com/OFFIS-RIT/kgraph/pkg/store"

	"github.com/labstack/echo/v4"
)

func GetKnowledgeGraphHandler(c echo.Context) error {
	type graphParams struct {
		CenterNodeID string              `query:"center_node_id"`
		Depth        int                 `query:"depth"`
		MinWeight    float64             `query:"min_weight"`
		MaxNodes     int                 `query:"max_nodes"`
		Types        []common.EntityType `query:"types"`
	}

	params := new(graphParams)
	if ok, err := bindAndValidate(c, params); !ok {
		return err
	}

	a := middleware.GetApp(c)
	res, err := a.Graph.GetKnowledgeGraph(c.Request().Context(), graph.KnowledgeGraphQuery{
		CenterNodeID: params.CenterNodeID,
		Depth:        params.Depth,
		MinWeight:    params.MinWeight,
		MaxNodes:     params.MaxNodes,
		Types:        params.Types,
	})
	if err != nil {
		return middleware.ErrorJSON(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func GetNeighborhoodHandler(c echo.Context) error {
	type neighborhoodParams struct {
		EntityID          string                    `param:"id" validate:"required"`
		Depth             int                       `query:"depth"`
		Direction         store.Direction           `query:"direction"`
		RelationshipTypes []common.RelationshipType `query:"relationship_types"`
		Limit             int                       `query:"limit"`
	}

	params := new(neighborhoodParams)
	if ok, err := bindAndValidate(c, params); !ok {
		return err
	}

	a := middleware.GetApp(c)
	res, err := a.Graph.GetNeighborhood(c.Request().Context(), params.EntityID, graph.NeighborhoodQuery{
		Depth:             params.Depth,
		Direction:         params.Direction,
		RelationshipTypes: params.RelationshipTypes,
		Limit:             params.Limit,
	})
	if err != nil {
		return middleware.ErrorJSON(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func FindPathsHandler(c echo.Context) error {
	type pathParams struct {
		SourceID  string              `query:"source_id" validate:"required"`
		TargetID  string              `query:"target_id" validate:"required"`
		MaxDepth  int                 `query:"max_depth"`
		Algorithm graph.PathAlgorithm `query:"algorithm"`
		Limit     int                 `query:"limit"`
		Directed  bool                `query:"directed"`
	}

	params := new(pathParams)
	if ok, err := bindAndValidate(c, params); !ok {
		return err
	}

	a := middleware.GetApp(c)
	paths, err := a.Graph.FindPaths(c.Request().Context(), params.SourceID, params.TargetID, graph.PathQuery{
		MaxDepth:  params.MaxDepth,
		Algorithm: params.Algorithm,
		Limit:     params.Limit,
		Directed:  params.Directed,
	})
	if err != nil {
		return middleware.ErrorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"paths": paths})
}

func GetCentralityHandler(c echo.Context) error {
	type centralityParams struct {
		Algorithm graph.CentralityAlgorithm `query:"algorithm"`
		Limit     int                       `query:"limit"`
	}

	params := new(centralityParams)
	if ok, err := bindAndValidate(c, params); !ok {
		return err
	}

	a := middleware.GetApp(c)
	scores, err := a.Graph.CalculateCentrality(c.Request().Context(), params.Algorithm, params.Limit)
	if err != nil {
		return middleware.ErrorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"scores": scores})
}

func GetCommunitiesHandler(c echo.Context) error {
	type communityParams struct {
		Algorithm      graph.CommunityAlgorithm `query:"algorithm"`
		MinSize        int                      `query:"min_size"`
		MaxCommunities int                      `query:"max_communities"`
	}

	params := new(communityParams)
	if ok, err := bindAndValidate(c, params); !ok {
		return err
	}

	a := middleware.GetApp(c)
	communities, err := a.Graph.DetectCommunities(c.Request().Context(), params.Algorithm, params.MinSize, params.MaxCommunities)
	if err != nil {
		return middleware.ErrorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"communities": communities})
}

func GetStatisticsHandler(c echo.Context) error {
	a := middleware.GetApp(c)
	stats, err := a.Graph.GetGraphStatistics(c.Request().Context())
	if err != nil {
		return middleware.ErrorJSON(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

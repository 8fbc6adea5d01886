package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/soulmap/server/service/graph"
)

// ListNodes pages through graph nodes. userId narrows the listing to one user.
func (s *APIV1Service) ListNodes(c echo.Context) error {
	limit, offset, err := pageParams(c)
	if err != nil {
		return fail(c, err)
	}
	page, err := s.GraphService.ListNodes(c.Request().Context(), c.QueryParam("userId"), limit, offset)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

// ListEdges pages through graph edges joined with their endpoint labels.
func (s *APIV1Service) ListEdges(c echo.Context) error {
	limit, offset, err := pageParams(c)
	if err != nil {
		return fail(c, err)
	}
	page, err := s.GraphService.ListEdges(c.Request().Context(), c.QueryParam("userId"), limit, offset)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

// ListTopNodes ranks nodes globally, or around relatedTo when given.
func (s *APIV1Service) ListTopNodes(c echo.Context) error {
	limit, err := queryInt(c, "limit")
	if err != nil {
		return fail(c, err)
	}
	nodes, err := s.GraphService.TopNodes(c.Request().Context(), graph.TopNodesRequest{
		UserID:    c.QueryParam("userId"),
		RelatedTo: c.QueryParam("relatedTo"),
		Limit:     limit,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, struct {
		Success bool             `json:"success"`
		Data    []*graph.TopNode `json:"data"`
	}{Success: true, Data: nodes})
}

// GetSoulMap returns the Soul Map projection of the user's graph.
func (s *APIV1Service) GetSoulMap(c echo.Context) error {
	userID := c.QueryParam("userId")
	if userID == "" {
		userID = s.Profile.DefaultUserID
	}
	soulMap, err := s.GraphService.SoulMap(c.Request().Context(), userID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, soulMap)
}

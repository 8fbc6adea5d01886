package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "github.com/hrygo/soulmap/server/internal/errors"
	"github.com/hrygo/soulmap/server/service/journal"
)

// FinishResponse is the body of a successful finish.
type FinishResponse struct {
	Success bool   `json:"success"`
	EntryID string `json:"entryId"`
	Message string `json:"message"`
}

// FinishEntry saves a finished chat as a journal entry.
func (s *APIV1Service) FinishEntry(c echo.Context) error {
	req := &journal.FinishRequest{}
	if err := c.Bind(req); err != nil {
		return fail(c, apperrors.InvalidArgument("invalid request body"))
	}

	result, err := s.JournalService.Finish(c.Request().Context(), req)
	if err != nil {
		return fail(c, err)
	}

	message := "Journal entry saved"
	switch {
	case result.Existing:
		message = "Journal entry already saved"
	case result.Degraded():
		message = "Journal entry saved; insights will be incomplete"
	}
	return c.JSON(http.StatusOK, FinishResponse{Success: true, EntryID: result.EntryID, Message: message})
}

// ListEntries lists the user's entries newest first.
func (s *APIV1Service) ListEntries(c echo.Context) error {
	limit, offset, err := pageParams(c)
	if err != nil {
		return fail(c, err)
	}
	page, err := s.JournalService.ListEntries(c.Request().Context(), c.QueryParam("userId"), limit, offset)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

func (s *APIV1Service) GetEntry(c echo.Context) error {
	entry, err := s.JournalService.GetEntry(c.Request().Context(), c.QueryParam("userId"), c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, entry)
}

// UpdateEntry edits an entry's title and emoji.
func (s *APIV1Service) UpdateEntry(c echo.Context) error {
	req := &journal.UpdateEntryRequest{}
	if err := c.Bind(req); err != nil {
		return fail(c, apperrors.InvalidArgument("invalid request body"))
	}
	req.ID = c.Param("id")
	if req.UserID == "" {
		req.UserID = c.QueryParam("userId")
	}

	entry, err := s.JournalService.UpdateEntry(c.Request().Context(), req)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, entry)
}

// SearchEntries runs a semantic search over the user's entries.
func (s *APIV1Service) SearchEntries(c echo.Context) error {
	limit, err := queryInt(c, "limit")
	if err != nil {
		return fail(c, err)
	}
	hits, err := s.JournalService.Search(c.Request().Context(), c.QueryParam("userId"), c.QueryParam("q"), limit)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, hits)
}

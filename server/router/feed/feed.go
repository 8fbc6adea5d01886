// Package feed exports a user's journal as an Atom feed.
package feed

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/feeds"
	"github.com/labstack/echo/v4"

	"github.com/hrygo/soulmap/internal/profile"
	"github.com/hrygo/soulmap/server/service/journal"
)

const (
	maxFeedEntries = 20
	titleRunes     = 64
)

type FeedService struct {
	Profile        *profile.Profile
	JournalService *journal.Service
}

func NewFeedService(profile *profile.Profile, journalService *journal.Service) *FeedService {
	return &FeedService{
		Profile:        profile,
		JournalService: journalService,
	}
}

func (s *FeedService) RegisterRoutes(echoServer *echo.Echo) {
	echoServer.GET("/api/v1/journal/feed", s.GetJournalFeed)
}

// GetJournalFeed renders the user's latest entries as Atom.
func (s *FeedService) GetJournalFeed(c echo.Context) error {
	ctx := c.Request().Context()
	page, err := s.JournalService.ListEntries(ctx, c.QueryParam("userId"), maxFeedEntries, 0)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list journal entries").SetInternal(err)
	}

	baseURL := s.baseURL(c)
	feed := &feeds.Feed{
		Title:       "Journal",
		Link:        &feeds.Link{Href: baseURL},
		Description: "Latest journal entries",
		Id:          baseURL + "/api/v1/journal/feed",
		Created:     time.Now(),
	}
	for _, entry := range page.Data {
		feed.Items = append(feed.Items, newItem(baseURL, entry))
	}
	if len(page.Data) > 0 {
		feed.Updated = page.Data[0].UpdatedAt
	}

	atom, err := feed.ToAtom()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to render feed").SetInternal(err)
	}
	c.Response().Header().Set("Cache-Control", "max-age=300")
	return c.Blob(http.StatusOK, "application/atom+xml; charset=utf-8", []byte(atom))
}

func (s *FeedService) baseURL(c echo.Context) string {
	if s.Profile.InstanceURL != "" {
		return strings.TrimRight(s.Profile.InstanceURL, "/")
	}
	return fmt.Sprintf("%s://%s", c.Scheme(), c.Request().Host)
}

func newItem(baseURL string, entry *journal.EntryView) *feeds.Item {
	title := entry.Title
	if title == "" {
		title = firstLine(entry.Content)
	}
	if entry.Emoji != "" {
		title = entry.Emoji + " " + title
	}
	description := entry.Summary
	if description == "" {
		description = entry.AISummary
	}
	return &feeds.Item{
		Id:          entry.ID,
		Title:       title,
		Link:        &feeds.Link{Href: fmt.Sprintf("%s/api/v1/journal/entries/%s", baseURL, entry.ID)},
		Description: description,
		Content:     entry.Content,
		Created:     entry.CreatedAt,
		Updated:     entry.UpdatedAt,
	}
}

// firstLine returns the first non-empty line, without a chat role prefix.
func firstLine(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimPrefix(line, "User: ")
		if r := []rune(line); len(r) > titleRunes {
			return string(r[:titleRunes]) + "…"
		}
		return line
	}
	return "Untitled entry"
}

package feed

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/soulmap/internal/profile"
	"github.com/hrygo/soulmap/server/service/journal"
	"github.com/hrygo/soulmap/store"
	teststore "github.com/hrygo/soulmap/store/test"
)

type atomFeed struct {
	Title   string `xml:"title"`
	Entries []struct {
		ID      string `xml:"id"`
		Title   string `xml:"title"`
		Summary string `xml:"summary"`
	} `xml:"entry"`
}

func TestGetJournalFeed(t *testing.T) {
	ctx := context.Background()
	st := teststore.NewTestingStore(ctx, t)

	for i, e := range []struct{ title, content string }{
		{"", "User: Long walk with Sam.\n\nAI: How was it?"},
		{"Deadline week", "Work piled up again."},
	} {
		entry, err := st.CreateJournalEntry(ctx, &store.JournalEntry{
			ID:        fmt.Sprintf("entry-%d", i+1),
			UserID:    "default-user",
			Content:   e.content,
			CreatedTs: int64(1_700_000_000 + i*60),
		})
		require.NoError(t, err)
		if e.title != "" {
			summary := "A stressful week."
			require.NoError(t, st.UpdateJournalEntry(ctx, &store.UpdateJournalEntry{
				ID: entry.ID, UserID: entry.UserID, UpdatedTs: entry.CreatedTs, Title: &e.title, Summary: &summary,
			}))
		}
	}
	_, err := st.CreateJournalEntry(ctx, &store.JournalEntry{ID: "other", UserID: "someone-else", Content: "not mine"})
	require.NoError(t, err)

	prof := &profile.Profile{DefaultUserID: "default-user", InstanceURL: "https://journal.example.com/"}
	journalService := journal.NewService(journal.Config{Store: st, DefaultUserID: prof.DefaultUserID})

	e := echo.New()
	NewFeedService(prof, journalService).RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/journal/feed", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), "application/atom+xml"))

	var feed atomFeed
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &feed))
	assert.Equal(t, "Journal", feed.Title)
	require.Len(t, feed.Entries, 2)

	// Newest first.
	assert.Equal(t, "Deadline week", feed.Entries[0].Title)
	assert.Equal(t, "A stressful week.", feed.Entries[0].Summary)
	assert.Equal(t, "Long walk with Sam.", feed.Entries[1].Title)
	assert.Contains(t, rec.Body.String(), "https://journal.example.com/api/v1/journal/entries/entry-1")
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "Untitled entry", firstLine("  \n "))
	assert.Equal(t, "hello", firstLine("\n User: hello \nAI: hi"))
	long := strings.Repeat("a", titleRunes+5)
	assert.Equal(t, strings.Repeat("a", titleRunes)+"…", firstLine(long))
}

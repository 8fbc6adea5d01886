package v1

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/soulmap/internal/profile"
	"github.com/hrygo/soulmap/plugin/ai/graph"
	graphsvc "github.com/hrygo/soulmap/server/service/graph"
	"github.com/hrygo/soulmap/server/service/journal"
	teststore "github.com/hrygo/soulmap/store/test"
)

type fakeEmbedder struct {
	mu  sync.Mutex
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		v, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (*fakeEmbedder) Dimensions() int { return 3 }
func (*fakeEmbedder) Model() string   { return "fake-embedding" }

func (f *fakeEmbedder) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakeExtractor struct {
	result graph.Result
}

func (f *fakeExtractor) Extract(_ context.Context, _ string) graph.Result {
	return f.result
}

type fixture struct {
	echo      *echo.Echo
	embedder  *fakeEmbedder
	extractor *fakeExtractor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithRate(t, 100)
}

func newFixtureWithRate(t *testing.T, finishRate float64) *fixture {
	t.Helper()
	ctx := context.Background()
	st := teststore.NewTestingStore(ctx, t)

	embedder := &fakeEmbedder{}
	extractor := &fakeExtractor{result: graph.Result{Graph: graph.Graph{
		Nodes: []graph.Node{{Label: "work", Type: "theme"}, {Label: "anxiety", Type: "emotion"}},
		Edges: []graph.Edge{{From: "work", To: "anxiety", Weight: -0.8}},
	}}}

	prof := &profile.Profile{Mode: "dev", DefaultUserID: "default-user", FinishRateLimit: finishRate}
	journalService := journal.NewService(journal.Config{
		Store:         st,
		Embedder:      embedder,
		Extractor:     extractor,
		DefaultUserID: prof.DefaultUserID,
	})
	graphService := graphsvc.NewService(st, nil)

	e := echo.New()
	NewAPIV1Service(prof, journalService, graphService).RegisterRoutes(e)
	return &fixture{echo: e, embedder: embedder, extractor: extractor}
}

func (f *fixture) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), rec.Body.String())
	return rec, decoded
}

const finishBody = `{"chat":[{"role":"user","content":"Deadline at work again."},{"role":"ai","content":"How did that feel?"}]}`

func TestFinishEntry(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodPost, "/api/v1/journal/finish", finishBody)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["entryId"])
	assert.Equal(t, "Journal entry saved", body["message"])

	rec, entry := f.do(t, http.MethodGet, "/api/v1/journal/entries/"+body["entryId"].(string), "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := entry["data"].(map[string]any)
	assert.Equal(t, "User: Deadline at work again.\n\nAI: How did that feel?", data["content"])
	assert.Equal(t, "default-user", data["user_id"])
}

func TestFinishEntry_GraphFailureStillSucceeds(t *testing.T) {
	f := newFixture(t)
	f.extractor.result = graph.Result{Graph: graph.Empty(), Err: errors.New("llm down")}

	rec, body := f.do(t, http.MethodPost, "/api/v1/journal/finish", finishBody)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["entryId"])
	assert.Equal(t, "Journal entry saved; insights will be incomplete", body["message"])
}

func TestFinishEntry_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		embedErr   error
		wantStatus int
		wantMsg    string
	}{
		{"malformed json", `{"chat":`, nil, http.StatusBadRequest, "invalid request body"},
		{"missing chat", `{"userId":"u"}`, nil, http.StatusBadRequest, "chat is required"},
		{"bad role", `{"chat":[{"role":"bot","content":"hi"}]}`, nil, http.StatusBadRequest, "chat[0].role must be one of [user ai]"},
		{"bad created_at", `{"chat":[{"role":"user","content":"hi"}],"created_at":"yesterday"}`, nil, http.StatusBadRequest, "created_at must be an RFC 3339 timestamp"},
		{"embedding down", finishBody, errors.New("503 from provider"), http.StatusBadGateway, "failed to embed journal entry"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.embedder.fail(tt.embedErr)

			rec, body := f.do(t, http.MethodPost, "/api/v1/journal/finish", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.wantMsg, body["message"])
		})
	}
}

func TestFinishEntry_RateLimited(t *testing.T) {
	f := newFixtureWithRate(t, 0.001)

	for i := 0; i < finishBurst; i++ {
		rec, _ := f.do(t, http.MethodPost, "/api/v1/journal/finish", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
	rec, body := f.do(t, http.MethodPost, "/api/v1/journal/finish", finishBody)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, false, body["success"])

	// Reads are not limited.
	rec, _ = f.do(t, http.MethodGet, "/api/v1/graph/nodes", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGraphEndpoints(t *testing.T) {
	f := newFixture(t)
	rec, _ := f.do(t, http.MethodPost, "/api/v1/journal/finish", finishBody)
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("nodes", func(t *testing.T) {
		rec, body := f.do(t, http.MethodGet, "/api/v1/graph/nodes?limit=1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, body["data"], 1)
		pagination := body["pagination"].(map[string]any)
		assert.Equal(t, float64(2), pagination["total"])
		assert.Equal(t, float64(1), pagination["limit"])
		assert.Equal(t, true, pagination["hasMore"])
	})

	t.Run("edges", func(t *testing.T) {
		rec, body := f.do(t, http.MethodGet, "/api/v1/graph/edges?userId=default-user", "")
		require.Equal(t, http.StatusOK, rec.Code)
		edges := body["data"].([]any)
		require.Len(t, edges, 1)
		edge := edges[0].(map[string]any)
		assert.Equal(t, "work", edge["from_label"])
		assert.Equal(t, "anxiety", edge["to_label"])
		assert.Equal(t, -0.8, edge["weight"])
	})

	t.Run("top nodes", func(t *testing.T) {
		rec, body := f.do(t, http.MethodGet, "/api/v1/graph/top-nodes?userId=default-user", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, body["success"])
		nodes := body["data"].([]any)
		require.Len(t, nodes, 2)
		first := nodes[0].(map[string]any)
		assert.Equal(t, "anxiety", first["label"])
		assert.Nil(t, first["connection_weight"])
	})

	t.Run("top nodes relative to unknown node", func(t *testing.T) {
		rec, body := f.do(t, http.MethodGet, "/api/v1/graph/top-nodes?relatedTo=missing", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, false, body["success"])
	})

	t.Run("soul map", func(t *testing.T) {
		rec, body := f.do(t, http.MethodGet, "/api/v1/graph/soul-map", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, body["nodes"], 2)
		assert.Len(t, body["edges"], 1)
		stats := body["stats"].(map[string]any)
		assert.Equal(t, float64(2), stats["nodeCount"])
		assert.Equal(t, float64(1), stats["edgeCount"])
	})

	t.Run("bad paging", func(t *testing.T) {
		rec, body := f.do(t, http.MethodGet, "/api/v1/graph/nodes?limit=ten", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "limit must be an integer", body["message"])

		rec, _ = f.do(t, http.MethodGet, "/api/v1/graph/edges?offset=-1", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestEntryEndpoints(t *testing.T) {
	f := newFixture(t)
	_, finished := f.do(t, http.MethodPost, "/api/v1/journal/finish", finishBody)
	id := finished["entryId"].(string)

	rec, body := f.do(t, http.MethodGet, "/api/v1/journal/entries", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["data"], 1)

	rec, body = f.do(t, http.MethodPatch, "/api/v1/journal/entries/"+id, `{"title":"  Deadline week ","emoji":"📅"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "Deadline week", data["title"])
	assert.Equal(t, "📅", data["emoji"])

	rec, _ = f.do(t, http.MethodPatch, "/api/v1/journal/entries/"+id, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = f.do(t, http.MethodGet, "/api/v1/journal/entries/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "journal entry not found", body["message"])

	rec, _ = f.do(t, http.MethodGet, "/api/v1/journal/entries/"+id+"?userId=someone-else", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearchEntries(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodGet, "/api/v1/journal/search", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "query is required", body["message"])

	// The SQLite test store has no vector search.
	rec, body = f.do(t, http.MethodGet, "/api/v1/journal/search?q=work", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Equal(t, false, body["success"])
}

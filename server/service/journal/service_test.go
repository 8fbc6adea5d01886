package journal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/soulmap/plugin/ai"
	"github.com/hrygo/soulmap/plugin/ai/graph"
	apperrors "github.com/hrygo/soulmap/server/internal/errors"
	"github.com/hrygo/soulmap/server/internal/observability"
	"github.com/hrygo/soulmap/store"
	teststore "github.com/hrygo/soulmap/store/test"
)

const defaultUserID = "default-user"

type fakeEmbedder struct {
	mu    sync.Mutex
	err   error
	texts []string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
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

func (f *fakeEmbedder) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.texts)
}

type fakeExtractor struct {
	mu     sync.Mutex
	result graph.Result
	texts  []string
}

func (f *fakeExtractor) Extract(_ context.Context, text string) graph.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return f.result
}

func (f *fakeExtractor) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.texts)
}

type fakeLLM struct {
	reply string
	err   error
}

func (f *fakeLLM) Chat(context.Context, []ai.Message) (string, error) {
	return f.reply, f.err
}

type fixture struct {
	svc       *Service
	store     *store.Store
	embedder  *fakeEmbedder
	extractor *fakeExtractor
	llm       *fakeLLM
	metrics   *observability.Metrics
}

func newFixture(ctx context.Context, t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    teststore.NewTestingStore(ctx, t),
		embedder: &fakeEmbedder{},
		extractor: &fakeExtractor{result: graph.Result{Graph: graph.Graph{
			Nodes: []graph.Node{{Label: "work", Type: "theme"}, {Label: "anxiety", Type: "emotion"}},
			Edges: []graph.Edge{{From: "work", To: "anxiety", Weight: -0.7}},
		}}},
		llm:     &fakeLLM{reply: "```json\n{\"title\":\"Deadline week\",\"emoji\":\"😮‍💨\",\"summary\":\"Work piled up.\",\"ai_summary\":\"You carried a lot this week.\"}\n```"},
		metrics: observability.NewMetrics("test"),
	}
	f.svc = NewService(Config{
		Store:         f.store,
		Embedder:      f.embedder,
		Extractor:     f.extractor,
		Summarizer:    NewSummarizer(f.llm, time.Second),
		Metrics:       f.metrics,
		DefaultUserID: defaultUserID,
	})
	return f
}

func chat(msgs ...string) []ChatMessage {
	out := make([]ChatMessage, 0, len(msgs))
	for i, m := range msgs {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAI
		}
		out = append(out, ChatMessage{Role: role, Content: m})
	}
	return out
}

func (f *fixture) entryCount(ctx context.Context, t *testing.T, userID string) int {
	t.Helper()
	_, total, err := f.store.ListJournalEntries(ctx, &store.FindJournalEntry{UserID: &userID})
	require.NoError(t, err)
	return total
}

func TestFinish(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)

	result, err := f.svc.Finish(ctx, &FinishRequest{Chat: chat("Work is crushing me.", "What feels heaviest?", "The deadline.")})
	require.NoError(t, err)
	require.NotEmpty(t, result.EntryID)
	assert.False(t, result.Existing)
	assert.False(t, result.Degraded())
	require.NotNil(t, result.Graph)
	assert.Equal(t, 2, result.Graph.NodesCreated)
	assert.Equal(t, 1, result.Graph.EdgesCreated)

	wantText := "User: Work is crushing me.\n\nAI: What feels heaviest?\n\nUser: The deadline."
	assert.Equal(t, []string{wantText}, f.embedder.texts)
	assert.Equal(t, []string{wantText}, f.extractor.texts)

	entry, err := f.store.GetJournalEntry(ctx, &store.FindJournalEntry{ID: &result.EntryID})
	require.NoError(t, err)
	assert.Equal(t, defaultUserID, entry.UserID)
	assert.Equal(t, wantText, entry.Content)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, entry.Embedding)
	assert.Equal(t, &store.EntryMetadata{MessageCount: 3, Source: SourceChat, Model: "fake-embedding"}, entry.Metadata)
	assert.Equal(t, "Deadline week", entry.Title)
	assert.Equal(t, "😮‍💨", entry.Emoji)
	assert.Equal(t, "You carried a lot this week.", entry.AISummary)

	uid := defaultUserID
	nodes, _, err := f.store.ListGraphNodes(ctx, &store.FindGraphNode{UserID: &uid})
	require.NoError(t, err)
	assert.Len(t, nodes, 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FinishTotal.WithLabelValues(observability.OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ExtractionTotal.WithLabelValues(observability.OutcomeOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.NodesCreated))
}

func TestFinish_Validation(t *testing.T) {
	tests := []struct {
		name    string
		req     *FinishRequest
		wantMsg string
	}{
		{name: "nil request", req: nil, wantMsg: "request body is required"},
		{name: "missing chat", req: &FinishRequest{}, wantMsg: "chat is required"},
		{name: "empty chat", req: &FinishRequest{Chat: []ChatMessage{}}, wantMsg: "chat must have at least 1 item(s)"},
		{name: "bad role", req: &FinishRequest{Chat: []ChatMessage{{Role: "system", Content: "hi"}}}, wantMsg: "chat[0].role must be one of [user ai]"},
		{name: "blank content", req: &FinishRequest{Chat: []ChatMessage{{Role: RoleUser, Content: "   "}}}, wantMsg: "chat[0].content is required"},
		{name: "bad created_at", req: &FinishRequest{Chat: chat("hi"), CreatedAt: "yesterday"}, wantMsg: "created_at must be an RFC 3339 timestamp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(ctx, t)

			_, err := f.svc.Finish(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidArgument), err)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Zero(t, f.embedder.calls())
			assert.Zero(t, f.entryCount(ctx, t, defaultUserID))
		})
	}
}

func TestFinish_EmbeddingFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)
	f.embedder.err = errors.New("503 from provider")

	result, err := f.svc.Finish(ctx, &FinishRequest{Chat: chat("Long day.")})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUpstreamUnavailable))
	assert.Zero(t, f.extractor.calls())
	assert.Zero(t, f.entryCount(ctx, t, defaultUserID))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FinishTotal.WithLabelValues(observability.OutcomeFailed)))
}

func TestFinish_GraphFailureDoesNotBlockSave(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)
	f.extractor.result = graph.Result{Graph: graph.Empty(), Err: &graph.ParseError{Raw: "I cannot do that."}}

	result, err := f.svc.Finish(ctx, &FinishRequest{Chat: chat("Quiet evening.")})
	require.NoError(t, err)
	require.NotEmpty(t, result.EntryID)
	assert.True(t, result.Degraded())
	var parseErr *graph.ParseError
	assert.ErrorAs(t, result.GraphErr, &parseErr)
	assert.NoError(t, result.SummaryErr)

	entry, err := f.store.GetJournalEntry(ctx, &store.FindJournalEntry{ID: &result.EntryID})
	require.NoError(t, err)
	assert.Equal(t, "Quiet evening.", entry.Content)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FinishTotal.WithLabelValues(observability.OutcomeDegraded)))
}

func TestFinish_SummaryFailureDoesNotBlockSave(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)
	f.llm.err = errors.New("circuit open")

	result, err := f.svc.Finish(ctx, &FinishRequest{Chat: chat("Quiet evening.")})
	require.NoError(t, err)
	assert.NoError(t, result.GraphErr)
	assert.Error(t, result.SummaryErr)

	entry, err := f.store.GetJournalEntry(ctx, &store.FindJournalEntry{ID: &result.EntryID})
	require.NoError(t, err)
	assert.Empty(t, entry.Title)
}

func TestFinish_EmptyExtraction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)
	f.extractor.result = graph.Result{Graph: graph.Empty()}

	result, err := f.svc.Finish(ctx, &FinishRequest{Chat: chat("Nothing much.")})
	require.NoError(t, err)
	assert.False(t, result.Degraded())
	assert.Equal(t, &store.MergeStats{}, result.Graph)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ExtractionTotal.WithLabelValues(observability.OutcomeEmpty)))
}

func TestFinish_WithoutEnrichment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)
	svc := NewService(Config{Store: f.store, Embedder: f.embedder, DefaultUserID: defaultUserID})

	result, err := svc.Finish(ctx, &FinishRequest{Chat: chat("Just saving.")})
	require.NoError(t, err)
	assert.Nil(t, result.Graph)
	assert.False(t, result.Degraded())
	assert.Zero(t, f.extractor.calls())
}

func TestFinish_ClientEntryIDIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)
	clientID := uuid.NewString()
	req := &FinishRequest{
		Chat:           chat("Saved offline."),
		UserID:         "user-1",
		JournalEntryID: clientID,
		CreatedAt:      "2025-01-01T08:30:00+02:00",
	}

	first, err := f.svc.Finish(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, clientID, first.EntryID)
	assert.False(t, first.Existing)

	second, err := f.svc.Finish(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, clientID, second.EntryID)
	assert.True(t, second.Existing)

	assert.Equal(t, 1, f.embedder.calls())
	assert.Equal(t, 1, f.extractor.calls())
	assert.Equal(t, 1, f.entryCount(ctx, t, "user-1"))

	entry, err := f.store.GetJournalEntry(ctx, &store.FindJournalEntry{ID: &clientID})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 1, 6, 30, 0, 0, time.UTC).Unix(), entry.CreatedTs)

	// The same id under another user is rejected.
	req.UserID = "user-2"
	_, err = f.svc.Finish(ctx, req)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidArgument))
}

func TestFinish_NonUUIDClientIDIsReplaced(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)

	result, err := f.svc.Finish(ctx, &FinishRequest{Chat: chat("Offline draft."), JournalEntryID: "local-42"})
	require.NoError(t, err)
	assert.NotEqual(t, "local-42", result.EntryID)
	_, err = uuid.Parse(result.EntryID)
	assert.NoError(t, err)
}

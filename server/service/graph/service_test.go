package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hrygo/soulmap/server/internal/errors"
	"github.com/hrygo/soulmap/server/internal/observability"
	"github.com/hrygo/soulmap/store"
	teststore "github.com/hrygo/soulmap/store/test"
)

const userID = "user-1"

func newTestService(ctx context.Context, t *testing.T) (*Service, *store.Store, *observability.Metrics) {
	t.Helper()
	st := teststore.NewTestingStore(ctx, t)
	metrics := observability.NewMetrics("test")
	return NewService(st, metrics), st, metrics
}

func merge(ctx context.Context, t *testing.T, st *store.Store, entryID string, nodes []store.MergeNode, edges []store.MergeEdge) {
	t.Helper()
	_, err := st.MergeGraph(ctx, &store.MergeGraph{
		UserID:  userID,
		EntryID: entryID,
		Nodes:   nodes,
		Edges:   edges,
		Now:     time.UnixMilli(1_735_725_600_000),
	})
	require.NoError(t, err)
}

func seedWorkGraph(ctx context.Context, t *testing.T, st *store.Store) {
	t.Helper()
	merge(ctx, t, st, "entry-1",
		[]store.MergeNode{{Label: "work", Type: "theme"}, {Label: "anxiety", Type: "emotion"}, {Label: "Sam", Type: "person"}},
		[]store.MergeEdge{{From: "work", To: "anxiety", Weight: -0.8}, {From: "Sam", To: "anxiety", Weight: 0.6}},
	)
	merge(ctx, t, st, "entry-2",
		[]store.MergeNode{{Label: "anxiety", Type: "emotion"}},
		nil,
	)
}

func nodeID(ctx context.Context, t *testing.T, st *store.Store, label string) string {
	t.Helper()
	uid := userID
	nodes, _, err := st.ListGraphNodes(ctx, &store.FindGraphNode{UserID: &uid})
	require.NoError(t, err)
	for _, n := range nodes {
		if n.Label == label {
			return n.ID
		}
	}
	t.Fatalf("node %q not found", label)
	return ""
}

func TestListNodes_Pagination(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(ctx, t)

	nodes := make([]store.MergeNode, 120)
	for i := range nodes {
		nodes[i] = store.MergeNode{Label: fmt.Sprintf("theme-%03d", i), Type: "theme"}
	}
	merge(ctx, t, st, "entry-1", nodes, nil)

	page, err := svc.ListNodes(ctx, userID, 50, 100)
	require.NoError(t, err)
	assert.Len(t, page.Data, 20)
	assert.Equal(t, store.Pagination{Total: 120, Limit: 50, Offset: 100, HasMore: false}, page.Pagination)

	page, err = svc.ListNodes(ctx, "", 0, -5)
	require.NoError(t, err)
	assert.Len(t, page.Data, store.DefaultPageLimit)
	assert.True(t, page.Pagination.HasMore)
	assert.Equal(t, 0, page.Pagination.Offset)
	assert.Equal(t, "2025-01-01T10:00:00Z", page.Data[0].CreatedAt)
}

func TestListEdges(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(ctx, t)
	seedWorkGraph(ctx, t, st)

	page, err := svc.ListEdges(ctx, userID, 10, 0)
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	assert.Equal(t, 2, page.Pagination.Total)
	assert.False(t, page.Pagination.HasMore)

	for _, edge := range page.Data {
		assert.Equal(t, "anxiety", edge.ToLabel)
		assert.Equal(t, "emotion", edge.ToType)
		assert.Equal(t, []string{"2025-01-01T10:00:00Z"}, edge.Timestamps)
		assert.Equal(t, "entry-1", edge.SourceEntryID)
	}

	bytes, err := json.Marshal(page)
	require.NoError(t, err)
	assert.Contains(t, string(bytes), `"hasMore":false`)
	assert.Contains(t, string(bytes), `"from_label"`)
}

func TestTopNodes_Global(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(ctx, t)
	seedWorkGraph(ctx, t, st)

	top, err := svc.TopNodes(ctx, TopNodesRequest{UserID: userID})
	require.NoError(t, err)
	require.Len(t, top, 3)

	// anxiety: two incoming edges averaging -0.1, mentioned by two entries.
	assert.Equal(t, "anxiety", top[0].Label)
	assert.Equal(t, 2, top[0].EdgeCount)
	assert.InDelta(t, -0.1, top[0].TotalWeight, 1e-9)
	assert.Equal(t, 2, top[0].EntryCount)
	assert.InDelta(t, 3.9, top[0].Score, 1e-9)
	assert.Nil(t, top[0].ConnectionWeight)
	assert.Nil(t, top[0].ConnectionType)

	// Sam (0.6) outranks work (-0.8) on total weight.
	assert.Equal(t, "Sam", top[1].Label)
	assert.Equal(t, "work", top[2].Label)

	limited, err := svc.TopNodes(ctx, TopNodesRequest{UserID: userID, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestTopNodes_Relative(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(ctx, t)
	seedWorkGraph(ctx, t, st)

	top, err := svc.TopNodes(ctx, TopNodesRequest{UserID: userID, RelatedTo: nodeID(ctx, t, st, "anxiety")})
	require.NoError(t, err)
	require.Len(t, top, 2)

	assert.Equal(t, "Sam", top[0].Label)
	require.NotNil(t, top[0].ConnectionWeight)
	assert.InDelta(t, 0.6, *top[0].ConnectionWeight, 1e-9)
	require.NotNil(t, top[0].ConnectionType)
	assert.Equal(t, store.ConnectionIncoming, *top[0].ConnectionType)
	assert.Equal(t, "work", top[1].Label)

	_, err = svc.TopNodes(ctx, TopNodesRequest{UserID: userID, RelatedTo: "missing"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
}

func TestSoulMap(t *testing.T) {
	ctx := context.Background()
	svc, st, metrics := newTestService(ctx, t)
	seedWorkGraph(ctx, t, st)

	soulMap, err := svc.SoulMap(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 3, soulMap.Stats.NodeCount)
	assert.Equal(t, 2, soulMap.Stats.EdgeCount)
	require.NotNil(t, soulMap.Stats.StrongestNode)
	assert.Equal(t, "anxiety", soulMap.Stats.StrongestNode.Label)
	assert.Equal(t, 2, soulMap.Stats.StrongestNode.MentionCount)

	for _, node := range soulMap.Nodes {
		assert.Equal(t, defaultStrength, node.Strength)
		assert.Equal(t, defaultSentiment, node.Sentiment)
		assert.Equal(t, defaultIntensity, node.Intensity)
		assert.GreaterOrEqual(t, node.MentionCount, 1)
	}

	// Strongest edge first.
	require.Len(t, soulMap.Edges, 2)
	assert.InDelta(t, 0.6, soulMap.Edges[0].Weight, 1e-9)
	assert.InDelta(t, 0.6, soulMap.Edges[0].Sentiment, 1e-9)
	assert.Equal(t, "Sam", soulMap.Edges[0].SourceLabel)
	assert.Equal(t, 1, soulMap.Edges[0].MentionCount)
	assert.InDelta(t, 0.8, soulMap.Edges[1].Intensity, 1e-9)

	_, err = svc.SoulMap(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheMisses))

	// A merge invalidates the cached projection.
	merge(ctx, t, st, "entry-3", []store.MergeNode{{Label: "sleep", Type: "theme"}}, nil)
	soulMap, err = svc.SoulMap(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 4, soulMap.Stats.NodeCount)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.CacheMisses))
}

func TestSoulMap_Empty(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(ctx, t)

	soulMap, err := svc.SoulMap(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, soulMap.Nodes)
	assert.Empty(t, soulMap.Edges)
	assert.Nil(t, soulMap.Stats.StrongestNode)

	bytes, err := json.Marshal(soulMap)
	require.NoError(t, err)
	assert.JSONEq(t, `{"nodes":[],"edges":[],"stats":{"nodeCount":0,"edgeCount":0,"strongestNode":null}}`, string(bytes))

	_, err = svc.SoulMap(ctx, "")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidArgument))
}

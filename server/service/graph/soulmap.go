package graph

import (
	"context"
	"encoding/json"
	"math"
	"sort"

	apperrors "github.com/hrygo/soulmap/server/internal/errors"
	"github.com/hrygo/soulmap/server/internal/observability"
	"github.com/hrygo/soulmap/store"
)

// Display defaults for fields the stored graph does not carry.
const (
	defaultStrength     = 1.0
	defaultSentiment    = 0.0
	defaultIntensity    = 0.0
	defaultMentionCount = 1
)

// SoulMapNode is a node decorated for visualization.
type SoulMapNode struct {
	ID           string  `json:"id"`
	Label        string  `json:"label"`
	Type         string  `json:"type"`
	Strength     float64 `json:"strength"`
	Sentiment    float64 `json:"sentiment"`
	Intensity    float64 `json:"intensity"`
	MentionCount int     `json:"mentionCount"`
	CreatedAt    string  `json:"createdAt"`
}

// SoulMapEdge is an edge decorated for visualization.
type SoulMapEdge struct {
	ID              string  `json:"id"`
	Source          string  `json:"source"`
	Target          string  `json:"target"`
	SourceLabel     string  `json:"sourceLabel"`
	TargetLabel     string  `json:"targetLabel"`
	Weight          float64 `json:"weight"`
	Strength        float64 `json:"strength"`
	Sentiment       float64 `json:"sentiment"`
	Intensity       float64 `json:"intensity"`
	MentionCount    int     `json:"mentionCount"`
	LastMentionedAt string  `json:"lastMentionedAt,omitempty"`
}

// SoulMapStats summarizes the projection.
type SoulMapStats struct {
	NodeCount     int          `json:"nodeCount"`
	EdgeCount     int          `json:"edgeCount"`
	StrongestNode *SoulMapNode `json:"strongestNode"`
}

// SoulMap is the visualization projection of one user's graph.
type SoulMap struct {
	Nodes []*SoulMapNode `json:"nodes"`
	Edges []*SoulMapEdge `json:"edges"`
	Stats SoulMapStats   `json:"stats"`
}

// SoulMap returns the user's 50 most recent nodes and 100 strongest edges.
// Projections are cached per user until the next merge into that user's graph.
func (s *Service) SoulMap(ctx context.Context, userID string) (*SoulMap, error) {
	if userID == "" {
		return nil, apperrors.InvalidArgument("user id is required")
	}

	key := store.GraphCacheKey(userID, soulMapCacheView)
	if cached, ok := s.store.Cache().Get(ctx, key); ok {
		var soulMap SoulMap
		if err := json.Unmarshal(cached, &soulMap); err == nil {
			s.metrics.RecordCache(true)
			return &soulMap, nil
		}
		observability.Logger(ctx).Warn("discarding undecodable soul map cache entry", "key", key)
	}
	s.metrics.RecordCache(false)

	soulMap, err := s.buildSoulMap(ctx, userID)
	if err != nil {
		return nil, err
	}
	if bytes, err := json.Marshal(soulMap); err == nil {
		if err := s.store.Cache().Set(ctx, key, bytes, s.SoulMapTTL); err != nil {
			observability.Logger(ctx).Warn("failed to cache soul map", "key", key, "error", err)
		}
	}
	return soulMap, nil
}

func (s *Service) buildSoulMap(ctx context.Context, userID string) (*SoulMap, error) {
	nodeLimit, edgeLimit := soulMapNodeLimit, soulMapEdgeLimit
	nodes, _, err := s.store.ListGraphNodes(ctx, &store.FindGraphNode{UserID: &userID, Limit: &nodeLimit})
	if err != nil {
		return nil, apperrors.PersistenceFailed("failed to list soul map nodes", err)
	}
	edges, _, err := s.store.ListGraphEdges(ctx, &store.FindGraphEdge{
		UserID:  &userID,
		OrderBy: store.EdgeOrderWeight,
		Limit:   &edgeLimit,
	})
	if err != nil {
		return nil, apperrors.PersistenceFailed("failed to list soul map edges", err)
	}

	soulMap := &SoulMap{
		Nodes: make([]*SoulMapNode, 0, len(nodes)),
		Edges: make([]*SoulMapEdge, 0, len(edges)),
	}
	for _, node := range nodes {
		soulMap.Nodes = append(soulMap.Nodes, newSoulMapNode(node))
	}
	for _, edge := range edges {
		soulMap.Edges = append(soulMap.Edges, newSoulMapEdge(edge))
	}
	soulMap.Stats = SoulMapStats{
		NodeCount:     len(soulMap.Nodes),
		EdgeCount:     len(soulMap.Edges),
		StrongestNode: strongestNode(soulMap.Nodes),
	}
	return soulMap, nil
}

func newSoulMapNode(n *store.Node) *SoulMapNode {
	mentions := n.EntryCount
	if mentions <= 0 {
		mentions = defaultMentionCount
	}
	return &SoulMapNode{
		ID:           n.ID,
		Label:        n.Label,
		Type:         n.Type,
		Strength:     defaultStrength,
		Sentiment:    defaultSentiment,
		Intensity:    defaultIntensity,
		MentionCount: mentions,
		CreatedAt:    formatUnix(n.CreatedTs),
	}
}

func newSoulMapEdge(e *store.EdgeView) *SoulMapEdge {
	edge := &SoulMapEdge{
		ID:           e.ID,
		Source:       e.FromNodeID,
		Target:       e.ToNodeID,
		SourceLabel:  e.FromLabel,
		TargetLabel:  e.ToLabel,
		Weight:       e.Weight,
		Strength:     defaultStrength,
		Sentiment:    e.Weight,
		Intensity:    math.Abs(e.Weight),
		MentionCount: len(e.Timestamps),
	}
	if edge.MentionCount == 0 {
		edge.MentionCount = defaultMentionCount
	}
	if n := len(e.Timestamps); n > 0 {
		edge.LastMentionedAt = formatUnixMilli(e.Timestamps[n-1])
	}
	return edge
}

// strongestNode picks the most mentioned node, breaking ties by label.
func strongestNode(nodes []*SoulMapNode) *SoulMapNode {
	if len(nodes) == 0 {
		return nil
	}
	sorted := make([]*SoulMapNode, len(nodes))
	copy(sorted, nodes)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].MentionCount != sorted[j].MentionCount {
			return sorted[i].MentionCount > sorted[j].MentionCount
		}
		return sorted[i].Label < sorted[j].Label
	})
	return sorted[0]
}

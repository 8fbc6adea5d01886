// Package graph serves read views of a user's knowledge graph: paginated node
// and edge listings, ranked top nodes and the Soul Map projection.
package graph

import (
	"context"
	"time"

	"github.com/pkg/errors"

	apperrors "github.com/hrygo/soulmap/server/internal/errors"
	"github.com/hrygo/soulmap/server/internal/observability"
	"github.com/hrygo/soulmap/store"
)

const (
	// DefaultTopNodesLimit is used when a top-nodes request names no limit.
	DefaultTopNodesLimit = 10
	// MaxTopNodesLimit caps a top-nodes request.
	MaxTopNodesLimit = 100

	soulMapNodeLimit = 50
	soulMapEdgeLimit = 100
	soulMapCacheView = "soulmap"
)

// Service answers graph queries from the store.
type Service struct {
	store   *store.Store
	metrics *observability.Metrics

	// SoulMapTTL bounds how long a cached projection is served; zero uses the cache default.
	SoulMapTTL time.Duration
	// Scorer computes top-node scores; nil uses store.ScoreTopNode.
	Scorer store.TopNodeScorer
}

// NewService creates a graph query service. metrics may be nil.
func NewService(st *store.Store, metrics *observability.Metrics) *Service {
	return &Service{
		store:      st,
		metrics:    metrics,
		SoulMapTTL: 5 * time.Minute,
	}
}

// Page is one page of a listing.
type Page[T any] struct {
	Data       []T              `json:"data"`
	Pagination store.Pagination `json:"pagination"`
}

// ListNodes returns nodes newest first. An empty userID lists every user's nodes.
func (s *Service) ListNodes(ctx context.Context, userID string, limit, offset int) (*Page[*NodeView], error) {
	limit, offset = store.NormalizePage(limit, offset)
	find := &store.FindGraphNode{Limit: &limit, Offset: &offset}
	if userID != "" {
		find.UserID = &userID
	}

	nodes, total, err := s.store.ListGraphNodes(ctx, find)
	if err != nil {
		return nil, apperrors.PersistenceFailed("failed to list graph nodes", err)
	}
	data := make([]*NodeView, 0, len(nodes))
	for _, node := range nodes {
		data = append(data, newNodeView(node))
	}
	return &Page[*NodeView]{Data: data, Pagination: store.NewPagination(total, limit, offset)}, nil
}

// ListEdges returns edges newest first, joined with their endpoint labels.
// An empty userID lists every user's edges.
func (s *Service) ListEdges(ctx context.Context, userID string, limit, offset int) (*Page[*EdgeView], error) {
	limit, offset = store.NormalizePage(limit, offset)
	find := &store.FindGraphEdge{Limit: &limit, Offset: &offset}
	if userID != "" {
		find.UserID = &userID
	}

	edges, total, err := s.store.ListGraphEdges(ctx, find)
	if err != nil {
		return nil, apperrors.PersistenceFailed("failed to list graph edges", err)
	}
	data := make([]*EdgeView, 0, len(edges))
	for _, edge := range edges {
		data = append(data, newEdgeView(edge))
	}
	return &Page[*EdgeView]{Data: data, Pagination: store.NewPagination(total, limit, offset)}, nil
}

// TopNodesRequest selects the ranking mode.
type TopNodesRequest struct {
	// UserID restricts ranking to one user's graph; empty ranks all nodes.
	UserID string
	// RelatedTo switches to relative mode around this node id.
	RelatedTo string
	Limit     int
}

// TopNodes ranks nodes globally or relative to one node.
func (s *Service) TopNodes(ctx context.Context, req TopNodesRequest) ([]*TopNode, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultTopNodesLimit
	}
	if limit > MaxTopNodesLimit {
		limit = MaxTopNodesLimit
	}

	find := &store.FindNodeStats{}
	if req.UserID != "" {
		find.UserID = &req.UserID
	}
	relative := req.RelatedTo != ""
	if relative {
		if _, err := s.store.GetGraphNode(ctx, &store.FindGraphNode{ID: &req.RelatedTo, UserID: find.UserID}); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, apperrors.NotFound("related node not found").WithContext("node_id", req.RelatedTo)
			}
			return nil, apperrors.PersistenceFailed("failed to get related node", err)
		}
		find.RelatedTo = &req.RelatedTo
	}

	stats, err := s.store.ListNodeStats(ctx, find)
	if err != nil {
		return nil, apperrors.PersistenceFailed("failed to list node stats", err)
	}
	ranked := store.RankTopNodes(stats, relative, limit, s.Scorer)

	result := make([]*TopNode, 0, len(ranked))
	for _, n := range ranked {
		result = append(result, newTopNode(n))
	}
	return result, nil
}

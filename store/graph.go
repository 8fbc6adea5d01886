package store

import (
	"context"
)

// Node is a long-lived concept extracted from journal entries.
// (Label, Type, UserID) is unique.
type Node struct {
	ID        string
	Label     string
	Type      string
	UserID    string
	CreatedTs int64

	// EntryCount is the number of distinct entries mentioning the node.
	// Populated by ListGraphNodes only.
	EntryCount int
}

// Edge is a directed, weighted relationship between two nodes of one user.
// (FromNodeID, ToNodeID, UserID) is unique.
type Edge struct {
	ID            string
	FromNodeID    string
	ToNodeID      string
	Weight        float64
	Timestamps    []int64 // unix milliseconds of every mention, oldest first
	SourceEntryID string  // last entry that touched the edge
	UserID        string
	CreatedTs     int64
	UpdatedTs     int64
}

// EdgeView is an edge joined with its endpoints for display.
type EdgeView struct {
	Edge
	FromLabel string
	FromType  string
	ToLabel   string
	ToType    string
}

// EdgeOrder selects the ordering of ListGraphEdges.
type EdgeOrder int

const (
	// EdgeOrderRecent lists newest edges first.
	EdgeOrderRecent EdgeOrder = iota
	// EdgeOrderWeight lists the highest weights first.
	EdgeOrderWeight
)

// FindGraphNode is the find condition for nodes. Nodes are ordered newest first.
type FindGraphNode struct {
	ID     *string
	UserID *string

	Limit  *int
	Offset *int
}

// FindGraphEdge is the find condition for edges.
type FindGraphEdge struct {
	UserID  *string
	OrderBy EdgeOrder

	Limit  *int
	Offset *int
}

// Connection types of a node relative to the queried node.
const (
	ConnectionIncoming = "incoming"
	ConnectionOutgoing = "outgoing"
)

// NodeStats is a node with the aggregates used for ranking.
type NodeStats struct {
	NodeID    string
	Label     string
	Type      string
	UserID    string
	CreatedTs int64

	// EdgeCount counts edges with the node at either end.
	EdgeCount int
	// TotalWeight is the average incoming plus the average outgoing edge weight.
	TotalWeight float64
	// EntryCount counts distinct entries mentioning the node.
	EntryCount int

	// Set in relative mode only: the direct edge between this node and the
	// queried node, seen from the queried node.
	ConnectionWeight *float64
	ConnectionType   string

	Score float64
}

// FindNodeStats is the find condition for node statistics.
type FindNodeStats struct {
	UserID *string
	// RelatedTo restricts results to nodes with a direct edge to or from this node.
	RelatedTo *string
}

// ListGraphNodes returns a page of nodes and the total matching count.
func (s *Store) ListGraphNodes(ctx context.Context, find *FindGraphNode) ([]*Node, int, error) {
	return s.driver.ListGraphNodes(ctx, find)
}

// GetGraphNode returns the node or ErrNotFound.
func (s *Store) GetGraphNode(ctx context.Context, find *FindGraphNode) (*Node, error) {
	list, _, err := s.driver.ListGraphNodes(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return list[0], nil
}

// ListGraphEdges returns a page of edges joined with their endpoints and the total matching count.
func (s *Store) ListGraphEdges(ctx context.Context, find *FindGraphEdge) ([]*EdgeView, int, error) {
	return s.driver.ListGraphEdges(ctx, find)
}

// ListNodeStats returns per-node aggregates. In relative mode a node linked to
// the queried node in both directions is reported once, keeping the stronger connection.
func (s *Store) ListNodeStats(ctx context.Context, find *FindNodeStats) ([]*NodeStats, error) {
	list, err := s.driver.ListNodeStats(ctx, find)
	if err != nil {
		return nil, err
	}
	if find.RelatedTo == nil {
		return list, nil
	}

	byNode := make(map[string]*NodeStats, len(list))
	result := make([]*NodeStats, 0, len(list))
	for _, stats := range list {
		existing, ok := byNode[stats.NodeID]
		if !ok {
			byNode[stats.NodeID] = stats
			result = append(result, stats)
			continue
		}
		if connectionWeight(stats) > connectionWeight(existing) {
			*existing = *stats
		}
	}
	return result, nil
}

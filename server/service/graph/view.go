package graph

import (
	"time"

	"github.com/hrygo/soulmap/store"
)

// NodeView is the JSON shape of a listed node.
type NodeView struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	Type       string `json:"type"`
	UserID     string `json:"user_id"`
	EntryCount int    `json:"entry_count"`
	CreatedAt  string `json:"created_at"`
}

// EdgeView is the JSON shape of a listed edge with its endpoints.
type EdgeView struct {
	ID            string   `json:"id"`
	FromNodeID    string   `json:"from_node_id"`
	ToNodeID      string   `json:"to_node_id"`
	FromLabel     string   `json:"from_label"`
	FromType      string   `json:"from_type"`
	ToLabel       string   `json:"to_label"`
	ToType        string   `json:"to_type"`
	Weight        float64  `json:"weight"`
	Timestamps    []string `json:"timestamps"`
	SourceEntryID string   `json:"source_entry_id"`
	UserID        string   `json:"user_id"`
	CreatedAt     string   `json:"created_at"`
	UpdatedAt     string   `json:"updated_at"`
}

// TopNode is the JSON shape of a ranked node.
type TopNode struct {
	NodeID           string   `json:"node_id"`
	Label            string   `json:"label"`
	Type             string   `json:"type"`
	EdgeCount        int      `json:"edge_count"`
	TotalWeight      float64  `json:"total_weight"`
	EntryCount       int      `json:"entry_count"`
	Score            float64  `json:"score"`
	ConnectionWeight *float64 `json:"connection_weight"`
	ConnectionType   *string  `json:"connection_type"`
	CreatedAt        string   `json:"created_at"`
}

func formatUnix(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}

func formatUnixMilli(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
}

func newNodeView(n *store.Node) *NodeView {
	return &NodeView{
		ID:         n.ID,
		Label:      n.Label,
		Type:       n.Type,
		UserID:     n.UserID,
		EntryCount: n.EntryCount,
		CreatedAt:  formatUnix(n.CreatedTs),
	}
}

func newEdgeView(e *store.EdgeView) *EdgeView {
	timestamps := make([]string, 0, len(e.Timestamps))
	for _, ms := range e.Timestamps {
		timestamps = append(timestamps, formatUnixMilli(ms))
	}
	return &EdgeView{
		ID:            e.ID,
		FromNodeID:    e.FromNodeID,
		ToNodeID:      e.ToNodeID,
		FromLabel:     e.FromLabel,
		FromType:      e.FromType,
		ToLabel:       e.ToLabel,
		ToType:        e.ToType,
		Weight:        e.Weight,
		Timestamps:    timestamps,
		SourceEntryID: e.SourceEntryID,
		UserID:        e.UserID,
		CreatedAt:     formatUnix(e.CreatedTs),
		UpdatedAt:     formatUnix(e.UpdatedTs),
	}
}

func newTopNode(n *store.NodeStats) *TopNode {
	top := &TopNode{
		NodeID:           n.NodeID,
		Label:            n.Label,
		Type:             n.Type,
		EdgeCount:        n.EdgeCount,
		TotalWeight:      n.TotalWeight,
		EntryCount:       n.EntryCount,
		Score:            n.Score,
		ConnectionWeight: n.ConnectionWeight,
		CreatedAt:        formatUnix(n.CreatedTs),
	}
	if n.ConnectionType != "" {
		connectionType := n.ConnectionType
		top.ConnectionType = &connectionType
	}
	return top
}
